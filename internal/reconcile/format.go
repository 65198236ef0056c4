package reconcile

import (
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/contacts-cli/internal/model"
)

// Formatter projects merged records into contact rows.
type Formatter struct {
	now func() time.Time
}

// NewFormatter returns a Formatter stamping rows with the wall clock.
func NewFormatter() *Formatter {
	return &Formatter{now: time.Now}
}

// WithClock overrides the clock used for scraped_at.
func (f *Formatter) WithClock(now func() time.Time) *Formatter {
	f.now = now
	return f
}

// Format is shorthand for NewFormatter().Format.
func Format(records []model.MergedRecord) []model.Contact {
	return NewFormatter().Format(records)
}

// Format drops every record without a successful scrape and converts the rest
// into contacts. Text is never nil, NUL-free and NFC-normalized; numbers that
// fail to parse become zero. Contacts lacking a business id are kept and
// flagged with NeedsReview.
func (f *Formatter) Format(records []model.MergedRecord) []model.Contact {
	scrapedAt := f.now().UTC().Truncate(time.Second)

	out := make([]model.Contact, 0, len(records))
	for _, rec := range records {
		if !rec.ScrapingSuccess || rec.Scraped == nil {
			continue
		}
		c := project(rec, scrapedAt)
		if c.BusinessID == "" {
			c.NeedsReview = true
			zap.L().Warn("reconcile: contact without business id flagged for review",
				zap.String("profile_url", c.ProfileURL),
				zap.String("business_name", c.BusinessName),
			)
		}
		out = append(out, c)
	}
	return out
}

func project(rec model.MergedRecord, scrapedAt time.Time) model.Contact {
	cand := rec.Candidate
	ev := rec.Evaluation
	sp := rec.Scraped

	return model.Contact{
		BusinessID:          cleanText(cand.BusinessID),
		BusinessName:        cleanText(cand.BusinessName),
		BusinessIndustry:    cleanText(sp.CompanyIndustry),
		BusinessWebURL:      cleanText(sp.CompanyWebsite),
		BusinessLinkedInURL: cleanText(sp.CompanyLinkedIn),
		BusinessFoundedYear: coerceInt(sp.CompanyFoundedIn),
		BusinessSize:        cleanText(sp.CompanySize),
		FullName:            cleanText(sp.FullName),
		FirstName:           cleanText(sp.FirstName),
		LastName:            cleanText(sp.LastName),
		Role:                cleanText(sp.JobTitle),
		ProfileURL:          rec.IdentityKey,
		ProfileLink:         cleanText(cand.ProfileURL),
		Email:               cleanText(sp.Email),
		Phone:               cleanText(sp.Phone),
		Headline:            cleanText(sp.Headline),
		JobDuration:         cleanText(sp.CurrentJobDuration),
		Country:             cleanText(sp.Country),
		City:                cleanText(sp.Location),
		AIScore:             int64(ev.Score),
		AIScoreCategory:     string(ev.Category),
		AICurrentEmployer:   string(ev.CurrentlyEmployed),
		AIFinanceRole:       string(ev.FinanceRole),
		AIExplanation:       cleanText(ev.Explanation),
		AIConfidence:        string(ev.Confidence),
		ScrapedAt:           scrapedAt,
	}
}

func cleanText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return norm.NFC.String(strings.TrimSpace(s))
}

// coerceInt accepts "2004", "2004.0" or " 2004 "; anything else, including
// non-finite or out-of-range floats, is 0.
func coerceInt(s string) int64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}
