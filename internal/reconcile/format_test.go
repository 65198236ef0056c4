package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contacts-cli/internal/model"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.FixedZone("CST", -6*3600))
}

func TestFormat_DropsUnscraped(t *testing.T) {
	records := []model.MergedRecord{
		{ScoredCandidate: scored("https://linkedin.com/in/a", "B1", "x", 9), IdentityKey: "/in/a"},
	}
	assert.Empty(t, Format(records))
}

func TestFormat_ProjectsFields(t *testing.T) {
	records := Merge(
		[]model.ScoredCandidate{{
			Candidate: model.CandidateProfile{
				ProfileURL:   "https://www.linkedin.com/in/johndoe/",
				BusinessID:   "B1",
				BusinessName: "Acme\x00 SA",
			},
			Evaluation: model.Evaluation{
				Score:             9,
				Category:          model.CategoryDecisionMaker,
				CurrentlyEmployed: model.TriYes,
				FinanceRole:       model.TriYes,
				Explanation:       "CFO de la empresa",
				Confidence:        model.ConfidenceFull,
			},
		}},
		[]model.ScrapedProfile{{
			LinkedInURL:        "https://mx.linkedin.com/in/johndoe",
			FullName:           " John Doe ",
			FirstName:          "John",
			LastName:           "Doe",
			JobTitle:           "CFO",
			Email:              "john@acme.test",
			CompanyIndustry:    "Manufacturing",
			CompanyFoundedIn:   "1998.0",
			CompanySize:        "51-200",
			CurrentJobDuration: "3 yrs",
			Country:            "Mexico",
			Location:           "Monterrey, Mexico",
		}},
	)

	contacts := NewFormatter().WithClock(fixedClock).Format(records)
	require.Len(t, contacts, 1)
	c := contacts[0]

	assert.Equal(t, "B1", c.BusinessID)
	assert.Equal(t, "Acme SA", c.BusinessName)
	assert.Equal(t, "Manufacturing", c.BusinessIndustry)
	assert.Equal(t, int64(1998), c.BusinessFoundedYear)
	assert.Equal(t, "John Doe", c.FullName)
	assert.Equal(t, "CFO", c.Role)
	assert.Equal(t, "/in/johndoe", c.ProfileURL)
	assert.Equal(t, "https://www.linkedin.com/in/johndoe/", c.ProfileLink)
	assert.Equal(t, "Monterrey, Mexico", c.City)
	assert.Equal(t, int64(9), c.AIScore)
	assert.Equal(t, "decision_maker", c.AIScoreCategory)
	assert.Equal(t, "yes", c.AICurrentEmployer)
	assert.Equal(t, "CFO de la empresa", c.AIExplanation)
	assert.False(t, c.NeedsReview)
	assert.Equal(t, time.UTC, c.ScrapedAt.Location())
	assert.Equal(t, time.Date(2026, 3, 14, 15, 26, 53, 0, time.UTC), c.ScrapedAt)
}

func TestFormat_FlagsMissingBusinessID(t *testing.T) {
	records := Merge(
		[]model.ScoredCandidate{scored("https://linkedin.com/in/a", "", "x", 8)},
		[]model.ScrapedProfile{{LinkedInURL: "https://linkedin.com/in/a", FullName: "A"}},
	)

	contacts := Format(records)
	require.Len(t, contacts, 1)
	assert.True(t, contacts[0].NeedsReview)
	assert.Equal(t, "", contacts[0].BusinessID)
}

func TestFormat_InvalidNumbersBecomeZero(t *testing.T) {
	records := Merge(
		[]model.ScoredCandidate{scored("https://linkedin.com/in/a", "B1", "x", 8)},
		[]model.ScrapedProfile{{LinkedInURL: "https://linkedin.com/in/a", CompanyFoundedIn: "circa 1990"}},
	)

	contacts := Format(records)
	require.Len(t, contacts, 1)
	assert.Equal(t, int64(0), contacts[0].BusinessFoundedYear)
	assert.Equal(t, "", contacts[0].Email)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "", cleanText(""))
	assert.Equal(t, "abc", cleanText("a\x00b\x00c"))
	// Decomposed "é" (e + combining acute) folds to the precomposed rune.
	assert.Equal(t, "Jos\u00e9", cleanText("Jose\u0301"))
}

func TestCoerceInt(t *testing.T) {
	assert.Equal(t, int64(2004), coerceInt("2004"))
	assert.Equal(t, int64(2004), coerceInt(" 2004.0 "))
	assert.Equal(t, int64(0), coerceInt("n/a"))
	assert.Equal(t, int64(0), coerceInt(""))
	for _, in := range []string{"NaN", "Inf", "-Inf", "1e300", "-1e300"} {
		assert.Equal(t, int64(0), coerceInt(in), in)
	}
}
