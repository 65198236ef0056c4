package reconcile

import (
	"github.com/sells-group/contacts-cli/internal/model"
)

// Merge left-joins evaluated candidates with scraped profiles by normalized
// profile URL. It returns exactly one record per input candidate, in input
// order. Duplicate scrape items for one key resolve last-write-wins; items
// and candidates with an empty key never match.
func Merge(scored []model.ScoredCandidate, scraped []model.ScrapedProfile) []model.MergedRecord {
	index := make(map[string]*model.ScrapedProfile, len(scraped))
	for i := range scraped {
		key := NormalizeProfileURL(scraped[i].LinkedInURL)
		if key == "" {
			continue
		}
		index[key] = &scraped[i]
	}

	out := make([]model.MergedRecord, 0, len(scored))
	for _, sc := range scored {
		rec := model.MergedRecord{
			ScoredCandidate: sc,
			IdentityKey:     NormalizeProfileURL(sc.Candidate.ProfileURL),
		}
		if rec.IdentityKey != "" {
			if p, ok := index[rec.IdentityKey]; ok {
				cp := *p
				rec.Scraped = &cp
				rec.ScrapingSuccess = true
			}
		}
		out = append(out, rec)
	}
	return out
}
