package pipeline

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/reconcile"
	"github.com/sells-group/contacts-cli/pkg/serper"
)

// SearchHit is one web search result.
type SearchHit struct {
	Link    string
	Title   string
	Snippet string
}

// CompanyPlaceholder is replaced with the quoted company name in query templates.
const CompanyPlaceholder = "{company}"

// DefaultQueries target finance and leadership roles on LinkedIn.
var DefaultQueries = []string{
	`site:linkedin.com/in "{company}" (CFO OR "director de finanzas" OR "gerente de finanzas")`,
	`site:linkedin.com/in "{company}" (contralor OR controller OR tesorero OR contador)`,
	`site:linkedin.com/in "{company}" (CEO OR "director general" OR fundador OR owner)`,
}

type queryFile struct {
	Queries []string `yaml:"queries"`
}

// LoadQueries reads query templates from a YAML file with a top-level
// "queries" list. An empty path returns DefaultQueries.
func LoadQueries(path string) ([]string, error) {
	if path == "" {
		return DefaultQueries, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read queries %s", path)
	}
	return ParseQueries(data)
}

// ParseQueries decodes query templates from YAML.
func ParseQueries(data []byte) ([]string, error) {
	var qf queryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse queries")
	}

	var out []string
	for _, q := range qf.Queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if !strings.Contains(q, CompanyPlaceholder) {
			return nil, eris.Errorf("pipeline: query %q has no %s placeholder", q, CompanyPlaceholder)
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, eris.New("pipeline: query file has no queries")
	}
	return out, nil
}

// BuildQuery substitutes the company name into a template.
func BuildQuery(template, company string) string {
	name := strings.ReplaceAll(strings.TrimSpace(company), `"`, "")
	return strings.ReplaceAll(template, CompanyPlaceholder, name)
}

// collectCandidates keeps LinkedIn profile hits, dropping repeats of the same
// identity key, up to max.
func collectCandidates(company model.Company, query string, hits []SearchHit, seen map[string]bool, max int, out []model.CandidateProfile) []model.CandidateProfile {
	for _, h := range hits {
		if len(out) >= max {
			break
		}
		if !reconcile.IsProfileLink(h.Link) {
			continue
		}
		key := reconcile.NormalizeProfileURL(h.Link)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, model.CandidateProfile{
			ProfileURL:   h.Link,
			Title:        h.Title,
			Snippet:      h.Snippet,
			BusinessID:   company.BusinessID,
			BusinessName: company.BusinessName,
			SearchQuery:  query,
		})
	}
	return out
}

// SerperSearcher adapts the serper client to Searcher.
type SerperSearcher struct {
	client   serper.Client
	country  string
	language string
	num      int
}

// NewSerperSearcher creates a Searcher. Zero num uses 10 results per query.
func NewSerperSearcher(client serper.Client, country, language string, num int) *SerperSearcher {
	if num <= 0 {
		num = 10
	}
	return &SerperSearcher{client: client, country: country, language: language, num: num}
}

// Search runs one query.
func (s *SerperSearcher) Search(ctx context.Context, query string) ([]SearchHit, error) {
	resp, err := s.client.Search(ctx, serper.SearchRequest{
		Query:    query,
		Country:  s.country,
		Language: s.language,
		Num:      s.num,
	})
	if err != nil {
		return nil, err
	}
	hits := make([]SearchHit, 0, len(resp.Organic))
	for _, r := range resp.Organic {
		hits = append(hits, SearchHit{Link: r.Link, Title: r.Title, Snippet: r.Snippet})
	}
	return hits, nil
}
