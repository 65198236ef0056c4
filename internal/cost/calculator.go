// Package cost estimates the external API spend of a run.
package cost

// Rates holds per-provider pricing.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Serper    SerperRate           `yaml:"serper" mapstructure:"serper"`
	Apify     ApifyRate            `yaml:"apify" mapstructure:"apify"`
}

// ModelRate is per-million-token pricing.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// SerperRate is the flat price of one search query.
type SerperRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// ApifyRate is the profile scraper price per thousand profiles.
type ApifyRate struct {
	PerThousand float64 `yaml:"per_thousand" mapstructure:"per_thousand"`
}

// Breakdown is the estimated USD spend of one run.
type Breakdown struct {
	Search float64 `json:"search_usd"`
	AI     float64 `json:"ai_usd"`
	Scrape float64 `json:"scrape_usd"`
	Total  float64 `json:"total_usd"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost of input and output tokens on model. Unknown
// models cost zero.
func (c *Calculator) Claude(model string, input, output int64) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Search computes the cost of n search queries.
func (c *Calculator) Search(n int) float64 {
	return float64(n) * c.rates.Serper.PerQuery
}

// Scrape computes the cost of scraping n profiles.
func (c *Calculator) Scrape(n int) float64 {
	return float64(n) * c.rates.Apify.PerThousand / 1000
}

// Run totals a run's usage.
func (c *Calculator) Run(model string, queries int, input, output int64, profiles int) Breakdown {
	b := Breakdown{
		Search: c.Search(queries),
		AI:     c.Claude(model, input, output),
		Scrape: c.Scrape(profiles),
	}
	b.Total = b.Search + b.AI + b.Scrape
	return b
}

// DefaultRates returns list pricing.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		Serper: SerperRate{PerQuery: 0.001},
		Apify:  ApifyRate{PerThousand: 10.00},
	}
}
