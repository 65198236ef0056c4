package model

import "time"

// RunResult is the immutable summary of one pipeline run.
type RunResult struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ns"`

	CompaniesRequested int `json:"companies_requested"`
	CompaniesProcessed int `json:"companies_processed"`
	CompaniesDeferred  int `json:"companies_deferred"`

	ProfilesFound     int `json:"profiles_found"`
	ProfilesEvaluated int `json:"profiles_evaluated"`
	EvaluationsFailed int `json:"evaluations_failed"`
	ProfilesSelected  int `json:"profiles_selected"`
	ProfilesScraped   int `json:"profiles_scraped"`

	ContactsPersisted int  `json:"contacts_persisted"`
	ContactsFlagged   int  `json:"contacts_flagged"`
	ContactsInserted  int  `json:"contacts_inserted"`
	ContactsUpdated   int  `json:"contacts_updated"`
	CountsEstimated   bool `json:"counts_estimated"`
	FellBack          bool `json:"fell_back"`
	ControlRows       int  `json:"control_rows"`

	SearchQueries int   `json:"search_queries"`
	InputTokens   int64 `json:"input_tokens"`
	OutputTokens  int64 `json:"output_tokens"`

	EstimatedSearchCostUSD float64 `json:"estimated_search_cost_usd"`
	EstimatedAICostUSD     float64 `json:"estimated_ai_cost_usd"`
	EstimatedScrapeCostUSD float64 `json:"estimated_scrape_cost_usd"`
	EstimatedCostUSD       float64 `json:"estimated_cost_usd"`

	Contacts []Contact `json:"contacts"`
	Success  bool      `json:"success"`
	Error    string    `json:"error,omitempty"`
}
