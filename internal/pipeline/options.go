package pipeline

import "github.com/rotisserie/eris"

// Run option bounds and defaults.
const (
	DefaultBatchSize     = 10
	DefaultMaxPerCompany = 15
	DefaultMinScore      = 7

	MaxBatchSize     = 500
	MaxPerCompanyCap = 50
	MaxScore         = 10
)

// Options controls one run.
type Options struct {
	BatchSize     int `json:"batch_size"`
	MaxPerCompany int `json:"max_per_company"`
	MinScore      int `json:"min_score"`
}

// DefaultOptions returns the standard run options.
func DefaultOptions() Options {
	return Options{
		BatchSize:     DefaultBatchSize,
		MaxPerCompany: DefaultMaxPerCompany,
		MinScore:      DefaultMinScore,
	}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if o.BatchSize < 1 || o.BatchSize > MaxBatchSize {
		return eris.Errorf("pipeline: batch_size must be between 1 and %d, got %d", MaxBatchSize, o.BatchSize)
	}
	if o.MaxPerCompany < 1 || o.MaxPerCompany > MaxPerCompanyCap {
		return eris.Errorf("pipeline: max_per_company must be between 1 and %d, got %d", MaxPerCompanyCap, o.MaxPerCompany)
	}
	if o.MinScore < 0 || o.MinScore > MaxScore {
		return eris.Errorf("pipeline: min_score must be between 0 and %d, got %d", MaxScore, o.MinScore)
	}
	return nil
}
