package model

import "time"

// Company is a target business read from the upstream registry.
type Company struct {
	BusinessID   string `json:"business_id"`
	BusinessName string `json:"business_name"`
}

// ControlRecord tracks whether a company has been processed. Rows enter
// scope with nil timestamp and flag and are updated once per run.
type ControlRecord struct {
	BusinessID    string     `json:"business_id"`
	BusinessName  string     `json:"business_name"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
	ContactFound  *bool      `json:"contact_found,omitempty"`
}

// Pending reports whether the company still needs a run.
func (r ControlRecord) Pending() bool {
	return r.LastScrapedAt == nil || r.ContactFound == nil
}
