package model

import "time"

// Contact is a persisted contact row, unique per (business_id, profile_url).
type Contact struct {
	BusinessID          string    `json:"business_id"`
	BusinessName        string    `json:"business_name"`
	BusinessIndustry    string    `json:"business_industry"`
	BusinessWebURL      string    `json:"business_web_url"`
	BusinessLinkedInURL string    `json:"business_linkedin_url"`
	BusinessFoundedYear int64     `json:"business_founded_year"`
	BusinessSize        string    `json:"business_size"`
	FullName            string    `json:"full_name"`
	FirstName           string    `json:"first_name"`
	LastName            string    `json:"last_name"`
	Role                string    `json:"role"`
	ProfileURL          string    `json:"profile_url"`
	ProfileLink         string    `json:"profile_link"`
	Email               string    `json:"email"`
	Phone               string    `json:"phone"`
	Headline            string    `json:"headline"`
	JobDuration         string    `json:"job_duration"`
	Country             string    `json:"country"`
	City                string    `json:"city"`
	AIScore             int64     `json:"ai_score"`
	AIScoreCategory     string    `json:"ai_score_category"`
	AICurrentEmployer   string    `json:"ai_current_employer"`
	AIFinanceRole       string    `json:"ai_finance_role"`
	AIExplanation       string    `json:"ai_explanation"`
	AIConfidence        string    `json:"ai_confidence"`
	NeedsReview         bool      `json:"needs_review"`
	ScrapedAt           time.Time `json:"scraped_at"`
}
