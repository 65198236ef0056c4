package model

// CandidateProfile is a search hit that may belong to a relevant contact.
type CandidateProfile struct {
	ProfileURL   string `json:"profile_url"`
	Title        string `json:"title"`
	Snippet      string `json:"snippet"`
	BusinessID   string `json:"business_id"`
	BusinessName string `json:"business_name"`
	SearchQuery  string `json:"search_query"`
}

// Category is the relevance bucket assigned by the AI evaluation.
type Category string

const (
	CategoryDecisionMaker Category = "decision_maker"
	CategoryReferrer      Category = "referrer"
	CategoryNonReferrer   Category = "non_referrer"
	CategoryInvalid       Category = "invalid"
)

// CategoryForScore maps a 0-10 relevance score to its category.
func CategoryForScore(score int) Category {
	switch {
	case score >= 7:
		return CategoryDecisionMaker
	case score >= 5:
		return CategoryReferrer
	case score >= 1:
		return CategoryNonReferrer
	default:
		return CategoryInvalid
	}
}

// TriState is a yes/no answer that may also be unknown.
type TriState string

const (
	TriYes     TriState = "yes"
	TriNo      TriState = "no"
	TriUnknown TriState = "unknown"
)

// Confidence records how much of the AI response could be decoded.
type Confidence string

const (
	ConfidenceFull     Confidence = "full"
	ConfidencePartial  Confidence = "partial"
	ConfidenceUnparsed Confidence = "unparsed"
)

// Evaluation is the decoded AI judgment of a candidate.
type Evaluation struct {
	Category          Category   `json:"category"`
	Score             int        `json:"score"`
	CurrentlyEmployed TriState   `json:"currently_employed"`
	FinanceRole       TriState   `json:"finance_role"`
	Explanation       string     `json:"explanation"`
	Confidence        Confidence `json:"confidence"`

	InputTokens  int64 `json:"input_tokens,omitempty"`
	OutputTokens int64 `json:"output_tokens,omitempty"`
}

// ScoredCandidate pairs a candidate with its evaluation.
type ScoredCandidate struct {
	Candidate  CandidateProfile `json:"candidate"`
	Evaluation Evaluation       `json:"evaluation"`
}

// ScrapedProfile holds the profile attributes returned by the scraper.
type ScrapedProfile struct {
	LinkedInURL          string   `json:"linkedin_url"`
	FullName             string   `json:"full_name"`
	FirstName            string   `json:"first_name"`
	LastName             string   `json:"last_name"`
	Email                string   `json:"email"`
	Phone                string   `json:"phone"`
	Headline             string   `json:"headline"`
	JobTitle             string   `json:"job_title"`
	CompanyName          string   `json:"company_name"`
	CompanyIndustry      string   `json:"company_industry"`
	CompanyWebsite       string   `json:"company_website"`
	CompanyLinkedIn      string   `json:"company_linkedin"`
	CompanyFoundedIn     string   `json:"company_founded_in"`
	CompanySize          string   `json:"company_size"`
	CurrentJobDuration   string   `json:"current_job_duration"`
	CurrentJobDurationYr string   `json:"current_job_duration_years"`
	TopSkills            []string `json:"top_skills,omitempty"`
	Country              string   `json:"country"`
	Location             string   `json:"location"`
}

// MergedRecord is one evaluated candidate left-joined with its scrape.
// Scraped is nil when no scraped profile matched.
type MergedRecord struct {
	ScoredCandidate
	IdentityKey     string          `json:"identity_key"`
	Scraped         *ScrapedProfile `json:"scraped,omitempty"`
	ScrapingSuccess bool            `json:"scraping_success"`
}
