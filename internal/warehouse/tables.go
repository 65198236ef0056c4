package warehouse

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contacts-cli/internal/model"
)

// ColumnType is a portable column type.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeInt
	TypeBool
	TypeTimestamp
)

// Column is one column of a TableSpec.
type Column struct {
	Name string
	Type ColumnType
}

// TableSpec describes a managed table and its natural key.
type TableSpec struct {
	Name    string
	Columns []Column
	Keys    []string
	// OrderBy picks the surviving row during dedup (newest wins).
	OrderBy string
}

// ColumnNames returns the column names in declaration order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// WithName returns a copy of t bound to another table name.
func (t TableSpec) WithName(name string) TableSpec {
	t.Name = name
	return t
}

// Dedup returns the spec's dedup description.
func (t TableSpec) Dedup() DedupSpec {
	return DedupSpec{Table: t.Name, Keys: t.Keys, OrderBy: t.OrderBy}
}

func (t TableSpec) keyIndexes() ([]int, error) {
	pos := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		pos[c.Name] = i
	}
	idx := make([]int, len(t.Keys))
	for i, k := range t.Keys {
		p, ok := pos[k]
		if !ok {
			return nil, eris.Errorf("warehouse: key column %q not in table %s", k, t.Name)
		}
		idx[i] = p
	}
	return idx, nil
}

// Default table names.
const (
	DefaultRegistryTable = "companies"
	DefaultControlTable  = "linkedin_scraped_contacts"
	DefaultContactsTable = "linkedin_contacts_info"
)

// RegistryTable is the upstream company registry.
func RegistryTable(name string) TableSpec {
	return TableSpec{
		Name: name,
		Columns: []Column{
			{"business_id", TypeText},
			{"business_name", TypeText},
			{"enrolled_at", TypeTimestamp},
		},
		Keys:    []string{"business_id"},
		OrderBy: "enrolled_at",
	}
}

// ControlTable tracks per-company processing state.
func ControlTable(name string) TableSpec {
	return TableSpec{
		Name: name,
		Columns: []Column{
			{"business_id", TypeText},
			{"business_name", TypeText},
			{"last_scraped_at", TypeTimestamp},
			{"contact_found", TypeBool},
		},
		Keys:    []string{"business_id"},
		OrderBy: "last_scraped_at",
	}
}

// ContactsTable holds persisted contacts, unique per (business_id, profile_url).
func ContactsTable(name string) TableSpec {
	return TableSpec{
		Name: name,
		Columns: []Column{
			{"business_id", TypeText},
			{"business_name", TypeText},
			{"business_industry", TypeText},
			{"business_web_url", TypeText},
			{"business_linkedin_url", TypeText},
			{"business_founded_year", TypeInt},
			{"business_size", TypeText},
			{"full_name", TypeText},
			{"first_name", TypeText},
			{"last_name", TypeText},
			{"role", TypeText},
			{"profile_url", TypeText},
			{"profile_link", TypeText},
			{"email", TypeText},
			{"phone", TypeText},
			{"headline", TypeText},
			{"job_duration", TypeText},
			{"country", TypeText},
			{"city", TypeText},
			{"ai_score", TypeInt},
			{"ai_score_category", TypeText},
			{"ai_current_employer", TypeText},
			{"ai_finance_role", TypeText},
			{"ai_explanation", TypeText},
			{"ai_confidence", TypeText},
			{"needs_review", TypeBool},
			{"scraped_at", TypeTimestamp},
		},
		Keys:    []string{"business_id", "profile_url"},
		OrderBy: "scraped_at",
	}
}

// ContactRows converts contacts into rows matching ContactsTable.
func ContactRows(contacts []model.Contact) [][]any {
	rows := make([][]any, len(contacts))
	for i, c := range contacts {
		rows[i] = []any{
			c.BusinessID, c.BusinessName, c.BusinessIndustry, c.BusinessWebURL,
			c.BusinessLinkedInURL, c.BusinessFoundedYear, c.BusinessSize,
			c.FullName, c.FirstName, c.LastName, c.Role,
			c.ProfileURL, c.ProfileLink, c.Email, c.Phone, c.Headline,
			c.JobDuration, c.Country, c.City,
			c.AIScore, c.AIScoreCategory, c.AICurrentEmployer, c.AIFinanceRole,
			c.AIExplanation, c.AIConfidence, c.NeedsReview,
			c.ScrapedAt.UTC().Truncate(time.Second),
		}
	}
	return rows
}

// ControlRows converts control records into rows matching ControlTable.
// Nil pointers become SQL NULL.
func ControlRows(records []model.ControlRecord) [][]any {
	rows := make([][]any, len(records))
	for i, r := range records {
		var ts, found any
		if r.LastScrapedAt != nil {
			ts = r.LastScrapedAt.UTC().Truncate(time.Second)
		}
		if r.ContactFound != nil {
			found = *r.ContactFound
		}
		rows[i] = []any{r.BusinessID, r.BusinessName, ts, found}
	}
	return rows
}

// CompanyRows converts companies into rows matching RegistryTable.
func CompanyRows(companies []model.Company, enrolledAt time.Time) [][]any {
	at := enrolledAt.UTC().Truncate(time.Second)
	rows := make([][]any, len(companies))
	for i, c := range companies {
		rows[i] = []any{c.BusinessID, c.BusinessName, at}
	}
	return rows
}
