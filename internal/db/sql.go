package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// MergeSpec describes a keyed merge from a staging table into a target.
type MergeSpec struct {
	Target     string
	Staging    string
	Columns    []string // all columns present in staging
	Keys       []string // natural key; compared null-safely
	InsertOnly bool     // skip the update branch
}

// UpdateColumns returns the non-key columns.
func (s MergeSpec) UpdateColumns() []string {
	keys := make(map[string]bool, len(s.Keys))
	for _, k := range s.Keys {
		keys[k] = true
	}
	var out []string
	for _, c := range s.Columns {
		if !keys[c] {
			out = append(out, c)
		}
	}
	return out
}

// Validate rejects specs that cannot produce a statement.
func (s MergeSpec) Validate() error {
	if s.Target == "" || s.Staging == "" {
		return eris.New("db: merge: target and staging are required")
	}
	if len(s.Columns) == 0 {
		return eris.New("db: merge: no columns specified")
	}
	if len(s.Keys) == 0 {
		return eris.New("db: merge: no key columns specified")
	}
	return nil
}

// DedupSpec describes a keep-newest-per-key cleanup.
type DedupSpec struct {
	Table   string
	Keys    []string
	OrderBy string // newest first; NULLs lose
}

// Validate rejects specs that cannot produce a statement.
func (s DedupSpec) Validate() error {
	if s.Table == "" {
		return eris.New("db: dedup: table is required")
	}
	if len(s.Keys) == 0 {
		return eris.New("db: dedup: no key columns specified")
	}
	if s.OrderBy == "" {
		return eris.New("db: dedup: order column is required")
	}
	return nil
}

// BuildMerge renders a MERGE statement for PostgreSQL 15+.
func BuildMerge(spec MergeSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s AS t USING %s AS s ON %s",
		QuoteTable(spec.Target), QuoteTable(spec.Staging), KeyMatch("t", "s", spec.Keys))

	if !spec.InsertOnly {
		if upd := spec.UpdateColumns(); len(upd) > 0 {
			sets := make([]string, len(upd))
			for i, c := range upd {
				sets[i] = fmt.Sprintf("%s = s.%s", quote(c), quote(c))
			}
			b.WriteString(" WHEN MATCHED THEN UPDATE SET ")
			b.WriteString(strings.Join(sets, ", "))
		}
	}

	fmt.Fprintf(&b, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)",
		QuoteAndJoin(spec.Columns), qualifyAndJoin("s", spec.Columns))

	return b.String(), nil
}

// BuildMatchCount renders a query counting target rows whose key appears in
// the staging table. These are the rows a MERGE updates.
func BuildMatchCount(spec MergeSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT count(*) FROM %s AS t WHERE EXISTS (SELECT 1 FROM %s AS s WHERE %s)",
		QuoteTable(spec.Target), QuoteTable(spec.Staging), KeyMatch("t", "s", spec.Keys)), nil
}

// BuildDedup renders a single DELETE that keeps the newest row per key,
// breaking ties by physical order.
func BuildDedup(spec DedupSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	t := QuoteTable(spec.Table)
	return fmt.Sprintf(
		"DELETE FROM %s WHERE ctid IN (SELECT ctid FROM (SELECT ctid, row_number() OVER (PARTITION BY %s ORDER BY %s DESC NULLS LAST, ctid) AS rn FROM %s) d WHERE d.rn > 1)",
		t, QuoteAndJoin(spec.Keys), quote(spec.OrderBy), t), nil
}

// KeyMatch joins key equality predicates with IS NOT DISTINCT FROM so NULL
// keys compare equal.
func KeyMatch(left, right string, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s.%s IS NOT DISTINCT FROM %s.%s", left, quote(k), right, quote(k))
	}
	return strings.Join(parts, " AND ")
}

// Identifier splits a possibly schema-qualified name.
func Identifier(table string) pgx.Identifier {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}
	}
	return pgx.Identifier{table}
}

// QuoteTable handles schema-qualified table names like "contacts.linkedin_contacts_info".
func QuoteTable(table string) string {
	return Identifier(table).Sanitize()
}

// QuoteAndJoin quotes each column name and joins with commas.
func QuoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	return strings.Join(quoted, ", ")
}

func qualifyAndJoin(alias string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + quote(c)
	}
	return strings.Join(out, ", ")
}

func quote(col string) string {
	return pgx.Identifier{col}.Sanitize()
}
