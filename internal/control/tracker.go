// Package control tracks which companies still need a contact run.
//
// A company is pending until a control row exists with both last_scraped_at
// and contact_found set. Concurrent runs may both pick the same company; the
// duplicate control rows that result are removed by Deduplicate, which runs
// after every MarkProcessed.
package control

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contacts-cli/internal/db"
	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/warehouse"
)

// Tables names the tables the tracker reads and writes.
type Tables struct {
	Registry string `yaml:"registry" mapstructure:"registry"`
	Control  string `yaml:"control" mapstructure:"control"`
	Contacts string `yaml:"contacts" mapstructure:"contacts"`
}

// DefaultTables returns the standard table names.
func DefaultTables() Tables {
	return Tables{
		Registry: warehouse.DefaultRegistryTable,
		Control:  warehouse.DefaultControlTable,
		Contacts: warehouse.DefaultContactsTable,
	}
}

func (t Tables) withDefaults() Tables {
	d := DefaultTables()
	if t.Registry == "" {
		t.Registry = d.Registry
	}
	if t.Control == "" {
		t.Control = d.Control
	}
	if t.Contacts == "" {
		t.Contacts = d.Contacts
	}
	return t
}

// Specs returns the table specs for registry, control and contacts.
func (t Tables) Specs() []warehouse.TableSpec {
	t = t.withDefaults()
	return []warehouse.TableSpec{
		warehouse.RegistryTable(t.Registry),
		warehouse.ControlTable(t.Control),
		warehouse.ContactsTable(t.Contacts),
	}
}

// Tracker implements the control-table state machine.
type Tracker struct {
	engine   *warehouse.Engine
	registry warehouse.TableSpec
	control  warehouse.TableSpec
	now      func() time.Time
}

// NewTracker creates a Tracker over engine.
func NewTracker(engine *warehouse.Engine, tables Tables) *Tracker {
	tables = tables.withDefaults()
	return &Tracker{
		engine:   engine,
		registry: warehouse.RegistryTable(tables.Registry),
		control:  warehouse.ControlTable(tables.Control),
		now:      time.Now,
	}
}

// pendingWhere selects registry rows lacking a completed control row. It
// holds whether or not duplicates have been cleaned up.
func (t *Tracker) pendingWhere() string {
	return fmt.Sprintf(
		"r.business_id IS NOT NULL AND NOT EXISTS (SELECT 1 FROM %s c WHERE c.business_id = r.business_id AND c.last_scraped_at IS NOT NULL AND c.contact_found IS NOT NULL)",
		quote(t.control.Name))
}

// GetPending returns up to batchSize pending companies ordered by name then id.
func (t *Tracker) GetPending(ctx context.Context, batchSize int) ([]model.Company, error) {
	if batchSize <= 0 {
		return nil, eris.Errorf("control: batch size must be positive, got %d", batchSize)
	}

	wh := t.engine.Warehouse()
	q := fmt.Sprintf(
		"SELECT DISTINCT r.business_id, COALESCE(r.business_name, '') FROM %s r WHERE %s ORDER BY 2, 1 LIMIT %s",
		quote(t.registry.Name), t.pendingWhere(), wh.Placeholder(1))

	rows, err := wh.Query(ctx, q, batchSize)
	if err != nil {
		return nil, eris.Wrap(err, "control: get pending")
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.BusinessID, &c.BusinessName); err != nil {
			return nil, eris.Wrap(err, "control: scan pending")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "control: iterate pending")
	}
	return out, nil
}

// PendingCount returns the total number of pending companies.
func (t *Tracker) PendingCount(ctx context.Context) (int, error) {
	wh := t.engine.Warehouse()
	q := fmt.Sprintf("SELECT count(DISTINCT r.business_id) FROM %s r WHERE %s", quote(t.registry.Name), t.pendingWhere())

	rows, err := wh.Query(ctx, q)
	if err != nil {
		return 0, eris.Wrap(err, "control: pending count")
	}
	defer rows.Close()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, eris.Wrap(err, "control: scan pending count")
		}
	}
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "control: pending count")
	}
	return int(n), nil
}

// MarkProcessed stamps every company in the batch as scraped now, with
// contact_found set when any contact carries its business id. An empty
// batch writes nothing. A write error is returned and leaves the batch
// pending; the follow-up dedup is best-effort.
func (t *Tracker) MarkProcessed(ctx context.Context, companies []model.Company, contacts []model.Contact) (int, error) {
	if len(companies) == 0 {
		return 0, nil
	}

	found := make(map[string]bool, len(contacts))
	for _, c := range contacts {
		if c.BusinessID != "" {
			found[c.BusinessID] = true
		}
	}

	now := t.now().UTC().Truncate(time.Second)
	records := make([]model.ControlRecord, len(companies))
	for i, c := range companies {
		ts := now
		hit := found[c.BusinessID]
		records[i] = model.ControlRecord{
			BusinessID:    c.BusinessID,
			BusinessName:  c.BusinessName,
			LastScrapedAt: &ts,
			ContactFound:  &hit,
		}
	}

	res, err := t.engine.Upsert(ctx, t.control, warehouse.ControlRows(records))
	if err != nil {
		return 0, eris.Wrap(err, "control: mark processed")
	}

	if _, err := t.Deduplicate(ctx); err != nil {
		zap.L().Warn("control: post-mark dedup failed", zap.Error(err))
	}

	zap.L().Info("control: companies marked processed",
		zap.Int("companies", len(records)),
		zap.Int("with_contacts", len(found)),
		zap.Bool("fell_back", res.FellBack),
	)
	return len(records), nil
}

// Deduplicate collapses control rows to one per business id, keeping the
// most recent last_scraped_at.
func (t *Tracker) Deduplicate(ctx context.Context) (int64, error) {
	n, err := t.engine.Deduplicate(ctx, t.control)
	if err != nil {
		return 0, eris.Wrap(err, "control: deduplicate")
	}
	return n, nil
}

// Enroll brings companies into scope: the registry is upserted and a blank
// control row is added for companies that have none yet.
func (t *Tracker) Enroll(ctx context.Context, companies []model.Company) (int, error) {
	valid := make([]model.Company, 0, len(companies))
	for _, c := range companies {
		if c.BusinessID == "" {
			continue
		}
		valid = append(valid, c)
	}
	if len(valid) == 0 {
		return 0, nil
	}

	if _, err := t.engine.Upsert(ctx, t.registry, warehouse.CompanyRows(valid, t.now())); err != nil {
		return 0, eris.Wrap(err, "control: enroll registry")
	}

	blank := make([]model.ControlRecord, len(valid))
	for i, c := range valid {
		blank[i] = model.ControlRecord{BusinessID: c.BusinessID, BusinessName: c.BusinessName}
	}
	res, err := t.engine.InsertMissing(ctx, t.control, warehouse.ControlRows(blank))
	if err != nil {
		return 0, eris.Wrap(err, "control: enroll control rows")
	}
	return res.Inserted, nil
}

// Records returns every control row ordered by business id.
func (t *Tracker) Records(ctx context.Context) ([]model.ControlRecord, error) {
	rows, err := t.engine.Warehouse().Query(ctx, fmt.Sprintf(
		"SELECT business_id, COALESCE(business_name, ''), last_scraped_at, contact_found FROM %s ORDER BY business_id, last_scraped_at",
		quote(t.control.Name)))
	if err != nil {
		return nil, eris.Wrap(err, "control: records")
	}
	defer rows.Close()

	var out []model.ControlRecord
	for rows.Next() {
		var (
			r  model.ControlRecord
			id *string
		)
		if err := rows.Scan(&id, &r.BusinessName, &r.LastScrapedAt, &r.ContactFound); err != nil {
			return nil, eris.Wrap(err, "control: scan record")
		}
		if id != nil {
			r.BusinessID = *id
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "control: iterate records")
	}
	return out, nil
}

// Summary counts control rows by state.
type Summary struct {
	Total        int `json:"total"`
	Pending      int `json:"pending"`
	WithContacts int `json:"with_contacts"`
	NoContacts   int `json:"no_contacts"`
}

// Summarize reads all control rows and tallies them.
func (t *Tracker) Summarize(ctx context.Context) (Summary, error) {
	recs, err := t.Records(ctx)
	if err != nil {
		return Summary{}, err
	}
	var s Summary
	for _, r := range recs {
		s.Total++
		switch {
		case r.Pending():
			s.Pending++
		case *r.ContactFound:
			s.WithContacts++
		default:
			s.NoContacts++
		}
	}
	return s, nil
}

func quote(table string) string { return db.QuoteTable(table) }
