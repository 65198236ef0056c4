package control

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/warehouse"
)

// ContactStore persists formatted contacts keyed by (business_id, profile_url).
type ContactStore struct {
	engine *warehouse.Engine
	spec   warehouse.TableSpec
}

// NewContactStore creates a ContactStore writing to the contacts table.
func NewContactStore(engine *warehouse.Engine, tables Tables) *ContactStore {
	tables = tables.withDefaults()
	return &ContactStore{
		engine: engine,
		spec:   warehouse.ContactsTable(tables.Contacts),
	}
}

// Save upserts contacts. An error means the append fallback failed too.
func (s *ContactStore) Save(ctx context.Context, contacts []model.Contact) (warehouse.UpsertResult, error) {
	res, err := s.engine.Upsert(ctx, s.spec, warehouse.ContactRows(contacts))
	if err != nil {
		return res, eris.Wrap(err, "control: save contacts")
	}
	return res, nil
}

// Deduplicate removes older duplicate contact rows.
func (s *ContactStore) Deduplicate(ctx context.Context) (int64, error) {
	return s.engine.Deduplicate(ctx, s.spec)
}
