// Package warehouse persists contact and control rows into a store without
// native unique constraints. Writes go through a stage, reconcile and cleanup
// cycle with an append fallback; a standing dedup pass restores uniqueness.
package warehouse

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contacts-cli/internal/db"
)

// Rows is a forward-only result cursor.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// MergeSpec describes a keyed merge from a staging table into a target.
type MergeSpec = db.MergeSpec

// DedupSpec describes a keep-newest-per-key cleanup.
type DedupSpec = db.DedupSpec

// MergeStats reports what a merge did. Known is false when the dialect could
// not measure the insert/update split.
type MergeStats struct {
	Inserted int64
	Updated  int64
	Known    bool
}

// Warehouse is the set of primitives a backing store must offer.
type Warehouse interface {
	// Dialect names the backend ("postgres" or "sqlite").
	Dialect() string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string

	TableExists(ctx context.Context, table string) (bool, error)
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)

	// CreateStaging creates an empty table shaped like spec.
	CreateStaging(ctx context.Context, staging string, spec TableSpec) error
	Append(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	// Merge updates matched rows and inserts the rest in one transaction.
	Merge(ctx context.Context, spec MergeSpec) (MergeStats, error)
	DropTable(ctx context.Context, table string) error
	// Deduplicate keeps the newest row per key in one transaction and
	// returns the number of rows removed.
	Deduplicate(ctx context.Context, spec DedupSpec) (int64, error)

	Migrate(ctx context.Context, specs ...TableSpec) error
	Close() error
}

// Open connects to the backend named by driver. pool is only used for
// postgres and may be nil.
func Open(ctx context.Context, driver, dsn string, pool *PoolConfig) (Warehouse, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgx":
		return NewPostgres(ctx, dsn, pool)
	case "sqlite", "sqlite3":
		if dsn == "" {
			dsn = "contacts.db"
		}
		return NewSQLite(dsn)
	default:
		return nil, eris.Errorf("warehouse: unsupported driver: %s", driver)
	}
}
