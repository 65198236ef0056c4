package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contacts-cli/internal/db"
)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// Postgres implements Warehouse on PostgreSQL 15+ via pgx.
type Postgres struct {
	pool db.Pool
}

// NewPostgres creates a Postgres warehouse with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*Postgres, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool (or a pgxmock pool in tests).
func NewPostgresFromPool(pool db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Dialect() string { return "postgres" }

func (p *Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (p *Postgres) TableExists(ctx context.Context, table string) (bool, error) {
	schema, name := "", table
	if i := strings.IndexByte(table, '.'); i >= 0 {
		schema, name = table[:i], table[i+1:]
	}

	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2)`,
		schema, name,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: table exists %s", table)
	}
	return exists, nil
}

func (p *Postgres) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: exec")
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query")
	}
	return rows, nil
}

func (p *Postgres) CreateStaging(ctx context.Context, staging string, spec TableSpec) error {
	q := fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING DEFAULTS)", db.QuoteTable(staging), db.QuoteTable(spec.Name))
	if _, err := p.pool.Exec(ctx, q); err != nil {
		return eris.Wrapf(err, "postgres: create staging %s", staging)
	}
	return nil
}

func (p *Postgres) Append(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	return db.CopyFrom(ctx, p.pool, table, columns, rows)
}

// Merge counts the target rows the staged keys match, then runs the MERGE in
// the same transaction, so the insert/update split is exact even when the
// target already holds duplicate keys. If the count fails the transaction is
// restarted, the merge still runs, and the stats come back with Known=false.
func (p *Postgres) Merge(ctx context.Context, spec MergeSpec) (MergeStats, error) {
	mergeSQL, err := db.BuildMerge(spec)
	if err != nil {
		return MergeStats{}, err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return MergeStats{}, eris.Wrap(err, "postgres: merge: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	matched, known := int64(0), true
	if !spec.InsertOnly {
		countSQL, _ := db.BuildMatchCount(spec)
		if err := tx.QueryRow(ctx, countSQL).Scan(&matched); err != nil {
			zap.L().Warn("postgres: match count unavailable, merge counts will be estimated",
				zap.String("table", spec.Target), zap.Error(err))
			known = false
			_ = tx.Rollback(ctx)
			retry, err := p.pool.Begin(ctx)
			if err != nil {
				return MergeStats{}, eris.Wrap(err, "postgres: merge: begin tx")
			}
			tx = retry
		}
	}

	tag, err := tx.Exec(ctx, mergeSQL)
	if err != nil {
		return MergeStats{}, eris.Wrapf(err, "postgres: merge into %s", spec.Target)
	}

	if err := tx.Commit(ctx); err != nil {
		return MergeStats{}, eris.Wrap(err, "postgres: merge: commit tx")
	}

	if !known {
		return MergeStats{}, nil
	}
	affected := tag.RowsAffected()
	return MergeStats{Inserted: affected - matched, Updated: matched, Known: true}, nil
}

func (p *Postgres) DropTable(ctx context.Context, table string) error {
	if _, err := p.pool.Exec(ctx, "DROP TABLE IF EXISTS "+db.QuoteTable(table)); err != nil {
		return eris.Wrapf(err, "postgres: drop %s", table)
	}
	return nil
}

func (p *Postgres) Deduplicate(ctx context.Context, spec DedupSpec) (int64, error) {
	q, err := db.BuildDedup(spec)
	if err != nil {
		return 0, err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: dedup: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, q)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: dedup %s", spec.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: dedup: commit tx")
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Migrate(ctx context.Context, specs ...TableSpec) error {
	for _, spec := range specs {
		for _, stmt := range migrationStatements(spec, postgresType) {
			if _, err := p.pool.Exec(ctx, stmt); err != nil {
				return eris.Wrapf(err, "postgres: migrate %s", spec.Name)
			}
		}
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func postgresType(t ColumnType) string {
	switch t {
	case TypeInt:
		return "BIGINT"
	case TypeBool:
		return "BOOLEAN"
	case TypeTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// migrationStatements renders CREATE TABLE plus a non-unique key index.
// Uniqueness is enforced by the merge and dedup passes, not by the schema.
func migrationStatements(spec TableSpec, typeName func(ColumnType) string) []string {
	cols := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = fmt.Sprintf("%s %s", db.QuoteAndJoin([]string{c.Name}), typeName(c.Type))
	}

	base := spec.Name
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[i+1:]
	}
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", db.QuoteTable(spec.Name), strings.Join(cols, ", ")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			db.QuoteAndJoin([]string{"idx_" + base + "_key"}), db.QuoteTable(spec.Name), db.QuoteAndJoin(spec.Keys)),
	}
}
