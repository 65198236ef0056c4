package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/contacts-cli/internal/db"
)

// SQLite implements Warehouse using modernc.org/sqlite. It backs offline
// runs and tests; merge counts are always exact.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLite{db: conn}, nil
}

func (s *SQLite) Dialect() string { return "sqlite" }

func (s *SQLite) Placeholder(int) string { return "?" }

func (s *SQLite) TableExists(ctx context.Context, table string) (bool, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: table exists %s", table)
	}
	return n > 0, nil
}

func (s *SQLite) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: exec")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLite) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query")
	}
	return sqlRows{rows}, nil
}

func (s *SQLite) CreateStaging(ctx context.Context, staging string, spec TableSpec) error {
	stmts := migrationStatements(spec.WithName(staging), sqliteType)
	if _, err := s.db.ExecContext(ctx, stmts[0]); err != nil {
		return eris.Wrapf(err, "sqlite: create staging %s", staging)
	}
	return nil
}

func (s *SQLite) Append(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: append: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		db.QuoteTable(table), db.QuoteAndJoin(columns), marks))
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: append: prepare %s", table)
	}
	defer stmt.Close() //nolint:errcheck

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: append into %s", table)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: append: commit tx")
	}
	return int64(len(rows)), nil
}

// Merge runs count, UPDATE ... FROM and INSERT ... WHERE NOT EXISTS in one
// transaction.
func (s *SQLite) Merge(ctx context.Context, spec MergeSpec) (MergeStats, error) {
	if err := spec.Validate(); err != nil {
		return MergeStats{}, err
	}

	target, staging := db.QuoteTable(spec.Target), db.QuoteTable(spec.Staging)
	match := sqliteKeyMatch("t", "s", spec.Keys)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return MergeStats{}, eris.Wrap(err, "sqlite: merge: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var stats MergeStats
	upd := spec.UpdateColumns()
	if !spec.InsertOnly && len(upd) > 0 {
		if err := tx.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT count(*) FROM %s AS t WHERE EXISTS (SELECT 1 FROM %s AS s WHERE %s)", target, staging, match,
		)).Scan(&stats.Updated); err != nil {
			return MergeStats{}, eris.Wrapf(err, "sqlite: merge: count matches in %s", spec.Target)
		}

		sets := make([]string, len(upd))
		for i, c := range upd {
			q := db.QuoteAndJoin([]string{c})
			sets[i] = fmt.Sprintf("%s = s.%s", q, q)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			"UPDATE %s AS t SET %s FROM %s AS s WHERE %s", target, strings.Join(sets, ", "), staging, match,
		)); err != nil {
			return MergeStats{}, eris.Wrapf(err, "sqlite: merge: update %s", spec.Target)
		}
	}

	cols := db.QuoteAndJoin(spec.Columns)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s AS s WHERE NOT EXISTS (SELECT 1 FROM %s AS t WHERE %s)",
		target, cols, qualify("s", spec.Columns), staging, target, match,
	))
	if err != nil {
		return MergeStats{}, eris.Wrapf(err, "sqlite: merge: insert into %s", spec.Target)
	}
	stats.Inserted, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return MergeStats{}, eris.Wrap(err, "sqlite: merge: commit tx")
	}
	stats.Known = true
	return stats, nil
}

func (s *SQLite) DropTable(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+db.QuoteTable(table)); err != nil {
		return eris.Wrapf(err, "sqlite: drop %s", table)
	}
	return nil
}

func (s *SQLite) Deduplicate(ctx context.Context, spec DedupSpec) (int64, error) {
	if err := spec.Validate(); err != nil {
		return 0, err
	}
	t := db.QuoteTable(spec.Table)
	q := fmt.Sprintf(
		"DELETE FROM %s WHERE rowid IN (SELECT rid FROM (SELECT rowid AS rid, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s DESC NULLS LAST, rowid) AS rn FROM %s) WHERE rn > 1)",
		t, db.QuoteAndJoin(spec.Keys), db.QuoteAndJoin([]string{spec.OrderBy}), t)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: dedup: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, q)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: dedup %s", spec.Table)
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: dedup: commit tx")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLite) Migrate(ctx context.Context, specs ...TableSpec) error {
	for _, spec := range specs {
		for _, stmt := range migrationStatements(spec, sqliteType) {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return eris.Wrapf(err, "sqlite: migrate %s", spec.Name)
			}
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func sqliteType(t ColumnType) string {
	switch t {
	case TypeInt:
		return "INTEGER"
	case TypeBool:
		return "BOOLEAN"
	case TypeTimestamp:
		return "DATETIME"
	default:
		return "TEXT"
	}
}

// sqliteKeyMatch compares keys with IS, SQLite's null-safe equality.
func sqliteKeyMatch(left, right string, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		q := db.QuoteAndJoin([]string{k})
		parts[i] = fmt.Sprintf("%s.%s IS %s.%s", left, q, right, q)
	}
	return strings.Join(parts, " AND ")
}

func qualify(alias string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + db.QuoteAndJoin([]string{c})
	}
	return strings.Join(out, ", ")
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() { _ = r.Rows.Close() }
