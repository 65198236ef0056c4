package warehouse

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStaging = "stg_test"

func newMockEngine(t *testing.T) (*Engine, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	eng := NewEngine(NewPostgresFromPool(mock))
	eng.stagingName = func(string, time.Time) string { return testStaging }
	return eng, mock
}

func controlRow(id string) []any {
	return []any{id, "Biz " + id, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), true}
}

func TestPostgres_UpsertExactCounts(t *testing.T) {
	eng, mock := newMockEngine(t)
	spec := ControlTable(DefaultControlTable)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "stg_test" (LIKE "linkedin_scraped_contacts" INCLUDING DEFAULTS)`)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{testStaging}, spec.ColumnNames()).WillReturnResult(3)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "linkedin_scraped_contacts" AS t WHERE EXISTS`)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectExec(regexp.QuoteMeta(`MERGE INTO "linkedin_scraped_contacts" AS t USING "stg_test" AS s`)).
		WillReturnResult(pgxmock.NewResult("MERGE", 3))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "stg_test"`)).
		WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))

	res, err := eng.Upsert(context.Background(), spec, [][]any{controlRow("B1"), controlRow("B2"), controlRow("B3")})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Updated)
	assert.False(t, res.Estimated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertEstimatesWhenCountFails(t *testing.T) {
	eng, mock := newMockEngine(t)
	spec := ControlTable(DefaultControlTable)

	mock.ExpectExec(`CREATE TABLE "stg_test"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{testStaging}, spec.ColumnNames()).WillReturnResult(4)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count`).WillReturnError(errors.New("statement timeout"))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(`MERGE INTO`).WillReturnResult(pgxmock.NewResult("MERGE", 4))
	mock.ExpectCommit()
	mock.ExpectExec(`DROP TABLE IF EXISTS`).WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))

	res, err := eng.Upsert(context.Background(), spec,
		[][]any{controlRow("B1"), controlRow("B2"), controlRow("B3"), controlRow("B4")})
	require.NoError(t, err)
	assert.True(t, res.Estimated)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 2, res.Updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertCountsDuplicateTargetRows(t *testing.T) {
	eng, mock := newMockEngine(t)
	spec := ControlTable(DefaultControlTable)

	// B1 exists twice in the target from an earlier append; B2 is new.
	mock.ExpectExec(`CREATE TABLE "stg_test"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{testStaging}, spec.ColumnNames()).WillReturnResult(2)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "linkedin_scraped_contacts" AS t WHERE EXISTS (SELECT 1 FROM "stg_test" AS s`)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectExec(`MERGE INTO`).WillReturnResult(pgxmock.NewResult("MERGE", 3))
	mock.ExpectCommit()
	mock.ExpectExec(`DROP TABLE IF EXISTS`).WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))

	res, err := eng.Upsert(context.Background(), spec, [][]any{controlRow("B1"), controlRow("B2")})
	require.NoError(t, err)
	assert.False(t, res.Estimated)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 2, res.Updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertFallsBackOnMergeError(t *testing.T) {
	eng, mock := newMockEngine(t)
	spec := ControlTable(DefaultControlTable)

	mock.ExpectExec(`CREATE TABLE "stg_test"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{testStaging}, spec.ColumnNames()).WillReturnResult(1)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count`).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectExec(`MERGE INTO`).WillReturnError(errors.New(`syntax error at or near "MERGE"`))
	mock.ExpectRollback()
	mock.ExpectExec(`DROP TABLE IF EXISTS`).WillReturnError(errors.New("connection reset"))
	mock.ExpectCopyFrom(pgx.Identifier{DefaultControlTable}, spec.ColumnNames()).WillReturnResult(1)

	res, err := eng.Upsert(context.Background(), spec, [][]any{controlRow("B1")})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.FellBack)
	assert.Equal(t, 1, res.Inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertFallbackFails(t *testing.T) {
	eng, mock := newMockEngine(t)
	spec := ControlTable(DefaultControlTable)

	mock.ExpectExec(`CREATE TABLE "stg_test"`).WillReturnError(errors.New("permission denied"))
	mock.ExpectExec(`DROP TABLE IF EXISTS`).WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{DefaultControlTable}, spec.ColumnNames()).WillReturnError(errors.New("disk full"))

	_, err := eng.Upsert(context.Background(), spec, [][]any{controlRow("B1")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback append")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertMissingSkipsCount(t *testing.T) {
	eng, mock := newMockEngine(t)
	spec := ControlTable(DefaultControlTable)

	mock.ExpectExec(`CREATE TABLE "stg_test"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{testStaging}, spec.ColumnNames()).WillReturnResult(2)
	mock.ExpectBegin()
	mock.ExpectExec(`MERGE INTO .* WHEN NOT MATCHED THEN INSERT`).WillReturnResult(pgxmock.NewResult("MERGE", 1))
	mock.ExpectCommit()
	mock.ExpectExec(`DROP TABLE IF EXISTS`).WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))

	res, err := eng.InsertMissing(context.Background(), spec, [][]any{controlRow("B1"), controlRow("B2")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 0, res.Updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Deduplicate(t *testing.T) {
	eng, mock := newMockEngine(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "linkedin_contacts_info" WHERE ctid IN`)).
		WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mock.ExpectCommit()

	n, err := eng.Deduplicate(context.Background(), ContactsTable(DefaultContactsTable))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeduplicateError(t *testing.T) {
	eng, mock := newMockEngine(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM`).WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := eng.Deduplicate(context.Background(), ControlTable(DefaultControlTable))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deduplicate linkedin_scraped_contacts")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_TableExists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`information_schema.tables`).
		WithArgs("crm", "companies").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := NewPostgresFromPool(mock).TableExists(context.Background(), "crm.companies")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Migrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "linkedin_scraped_contacts" ("business_id" TEXT, "business_name" TEXT, "last_scraped_at" TIMESTAMPTZ, "contact_found" BOOLEAN)`)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE INDEX IF NOT EXISTS "idx_linkedin_scraped_contacts_key" ON "linkedin_scraped_contacts" ("business_id")`)).
		WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))

	require.NoError(t, NewPostgresFromPool(mock).Migrate(context.Background(), ControlTable(DefaultControlTable)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Placeholder(t *testing.T) {
	p := NewPostgresFromPool(nil)
	assert.Equal(t, "$3", p.Placeholder(3))
	assert.Equal(t, "postgres", p.Dialect())
}
