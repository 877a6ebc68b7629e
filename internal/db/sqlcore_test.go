package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//
// =====================================
//  FAKES (Test Doubles for database/sql)
// =====================================
//
// fakeRows serves canned rows; fakeTx and fakeDB record every statement so
// tests can assert on the generated SQL without a live server.
//

type fakeRows struct {
	data   [][]any
	i      int
	err    error
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.i >= len(r.data) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.i-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d dest for %d values", len(dest), len(row))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *any:
			*p = row[i]
		case *string:
			*p = row[i].(string)
		case *int:
			*p = row[i].(int)
		case *int64:
			*p = row[i].(int64)
		case *bool:
			*p = row[i].(bool)
		default:
			return fmt.Errorf("scan: unsupported dest %T", d)
		}
	}
	return nil
}

func (r *fakeRows) Err() error   { return r.err }
func (r *fakeRows) Close() error { r.closed = true; return nil }

type fakeResult int64

func (f fakeResult) LastInsertId() (int64, error) { return 0, errors.New("unsupported") }
func (f fakeResult) RowsAffected() (int64, error) { return int64(f), nil }

type execCall struct {
	q    string
	args []any
}

type fakeTx struct {
	execs      []execCall
	failOn     int // 1-based exec to fail; 0 never
	failErr    error
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	t.execs = append(t.execs, execCall{q, args})
	if t.failOn > 0 && len(t.execs) == t.failOn {
		return nil, t.failErr
	}
	if strings.HasPrefix(q, "DELETE") {
		return fakeResult(7), nil
	}
	return fakeResult(strings.Count(q, "),(") + 1), nil
}
func (t *fakeTx) Commit() error   { t.committed = t.commitErr == nil; return t.commitErr }
func (t *fakeTx) Rollback() error { t.rolledBack = true; return nil }

type fakeDB struct {
	queries []execCall
	rows    map[string]*fakeRows // keyed by query prefix
	tx      *fakeTx
	pingErr error
	closed  bool
}

func (f *fakeDB) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return fakeResult(0), nil
}
func (f *fakeDB) QueryContext(ctx context.Context, q string, args ...any) (rowsCore, error) {
	f.queries = append(f.queries, execCall{q, args})
	for prefix, r := range f.rows {
		if strings.Contains(q, prefix) {
			return r, nil
		}
	}
	return &fakeRows{}, nil
}
func (f *fakeDB) BeginTx(ctx context.Context, _ *sql.TxOptions) (sqlTxCore, error) {
	if f.tx == nil {
		f.tx = &fakeTx{}
	}
	return f.tx, nil
}
func (f *fakeDB) PingContext(ctx context.Context) error { return f.pingErr }
func (f *fakeDB) Close() error                          { f.closed = true; return nil }

// withFakeOpen swaps the openSQL hook for the duration of a test.
func withFakeOpen(t *testing.T, db *fakeDB) {
	t.Helper()
	prev := openSQL
	openSQL = func(driver, dsn string) (sqlDBCore, error) { return db, nil }
	t.Cleanup(func() { openSQL = prev })
}

func newFakeMSSQL(t *testing.T, db *fakeDB) *mssqlAdapter {
	t.Helper()
	withFakeOpen(t, db)
	a, err := NewMSSQL(Params{Kind: "sql_server", Host: "db.local", Username: "sa", Password: "pw"})
	require.NoError(t, err)
	return a.(*mssqlAdapter)
}

//
// ======
//  TESTS
// ======
//

func TestBuildInsert_MSSQLPlaceholders(t *testing.T) {
	d := mssqlDialect("sql_server")
	q, args := d.buildInsert("dbo.people", []string{"name", "ssn"}, [][]any{{"a", "1"}, {"b", "2"}})
	assert.Equal(t, "INSERT INTO [dbo].[people] ([name],[ssn]) VALUES (@p1,@p2),(@p3,@p4)", q)
	assert.Equal(t, []any{"a", "1", "b", "2"}, args)
}

func TestBuildInsert_PostgresPlaceholders(t *testing.T) {
	d := pgDialect()
	q, _ := d.buildInsert("people", []string{"we\"ird"}, [][]any{{1}, {2}})
	assert.Equal(t, `INSERT INTO "people" ("we""ird") VALUES ($1),($2)`, q)
}

func TestRowsPerStatement(t *testing.T) {
	ms := mssqlDialect("sql_server")
	assert.Equal(t, 1000, ms.rowsPerStatement(2))
	assert.Equal(t, 209, ms.rowsPerStatement(10))
	assert.Equal(t, 0, ms.rowsPerStatement(3000))
	assert.Equal(t, 0, ms.rowsPerStatement(0))
	assert.Equal(t, 65535/3, pgDialect().rowsPerStatement(3))
}

func TestMSSQL_SelectUsesTryCast(t *testing.T) {
	db := &fakeDB{rows: map[string]*fakeRows{"TRY_CAST": {data: [][]any{{"x", nil}}}}}
	a := newFakeMSSQL(t, db)

	cur, err := a.OpenCursor(context.Background(), "people", []string{"name", "dob"})
	require.NoError(t, err)
	defer cur.Close()

	assert.Equal(t,
		"SELECT TRY_CAST([name] AS NVARCHAR(MAX)) AS [name], TRY_CAST([dob] AS NVARCHAR(MAX)) AS [dob] FROM [people]",
		db.queries[len(db.queries)-1].q)
}

func TestSQLCursor_Pages(t *testing.T) {
	data := make([][]any, 5)
	for i := range data {
		data[i] = []any{fmt.Sprint(i)}
	}
	db := &fakeDB{rows: map[string]*fakeRows{"TRY_CAST": {data: data}}}
	a := newFakeMSSQL(t, db)
	ctx := context.Background()

	cur, err := a.OpenCursor(ctx, "t", []string{"c"})
	require.NoError(t, err)

	var sizes []int
	for {
		page, err := cur.Next(ctx, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		sizes = append(sizes, len(page))
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.True(t, db.rows["TRY_CAST"].closed)
}

func TestSQLCursor_ErrorIsClassified(t *testing.T) {
	db := &fakeDB{rows: map[string]*fakeRows{"TRY_CAST": {err: mssql.Error{Number: 207, Message: "Invalid column name"}}}}
	a := newFakeMSSQL(t, db)
	cur, err := a.OpenCursor(context.Background(), "t", []string{"nope"})
	require.NoError(t, err)
	_, err = cur.Next(context.Background(), 10)
	assert.True(t, IsKind(err, KindObjectNotFound))
}

func TestSQLAdapter_BulkInsertSplitsAndCommits(t *testing.T) {
	db := &fakeDB{}
	a := newFakeMSSQL(t, db)
	rows := make([][]any, 1500)
	for i := range rows {
		rows[i] = []any{i, "x"}
	}
	n, err := a.BulkInsert(context.Background(), "t", []string{"a", "b"}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), n)
	require.Len(t, db.tx.execs, 2)
	assert.Len(t, db.tx.execs[0].args, 2000)
	assert.Len(t, db.tx.execs[1].args, 1000)
	assert.True(t, db.tx.committed)
	assert.False(t, db.tx.rolledBack)
}

func TestSQLAdapter_BulkInsertRollsBackWholePage(t *testing.T) {
	db := &fakeDB{tx: &fakeTx{failOn: 2, failErr: mssql.Error{Number: 2627, Message: "Violation of PRIMARY KEY"}}}
	a := newFakeMSSQL(t, db)
	rows := make([][]any, 1200)
	for i := range rows {
		rows[i] = []any{i}
	}
	n, err := a.BulkInsert(context.Background(), "t", []string{"a"}, rows)
	require.Error(t, err)
	assert.Equal(t, int64(0), n)
	assert.True(t, db.tx.rolledBack)
	assert.False(t, db.tx.committed)
	assert.Equal(t, KindOther, KindOf(err))
}

func TestSQLAdapter_BulkInsertShapeMismatch(t *testing.T) {
	a := newFakeMSSQL(t, &fakeDB{})
	_, err := a.BulkInsert(context.Background(), "t", []string{"a", "b"}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 0 has 1 values")
}

func TestSQLAdapter_ClearTable(t *testing.T) {
	db := &fakeDB{}
	a := newFakeMSSQL(t, db)
	n, err := a.ClearTable(context.Background(), "dbo.people")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "DELETE FROM [dbo].[people]", db.tx.execs[0].q)
	assert.True(t, db.tx.committed)
}

func TestSQLAdapter_FailedCommitDropsPool(t *testing.T) {
	busy := errors.New("database is locked (5) (SQLITE_BUSY)")
	for _, tc := range []struct {
		name string
		call func(a *mssqlAdapter) error
	}{
		{"clear", func(a *mssqlAdapter) error {
			_, err := a.ClearTable(context.Background(), "people")
			return err
		}},
		{"insert", func(a *mssqlAdapter) error {
			_, err := a.BulkInsert(context.Background(), "people", []string{"a"}, [][]any{{1}, {2}})
			return err
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db := &fakeDB{tx: &fakeTx{commitErr: busy}}
			a := newFakeMSSQL(t, db)
			err := tc.call(a)
			require.Error(t, err)
			assert.ErrorIs(t, err, busy)
			assert.True(t, db.closed)
			assert.Nil(t, a.db)

			// The next call opens a fresh pool.
			db.closed = false
			db.tx = &fakeTx{}
			require.NoError(t, tc.call(a))
			assert.True(t, db.tx.committed)
			assert.Same(t, db, a.db)
		})
	}
}

func TestSQLAdapter_CountRows(t *testing.T) {
	db := &fakeDB{rows: map[string]*fakeRows{"COUNT_BIG": {data: [][]any{{int64(42)}}}}}
	a := newFakeMSSQL(t, db)
	n, err := a.CountRows(context.Background(), "people")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestSQLAdapter_ConnectFailureClassified(t *testing.T) {
	db := &fakeDB{pingErr: mssql.Error{Number: 18456, Message: "Login failed for user 'sa'."}}
	a := newFakeMSSQL(t, db)
	err := a.Connect(context.Background())
	assert.True(t, IsKind(err, KindAuthenticationFailed))
	assert.True(t, db.closed)
}

func TestSQLAdapter_ProbeReportsMessage(t *testing.T) {
	db := &fakeDB{rows: map[string]*fakeRows{"SELECT 1": {data: [][]any{{1}}}}}
	a := newFakeMSSQL(t, db)
	ok, msg := a.Probe(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "SQL Server connection successful", msg)
	assert.True(t, db.closed)
}

func TestMSSQL_ListColumnsHalvesNChar(t *testing.T) {
	db := &fakeDB{rows: map[string]*fakeRows{"sys.types": {data: [][]any{
		{"id", "int", false, 4, 10, 0},
		{"name", "nvarchar", true, 100, 0, 0},
		{"notes", "nvarchar", true, -1, 0, 0},
		{"code", "varchar", true, 12, 0, 0},
	}}}}
	a := newFakeMSSQL(t, db)
	cols, err := a.ListColumns(context.Background(), "people")
	require.NoError(t, err)
	require.Len(t, cols, 4)
	assert.Equal(t, 0, cols[0].MaxLength)
	assert.Equal(t, 50, cols[1].MaxLength)
	assert.Equal(t, -1, cols[2].MaxLength)
	assert.Equal(t, 12, cols[3].MaxLength)
	assert.Equal(t, []any{"people"}, db.queries[0].args)
}

func TestMSSQL_ListColumnsMissingTable(t *testing.T) {
	a := newFakeMSSQL(t, &fakeDB{})
	_, err := a.ListColumns(context.Background(), "ghost")
	assert.True(t, IsKind(err, KindObjectNotFound))
}

func TestMSSQL_TableMetadata(t *testing.T) {
	db := &fakeDB{rows: map[string]*fakeRows{
		"sys.types":   {data: [][]any{{"ID", "int", false, 4, 10, 0}, {"name", "nvarchar", true, 40, 0, 0}}},
		"is_identity": {data: [][]any{{"ID"}}},
	}}
	a := newFakeMSSQL(t, db)
	meta, err := a.TableMetadata(context.Background(), "people")
	require.NoError(t, err)
	assert.True(t, meta.IsIdentity("id"))
	assert.False(t, meta.IsIdentity("name"))
	c, ok := meta.Column("NAME")
	require.True(t, ok)
	assert.Equal(t, 20, c.MaxLength)
}
