package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"maskflow/internal/domain"
)

//
// =======================
//  Testability-first seams
// =======================
//
// The SQL Server and SQLite adapters both sit on database/sql. They talk to
// it through the small interfaces below so unit tests can inject fakes that
// record the generated SQL without opening sockets or files.
//

// rowsCore is the subset of *sql.Rows the cursor and catalog readers use.
type rowsCore interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// sqlTxCore is the subset of *sql.Tx used by clear and bulk insert.
type sqlTxCore interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

// sqlDBCore is the subset of *sql.DB the adapters use.
type sqlDBCore interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (rowsCore, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (sqlTxCore, error)
	PingContext(ctx context.Context) error
	Close() error
}

type realSQLDB struct{ db *sql.DB }

func (r realSQLDB) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return r.db.ExecContext(ctx, q, args...)
}
func (r realSQLDB) QueryContext(ctx context.Context, q string, args ...any) (rowsCore, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
func (r realSQLDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (sqlTxCore, error) {
	tx, err := r.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}
func (r realSQLDB) PingContext(ctx context.Context) error { return r.db.PingContext(ctx) }
func (r realSQLDB) Close() error                          { return r.db.Close() }

// openSQL is a test hook that points to sql.Open by default.
var openSQL = func(driver, dsn string) (sqlDBCore, error) {
	d, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	return realSQLDB{db: d}, nil
}

//
// ===========
//  sqlDialect
// ===========
//

// sqlDialect holds the few things that differ between database/sql backends
// for the shared data-path operations.
type sqlDialect struct {
	kind        domain.BackendKind
	driver      string
	label       string
	table       func(name string) string
	ident       func(name string) string
	placeholder func(n int) string
	countExpr   string
	// selectColumn renders one projected column of the cursor query.
	selectColumn func(col string) string
	maxParams    int
	maxRows      int
	classify     func(err error) (Kind, bool)
}

// rowsPerStatement is how many rows fit in one INSERT … VALUES statement.
func (d sqlDialect) rowsPerStatement(ncols int) int {
	if ncols <= 0 {
		return 0
	}
	n := d.maxParams / ncols
	if d.maxRows > 0 && n > d.maxRows {
		n = d.maxRows
	}
	return n
}

// buildInsert renders a multi-row INSERT and its flattened args.
// Example: INSERT INTO [t] ([a],[b]) VALUES (@p1,@p2),(@p3,@p4)
func (d sqlDialect) buildInsert(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.Grow(64 + len(rows)*len(columns)*6)
	b.WriteString("INSERT INTO ")
	b.WriteString(d.table(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(d.ident(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	n := 0
	for r, row := range rows {
		if r > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('(')
		for i := range columns {
			if i > 0 {
				b.WriteByte(',')
			}
			n++
			b.WriteString(d.placeholder(n))
			args = append(args, row[i])
		}
		b.WriteByte(')')
	}
	return b.String(), args
}

func (d sqlDialect) selectQuery(table string, columns []string) string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = d.selectColumn(c)
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), d.table(table))
}

//
// ===========
//  sqlAdapter
// ===========
//
// sqlAdapter implements the data-path half of Adapter for database/sql
// backends. Catalog queries live in the per-backend types embedding it.
//

type sqlAdapter struct {
	d   sqlDialect
	dsn string

	mu sync.Mutex
	db sqlDBCore
}

func (a *sqlAdapter) Kind() domain.BackendKind { return a.d.kind }

// wrap translates a driver error into the adapter taxonomy.
func (a *sqlAdapter) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if k, ok := classifyCommon(err); ok {
		return newError(a.d.kind, op, k, err)
	}
	if a.d.classify != nil {
		if k, ok := a.d.classify(err); ok {
			return newError(a.d.kind, op, k, err)
		}
	}
	if strings.Contains(err.Error(), "unknown driver") {
		return newError(a.d.kind, op, KindUnavailable, err)
	}
	return newError(a.d.kind, op, KindOther, err)
}

// Connect opens and pings the long-lived connection pool. It is idempotent.
func (a *sqlAdapter) Connect(ctx context.Context) error {
	_, err := a.conn(ctx)
	return err
}

func (a *sqlAdapter) conn(ctx context.Context) (sqlDBCore, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != nil {
		return a.db, nil
	}
	d, err := openSQL(a.d.driver, a.dsn)
	if err != nil {
		return nil, a.wrap("open", err)
	}
	if err := d.PingContext(ctx); err != nil {
		_ = d.Close()
		return nil, a.wrap("open", err)
	}
	a.db = d
	return d, nil
}

// probe opens a separate short-lived connection, runs SELECT 1 and closes it.
func (a *sqlAdapter) probe(ctx context.Context) (bool, string) {
	d, err := openSQL(a.d.driver, a.dsn)
	if err != nil {
		return false, "Connection failed: " + a.wrap("probe", err).Error()
	}
	defer d.Close()

	rows, err := d.QueryContext(ctx, "SELECT 1")
	if err != nil {
		return false, "Connection failed: " + a.wrap("probe", err).Error()
	}
	defer rows.Close()
	var one int
	if rows.Next() {
		err = rows.Scan(&one)
	} else {
		err = rows.Err()
	}
	if err != nil {
		return false, "Connection failed: " + a.wrap("probe", err).Error()
	}
	return true, a.d.label + " connection successful"
}

func (a *sqlAdapter) CountRows(ctx context.Context, table string) (int64, error) {
	db, err := a.conn(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", a.d.countExpr, a.d.table(table)))
	if err != nil {
		return 0, a.wrap("count", err)
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, a.wrap("count", err)
		}
	}
	return n, a.wrap("count", rows.Err())
}

func (a *sqlAdapter) OpenCursor(ctx context.Context, table string, columns []string) (Cursor, error) {
	if len(columns) == 0 {
		return nil, newError(a.d.kind, "cursor", KindOther, errors.New("no columns requested"))
	}
	db, err := a.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, a.d.selectQuery(table, columns))
	if err != nil {
		return nil, a.wrap("cursor", err)
	}
	return &sqlCursor{rows: rows, ncols: len(columns), wrap: a.wrap}, nil
}

// ClearTable deletes every row inside a transaction and reports the count.
func (a *sqlAdapter) ClearTable(ctx context.Context, table string) (int64, error) {
	db, err := a.conn(ctx)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, a.wrap("clear", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM "+a.d.table(table))
	if err != nil {
		_ = tx.Rollback()
		return 0, a.wrap("clear", err)
	}
	n := rowsAffected(res)
	if err := tx.Commit(); err != nil {
		a.discard(db)
		return 0, a.wrap("clear", err)
	}
	return n, nil
}

// BulkInsert writes one page inside a single transaction. The page is split
// into several INSERT statements only when the backend's parameter or row
// limits require it; any failure rolls the whole page back.
func (a *sqlAdapter) BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := checkShape(columns, rows); err != nil {
		return 0, newError(a.d.kind, "insert", KindOther, err)
	}
	per := a.d.rowsPerStatement(len(columns))
	if per < 1 {
		return 0, newError(a.d.kind, "insert", KindOther,
			fmt.Errorf("%d columns exceed the %d parameter limit", len(columns), a.d.maxParams))
	}

	db, err := a.conn(ctx)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, a.wrap("insert", err)
	}

	var inserted int64
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		q, args := a.d.buildInsert(table, columns, rows[start:end])
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			_ = tx.Rollback()
			return 0, a.wrap("insert", err)
		}
		if n := rowsAffected(res); n >= 0 {
			inserted += n
		} else {
			inserted += int64(end - start)
		}
	}
	if err := tx.Commit(); err != nil {
		a.discard(db)
		return 0, a.wrap("insert", err)
	}
	return inserted, nil
}

// discard closes the pool after a failed COMMIT. database/sql releases the
// connection even when the driver left its transaction open, so the pool
// cannot be reused; the next call reopens it.
func (a *sqlAdapter) discard(d sqlDBCore) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != d {
		return
	}
	_ = a.db.Close()
	a.db = nil
}

func (a *sqlAdapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// queryStrings runs q and scans the first column of every row as a string.
func (a *sqlAdapter) queryStrings(ctx context.Context, op, q string, args ...any) ([]string, error) {
	db, err := a.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, a.wrap(op, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, a.wrap(op, err)
		}
		out = append(out, s)
	}
	return out, a.wrap(op, rows.Err())
}

//
// ==========
//  sqlCursor
// ==========
//

type sqlCursor struct {
	rows  rowsCore
	ncols int
	done  bool
	wrap  func(op string, err error) error
}

func (c *sqlCursor) Next(ctx context.Context, n int) ([][]any, error) {
	if c.done || n <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, c.wrap("fetch", err)
	}
	page := make([][]any, 0, n)
	for len(page) < n {
		if !c.rows.Next() {
			c.done = true
			err := c.rows.Err()
			_ = c.rows.Close()
			if err != nil {
				return nil, c.wrap("fetch", err)
			}
			break
		}
		vals := make([]any, c.ncols)
		ptrs := make([]any, c.ncols)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := c.rows.Scan(ptrs...); err != nil {
			return nil, c.wrap("fetch", err)
		}
		page = append(page, vals)
	}
	return page, nil
}

func (c *sqlCursor) Close() error {
	c.done = true
	return c.rows.Close()
}

//
// ========
//  helpers
// ========

func rowsAffected(res sql.Result) int64 {
	if res == nil {
		return -1
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1
	}
	return n
}

func checkShape(columns []string, rows [][]any) error {
	if len(columns) == 0 {
		return errors.New("no columns to insert")
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return fmt.Errorf("row %d has %d values, want %d", i, len(r), len(columns))
		}
	}
	return nil
}

// splitQualified splits "schema.table" into its parts; schema is empty for
// unqualified names.
func splitQualified(name string) (schema, table string) {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// quoteQualified quotes each dot-separated part of name with ident.
func quoteQualified(name string, ident func(string) string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = ident(p)
	}
	return strings.Join(parts, ".")
}

func tableNotFound(kind domain.BackendKind, op, table string) *Error {
	return newError(kind, op, KindObjectNotFound, fmt.Errorf("table %q not found", table))
}
