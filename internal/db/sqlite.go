package db

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	// Pure-Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"

	"maskflow/internal/domain"
)

// SQLite's default SQLITE_MAX_VARIABLE_NUMBER.
const sqliteMaxParams = 32766

// sqliteAdapter treats Params.Host as the database file path. It backs
// local fixtures and dry runs.
type sqliteAdapter struct {
	*sqlAdapter
}

var _ Adapter = (*sqliteAdapter)(nil)

// NewSQLite builds an adapter over a SQLite file. The file must already
// exist unless Extra["mode"] says otherwise (e.g. "rwc").
func NewSQLite(p Params) (Adapter, error) {
	if strings.TrimSpace(p.Host) == "" {
		return nil, newError(domain.KindSQLite, "open", KindOther, errors.New("sqlite: file path (host) must not be empty"))
	}
	return &sqliteAdapter{sqlAdapter: &sqlAdapter{d: sqliteDialect(), dsn: sqliteDSN(p)}}, nil
}

func sqliteDialect() sqlDialect {
	return sqlDialect{
		kind:         domain.KindSQLite,
		driver:       "sqlite",
		label:        "SQLite",
		table:        pgFQN,
		ident:        pgIdent,
		placeholder:  func(int) string { return "?" },
		countExpr:    "COUNT(*)",
		selectColumn: pgIdent,
		maxParams:    sqliteMaxParams,
		classify:     classifySQLite,
	}
}

// sqliteDSN builds a file: URI with foreign keys on and a busy timeout.
// Writable files use WAL so a source cursor and a destination commit can
// share one file.
func sqliteDSN(p Params) string {
	if strings.HasPrefix(p.Host, "file:") {
		return p.Host
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	mode := "rw"
	for k, v := range p.Extra {
		if k == "mode" {
			mode = v
			continue
		}
		q.Add(k, v)
	}
	if mode != "ro" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	q.Set("mode", mode)
	return "file:" + p.Host + "?" + q.Encode()
}

func classifySQLite(err error) (Kind, bool) {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such table"), strings.Contains(msg, "no such column"),
		strings.Contains(msg, "has no column named"):
		return KindObjectNotFound, true
	case strings.Contains(msg, "unable to open database"):
		return KindNetworkUnreachable, true
	case strings.Contains(msg, "database is locked"):
		return KindTimeout, true
	}
	return KindOther, false
}

func (a *sqliteAdapter) Probe(ctx context.Context) (bool, string) { return a.probe(ctx) }

func (a *sqliteAdapter) ListTables(ctx context.Context) ([]string, error) {
	return a.queryStrings(ctx, "tables",
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
}

var sqliteTypeArgs = regexp.MustCompile(`\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\)`)

type sqliteColumn struct {
	info ColumnInfo
	pk   int
}

func (a *sqliteAdapter) tableInfo(ctx context.Context, table string) ([]sqliteColumn, error) {
	db, err := a.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT cid, name, type, \"notnull\", dflt_value, pk FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, a.wrap("columns", err)
	}
	defer rows.Close()

	var out []sqliteColumn
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, a.wrap("columns", err)
		}
		out = append(out, sqliteColumn{info: sqliteColumnInfo(name, typ, notNull == 0), pk: pk})
	}
	if err := rows.Err(); err != nil {
		return nil, a.wrap("columns", err)
	}
	if len(out) == 0 {
		return nil, tableNotFound(a.d.kind, "columns", table)
	}
	return out, nil
}

// sqliteColumnInfo parses a declared type such as VARCHAR(40) or
// DECIMAL(10,2) into the normalized shape.
func sqliteColumnInfo(name, declType string, nullable bool) ColumnInfo {
	ci := ColumnInfo{Name: name, DataType: strings.ToLower(declType), Nullable: nullable}
	if i := strings.IndexByte(declType, '('); i > 0 {
		ci.DataType = strings.ToLower(strings.TrimSpace(declType[:i]))
	}
	m := sqliteTypeArgs.FindStringSubmatch(declType)
	isText := strings.Contains(ci.DataType, "char") || strings.Contains(ci.DataType, "text") || strings.Contains(ci.DataType, "clob")
	switch {
	case m != nil && m[2] != "":
		ci.Precision, _ = strconv.Atoi(m[1])
		ci.Scale, _ = strconv.Atoi(m[2])
	case m != nil && isText:
		ci.MaxLength, _ = strconv.Atoi(m[1])
	case m != nil:
		ci.Precision, _ = strconv.Atoi(m[1])
	case isText:
		ci.MaxLength = -1
	}
	return ci
}

func (a *sqliteAdapter) ListColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	cols, err := a.tableInfo(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make([]ColumnInfo, len(cols))
	for i, c := range cols {
		out[i] = c.info
	}
	return out, nil
}

// ListIdentityColumns reports the rowid alias: a sole INTEGER PRIMARY KEY.
func (a *sqliteAdapter) ListIdentityColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	cols, err := a.tableInfo(ctx, table)
	if err != nil {
		return nil, err
	}
	var pks []sqliteColumn
	for _, c := range cols {
		if c.pk > 0 {
			pks = append(pks, c)
		}
	}
	out := map[string]struct{}{}
	if len(pks) == 1 && pks[0].info.DataType == "integer" {
		out[pks[0].info.Name] = struct{}{}
	}
	return out, nil
}

func (a *sqliteAdapter) TableMetadata(ctx context.Context, table string) (TableMeta, error) {
	return buildTableMeta(ctx, a, table)
}
