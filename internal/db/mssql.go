package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"maskflow/internal/domain"
)

const (
	mssqlDefaultPort     = 1433
	mssqlDefaultDatabase = "master"

	// SQL Server rejects more than 2100 parameters per request and more
	// than 1000 row value expressions per INSERT … VALUES.
	mssqlMaxParams = 2100
	mssqlMaxRows   = 1000
)

// mssqlAdapter serves both sql_server and azure_sql.
type mssqlAdapter struct {
	*sqlAdapter
}

var _ Adapter = (*mssqlAdapter)(nil)

// NewMSSQL builds a SQL Server family adapter. Azure SQL always encrypts.
func NewMSSQL(p Params) (Adapter, error) {
	dsn, err := mssqlDSN(p)
	if err != nil {
		return nil, newError(p.Kind, "open", KindOther, err)
	}
	kind := p.Kind
	if !kind.SQLServerFamily() {
		kind = domain.KindSQLServer
	}
	return &mssqlAdapter{sqlAdapter: &sqlAdapter{d: mssqlDialect(kind), dsn: dsn}}, nil
}

func mssqlDialect(kind domain.BackendKind) sqlDialect {
	return sqlDialect{
		kind:        kind,
		driver:      "sqlserver",
		label:       "SQL Server",
		table:       msFQN,
		ident:       msIdent,
		placeholder: func(n int) string { return "@p" + strconv.Itoa(n) },
		countExpr:   "COUNT_BIG(*)",
		// Exotic types (DATETIMEOFFSET, SQL_VARIANT, XML) stream as text.
		selectColumn: func(col string) string {
			return fmt.Sprintf("TRY_CAST(%s AS NVARCHAR(MAX)) AS %s", msIdent(col), msIdent(col))
		},
		maxParams: mssqlMaxParams - 1,
		maxRows:   mssqlMaxRows,
		classify:  classifyMSSQL,
	}
}

// mssqlDSN renders a sqlserver:// URL and validates it with msdsn.
func mssqlDSN(p Params) (string, error) {
	if strings.TrimSpace(p.Host) == "" {
		return "", errors.New("sql server host is required")
	}
	port := p.Port
	if port == 0 {
		port = mssqlDefaultPort
	}
	database := p.Database
	if database == "" {
		database = mssqlDefaultDatabase
	}

	q := url.Values{}
	q.Set("database", database)
	for k, v := range p.Extra {
		q.Set(k, v)
	}
	if p.Kind == domain.KindAzureSQL {
		q.Set("encrypt", "true")
	}
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(p.Username, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, port),
		RawQuery: q.Encode(),
	}
	dsn := u.String()
	if _, err := msdsn.Parse(dsn); err != nil {
		return "", fmt.Errorf("mssql dsn: %w", err)
	}
	return dsn, nil
}

// classifyMSSQL maps SQL Server error numbers onto the taxonomy.
func classifyMSSQL(err error) (Kind, bool) {
	var me mssql.Error
	if errors.As(err, &me) {
		switch me.Number {
		case 18456, 18452, 18470, 18486, 18487, 18488:
			return KindAuthenticationFailed, true
		case 4060:
			// Cannot open database requested by the login.
			return KindAuthenticationFailed, true
		case 208, 207, 4701, 3701:
			return KindObjectNotFound, true
		case -2:
			return KindTimeout, true
		}
		return KindOther, false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "login failed"), strings.Contains(msg, "login error"):
		return KindAuthenticationFailed, true
	case strings.Contains(msg, "unable to open tcp connection"), strings.Contains(msg, "no such host"):
		return KindNetworkUnreachable, true
	case strings.Contains(msg, "i/o timeout"):
		return KindTimeout, true
	}
	return KindOther, false
}

func (a *mssqlAdapter) Probe(ctx context.Context) (bool, string) { return a.probe(ctx) }

func (a *mssqlAdapter) ListTables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT CASE WHEN TABLE_SCHEMA = 'dbo' THEN TABLE_NAME ELSE TABLE_SCHEMA + '.' + TABLE_NAME END
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_SCHEMA, TABLE_NAME`
	return a.queryStrings(ctx, "tables", q)
}

// ListColumns reads sys.columns. max_length is in bytes there, so the
// N-prefixed character types are halved to get characters.
func (a *mssqlAdapter) ListColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	const q = `
		SELECT c.name, t.name, c.is_nullable, c.max_length, c.precision, c.scale
		FROM sys.columns c
		JOIN sys.types t ON c.user_type_id = t.user_type_id
		WHERE c.object_id = OBJECT_ID(@p1)
		ORDER BY c.column_id`
	db, err := a.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, a.wrap("columns", err)
	}
	defer rows.Close()

	var out []ColumnInfo
	for rows.Next() {
		var (
			name, typ        string
			nullable         bool
			maxLen           int
			precision, scale int
		)
		if err := rows.Scan(&name, &typ, &nullable, &maxLen, &precision, &scale); err != nil {
			return nil, a.wrap("columns", err)
		}
		out = append(out, ColumnInfo{
			Name:      name,
			DataType:  typ,
			Nullable:  nullable,
			MaxLength: msCharLength(typ, maxLen),
			Precision: precision,
			Scale:     scale,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, a.wrap("columns", err)
	}
	if len(out) == 0 {
		return nil, tableNotFound(a.d.kind, "columns", table)
	}
	return out, nil
}

// msCharLength converts sys.columns.max_length to characters for text
// types; other types report 0.
func msCharLength(typ string, maxLen int) int {
	switch strings.ToLower(typ) {
	case "nvarchar", "nchar":
		if maxLen < 0 {
			return -1
		}
		return maxLen / 2
	case "varchar", "char", "varbinary", "binary":
		if maxLen < 0 {
			return -1
		}
		return maxLen
	case "ntext", "text", "xml":
		return -1
	}
	return 0
}

func (a *mssqlAdapter) ListIdentityColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	const q = `
		SELECT c.name
		FROM sys.columns c
		WHERE c.object_id = OBJECT_ID(@p1) AND (c.is_identity = 1 OR c.is_computed = 1)`
	names, err := a.queryStrings(ctx, "identity", q, table)
	if err != nil {
		return nil, err
	}
	return toSet(names), nil
}

func (a *mssqlAdapter) TableMetadata(ctx context.Context, table string) (TableMeta, error) {
	return buildTableMeta(ctx, a, table)
}

// msIdent quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.customers".
func msFQN(name string) string { return quoteQualified(name, msIdent) }
