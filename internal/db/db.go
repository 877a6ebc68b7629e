// Package db provides the connection adapters the masking engine reads from
// and writes to. Each backend kind is bound to one Adapter implementation at
// startup through a Registry; callers above this package only see the
// Adapter interface and the error taxonomy in errors.go.
package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"maskflow/internal/domain"
)

// ColumnInfo is one column's catalog metadata, normalized across backends.
// MaxLength is in characters; -1 means unbounded (MAX/text), 0 unknown.
type ColumnInfo struct {
	Name      string `json:"name"`
	DataType  string `json:"data_type"`
	Nullable  bool   `json:"nullable"`
	MaxLength int    `json:"max_length"`
	Precision int    `json:"precision"`
	Scale     int    `json:"scale"`
}

// TableMeta is the single per-table metadata probe: columns plus the set of
// database-generated (identity/serial) columns.
type TableMeta struct {
	Table    string
	Columns  []ColumnInfo
	Identity map[string]struct{}
}

// IsIdentity reports whether col is generated by the database. Names are
// compared case-insensitively because both SQL Server and unquoted
// PostgreSQL identifiers fold case.
func (m TableMeta) IsIdentity(col string) bool {
	for k := range m.Identity {
		if strings.EqualFold(k, col) {
			return true
		}
	}
	return false
}

// Column looks up a column by name, case-insensitively.
func (m TableMeta) Column(name string) (ColumnInfo, bool) {
	for _, c := range m.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

// Cursor is a finite, one-shot, forward-only sequence of rows. Next returns
// up to n rows; an empty result with a nil error means the cursor is drained.
type Cursor interface {
	Next(ctx context.Context, n int) ([][]any, error)
	Close() error
}

// Adapter is the per-backend contract used by the copy processor.
//
// Probe never returns an error; it reports (ok, message). All other methods
// return *Error values classified into the Kind taxonomy.
type Adapter interface {
	Kind() domain.BackendKind

	Probe(ctx context.Context) (bool, string)
	Connect(ctx context.Context) error

	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, table string) ([]ColumnInfo, error)
	ListIdentityColumns(ctx context.Context, table string) (map[string]struct{}, error)
	TableMetadata(ctx context.Context, table string) (TableMeta, error)
	CountRows(ctx context.Context, table string) (int64, error)

	OpenCursor(ctx context.Context, table string, columns []string) (Cursor, error)
	ClearTable(ctx context.Context, table string) (int64, error)
	BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	Close(ctx context.Context) error
}

// Params are the resolved, decrypted connection settings for one adapter.
type Params struct {
	Kind     domain.BackendKind
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Extra    map[string]string
}

// ParamsFromConnection combines a stored Connection with its plaintext password.
func ParamsFromConnection(c domain.Connection, password string) Params {
	return Params{
		Kind:     c.Kind,
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		Username: c.Username,
		Password: password,
		Extra:    c.Params,
	}
}

// String renders the params for logs with the password removed.
func (p Params) String() string {
	return fmt.Sprintf("%s://%s@%s:%d/%s", p.Kind, p.Username, p.Host, p.Port, p.Database)
}

// Redact strips the password from a URL-style DSN. Non-URL DSNs are
// returned unchanged when they hold no userinfo.
func Redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
