package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maskflow/internal/domain"
	"maskflow/internal/secrets"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func sqliteDB(t *testing.T, path, ddl string) *sql.DB {
	t.Helper()
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	require.NoError(t, raw.Ping())
	if ddl != "" {
		_, err = raw.Exec(ddl)
		require.NoError(t, err)
	}
	return raw
}

type fixture struct {
	bundle string
	src    *sql.DB
	dst    *sql.DB
}

// newFixture writes a source and a destination SQLite database and a
// bundle defining both connections plus the workflows "people" and "pets".
func newFixture(t *testing.T, dstDDL string) *fixture {
	t.Helper()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.db")
	dstPath := filepath.Join(dir, "dst.db")

	f := &fixture{
		src: sqliteDB(t, srcPath, `
			CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT, email TEXT);
			CREATE TABLE pets (id INTEGER PRIMARY KEY, owner TEXT);`),
		dst: sqliteDB(t, dstPath, dstDDL),
	}
	_, err := f.src.Exec(`
		INSERT INTO people (name, email) VALUES ('Ann', 'ann@example.com'), ('Ben', 'ben@example.com'), ('Cal', 'cal@example.com');
		INSERT INTO pets (owner) VALUES ('Ann'), ('Ben');`)
	require.NoError(t, err)

	bundle := fmt.Sprintf(`
connections:
  - id: src
    name: Source
    kind: sqlite
    host: %s
  - id: dst
    name: Destination
    kind: sqlite
    host: %s
workflows:
  - id: people
    name: Mask people
    source_connection_id: src
    destination_connection_id: dst
    table_mappings:
      - source_table: people
        destination_table: people
        column_mappings:
          - {source_column: id, destination_column: id}
          - {source_column: name, destination_column: name, is_pii: true, pii_attribute: name}
          - {source_column: email, destination_column: email, is_pii: true, pii_attribute: email}
  - id: pets
    name: Mask pets
    source_connection_id: src
    destination_connection_id: dst
    table_mappings:
      - source_table: pets
        destination_table: pets
        column_mappings:
          - {source_column: owner, destination_column: owner, is_pii: true, pii_attribute: first_name}
`, srcPath, dstPath)
	f.bundle = filepath.Join(dir, "bundle.yaml")
	require.NoError(t, os.WriteFile(f.bundle, []byte(bundle), 0o600))
	return f
}

const destDDL = `
	CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT, email TEXT);
	CREATE TABLE pets (id INTEGER PRIMARY KEY, owner TEXT);`

func count(t *testing.T, d *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, d.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestRun_CopiesAndMasks(t *testing.T) {
	f := newFixture(t, destDDL)

	out, _, err := execute(t, "run", "people", "--bundle", f.bundle, "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Workflow execution started for 'Mask people'")
	assert.Contains(t, out, "Workflow completed successfully. Total records: 3")
	assert.Contains(t, out, "completed: 3 record(s)")
	assert.Contains(t, out, "workflow people completed")

	assert.Equal(t, 3, count(t, f.dst, "people"))
	var masked int
	require.NoError(t, f.dst.QueryRow(
		`SELECT COUNT(*) FROM people WHERE name IN ('Ann','Ben','Cal') OR email IN ('ann@example.com','ben@example.com','cal@example.com')`,
	).Scan(&masked))
	assert.Zero(t, masked)
}

func TestRun_FailureExitsNonZero(t *testing.T) {
	f := newFixture(t, `CREATE TABLE pets (id INTEGER PRIMARY KEY, owner TEXT);`)

	out, _, err := execute(t, "run", "people", "--bundle", f.bundle, "--user", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SchemaError")
	assert.Contains(t, out, "Workflow failed: SchemaError")
	assert.Contains(t, out, "failed: 0 record(s)")
	assert.Contains(t, out, "workflow people failed")
}

func TestRun_UnknownWorkflow(t *testing.T) {
	f := newFixture(t, destDDL)

	out, _, err := execute(t, "run", "nope", "--bundle", f.bundle, "--user", "alice")
	require.Error(t, err)
	assert.Contains(t, out, "Workflow failed: ConfigurationError")
	assert.Zero(t, count(t, f.dst, "people"))
}

func TestSubmit_RunsWorkflowsConcurrently(t *testing.T) {
	f := newFixture(t, destDDL)

	out, _, err := execute(t, "submit", "people", "pets", "--bundle", f.bundle, "--user", "alice", "--max-concurrent", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "submitted people as execution")
	assert.Contains(t, out, "submitted pets as execution")
	assert.Equal(t, 2, strings.Count(out, "completed: "))
	assert.Equal(t, 3, count(t, f.dst, "people"))
	assert.Equal(t, 2, count(t, f.dst, "pets"))
}

func TestSubmit_ReportsFailures(t *testing.T) {
	f := newFixture(t, `CREATE TABLE pets (id INTEGER PRIMARY KEY, owner TEXT);`)

	out, _, err := execute(t, "submit", "people", "pets", "--bundle", f.bundle, "--user", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SchemaError")
	assert.Contains(t, out, "failed: 0 record(s)")
	assert.Equal(t, 2, count(t, f.dst, "pets"))
}

func TestCatalogCommands(t *testing.T) {
	f := newFixture(t, destDDL)

	out, _, err := execute(t, "tables", "src", "--bundle", f.bundle, "--user", "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"people", "pets"}, strings.Fields(out))

	out, _, err = execute(t, "columns", "src", "people", "--bundle", f.bundle, "--user", "alice")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "id"))
	assert.Contains(t, lines[1], "true")

	out, _, err = execute(t, "probe", "dst", "--bundle", f.bundle, "--user", "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))

	out, _, err = execute(t, "connections", "--bundle", f.bundle, "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Source")
	assert.Contains(t, out, "Destination")

	out, _, err = execute(t, "workflows", "--bundle", f.bundle, "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Mask people")
	assert.Contains(t, out, string(domain.WorkflowReady))
}

func TestCategories(t *testing.T) {
	out, _, err := execute(t, "categories")
	require.NoError(t, err)
	got := strings.Fields(out)
	assert.Len(t, got, len(domain.ListCategories()))
	assert.Contains(t, got, "ssn")
	assert.Contains(t, got, "email")
}

func TestPreview(t *testing.T) {
	first, _, err := execute(t, "preview", "email", "jane@example.com", "--count", "3")
	require.NoError(t, err)
	assert.Len(t, strings.Fields(first), 3)

	second, _, err := execute(t, "preview", "email", "jane@example.com", "--count", "3")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, _, err = execute(t, "preview", "shoe_size", "9")
	require.ErrorIs(t, err, domain.ErrUnknownCategory)

	_, _, err = execute(t, "preview", "email", "x", "--count", "0")
	require.Error(t, err)
}

func TestKeygen(t *testing.T) {
	out, _, err := execute(t, "keygen")
	require.NoError(t, err)
	_, err = secrets.NewBox(strings.TrimSpace(out))
	assert.NoError(t, err)
}

func TestConfigErrorsAreReported(t *testing.T) {
	_, _, err := execute(t, "workflows", "--store-driver", "mysql")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")

	_, _, err = execute(t, "workflows", "--store-driver", "postgres", "--store-dsn", "postgres://localhost/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secrets.key")
}

func TestAdminsFlag(t *testing.T) {
	t.Chdir(t.TempDir())

	root := newRootCmd()
	require.NoError(t, root.ParseFlags([]string{"--admins", "root,ops"}))
	a, err := newApp(context.Background(), root, "", "alice")
	require.NoError(t, err)
	defer a.close()
	assert.Equal(t, []string{"root", "ops"}, a.cfg.Engine.Admins)

	t.Setenv("MASKFLOW_ENGINE_ADMINS", "dba")
	root = newRootCmd()
	require.NoError(t, root.ParseFlags(nil))
	b, err := newApp(context.Background(), root, "", "alice")
	require.NoError(t, err)
	defer b.close()
	assert.Equal(t, []string{"dba"}, b.cfg.Engine.Admins)
}
