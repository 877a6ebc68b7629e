package skiplog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open for read: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("readall: %v", err)
	}
	return rows
}

// TestOpen_CreatesDirFileAndHeader verifies that Open creates missing parent
// directories and writes the header row.
func TestOpen_CreatesDirFileAndHeader(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "audit", "exec-1.csv")
	a, err := Open(target)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rows := readAll(t, target)
	if len(rows) != 1 {
		t.Fatalf("expected exactly 1 row (header), got %d: %#v", len(rows), rows)
	}
	if !reflect.DeepEqual(rows[0], Header) {
		t.Fatalf("header mismatch\ngot : %#v\nwant: %#v", rows[0], Header)
	}
}

// TestAudit_Add_WritesRowsAndCounts checks CSV quoting and per-reason totals.
func TestAudit_Add_WritesRowsAndCounts(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "audit.csv")
	a, err := Open(target)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	a.Add("generator_panic", "people", "email", 2, `boom, "quoted"`)
	a.Add("no_distinct_value", "people", "state", 3, "")
	a.Add("generator_panic", "people", "email", 9, "boom")
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rows := readAll(t, target)
	if len(rows) != 4 {
		t.Fatalf("want 4 rows, got %d: %#v", len(rows), rows)
	}
	want := []string{"generator_panic", "people", "email", "2", `boom, "quoted"`}
	if !reflect.DeepEqual(rows[1], want) {
		t.Fatalf("row mismatch\ngot : %#v\nwant: %#v", rows[1], want)
	}

	got := a.Totals()
	wantTotals := []Reason{{"generator_panic", 2}, {"no_distinct_value", 1}}
	if !reflect.DeepEqual(got, wantTotals) {
		t.Fatalf("totals mismatch\ngot : %#v\nwant: %#v", got, wantTotals)
	}
}

// TestNilAudit_IsNoop covers the disabled audit returned for an empty dir.
func TestNilAudit_IsNoop(t *testing.T) {
	t.Parallel()

	a, err := ForExecution("", "exec-1")
	if err != nil || a != nil {
		t.Fatalf("ForExecution(\"\") = %v, %v; want nil, nil", a, err)
	}
	a.Add("x", "t", "c", 1, "")
	if a.Totals() != nil || a.Path() != "" {
		t.Fatal("nil audit should report nothing")
	}
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestForExecution_NamesFileByExecution(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a, err := ForExecution(dir, "abc")
	if err != nil {
		t.Fatalf("ForExecution: %v", err)
	}
	defer a.Close()
	if want := filepath.Join(dir, "abc.csv"); a.Path() != want {
		t.Fatalf("path = %q; want %q", a.Path(), want)
	}
}
