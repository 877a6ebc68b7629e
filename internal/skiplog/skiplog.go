// Package skiplog keeps a CSV audit trail of cells the masker could not
// replace. The copier keeps the original value for such a cell, so every
// occurrence is written here for review.
package skiplog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
)

// Header is the first row of every audit file.
var Header = []string{"reason", "table", "column", "row", "detail"}

// Audit appends unmasked-cell records to one CSV file. A nil *Audit is a
// valid no-op sink. Safe for concurrent use.
type Audit struct {
	mu      sync.Mutex
	path    string
	reasons map[string]int
	w       *csv.Writer
	f       *os.File
}

// Open creates (or truncates) path, making parent directories as needed, and
// writes the header row.
func Open(path string) (*Audit, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("skiplog: create dir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("skiplog: open %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("skiplog: write header: %w", err)
	}
	return &Audit{path: path, reasons: make(map[string]int), w: w, f: f}, nil
}

// ForExecution opens <dir>/<executionID>.csv. An empty dir disables the
// audit and returns a nil *Audit.
func ForExecution(dir, executionID string) (*Audit, error) {
	if dir == "" {
		return nil, nil
	}
	return Open(filepath.Join(dir, executionID+".csv"))
}

// Path is the file being written, or "" for a nil Audit.
func (a *Audit) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

// Add records one unmasked cell. row is the 1-based source row ordinal.
func (a *Audit) Add(reason, table, column string, row int64, detail string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reasons[reason]++
	_ = a.w.Write([]string{reason, table, column, strconv.FormatInt(row, 10), detail})
}

// Reason is one per-reason total.
type Reason struct {
	Reason string
	Count  int
}

// Totals returns the per-reason counts sorted by reason.
func (a *Audit) Totals() []Reason {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Reason, 0, len(a.reasons))
	for r, n := range a.reasons {
		out = append(out, Reason{Reason: r, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reason < out[j].Reason })
	return out
}

// Flush writes buffered rows to the file.
func (a *Audit) Flush() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.w.Flush()
	return a.w.Error()
}

// Close flushes and closes the file.
func (a *Audit) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.w.Flush()
	werr := a.w.Error()
	if err := a.f.Close(); err != nil {
		return err
	}
	return werr
}
