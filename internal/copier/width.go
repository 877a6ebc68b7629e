package copier

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"maskflow/internal/db"
)

// widthLimit is a bounded text column in the insert list.
type widthLimit struct {
	pos    int // index into the projected insert row
	column string
	max    int
}

// overflow summarizes the values of one column that are longer than the
// destination allows.
type overflow struct {
	column  string
	max     int
	count   int
	longest int
}

// textLength counts characters the way the destination does after NFC
// composition, so "e" + combining acute counts as one.
func textLength(s string) int {
	if norm.NFC.IsNormalString(s) {
		return utf8.RuneCountInString(s)
	}
	return utf8.RuneCountInString(norm.NFC.String(s))
}

// checkWidths scans one projected page against the destination limits.
func checkWidths(rows [][]any, limits []widthLimit) []overflow {
	if len(limits) == 0 {
		return nil
	}
	var out []overflow
	for _, l := range limits {
		o := overflow{column: l.column, max: l.max}
		for _, r := range rows {
			var s string
			switch v := r[l.pos].(type) {
			case string:
				s = v
			case []byte:
				s = string(v)
			default:
				continue
			}
			if n := textLength(s); n > l.max {
				o.count++
				o.longest = max(o.longest, n)
			}
		}
		if o.count > 0 {
			out = append(out, o)
		}
	}
	return out
}

// describeWidths renders "name=40, notes=MAX" for the text columns of the
// insert list, in insert order.
func describeWidths(cols []db.ColumnInfo) string {
	var parts []string
	for _, c := range cols {
		switch {
		case c.MaxLength < 0:
			parts = append(parts, c.Name+"=MAX")
		case c.MaxLength > 0:
			parts = append(parts, fmt.Sprintf("%s=%d", c.Name, c.MaxLength))
		}
	}
	return strings.Join(parts, ", ")
}

func describeReasons(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, ", ")
}
