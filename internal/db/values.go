package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// normalizeValue turns pgx-decoded values that have no portable Go form
// (numeric, uuid, inet, json, interval) into strings so rows can cross
// into any destination backend.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int, int16, int32, int64, float32, float64, time.Time, []byte:
		return v
	case [16]byte:
		return uuid.UUID(t).String()
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		dv, err := t.Value()
		if err != nil {
			return fmt.Sprint(t)
		}
		return dv
	case netip.Prefix:
		return t.String()
	case netip.Addr:
		return t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	case driver.Valuer:
		dv, err := t.Value()
		if err != nil {
			return fmt.Sprint(t)
		}
		return normalizeValue(dv)
	case fmt.Stringer:
		return t.String()
	}
	return v
}
