// Package masking replaces PII cell values with deterministic synthetic values.
//
// The seed for a value is SHA-256 over its UTF-8 string form, read as a
// big-endian integer and reduced modulo 10^18. A gofakeit.Faker seeded with
// that integer draws the synthetic value for the column's category, so the
// same (category, value) pair always maps to the same output, in one run or
// across runs, and the output alone does not reveal the input.
package masking

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/zeebo/xxh3"

	"maskflow/internal/domain"
)

const (
	// maxAttempts bounds the seed advances used to keep output != input.
	maxAttempts = 32

	// MaxPreview is the largest sample count Preview accepts.
	MaxPreview = 10
)

var seedModulus = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Reasons a cell can be left unmasked.
const (
	ReasonUnknownCategory = "unknown_category"
	ReasonGeneratorPanic  = "generator_panic"
	ReasonNoDistinctValue = "no_distinct_value"
)

// CellError reports that one value could not be masked. Callers keep the
// original value and log the error.
type CellError struct {
	Category domain.PIICategory
	Reason   string
	Err      error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("mask %s: %v", e.Category, e.Err)
}

func (e *CellError) Unwrap() error { return e.Err }

// Masker maps original values to synthetic ones. It is safe for concurrent
// use. Results are memoized in a bounded per-Masker cache.
type Masker struct {
	mu        sync.Mutex
	cache     map[xxh3.Uint128]string
	cacheSize int
	hits      uint64
}

// NewMasker returns a Masker whose memo cache holds at most cacheSize
// entries; cacheSize <= 0 disables memoization.
func NewMasker(cacheSize int) *Masker {
	m := &Masker{cacheSize: cacheSize}
	if cacheSize > 0 {
		m.cache = make(map[xxh3.Uint128]string, min(cacheSize, 4096))
	}
	return m
}

// Seed derives the generator seed for s.
func Seed(s string) uint64 {
	sum := sha256.Sum256([]byte(s))
	n := new(big.Int).SetBytes(sum[:])
	return n.Mod(n, seedModulus).Uint64()
}

// IsBlank reports whether v is nil or a string of only whitespace. Blank
// values are never masked.
func IsBlank(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	case []byte:
		return strings.TrimSpace(string(t)) == ""
	case *string:
		return t == nil || strings.TrimSpace(*t) == ""
	}
	return false
}

// Mask returns the synthetic replacement for v under category. Blank values
// are returned unchanged. Non-string values are masked by their string form,
// and the result is always a string.
func (m *Masker) Mask(category domain.PIICategory, v any) (any, error) {
	if IsBlank(v) {
		return v, nil
	}
	return m.MaskString(category, Stringify(v))
}

// MaskString masks one non-blank string value.
func (m *Masker) MaskString(category domain.PIICategory, s string) (out string, err error) {
	if strings.TrimSpace(s) == "" {
		return s, nil
	}
	gen, ok := generators[category]
	if !ok {
		return "", &CellError{Category: category, Reason: ReasonUnknownCategory, Err: domain.ErrUnknownCategory}
	}

	var key xxh3.Uint128
	if m.cache != nil {
		key = xxh3.HashString128(string(category) + "\x00" + s)
		m.mu.Lock()
		cached, hit := m.cache[key]
		if hit {
			m.hits++
		}
		m.mu.Unlock()
		if hit {
			return cached, nil
		}
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = "", &CellError{Category: category, Reason: ReasonGeneratorPanic, Err: fmt.Errorf("generator panic: %v", r)}
		}
	}()

	seed := Seed(s)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		// gofakeit treats seed 0 as "random", so shift into [1, 10^18].
		out = gen(gofakeit.New(seed + uint64(attempt) + 1))
		if out != s {
			break
		}
	}
	if out == s {
		return "", &CellError{Category: category, Reason: ReasonNoDistinctValue, Err: errors.New("generator kept returning the original value")}
	}

	if m.cache != nil {
		m.mu.Lock()
		if len(m.cache) >= m.cacheSize {
			clear(m.cache)
		}
		m.cache[key] = out
		m.mu.Unlock()
	}
	return out, nil
}

// CacheHits returns how many lookups were served from the memo cache.
func (m *Masker) CacheHits() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits
}

// Preview returns count synthetic values for sampleValue_0 … sampleValue_{count-1}.
func (m *Masker) Preview(category domain.PIICategory, sampleValue string, count int) ([]string, error) {
	if !category.Known() {
		return nil, fmt.Errorf("preview %q: %w", category, domain.ErrUnknownCategory)
	}
	if count < 1 || count > MaxPreview {
		return nil, fmt.Errorf("preview count must be between 1 and %d, got %d", MaxPreview, count)
	}
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		v, err := m.MaskString(category, fmt.Sprintf("%s_%d", sampleValue, i))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Stringify renders a cell value the way it is hashed and compared.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
