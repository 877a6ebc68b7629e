// Fast JSON object encoder for a fixed key set (UTF-8 safe, no maps).
//
// Key prefixes `"key":` are built once; each Encode call writes
// `{<prefix><quoted value>,...}` into a pooled buffer. Composite synthetic
// values (profiles, passports) are rendered this way so the key order is
// fixed and the output is byte-identical for identical inputs.
package jsonutil

import (
	"bytes"
	"sync"
	"unicode/utf8"
)

type ObjectEncoder struct {
	keys     []string
	prefixes [][]byte
	bufPool  sync.Pool
}

func NewObjectEncoder(keys []string) *ObjectEncoder {
	pfx := make([][]byte, len(keys))
	for i, k := range keys {
		b := appendQuoted(nil, k)
		pfx[i] = append(b, ':')
	}
	return &ObjectEncoder{
		keys:     append([]string(nil), keys...),
		prefixes: pfx,
		bufPool:  sync.Pool{New: func() any { return new(bytes.Buffer) }},
	}
}

// Keys returns the key order used by Encode.
func (e *ObjectEncoder) Keys() []string { return e.keys }

// Encode renders values positionally against the configured keys. Missing
// trailing values are written as empty strings.
func (e *ObjectEncoder) Encode(values ...string) string {
	buf := e.bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	buf.WriteByte('{')
	for i := range e.prefixes {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(e.prefixes[i])
		v := ""
		if i < len(values) {
			v = values[i]
		}
		buf.Write(appendQuoted(buf.AvailableBuffer(), v))
	}
	buf.WriteByte('}')
	out := buf.String()
	e.bufPool.Put(buf)
	return out
}

const hex = "0123456789abcdef"

// appendQuoted appends s as a JSON string literal. Invalid UTF-8 bytes are
// replaced with U+FFFD.
func appendQuoted(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '"' || c == '\\':
				dst = append(dst, '\\', c)
			case c == '\n':
				dst = append(dst, '\\', 'n')
			case c == '\r':
				dst = append(dst, '\\', 'r')
			case c == '\t':
				dst = append(dst, '\\', 't')
			case c < 0x20:
				dst = append(dst, '\\', 'u', '0', '0', hex[c>>4], hex[c&0xF])
			default:
				dst = append(dst, c)
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			dst = append(dst, `�`...)
		} else {
			dst = append(dst, s[i:i+size]...)
		}
		i += size
	}
	return append(dst, '"')
}
