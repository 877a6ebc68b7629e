// Package secrets encrypts connection passwords at rest. A sealed value is an
// opaque reference: base64(nonce || secretbox(plaintext)).
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

var (
	// ErrNotFound means there is no secret behind the reference (empty ref).
	ErrNotFound = errors.New("secret not found")
	// ErrInvalidKey means the reference could not be opened with this key.
	ErrInvalidKey = errors.New("secret cannot be decrypted with the configured key")
)

const nonceSize = 24

// Box seals and opens secret references with one symmetric key.
type Box struct {
	key  [32]byte
	rand io.Reader
}

// NewBox builds a Box from a base64 encoded 32-byte key.
func NewBox(b64Key string) (*Box, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64Key))
	if err != nil {
		return nil, fmt.Errorf("secrets: decode key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("secrets: key must be 32 bytes, got %d", len(raw))
	}
	b := &Box{rand: rand.Reader}
	copy(b.key[:], raw)
	return b, nil
}

// GenerateKey returns a fresh base64 encoded key suitable for NewBox.
func GenerateKey() (string, error) {
	var k [32]byte
	if _, err := io.ReadFull(rand.Reader, k[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(k[:]), nil
}

// Encrypt seals plaintext into a reference.
func (b *Box) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(b.rand, nonce[:]); err != nil {
		return "", fmt.Errorf("secrets: nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a reference produced by Encrypt.
func (b *Box) Decrypt(ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", ErrNotFound
	}
	raw, err := base64.StdEncoding.DecodeString(ref)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrInvalidKey
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	out, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrInvalidKey
	}
	return string(out), nil
}
