package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"maskflow/internal/domain"
)

// Bundle is a YAML file of connection and workflow definitions, imported
// through the services so that passwords are sealed and input validated.
//
//	connections:
//	  - id: src
//	    name: Production
//	    kind: sql_server
//	    host: db.internal
//	    username: reader
//	    password_env: SRC_PASSWORD
//	workflows:
//	  - id: nightly
//	    source_connection_id: src
//	    ...
type Bundle struct {
	Connections []BundleConnection `yaml:"connections"`
	Workflows   []domain.Workflow  `yaml:"workflows"`
}

// BundleConnection is a connection definition with its plaintext password,
// given inline or read from an environment variable.
type BundleConnection struct {
	domain.Connection `yaml:",inline"`
	Password          string `yaml:"password,omitempty"`
	PasswordEnv       string `yaml:"password_env,omitempty"`
}

// ResolvePassword returns the inline password or the value of PasswordEnv.
func (c BundleConnection) ResolvePassword() (string, error) {
	if c.PasswordEnv == "" {
		return c.Password, nil
	}
	v, ok := os.LookupEnv(c.PasswordEnv)
	if !ok {
		return "", fmt.Errorf("connection %s: environment variable %s is not set", c.ID, c.PasswordEnv)
	}
	return v, nil
}

// LoadBundle reads a bundle file.
func LoadBundle(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()
	b, err := ParseBundle(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// ParseBundle decodes a bundle, rejecting unknown keys.
func ParseBundle(r io.Reader) (*Bundle, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var b Bundle
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		if errors.Is(err, io.EOF) {
			return &b, nil
		}
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &b, nil
}
