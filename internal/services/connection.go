// Package services applies the lifecycle rules for connections and
// workflows on top of the store: validation, password sealing, live
// connection probes, ownership and soft deletion.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"maskflow/internal/db"
	"maskflow/internal/domain"
	"maskflow/internal/logger"
	"maskflow/internal/store"
)

// DefaultProbeTimeout bounds one live connection test.
const DefaultProbeTimeout = 10 * time.Second

var (
	// ErrForbidden means the definition belongs to another user.
	ErrForbidden = errors.New("not owned by the requesting user")
	// ErrUnsupportedKind means no adapter is registered for the backend kind.
	ErrUnsupportedKind = errors.New("unsupported backend kind")
)

// Sealer seals and opens password references. *secrets.Box satisfies it.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ref string) (string, error)
}

// AdapterFactory builds adapters by backend kind. *db.Registry satisfies it.
type AdapterFactory interface {
	Supports(kind domain.BackendKind) bool
	New(p db.Params) (db.Adapter, error)
}

// ConnectionInput is the writable part of a connection. ID may be empty on
// create; a new one is generated.
type ConnectionInput struct {
	ID       string
	Name     string
	Kind     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Params   map[string]string
}

// ConnectionUpdate changes only the non-nil fields.
type ConnectionUpdate struct {
	Name     *string
	Host     *string
	Port     *int
	Database *string
	Username *string
	Password *string
	Params   map[string]string
}

// ConnectionService manages connection definitions.
type ConnectionService struct {
	logger       *logger.Logger
	repo         store.Connections
	sealer       Sealer
	adapters     AdapterFactory
	validator    *domain.ValidationService
	probeTimeout time.Duration
}

// NewConnectionService creates a connection service.
func NewConnectionService(log *logger.Logger, repo store.Connections, sealer Sealer, adapters AdapterFactory, probeTimeout time.Duration) *ConnectionService {
	if log == nil {
		log = logger.Discard()
	}
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	return &ConnectionService{
		logger:       log,
		repo:         repo,
		sealer:       sealer,
		adapters:     adapters,
		validator:    domain.NewValidationService(),
		probeTimeout: probeTimeout,
	}
}

// Create validates, seals the password, probes the endpoint and stores the
// connection. A failed probe is not an error: the connection is stored with
// status error and the probe message.
func (s *ConnectionService) Create(ctx context.Context, ownerID string, in ConnectionInput) (*domain.Connection, error) {
	kind, err := domain.ParseBackendKind(in.Kind)
	if err != nil {
		return nil, err
	}
	c := &domain.Connection{
		ID:       in.ID,
		Name:     strings.TrimSpace(in.Name),
		Kind:     kind,
		Host:     strings.TrimSpace(in.Host),
		Port:     in.Port,
		Database: in.Database,
		Username: in.Username,
		Params:   in.Params,
		OwnerID:  ownerID,
		Active:   true,
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.logger.WithConnection(c.ID, string(kind)).WithField("owner_id", ownerID).Info("Creating connection")

	if err := s.validator.ValidateStruct(c); err != nil {
		return nil, err
	}
	if !s.adapters.Supports(kind) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	if c.PasswordRef, err = s.sealer.Encrypt(in.Password); err != nil {
		return nil, fmt.Errorf("seal password: %w", err)
	}

	s.applyProbe(ctx, c, in.Password)
	if err := s.repo.CreateConnection(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update applies the patch. Any change to the endpoint or credentials
// re-runs the live probe.
func (s *ConnectionService) Update(ctx context.Context, userID, id string, up ConnectionUpdate) (*domain.Connection, error) {
	c, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	s.logger.WithConnection(c.ID, string(c.Kind)).Info("Updating connection")

	reprobe := false
	if up.Name != nil {
		c.Name = strings.TrimSpace(*up.Name)
	}
	if up.Host != nil {
		c.Host = strings.TrimSpace(*up.Host)
		reprobe = true
	}
	if up.Port != nil {
		c.Port = *up.Port
		reprobe = true
	}
	if up.Database != nil {
		c.Database = *up.Database
		reprobe = true
	}
	if up.Username != nil {
		c.Username = *up.Username
		reprobe = true
	}
	if up.Params != nil {
		c.Params = up.Params
		reprobe = true
	}
	if err := s.validator.ValidateStruct(c); err != nil {
		return nil, err
	}

	var password string
	if up.Password != nil {
		password = *up.Password
		if c.PasswordRef, err = s.sealer.Encrypt(password); err != nil {
			return nil, fmt.Errorf("seal password: %w", err)
		}
		reprobe = true
	} else if reprobe {
		if password, err = s.sealer.Decrypt(c.PasswordRef); err != nil {
			return nil, fmt.Errorf("open stored password: %w", err)
		}
	}
	if reprobe {
		s.applyProbe(ctx, c, password)
	}
	if err := s.repo.UpdateConnection(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete soft-deletes the connection.
func (s *ConnectionService) Delete(ctx context.Context, userID, id string) error {
	c, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	s.logger.WithConnection(c.ID, string(c.Kind)).Info("Deleting connection")
	c.Active = false
	c.Status = domain.ConnectionInactive
	return s.repo.UpdateConnection(ctx, c)
}

// Get returns a connection owned by userID.
func (s *ConnectionService) Get(ctx context.Context, userID, id string) (*domain.Connection, error) {
	return s.owned(ctx, userID, id)
}

// List returns the user's active connections.
func (s *ConnectionService) List(ctx context.Context, userID string) ([]*domain.Connection, error) {
	all, err := s.repo.ListConnections(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

// Test probes a stored connection and records the outcome.
func (s *ConnectionService) Test(ctx context.Context, userID, id string) (bool, string, error) {
	c, err := s.owned(ctx, userID, id)
	if err != nil {
		return false, "", err
	}
	password, err := s.sealer.Decrypt(c.PasswordRef)
	if err != nil {
		return false, "", fmt.Errorf("open stored password: %w", err)
	}
	s.applyProbe(ctx, c, password)
	if err := s.repo.UpdateConnection(ctx, c); err != nil {
		return false, "", err
	}
	return c.Status == domain.ConnectionActive, c.LastTestMessage, nil
}

// Open decrypts the stored password and returns a connected adapter for
// catalog browsing. The caller closes it.
func (s *ConnectionService) Open(ctx context.Context, userID, id string) (db.Adapter, error) {
	c, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	password, err := s.sealer.Decrypt(c.PasswordRef)
	if err != nil {
		return nil, fmt.Errorf("open stored password: %w", err)
	}
	a, err := s.adapters.New(db.ParamsFromConnection(*c, password))
	if err != nil {
		return nil, err
	}
	if err := a.Connect(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (s *ConnectionService) owned(ctx context.Context, userID, id string) (*domain.Connection, error) {
	c, err := s.repo.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, fmt.Errorf("connection %s: %w", id, store.ErrNotFound)
	}
	if c.OwnerID != userID {
		return nil, fmt.Errorf("connection %s: %w", id, ErrForbidden)
	}
	return c, nil
}

// applyProbe runs a bounded live probe and records status and message.
func (s *ConnectionService) applyProbe(ctx context.Context, c *domain.Connection, password string) {
	ok, msg := s.probe(ctx, c, password)
	c.LastTestMessage = msg
	if ok {
		c.Status = domain.ConnectionActive
	} else {
		c.Status = domain.ConnectionError
	}
	s.logger.WithConnection(c.ID, string(c.Kind)).WithField("ok", ok).Info(msg)
}

func (s *ConnectionService) probe(ctx context.Context, c *domain.Connection, password string) (bool, string) {
	a, err := s.adapters.New(db.ParamsFromConnection(*c, password))
	if err != nil {
		return false, "Connection failed: " + err.Error()
	}
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()
	defer a.Close(context.WithoutCancel(ctx))
	return a.Probe(ctx)
}
