package workflow

import (
	"errors"
	"fmt"

	"maskflow/internal/copier"
	"maskflow/internal/db"
	"maskflow/internal/secrets"
)

// Class is the closed set of run failure classes. The persisted
// error_message of a failed execution starts with the class name.
type Class string

const (
	ClassConfiguration Class = "ConfigurationError"
	ClassCredential    Class = "CredentialError"
	ClassConnectivity  Class = "ConnectivityError"
	ClassSchema        Class = "SchemaError"
	ClassInsert        Class = "InsertError"
)

var (
	// ErrAlreadyRunning is returned by Runner.Submit when the workflow has an
	// in-flight execution in this process.
	ErrAlreadyRunning = errors.New("workflow already has a running execution")
	// ErrNotOwner means the requester neither owns the workflow nor is an admin.
	ErrNotOwner = errors.New("workflow is not owned by the requesting user")
	// ErrInactive means a soft-deleted workflow or connection was referenced.
	ErrInactive = errors.New("definition is inactive")
)

// Error is a classified run failure.
type Error struct {
	Class Class
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Class, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Class, e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ClassOf returns the class of a run error, or "" if err is not one.
func ClassOf(err error) Class {
	var we *Error
	if errors.As(err, &we) {
		return we.Class
	}
	return ""
}

func newError(c Class, msg string, err error) *Error {
	return &Error{Class: c, Msg: msg, Err: err}
}

// classifyAdapter maps an adapter failure kind onto a run class. fallback is
// used for KindOther, which depends on the step that failed.
func classifyAdapter(err error, fallback Class) Class {
	switch db.KindOf(err) {
	case db.KindAuthenticationFailed:
		return ClassCredential
	case db.KindUnavailable, db.KindNetworkUnreachable, db.KindTimeout:
		return ClassConnectivity
	case db.KindObjectNotFound:
		return ClassSchema
	}
	return fallback
}

// classifyConnect classifies a failure to open an adapter.
func classifyConnect(role string, err error) *Error {
	return newError(classifyAdapter(err, ClassConnectivity), fmt.Sprintf("connect %s database", role), err)
}

// classifyCopy classifies a table copy failure by the step it failed in.
func classifyCopy(tm string, err error) *Error {
	msg := fmt.Sprintf("table %s", tm)
	if errors.Is(err, copier.ErrColumnNotFound) || errors.Is(err, copier.ErrNoInsertableColumns) || errors.Is(err, copier.ErrNoColumns) {
		return newError(ClassSchema, msg, err)
	}
	fallback := ClassSchema
	switch copier.StepOf(err) {
	case copier.StepInsert, copier.StepClear:
		fallback = ClassInsert
	}
	return newError(classifyAdapter(err, fallback), msg, err)
}

// classifySecret classifies a password decryption failure.
func classifySecret(role string, err error) *Error {
	switch {
	case errors.Is(err, secrets.ErrNotFound):
		return newError(ClassCredential, fmt.Sprintf("%s connection has no stored password", role), err)
	case errors.Is(err, secrets.ErrInvalidKey):
		return newError(ClassCredential, fmt.Sprintf("%s connection password cannot be decrypted", role), err)
	}
	return newError(ClassCredential, fmt.Sprintf("decrypt %s connection password", role), err)
}
