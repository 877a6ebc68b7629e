package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"

	"maskflow/internal/domain"
)

// Kind classifies adapter failures. Callers branch on Kind only, never on
// backend error text.
type Kind int

const (
	KindOther Kind = iota
	KindUnavailable
	KindAuthenticationFailed
	KindNetworkUnreachable
	KindTimeout
	KindObjectNotFound
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "Unavailable"
	case KindAuthenticationFailed:
		return "AuthenticationFailed"
	case KindNetworkUnreachable:
		return "NetworkUnreachable"
	case KindTimeout:
		return "Timeout"
	case KindObjectNotFound:
		return "ObjectNotFound"
	default:
		return "Other"
	}
}

// Error is the only error type that crosses the adapter boundary.
type Error struct {
	Kind    Kind
	Op      string
	Backend domain.BackendKind
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Backend, e.Op, e.Kind)
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindOther if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func newError(backend domain.BackendKind, op string, kind Kind, err error) *Error {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return &Error{Kind: kind, Op: op, Backend: backend, Detail: detail, Err: err}
}

// classifyCommon handles the failures every backend shares: deadlines and
// the standard network errors. ok is false when the caller must decide.
func classifyCommon(err error) (Kind, bool) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout, true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout, true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindNetworkUnreachable, true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ECONNRESET) {
		return KindNetworkUnreachable, true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindNetworkUnreachable, true
	}
	return KindOther, false
}
