// Package errs defines the error taxonomy shared by the protocol handlers,
// the transaction engine and the background jobs. Errors are classified by
// kind so the transport boundary can map them to protocol-level rejections.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport boundary.
type Kind int

const (
	// KindUnknown is the default for unclassified errors.
	KindUnknown Kind = iota
	// KindNotFound marks an unknown or deleted station, transaction or user.
	KindNotFound
	// KindInvalidArgument marks a malformed payload or a missing connector.
	KindInvalidArgument
	// KindConflict marks state conflicts such as an already-stopped
	// transaction or a vendor mismatch on reboot.
	KindConflict
	// KindUnauthorized marks a rejected tag or alternate-user stop.
	KindUnauthorized
	// KindUpstream marks a pricing/notification/authorization collaborator
	// failure.
	KindUpstream
)

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }

func (e *kindError) Unwrap() error { return e.err }

// New builds a classified error from a message.
func New(kind Kind, msg string) error {
	return &kindError{kind: kind, err: errors.New(msg)}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &kindError{kind: kind, err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to an existing error. A nil error stays nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// KindOf extracts the kind of an error, unwrapping as needed.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

// IsNotFound reports whether err is classified as not found.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsInvalidArgument reports whether err is classified as invalid argument.
func IsInvalidArgument(err error) bool { return KindOf(err) == KindInvalidArgument }

// IsConflict reports whether err is classified as a conflict.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsUnauthorized reports whether err is classified as unauthorized.
func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }
