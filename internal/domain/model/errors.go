package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a compression request failed.
type ErrorKind string

const (
	KindValidation      ErrorKind = "VALIDATION"
	KindResource        ErrorKind = "RESOURCE"
	KindEncoderCapacity ErrorKind = "ENCODER_CAPACITY"
	KindEncoderFormat   ErrorKind = "ENCODER_FORMAT"
	KindEncoderNotFound ErrorKind = "ENCODER_NOT_FOUND"
	KindCancelled       ErrorKind = "CANCELLED"
	KindInternal        ErrorKind = "INTERNAL"
)

func (k ErrorKind) String() string {
	return string(k)
}

// Retryable reports whether failures of this kind may be retried at a
// degraded quality. Only encoder capacity failures qualify.
func (k ErrorKind) Retryable() bool {
	return k == KindEncoderCapacity
}

// CompressionError is the error type surfaced by the orchestrator.
type CompressionError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *CompressionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *CompressionError) Unwrap() error {
	return e.Err
}

// NewError builds a CompressionError of the given kind.
func NewError(kind ErrorKind, reason string, err error) *CompressionError {
	return &CompressionError{Kind: kind, Reason: reason, Err: err}
}

// ValidationError reports a malformed request.
func ValidationError(reason string) *CompressionError {
	return &CompressionError{Kind: KindValidation, Reason: reason}
}

// ResourceError reports insufficient memory or storage detected before encoding.
func ResourceError(reason string) *CompressionError {
	return &CompressionError{Kind: KindResource, Reason: reason}
}

// CancelledError reports a user-requested cancellation.
func CancelledError(reason string) *CompressionError {
	return &CompressionError{Kind: KindCancelled, Reason: reason}
}

// KindOf extracts the ErrorKind from err. Errors that are not
// CompressionErrors are INTERNAL.
func KindOf(err error) ErrorKind {
	var ce *CompressionError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// ReasonOf returns the human-readable reason carried by err.
func ReasonOf(err error) string {
	var ce *CompressionError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return err.Error()
}

// IsRetryable reports whether err may be retried at a lower tier.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err).Retryable()
}

// IsCancelled reports whether err is a cancellation.
func IsCancelled(err error) bool {
	return err != nil && KindOf(err) == KindCancelled
}
