package errors

import (
	"errors"
	"fmt"
)

// Kind identifies which stage of request handling produced an error.
type Kind int

const (
	// KindInternal is an unexpected failure inside the engine.
	KindInternal Kind = iota
	// KindProtocol covers unrecognized or malformed messages.
	KindProtocol
	// KindValidation covers missing fields, bad enum values and bad counts.
	KindValidation
	// KindResolution covers data requirements with no usable dataset.
	KindResolution
	// KindAllocation covers resource plans that cannot be satisfied.
	KindAllocation
	// KindGraph covers unknown hydrofabrics and catchments.
	KindGraph
	// KindAuthorization covers rejected session secrets.
	KindAuthorization
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindValidation:
		return "validation"
	case KindResolution:
		return "resolution"
	case KindAllocation:
		return "allocation"
	case KindGraph:
		return "graph"
	case KindAuthorization:
		return "authorization"
	default:
		return "internal"
	}
}

// DefaultReason is the short response reason used when an error carries none.
func (k Kind) DefaultReason() string {
	switch k {
	case KindProtocol:
		return "Protocol Error"
	case KindValidation:
		return "Invalid Request"
	case KindResolution:
		return "Data Requirements Unfulfilled"
	case KindAllocation:
		return "Insufficient Resources"
	case KindGraph:
		return "Hydrofabric Error"
	case KindAuthorization:
		return "Unauthorized"
	default:
		return "Internal Error"
	}
}

// DMODError is a request failure that is safe to describe to the client.
// Reason is a short label; Message is the actionable detail.
type DMODError struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *DMODError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DMODError) Unwrap() error {
	return e.Err
}

func newKind(kind Kind, err error, format string, args ...any) *DMODError {
	return &DMODError{
		Kind:    kind,
		Reason:  kind.DefaultReason(),
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// Protocol reports an unrecognized or malformed message.
func Protocol(format string, args ...any) *DMODError {
	return newKind(KindProtocol, nil, format, args...)
}

// Validation reports a request that failed field validation.
func Validation(format string, args ...any) *DMODError {
	return newKind(KindValidation, nil, format, args...)
}

// Resolution reports a data requirement that could not be bound.
func Resolution(format string, args ...any) *DMODError {
	return newKind(KindResolution, nil, format, args...)
}

// Allocation reports a plan that cannot be satisfied by the snapshot.
func Allocation(err error, format string, args ...any) *DMODError {
	return newKind(KindAllocation, err, format, args...)
}

// Graph reports an unknown hydrofabric or catchment.
func Graph(err error, format string, args ...any) *DMODError {
	return newKind(KindGraph, err, format, args...)
}

// NewKind builds a DMODError of any kind around err.
func NewKind(kind Kind, err error, format string, args ...any) *DMODError {
	return newKind(kind, err, format, args...)
}

// Unauthorized reports a rejected session secret.
func Unauthorized() *DMODError {
	return newKind(KindAuthorization, ErrUnauthorized, "session secret was not accepted")
}

// WithReason overrides the short response reason.
func (e *DMODError) WithReason(reason string) *DMODError {
	e.Reason = reason
	return e
}

// KindOf returns the taxonomy kind of err, KindInternal when err is not a DMODError.
func KindOf(err error) Kind {
	var de *DMODError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// AsDMOD extracts the DMODError from err's chain.
func AsDMOD(err error) (*DMODError, bool) {
	var de *DMODError
	ok := errors.As(err, &de)
	return de, ok
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
