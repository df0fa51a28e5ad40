// Package apperr defines the error kinds shared by the conversion and
// calculation engines and maps them onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers and transports.
type Kind string

const (
	InvalidArgument   Kind = "INVALID_ARGUMENT"
	UnknownUnit       Kind = "UNKNOWN_UNIT"
	UnknownAnalyte    Kind = "UNKNOWN_ANALYTE"
	UnknownCalculator Kind = "UNKNOWN_CALCULATOR"
	NoConversionData  Kind = "NO_CONVERSION_DATA"
	ValidationFailed  Kind = "VALIDATION_FAILED"
	UnsafeExpression  Kind = "UNSAFE_EXPRESSION"
	ExpressionError   Kind = "EXPRESSION_ERROR"
	SchemaLoadError   Kind = "SCHEMA_LOAD_ERROR"
	Timeout           Kind = "TIMEOUT"
	Internal          Kind = "INTERNAL"
)

// Error is the typed error returned by the engines. Details carries the
// individual messages of a ValidationFailed error.
type Error struct {
	Kind    Kind
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validation returns a ValidationFailed error carrying every message.
func Validation(details []string) *Error {
	d := make([]string, len(details))
	copy(d, details)
	return &Error{Kind: ValidationFailed, Message: "invalid inputs", Details: d}
}

// KindOf reports the kind of err, or Internal when err carries none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// DetailsOf returns the detail messages attached to err, if any.
func DetailsOf(err error) []string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Details
	}
	return nil
}

// HTTPStatus maps an error kind to a response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidArgument, ValidationFailed, NoConversionData:
		return http.StatusBadRequest
	case UnsafeExpression, ExpressionError:
		return http.StatusUnprocessableEntity
	case UnknownUnit, UnknownAnalyte, UnknownCalculator:
		return http.StatusNotFound
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
