// Package errors defines the sentinel errors of lenedastat and maps them to
// categories and HTTP status codes.
//
// Callers wrap a sentinel with context (Wrap, Wrapf or a constructor) and
// test with Is or one of the category predicates. The HTTP API derives its
// status codes from the category, so a new sentinel only needs a category.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Category groups sentinels that callers treat alike.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryValidation
	CategoryState
	CategoryUpstream
	CategoryInternal
)

var categoryNames = [...]string{"unknown", "not_found", "validation", "state", "upstream", "internal"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "unknown"
}

// registry maps every sentinel to its category.
var registry = map[error]Category{}

func sentinel(msg string, c Category) error {
	err := errors.New(msg)
	registry[err] = c
	return err
}

var (
	ErrNotFound       = sentinel("not found", CategoryNotFound)
	ErrSeriesNotFound = sentinel("series not found", CategoryNotFound)
	ErrOBISNotFound   = sentinel("unknown OBIS code", CategoryNotFound)

	ErrInvalidConfig      = sentinel("invalid configuration", CategoryValidation)
	ErrMissingField       = sentinel("missing required field", CategoryValidation)
	ErrInvalidInterval    = sentinel("invalid interval", CategoryValidation)
	ErrInvalidRange       = sentinel("invalid time range", CategoryValidation)
	ErrUnsupportedDriver  = sentinel("unsupported store driver", CategoryValidation)
	ErrUnsupportedFeed    = sentinel("unsupported feed", CategoryValidation)
	ErrInvalidGranularity = sentinel("invalid granularity", CategoryValidation)

	ErrInvalidTransition = sentinel("invalid state transition", CategoryState)
	ErrAlreadyRunning    = sentinel("already running", CategoryState)

	// Metering-data API failures. They never abort a cycle; the client
	// reports them in its Result.
	ErrTimeout          = sentinel("timeout", CategoryUpstream)
	ErrConnectionFailed = sentinel("connection failed", CategoryUpstream)
	ErrUnexpectedStatus = sentinel("unexpected status", CategoryUpstream)
	ErrDecode           = sentinel("decode failed", CategoryUpstream)

	ErrInternal = sentinel("internal error", CategoryInternal)
	ErrDatabase = sentinel("database error", CategoryInternal)
	ErrPublish  = sentinel("publish failed", CategoryInternal)
	ErrClosed   = sentinel("closed", CategoryInternal)
)

// Re-exported from the standard library so callers need one import.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
	New  = errors.New
)

// CategoryOf returns the category of the first registered sentinel found
// in err's tree.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	if c, ok := registry[err]; ok {
		return c
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return CategoryOf(u.Unwrap())
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if c := CategoryOf(e); c != CategoryUnknown {
				return c
			}
		}
	}
	return CategoryUnknown
}

// IsNotFound reports whether err names a missing series, OBIS code or entity.
func IsNotFound(err error) bool {
	return CategoryOf(err) == CategoryNotFound
}

// IsValidation reports whether err was caused by bad input or configuration.
func IsValidation(err error) bool {
	return CategoryOf(err) == CategoryValidation
}

// IsUpstream reports whether err came from the metering-data API.
func IsUpstream(err error) bool {
	return CategoryOf(err) == CategoryUpstream
}

// ErrorToStatus maps err to the HTTP status the API responds with.
func ErrorToStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch CategoryOf(err) {
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryState:
		return http.StatusConflict
	case CategoryUpstream:
		if Is(err, ErrTimeout) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// Wrapping and constructors
// =============================================================================

// Wrap prefixes err with message. A nil err stays nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// NewNotFound reports a missing entity of the given kind.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s %q: %w", entityType, identifier, ErrNotFound)
}

// NewValidation reports an invalid field.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField reports a required field that is empty.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue reports a field whose value is out of range or malformed.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s %q: %s: %w", field, fmt.Sprint(value), reason, ErrInvalidConfig)
}

// NewUnexpectedStatus reports a non-200 response from the metering-data API.
func NewUnexpectedStatus(code int) error {
	return fmt.Errorf("status %d %s: %w", code, http.StatusText(code), ErrUnexpectedStatus)
}

// =============================================================================
// ValidationErrors
// =============================================================================

// ValidationErrors collects every problem of a config or cycle so they can
// be reported together.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors returns an empty collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add records err if it is non-nil.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField records an invalid field.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Add(NewValidation(field, reason))
}

// AddMissing records an empty required field.
func (v *ValidationErrors) AddMissing(field string) {
	v.Add(NewMissingField(field))
}

// HasErrors reports whether anything was recorded.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
	switch len(v.Errors) {
	case 0:
		return ""
	case 1:
		return v.Errors[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d validation errors:", len(v.Errors))
	for _, err := range v.Errors {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Err returns v as an error, or nil when nothing was recorded.
func (v *ValidationErrors) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}

// Unwrap exposes the collected errors to Is and As.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
