// Package shared contains the error taxonomy and domain events used across
// the admission packages. It has no external dependencies.
package shared

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed set of failure categories the service reports.
// Adding a kind means adding its sentinel below and its entry in the HTTP
// status table; both are checked by tests.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindClassification
	KindUnknownDepartment
	KindUnknownDomain
	KindDuplicateEmail
	KindSeatRangeExhausted
	KindAllocationConflict
	KindStorage
	KindNotFound
)

// Sentinel errors, one per Kind, for errors.Is checks.
var (
	ErrValidation         = errors.New("validation failed")
	ErrClassification     = errors.New("program cannot be classified")
	ErrUnknownDepartment  = errors.New("unknown department")
	ErrUnknownDomain      = errors.New("unknown domain")
	ErrDuplicateEmail     = errors.New("email already admitted")
	ErrSeatRangeExhausted = errors.New("seat range exhausted")
	ErrAllocationConflict = errors.New("allocation conflict")
	ErrStorage            = errors.New("storage unavailable")
	ErrNotFound           = errors.New("not found")
)

var kindSentinels = [...]error{
	KindValidation:         ErrValidation,
	KindClassification:     ErrClassification,
	KindUnknownDepartment:  ErrUnknownDepartment,
	KindUnknownDomain:      ErrUnknownDomain,
	KindDuplicateEmail:     ErrDuplicateEmail,
	KindSeatRangeExhausted: ErrSeatRangeExhausted,
	KindAllocationConflict: ErrAllocationConflict,
	KindStorage:            ErrStorage,
	KindNotFound:           ErrNotFound,
}

var kindNames = [...]string{
	KindUnknown:            "unknown",
	KindValidation:         "validation",
	KindClassification:     "classification",
	KindUnknownDepartment:  "unknown_department",
	KindUnknownDomain:      "unknown_domain",
	KindDuplicateEmail:     "duplicate_email",
	KindSeatRangeExhausted: "seat_range_exhausted",
	KindAllocationConflict: "allocation_conflict",
	KindStorage:            "storage",
	KindNotFound:           "not_found",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Sentinel returns the sentinel error for k, or nil for KindUnknown.
func (k Kind) Sentinel() error {
	if k == KindUnknown || int(k) >= len(kindSentinels) {
		return nil
	}
	return kindSentinels[k]
}

// Kinds lists every known kind except KindUnknown.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindSentinels)-1)
	for k := KindValidation; int(k) < len(kindSentinels); k++ {
		out = append(out, k)
	}
	return out
}

// KindOf classifies err. The outermost DomainError wins, so a storage
// failure that wraps an exhausted conflict reports KindStorage.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var ve *ValidationError
	var de *DomainError
	switch {
	case errors.As(err, &de):
		if k := kindFromSentinel(de.Kind); k != KindUnknown {
			return k
		}
	case errors.As(err, &ve):
		return KindValidation
	}

	return kindFromSentinel(err)
}

func kindFromSentinel(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range Kinds() {
		if errors.Is(err, kindSentinels[k]) {
			return k
		}
	}
	return KindUnknown
}

// DomainError carries where a failure happened and which Kind it is.
type DomainError struct {
	Domain  string // e.g. "admission", "allocation"
	Op      string // e.g. "Classify", "AllocateNext"
	Kind    error  // one of the sentinels above
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches the error's Kind as well as anything in its cause chain.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	return e.Err != nil && errors.Is(e.Err, target)
}

// NewDomainError creates a DomainError without a cause.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError creates a DomainError around err.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError collects every invalid field of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Error)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError with a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Error: message}}}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnknownDomain)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsRetryable reports whether the caller may retry the whole request.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindAllocationConflict, KindStorage:
		return true
	default:
		return false
	}
}
