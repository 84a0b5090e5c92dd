package domain

import (
	"errors"
	"strings"
)

var (
	ErrNotFound             = errors.New("inventory record not found")
	ErrValidationFailed     = errors.New("validation failed")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrPersistenceFailure   = errors.New("persistence failure")

	// ErrQuantityOverflow is returned by a ledger when an increment would
	// push a record past MaxQuantity.
	ErrQuantityOverflow = errors.New("quantity would exceed the maximum a record can hold")

	// ErrDuplicateTransaction is returned by a ledger when a transaction id
	// is already recorded. The whole mutation is rejected.
	ErrDuplicateTransaction = errors.New("transaction id already recorded")

	// ErrConstraintViolation marks storage errors that retrying cannot fix.
	ErrConstraintViolation = errors.New("storage constraint violated")
)

type ErrorKind string

const (
	KindValidationFailed     ErrorKind = "validation_failed"
	KindInsufficientQuantity ErrorKind = "insufficient_quantity"
	KindPersistenceFailure   ErrorKind = "persistence_failure"
)

// TransferError is the tagged failure returned by ledger mutations.
// Message is safe to show to users; Err carries the internal cause.
type TransferError struct {
	Kind    ErrorKind
	Message string
	Errors  []string
	Err     error
}

func (e *TransferError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Errors) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Errors, "; "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func (e *TransferError) Is(target error) bool {
	switch e.Kind {
	case KindValidationFailed:
		return target == ErrValidationFailed
	case KindInsufficientQuantity:
		return target == ErrInsufficientQuantity
	case KindPersistenceFailure:
		return target == ErrPersistenceFailure
	}
	return false
}

func ValidationFailed(errs []string) *TransferError {
	return &TransferError{
		Kind:    KindValidationFailed,
		Message: "the request is invalid",
		Errors:  append([]string(nil), errs...),
	}
}

func InsufficientQuantity(key Key, available int) *TransferError {
	msg := "no quantity available at " + key.Location
	if available > 0 {
		msg = "not enough quantity available at " + key.Location
	}
	return &TransferError{
		Kind:    KindInsufficientQuantity,
		Message: msg,
	}
}

func PersistenceFailure(err error) *TransferError {
	return &TransferError{
		Kind:    KindPersistenceFailure,
		Message: "inventory storage is unavailable, please try again",
		Err:     err,
	}
}

// KindOf reports the tag of err, or "" when err is not a TransferError.
func KindOf(err error) ErrorKind {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
