package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")

	ErrLoanNotFound        = errors.New("loan not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// ValidationError reports a rejected input field. It matches ErrValidation
// and the underlying core sentinel.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() []error { return []error{ErrValidation, e.Err} }

// IsNotFound reports whether err is one of the engine's lookup failures.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLoanNotFound) || errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrTransactionNotFound)
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// Warning flags a completed operation whose effect was partial.
type Warning string

const (
	// WarnDanglingAccount means the referenced account did not resolve and no
	// balance moved. The transaction is still recorded.
	WarnDanglingAccount Warning = "dangling_account"
	// WarnOverpayment means the payment exceeded the remaining amount. The
	// loan clamps to zero while the account moves by the full payment.
	WarnOverpayment Warning = "overpayment"
)
