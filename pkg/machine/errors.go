package machine

import (
	"errors"
	"fmt"
)

// Kind classifies why a transaction did not go through.
type Kind int

const (
	// KindNone marks a successful transaction.
	KindNone Kind = iota
	// KindValidation covers problems with the request itself: empty order, unknown or
	// out-of-stock items, illegal instruments, mismatched totals.
	KindValidation
	// KindResourceExhausted means the change reserve cannot cover the change due.
	KindResourceExhausted
	// KindInternal is any unexpected fault; callers only ever see a generic message.
	KindInternal
)

// String renders the kind for logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "success"
	case KindValidation:
		return "validation"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindInternal:
		return "internal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a failed pipeline step. Message is safe to show to the customer.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the failure kind from err. Errors that are not *Error count as internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsValidation helps callers distinguish between request problems and everything else.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// Customer-facing messages.
const (
	msgEmptyOrder        = "order cannot be empty"
	msgInsufficientFunds = "insufficient funds for this purchase"
	msgAmountMismatch    = "amount mismatch between declared total and tendered instruments"
	msgNoChange          = "insufficient change in reserve, purchase failed"
	msgInternal          = "internal error"
	msgNoChangeDue       = "purchase complete, no change due"
)

var (
	// ErrBusy is returned when the machine cannot accept or finish a request in time.
	ErrBusy = errors.New("machine is busy processing other requests")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("machine is shut down")

	errOverflow = errors.New("arithmetic overflow")
)
