package txn

import "errors"

var (
	ErrMalformed          = errors.New("malformed transaction record")
	ErrInvalidID          = errors.New("invalid transaction id")
	ErrInvalidAmount      = errors.New("invalid transaction amount")
	ErrInvalidPrefix      = errors.New("invalid transaction prefix")
	ErrInvalidBeneficiary = errors.New("invalid transaction beneficiary")
	ErrInvalidDetails     = errors.New("invalid transaction details")
	ErrInvalidSignature   = errors.New("invalid transaction signature")
	// ErrNotImplemented marks extension points with no backing implementation
	// (real signing in the placeholder signer). It is never a validation failure.
	ErrNotImplemented = errors.New("not implemented")
)

// FieldError is returned by the codec for any shape or grammar violation.
// Error() is the exact message callers match on; Unwrap exposes the sentinel.
type FieldError struct {
	Field string
	Value string
	Err   error
	msg   string
}

func (e *FieldError) Error() string {
	return e.msg
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func fieldError(field, value string, sentinel error, msg string) *FieldError {
	return &FieldError{Field: field, Value: value, Err: sentinel, msg: msg}
}
