package lending

import (
	"errors"
	"fmt"
)

// Decode failure causes. A DecodeError always wraps one of these.
var (
	ErrInvalidLength      = errors.New("invalid account length")
	ErrUnsupportedVersion = errors.New("unsupported account version")
	ErrInvalidBool        = errors.New("invalid bool encoding")
	ErrTooManyReserves    = errors.New("too many obligation reserves")
)

// DecodeError reports why a buffer could not be decoded into a record.
type DecodeError struct {
	Record string
	Field  string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode %s: %v", e.Record, e.Err)
	}
	return fmt.Sprintf("decode %s.%s: %v", e.Record, e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// FailureKind returns a short label for a decode error, used for metrics and logs.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidLength):
		return "length"
	case errors.Is(err, ErrUnsupportedVersion):
		return "version"
	case errors.Is(err, ErrInvalidBool):
		return "bool"
	case errors.Is(err, ErrTooManyReserves):
		return "reserves"
	default:
		return "other"
	}
}
