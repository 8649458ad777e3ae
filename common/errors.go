package common

import (
	"errors"
	"fmt"

	"github.com/hermeznetwork/tracerr"
)

// ErrNotInFF is used when the *big.Int does not fit inside the Finite Field
var ErrNotInFF = errors.New("BigInt not inside the Finite Field")

// ErrNumOverflow is used when a given value overflows the maximum capacity of the parameter
var ErrNumOverflow = errors.New("Value overflows the type")

// ErrIdxOverflow is used when a given index overflows the maximum capacity of the Idx (2**48-1)
var ErrIdxOverflow = errors.New("idx overflow, max value: 2**48 -1")

// ErrNonceOverflow is used when a given nonce overflows the maximum capacity of the Nonce (2**40-1)
var ErrNonceOverflow = errors.New("nonce overflow, max value: 2**40 -1")

// ErrInconsistentPool is used when an operation is taken from the pool while
// no operation is pending preparation
var ErrInconsistentPool = errors.New("data is inconsistent")

// ErrDone is used when a function returns earlier due to a cancelled context
var ErrDone = errors.New("done")

// ErrInvariant marks correctness violations that must abort the worker
// rather than be retried: a desynchronized replay would silently break the
// proof/commit ordering.
var ErrInvariant = errors.New("invariant violation")

// IsErrDone returns true if the error or wrapped error is ErrDone
func IsErrDone(err error) bool {
	return Unwrap(err) == ErrDone
}

// Invariant builds an ErrInvariant error with a formatted detail message.
func Invariant(format string, args ...interface{}) error {
	return tracerr.Wrap(fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...)))
}

// IsInvariant returns true if the error or wrapped error is an ErrInvariant
func IsInvariant(err error) bool {
	return errors.Is(Unwrap(err), ErrInvariant)
}

// Wrap calls tracerr.Wrap, which adds stack trace context to the error
func Wrap(err error) error {
	return tracerr.Wrap(err)
}

// Unwrap calls tracerr.Unwrap, which removes the stack trace context added by Wrap
func Unwrap(err error) error {
	return tracerr.Unwrap(err)
}
