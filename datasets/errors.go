package datasets

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. Every error returned by this module wraps one of them, so
// callers can use errors.Is(err, datasets.ErrFormat) and friends.
var (
	// ErrIO is a missing, unreadable or unwritable path.
	ErrIO = errors.New("io error")

	// ErrFormat is an unexpected file extension or malformed tabular/JSON/image content.
	ErrFormat = errors.New("format error")

	// ErrRange is an index out of bounds in a lookup helper.
	ErrRange = errors.New("index out of range")

	// ErrValidation is an invalid argument: ratios not summing to 1, a target
	// size smaller than the source image, an empty vocabulary, etc.
	ErrValidation = errors.New("validation error")

	// ErrDestinationExists is returned by CopyDataset when the destination exists
	// and overwriting was not requested.
	ErrDestinationExists = errors.New("destination already exists")
)

// kindError attaches an error kind to a message and an optional cause.
type kindError struct {
	kind  error
	msg   string
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.msg, e.kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.msg, e.kind, e.cause)
}

// Is reports whether target is the kind of this error.
func (e *kindError) Is(target error) bool { return target == e.kind }

// Unwrap returns the underlying cause, if any.
func (e *kindError) Unwrap() error { return e.cause }

// Cause implements github.com/pkg/errors causer.
func (e *kindError) Cause() error { return e.cause }

func newKindError(kind error, format string, args ...any) error {
	return errors.WithStack(&kindError{kind: kind, msg: fmt.Sprintf(format, args...)})
}

func wrapKind(kind, cause error, format string, args ...any) error {
	return errors.WithStack(&kindError{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause})
}

// Errorf returns an error of the given kind. It is used by the other packages
// of this module so all errors share the same taxonomy.
func Errorf(kind error, format string, args ...any) error {
	return newKindError(kind, format, args...)
}

// Wrapf returns an error of the given kind wrapping cause.
func Wrapf(kind, cause error, format string, args ...any) error {
	return wrapKind(kind, cause, format, args...)
}
