package checksum

import (
	"errors"
	"fmt"
)

// Validation error kinds. A *ValidationError unwraps to exactly one of these.
var (
	ErrFileNotFound       = errors.New("file not found")
	ErrReadError          = errors.New("read error")
	ErrBadChecksumFile    = errors.New("bad checksum file")
	ErrBadChecksumFileRef = errors.New("checksum file references another file")
	ErrDigestError        = errors.New("digest error")
)

// Validation outcome reasons that are not errors of the files themselves.
var (
	ErrNoChecksums      = errors.New("no checksum files found")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// ValidationError reports a failure to read, digest or parse a file.
type ValidationError struct {
	Kind error
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		if e.Err != nil {
			return fmt.Sprintf("%v: %v", e.Kind, e.Err)
		}
		return e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Kind)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newValidationError(kind error, path string, err error) *ValidationError {
	return &ValidationError{Kind: kind, Path: path, Err: err}
}
