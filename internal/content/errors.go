package content

import (
	"errors"
	"fmt"
)

// Sentinel errors for expected conditions.
var (
	// ErrNotFound is returned when main or a requested version does not exist.
	ErrNotFound = errors.New("content not found")
	// ErrCorruptMetadata is returned by DecodeMetadata. The catalog absorbs it.
	ErrCorruptMetadata = errors.New("corrupt version metadata")
	// ErrInvalidSlug is returned for slugs that cannot name a storage namespace.
	ErrInvalidSlug = errors.New("invalid slug")
)

// StorageError reports a failed call to the blob store.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
