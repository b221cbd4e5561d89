package errors

import (
	"fmt"

	"github.com/mwantia/assetloader/data"
)

// newError wraps sentinel with a formatted context and an optional cause.
// errors.Is matches both the sentinel and the cause.
func newError(sentinel, cause error, format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if cause != nil {
		return fmt.Errorf("%w: %s: %w", sentinel, text, cause)
	}

	return fmt.Errorf("%w: %s", sentinel, text)
}

func AssetNotFound(cause error, name string) error {
	return newError(data.ErrNotFound, cause, "%s", name)
}

func LoadFailed(cause error, format string, args ...any) error {
	return newError(data.ErrLoadFailure, cause, format, args...)
}

func LockMisused(key, owner string) error {
	return newError(data.ErrLockMisuse, nil, "key %q owner %q", key, owner)
}

func MissingOwner(key string) error {
	return newError(data.ErrInvalid, nil, "no lock owner on context for key %q", key)
}
