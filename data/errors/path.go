package errors

import "github.com/mwantia/assetloader/data"

func InvalidKey(cause error, key string) error {
	return newError(data.ErrInvalid, cause, "key %q", key)
}
