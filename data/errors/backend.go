package errors

import "github.com/mwantia/assetloader/data"

func OriginFailed(cause error, origin, key string) error {
	return newError(data.ErrOriginFailed, cause, "%s: %s", origin, key)
}

func Unsupported(origin, operation string) error {
	return newError(data.ErrUnsupported, nil, "%s does not support %s", origin, operation)
}

func TooLarge(key string, size, limit int64) error {
	return newError(data.ErrTooLarge, nil, "%s is %d bytes, limit is %d bytes", key, size, limit)
}
