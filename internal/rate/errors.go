package rate

import "errors"

var (
	// ErrStoreUnavailable wraps any backing-store I/O failure.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
	// ErrInvalidConfig is returned by [Config.Validate].
	ErrInvalidConfig = errors.New("invalid rate limit config")
)
