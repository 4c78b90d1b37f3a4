package cache

import "errors"

var (
	// ErrNotFound is returned when the key is not cached.
	ErrNotFound = errors.New("cache: key not found")
	// ErrKeyExists is returned by Insert and Set when the key is already cached.
	ErrKeyExists = errors.New("cache: key already exists")
	// ErrUnderflow is returned by DecrementUsage when the usage count is already zero.
	ErrUnderflow = errors.New("cache: usage count underflow")
	// ErrTransient is returned when the entry was evicted while its usage change was
	// being applied. Nothing is corrupted; the caller may retry.
	ErrTransient = errors.New("cache: entry changed concurrently")
	// ErrInvalidOptions is returned by New for non-positive expiry windows.
	ErrInvalidOptions = errors.New("cache: expiry windows must be positive")
)
