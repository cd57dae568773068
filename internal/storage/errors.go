package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStaleTimestamp is returned when a quote is not newer than the stored one.
	// This is a routine rejection under redelivery or out-of-order feeds.
	ErrStaleTimestamp = errors.New("stale timestamp: quote is not newer than stored quote")
)
