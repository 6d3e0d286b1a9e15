package data

import "errors"

var (
	// ErrNotFound covers both absent documents and documents owned by someone else.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when the unique email index rejects an insert.
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrValidation wraps input that cannot be stored.
	ErrValidation = errors.New("validation failed")
)
