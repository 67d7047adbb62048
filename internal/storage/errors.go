package storage

import "errors"

// Sentinel errors returned by the store; handlers map them to HTTP statuses.
var (
	ErrNotFound   = errors.New("record not found")
	ErrConflict   = errors.New("record already exists")
	ErrValidation = errors.New("invalid input")
)
