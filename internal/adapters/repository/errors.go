package repository

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrStoreClosed = errors.New("store closed")
	ErrInvalidTop  = errors.New("invalid top id")
	ErrInvalidSize = errors.New("invalid max size")
)
