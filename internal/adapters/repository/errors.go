package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound  = errors.New("submission not found")
	ErrDuplicate = errors.New("submission already stored")
	ErrInvalidID = errors.New("submission id must not be empty")
	ErrBackend   = errors.New("store backend failure")
)
