package config

import "errors"

// Sentinel errors returned by Load and Validate.
var (
	// ErrInvalidConfig wraps every range or enumeration failure from Validate.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig wraps file, environment and decode failures from Load.
	ErrLoadConfig = errors.New("load config failed")
)
