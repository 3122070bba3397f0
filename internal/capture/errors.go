package capture

import "errors"

// Sentinel kinds for capture errors.
var (
	ErrClosed         = errors.New("capture session closed")
	ErrAlreadyMounted = errors.New("capture session already mounted")
	ErrMalformedFrame = errors.New("malformed capture frame")
)
