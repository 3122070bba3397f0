package transport

import "errors"

// Sentinel kinds for transport errors.
var (
	ErrEncode   = errors.New("payload encode failed")
	ErrRejected = errors.New("endpoint rejected payload")
	ErrClosed   = errors.New("submitter closed")
)
