package ws

import "errors"

// Sentinel kinds for websocket capture errors.
var (
	ErrNoSubmit = errors.New("stream ended before submit")
)
