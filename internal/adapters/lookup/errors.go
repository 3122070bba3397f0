package lookup

import "errors"

// Sentinel kinds for lookup errors.
var (
	ErrLookupFailed = errors.New("lookup failed")
	ErrStatus       = errors.New("lookup returned non-2xx status")
	ErrMalformed    = errors.New("lookup returned malformed body")
	ErrEmptyIP      = errors.New("lookup returned empty ip")
)
