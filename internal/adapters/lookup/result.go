// Package lookup resolves the public ip address and coarse geolocation of the
// capturing client through external HTTP services.
package lookup

import "fmt"

// Result is the outcome of one lookup: either a value or the reason there is
// none. The zero Result is a failure with ErrLookupFailed.
type Result[T any] struct {
	value T
	err   error
	ok    bool
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

// Fail wraps a failure. A nil err becomes ErrLookupFailed.
func Fail[T any](err error) Result[T] {
	if err == nil {
		err = ErrLookupFailed
	}
	return Result[T]{err: err}
}

// IsOk reports whether the lookup produced a value.
func (r Result[T]) IsOk() bool { return r.ok }

// Get returns the value and the failure reason.
func (r Result[T]) Get() (T, error) {
	if !r.ok {
		var zero T
		return zero, r.Err()
	}
	return r.value, nil
}

// Err returns the failure reason, or nil on success.
func (r Result[T]) Err() error {
	if r.ok {
		return nil
	}
	if r.err == nil {
		return ErrLookupFailed
	}
	return r.err
}

// Or returns the value, or def when the lookup failed.
func (r Result[T]) Or(def T) T {
	if !r.ok {
		return def
	}
	return r.value
}

// Geo is a coarse location as reported by the geo service.
type Geo struct {
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
}

// String renders "city, region, country".
func (g Geo) String() string {
	return fmt.Sprintf("%s, %s, %s", orUnknown(g.City), orUnknown(g.Region), orUnknown(g.Country))
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
