package entity

import "time"

// DataStatus tags where a query result came from.
type DataStatus string

// Data statuses.
const (
	StatusLive        DataStatus = "live"
	StatusStale       DataStatus = "stale"
	StatusUnavailable DataStatus = "unavailable"
)

// Result is the tagged outcome of a chain or indexer query. A stale result
// carries the last-known-good value together with the error that prevented
// a refresh; an unavailable result carries no value at all.
type Result[T any] struct {
	Value     T
	Status    DataStatus
	FetchedAt time.Time
	Err       error
}

// Live wraps a freshly fetched value.
func Live[T any](value T, fetchedAt time.Time) Result[T] {
	return Result[T]{Value: value, Status: StatusLive, FetchedAt: fetchedAt}
}

// Stale wraps a previously fetched value that could not be refreshed.
func Stale[T any](value T, fetchedAt time.Time, err error) Result[T] {
	return Result[T]{Value: value, Status: StatusStale, FetchedAt: fetchedAt, Err: err}
}

// Unavailable reports a failed query with no fallback value.
func Unavailable[T any](err error) Result[T] {
	return Result[T]{Status: StatusUnavailable, Err: err}
}

// Available reports whether the result carries a value.
func (r Result[T]) Available() bool {
	return r.Status != StatusUnavailable
}

// Snapshot is a cached value with the time it was fetched.
type Snapshot struct {
	Value     any
	FetchedAt time.Time
}
