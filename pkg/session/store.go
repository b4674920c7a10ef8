package session

import (
	"context"
	"errors"
)

// Map is the storage contract every backend implements. The package ships
// three: LocalMap (in-memory reference backend), RedisMap, and SQLMap.
//
// Absence is never an error: Get returns (nil, nil) and Remove returns
// (false, nil) for unknown ids. Errors are reserved for backend faults
// such as closed stores and connection or driver failures, and are never
// papered over with fabricated empty results.
//
// LocalMap hands every caller the same *Data per id, so mutations through
// one handle are immediately visible to all holders. Remote backends
// return a freshly decoded handle per Get; callers there follow the
// load-mutate-Insert cycle to persist changes.
type Map interface {
	// List returns a consistent snapshot of all stored handles. Records
	// added or removed after List returns are not reflected in the slice.
	List(ctx context.Context) ([]*Data, error)

	// Get returns the handle stored under id, or nil if there is none.
	// Expiration is the caller's concern at this layer; Get does not
	// filter expired records.
	Get(ctx context.Context, id string) (*Data, error)

	// Insert stores or replaces the handle under id. Replacing drops the
	// map's share of the old handle; other holders keep theirs.
	Insert(ctx context.Context, id string, data *Data) error

	// Remove deletes the handle under id and reports whether one existed.
	Remove(ctx context.Context, id string) (bool, error)

	// RemoveExpired deletes every record that is expired at the time of
	// the call and returns how many were removed. Live records are left
	// untouched.
	RemoveExpired(ctx context.Context) (int, error)

	// Clear invalidates every record and then empties the map.
	// Invalidation comes first so that holders retaining a handle observe
	// the session as expired, not merely absent.
	Clear(ctx context.Context) error
}

var (
	// ErrClosed is returned by backends after Close.
	ErrClosed = errors.New("session: store is closed")

	// ErrNoHandle is returned by Put and scoped access when a wrapper
	// carries no session handle.
	ErrNoHandle = errors.New("session: wrapper has no session handle")
)
