package session

import (
	"time"
)

// Record is one session's state: identity, timestamps, expiration, and the
// attribute bag. A zero expires time means the session never expires.
//
// Record does no locking of its own. Callers reach it through Data.With,
// which holds the handle's lock for the duration of the callback.
type Record struct {
	id           string
	created      time.Time
	lastAccessed time.Time
	expires      time.Time
	attributes   map[string]any
	config       Config
}

// NewRecord creates a record with the given id. The config reference is
// retained read-only; it supplies the expiration policy on every Touch.
// With a finite expiration window the initial expiry is creation + window,
// otherwise the record starts as never-expiring.
func NewRecord(id string, config Config) *Record {
	now := time.Now()
	r := &Record{
		id:           id,
		created:      now,
		lastAccessed: now,
		attributes:   make(map[string]any),
		config:       config,
	}
	if d := config.ExpireAfter(); d > 0 {
		r.expires = now.Add(d)
	}
	return r
}

// ID returns the session identifier.
func (r *Record) ID() string { return r.id }

// SetID reissues the session identifier, e.g. on rotation. Uniqueness
// among stored sessions is enforced by the map's keying, not here.
func (r *Record) SetID(newID string) { r.id = newID }

// CreationTime returns when the record was created. It never changes.
func (r *Record) CreationTime() time.Time { return r.created }

// LastAccessed returns the time of the last Touch.
func (r *Record) LastAccessed() time.Time { return r.lastAccessed }

// Expires returns the expiry time, or the zero time for sessions that
// never expire.
func (r *Record) Expires() time.Time { return r.expires }

// Expired reports whether the record is past its expiry time. Records
// without an expiry time are never expired.
func (r *Record) Expired() bool {
	return !r.expires.IsZero() && !time.Now().Before(r.expires)
}

// Touch marks the record as accessed now and, when the config carries a
// finite expiration window, slides the expiry to now + window.
func (r *Record) Touch() {
	r.lastAccessed = time.Now()
	if d := r.config.ExpireAfter(); d > 0 {
		r.expires = r.lastAccessed.Add(d)
	}
}

// Invalidate forces immediate expiry by moving the expiry time back to the
// creation time. The record stays in whatever maps hold it until the next
// sweep; every holder observes it as expired in the meantime.
func (r *Record) Invalidate() {
	r.expires = r.created
}

// Set stores an attribute under key, silently replacing any previous
// value. Values destined for a remote backend must be gob-encodable; see
// RegisterAttribute.
func (r *Record) Set(key string, value any) {
	r.attributes[key] = value
}

// Value returns the untyped attribute stored under key.
func (r *Record) Value(key string) (any, bool) {
	v, ok := r.attributes[key]
	return v, ok
}

// Delete removes the attribute under key and returns the value that was
// stored, if any.
func (r *Record) Delete(key string) (any, bool) {
	v, ok := r.attributes[key]
	if ok {
		delete(r.attributes, key)
	}
	return v, ok
}

// Len returns the number of attributes on the record.
func (r *Record) Len() int { return len(r.attributes) }

// Attr returns the attribute stored under key if its dynamic type is
// exactly T. A missing key and a type mismatch are both reported as
// absent; neither is an error, since probing optional data is expected.
func Attr[T any](r *Record, key string) (T, bool) {
	v, ok := r.attributes[key]
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
