package session

import (
	"sync"
	"time"
)

// Data is the shared handle to one session record. Every holder, the
// backing map included, shares the same *Data pointer, so the record
// lives as long as its longest-lived holder. The
// embedded mutex serializes all access to the record, however many holders
// exist.
type Data struct {
	mu  sync.Mutex
	rec *Record
}

// NewData wraps a record in a fresh handle.
func NewData(rec *Record) *Data {
	return &Data{rec: rec}
}

// With runs fn with exclusive access to the record. The lock is released
// on every exit path, including error returns and panics. Keep the
// callback short and non-reentrant: it must not call With on the same
// handle again, and it must not call map or store operations (those take
// the map lock, which is always acquired before a record lock, never
// after).
func (d *Data) With(fn func(*Record) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(d.rec)
}

// ID returns the record's session identifier.
func (d *Data) ID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rec.id
}

// Expires returns the record's expiry time, zero for never.
func (d *Data) Expires() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rec.expires
}

// Expired reports whether the record is past its expiry time.
func (d *Data) Expired() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rec.Expired()
}

// Touch marks the record as accessed now, sliding its expiry.
func (d *Data) Touch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rec.Touch()
}

// Invalidate forces the record to immediate expiry.
func (d *Data) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rec.Invalidate()
}
