package session

import (
	"time"

	"github.com/google/uuid"
)

// Config supplies the expiration policy and id minting for sessions. It is
// owned by the collaborator issuing sessions; the store only reads it. One
// Config typically outlives every record that references it.
type Config interface {
	// ExpireAfter returns the sliding expiration window. Zero means the
	// session never expires by time and can only be ended by explicit
	// invalidation or removal.
	ExpireAfter() time.Duration

	// GenerateID mints a new unique-enough session identifier. The store
	// never calls this itself; minting an id at record creation time is
	// the collaborator's job.
	GenerateID() string
}

// StaticConfig is a fixed-policy Config.
type StaticConfig struct {
	// Expiration is the sliding window applied on every Touch.
	// Zero disables time-based expiry.
	Expiration time.Duration

	// IDGenerator overrides the default UUIDv4 generator.
	IDGenerator func() string
}

// ExpireAfter returns the configured sliding window.
func (c StaticConfig) ExpireAfter() time.Duration {
	return c.Expiration
}

// GenerateID returns a new session identifier.
func (c StaticConfig) GenerateID() string {
	if c.IDGenerator != nil {
		return c.IDGenerator()
	}
	return uuid.NewString()
}
