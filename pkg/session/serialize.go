package session

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"
)

// snapshot is the wire representation of a record, used by the remote
// backends. gob rather than JSON: attribute retrieval is checked against
// the value's dynamic type, and gob round-trips registered concrete types
// where JSON would collapse them.
type snapshot struct {
	Version      int
	ID           string
	Created      time.Time
	LastAccessed time.Time
	Expires      time.Time
	Attributes   map[string]any
}

// snapshotVersion is the current serialization format version. Increment
// on breaking changes to the format.
const snapshotVersion = 1

func init() {
	// Common attribute types work out of the box; anything else goes
	// through RegisterAttribute.
	RegisterAttribute("")
	RegisterAttribute(0)
	RegisterAttribute(int64(0))
	RegisterAttribute(float64(0))
	RegisterAttribute(false)
	RegisterAttribute(time.Time{})
	RegisterAttribute([]string(nil))
	RegisterAttribute(map[string]string(nil))
}

// RegisterAttribute registers an attribute type with the codec so values
// of that type survive a round trip through a remote backend. Call it
// from an init function, once per concrete type:
//
//	func init() { session.RegisterAttribute(UserInfo{}) }
func RegisterAttribute(value any) {
	gob.Register(value)
}

// Encode serializes the record behind a handle for storage in a remote
// backend.
func Encode(d *Data) ([]byte, error) {
	var buf bytes.Buffer
	err := d.With(func(r *Record) error {
		attrs := make(map[string]any, len(r.attributes))
		for k, v := range r.attributes {
			attrs[k] = v
		}
		return gob.NewEncoder(&buf).Encode(snapshot{
			Version:      snapshotVersion,
			ID:           r.id,
			Created:      r.created,
			LastAccessed: r.lastAccessed,
			Expires:      r.expires,
			Attributes:   attrs,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("session: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reconstructs a handle from Encode output. The config reference
// is attached to the decoded record; it is not part of the wire format.
func Decode(data []byte, config Config) (*Data, error) {
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("session: unsupported snapshot version %d", snap.Version)
	}

	attrs := snap.Attributes
	if attrs == nil {
		attrs = make(map[string]any)
	}
	return NewData(&Record{
		id:           snap.ID,
		created:      snap.Created,
		lastAccessed: snap.LastAccessed,
		expires:      snap.Expires,
		attributes:   attrs,
		config:       config,
	}), nil
}
