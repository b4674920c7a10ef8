package session

import (
	"testing"
	"time"
)

type profileAttr struct {
	Name  string
	Admin bool
}

func init() { RegisterAttribute(profileAttr{}) }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cfg := StaticConfig{Expiration: time.Hour}
	d := NewData(NewRecord("s1", cfg))
	_ = d.With(func(r *Record) error {
		r.Set("user", "alice")
		r.Set("visits", 7)
		r.Set("profile", profileAttr{Name: "alice", Admin: true})
		return nil
	})

	blob, err := Encode(d)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	got, err := Decode(blob, cfg)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got == d {
		t.Fatal("Decode() returned the original handle, want a fresh one")
	}

	err = got.With(func(r *Record) error {
		if r.ID() != "s1" {
			t.Errorf("ID() got %q, want %q", r.ID(), "s1")
		}
		if user, ok := Attr[string](r, "user"); !ok || user != "alice" {
			t.Errorf("Attr(user) got (%q, %v), want (alice, true)", user, ok)
		}
		if visits, ok := Attr[int](r, "visits"); !ok || visits != 7 {
			t.Errorf("Attr(visits) got (%d, %v), want (7, true)", visits, ok)
		}
		profile, ok := Attr[profileAttr](r, "profile")
		if !ok || profile.Name != "alice" || !profile.Admin {
			t.Errorf("Attr(profile) got (%+v, %v)", profile, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("With() error: %v", err)
	}
}

func TestDecodePreservesTimestamps(t *testing.T) {
	cfg := StaticConfig{Expiration: time.Hour}
	d := NewData(NewRecord("s1", cfg))

	var created, expires time.Time
	_ = d.With(func(r *Record) error {
		created, expires = r.CreationTime(), r.Expires()
		return nil
	})

	blob, err := Encode(d)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	got, err := Decode(blob, cfg)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	_ = got.With(func(r *Record) error {
		if !r.CreationTime().Equal(created) {
			t.Errorf("CreationTime() got %v, want %v", r.CreationTime(), created)
		}
		if !r.Expires().Equal(expires) {
			t.Errorf("Expires() got %v, want %v", r.Expires(), expires)
		}
		return nil
	})
}

// A decoded record picks up the receiving node's config, so Touch slides
// the expiry by the local window.
func TestDecodeAttachesConfig(t *testing.T) {
	blob, err := Encode(NewData(NewRecord("s1", StaticConfig{Expiration: time.Minute})))
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	const window = 2 * time.Hour
	got, err := Decode(blob, StaticConfig{Expiration: window})
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	got.Touch()
	_ = got.With(func(r *Record) error {
		if want := r.LastAccessed().Add(window); !r.Expires().Equal(want) {
			t.Errorf("Expires() got %v, want %v", r.Expires(), want)
		}
		return nil
	})
}

func TestDecodeNeverExpires(t *testing.T) {
	blob, err := Encode(NewData(NewRecord("s1", StaticConfig{})))
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	got, err := Decode(blob, StaticConfig{})
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if !got.Expires().IsZero() {
		t.Fatalf("Expires() got %v, want the never sentinel", got.Expires())
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not a snapshot"), StaticConfig{}); err == nil {
		t.Fatal("Decode() accepted garbage input")
	}
}
