package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sessio-dev/sessio/pkg/session"
)

func testBus(t *testing.T) *Bus {
	t.Helper()
	return NewBus(nil, "node-a", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func mustEvent(t *testing.T, ev Event) []byte {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return data
}

func TestApplyRemove(t *testing.T) {
	bus := testBus(t)
	m := session.NewLocalMap()
	ctx := context.Background()

	if err := m.Insert(ctx, "s1", session.NewData(session.NewRecord("s1", session.StaticConfig{}))); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	bus.apply(SubjectRemove, mustEvent(t, Event{ID: "s1", Origin: "node-b"}), m)

	if d, _ := m.Get(ctx, "s1"); d != nil {
		t.Fatal("session survived a peer remove event")
	}
}

func TestApplyInvalidate(t *testing.T) {
	bus := testBus(t)
	m := session.NewLocalMap()
	ctx := context.Background()

	d := session.NewData(session.NewRecord("s1", session.StaticConfig{Expiration: time.Hour}))
	if err := m.Insert(ctx, "s1", d); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	bus.apply(SubjectInvalidate, mustEvent(t, Event{ID: "s1", Origin: "node-b"}), m)

	if !d.Expired() {
		t.Fatal("session not expired after a peer invalidate event")
	}
	// Invalidation leaves the record in place for sweeps to collect.
	if got, _ := m.Get(ctx, "s1"); got == nil {
		t.Fatal("invalidate event removed the session")
	}
}

func TestApplyInvalidateUnknownID(t *testing.T) {
	bus := testBus(t)
	m := session.NewLocalMap()

	// Must not panic or insert anything.
	bus.apply(SubjectInvalidate, mustEvent(t, Event{ID: "absent", Origin: "node-b"}), m)

	if m.Count() != 0 {
		t.Fatalf("map holds %d sessions after an event for an unknown id", m.Count())
	}
}

func TestApplyClear(t *testing.T) {
	bus := testBus(t)
	m := session.NewLocalMap()
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		if err := m.Insert(ctx, id, session.NewData(session.NewRecord(id, session.StaticConfig{}))); err != nil {
			t.Fatalf("Insert(%s) error: %v", id, err)
		}
	}

	bus.apply(SubjectClear, mustEvent(t, Event{Origin: "node-b"}), m)

	if m.Count() != 0 {
		t.Fatalf("map holds %d sessions after a peer clear event", m.Count())
	}
}

func TestApplySkipsOwnEvents(t *testing.T) {
	bus := testBus(t)
	m := session.NewLocalMap()
	ctx := context.Background()

	if err := m.Insert(ctx, "s1", session.NewData(session.NewRecord("s1", session.StaticConfig{}))); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	// Same origin as the bus: the echo of its own publish.
	bus.apply(SubjectRemove, mustEvent(t, Event{ID: "s1", Origin: "node-a"}), m)

	if d, _ := m.Get(ctx, "s1"); d == nil {
		t.Fatal("bus applied its own echoed event")
	}
}

func TestApplyDropsMalformedPayload(t *testing.T) {
	bus := testBus(t)
	m := session.NewLocalMap()
	ctx := context.Background()

	if err := m.Insert(ctx, "s1", session.NewData(session.NewRecord("s1", session.StaticConfig{}))); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	bus.apply(SubjectRemove, []byte("{not json"), m)

	if d, _ := m.Get(ctx, "s1"); d == nil {
		t.Fatal("malformed event mutated the map")
	}
}

func TestDefaultBusConfig(t *testing.T) {
	cfg := DefaultBusConfig()

	if cfg.URL == "" {
		t.Fatal("default URL empty")
	}
	if cfg.MaxReconnects != -1 {
		t.Fatalf("MaxReconnects got %d, want -1", cfg.MaxReconnects)
	}
}
