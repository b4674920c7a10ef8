// Package notify fans session invalidation out to peer nodes over NATS.
// Deployments that keep a LocalMap per node use it to stay coherent:
// when one node removes, invalidates, or clears sessions, its peers apply
// the same change to their own maps. Events are small JSON payloads on
// well-known subjects; there is no custom wire protocol.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sessio-dev/sessio/pkg/session"
)

// NATS subjects carrying session lifecycle events.
const (
	SubjectRemove     = "sessio.session.remove"
	SubjectInvalidate = "sessio.session.invalidate"
	SubjectClear      = "sessio.session.clear"
)

// applyTimeout bounds how long an inbound event may spend against the
// local map.
const applyTimeout = 5 * time.Second

// Event is the payload published for every lifecycle change.
type Event struct {
	// ID is the affected session id; empty for clear events.
	ID string `json:"id,omitempty"`

	// Origin identifies the publishing node so it can skip its own
	// events when they echo back.
	Origin string `json:"origin,omitempty"`
}

// BusConfig holds NATS connection settings.
type BusConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // node name; also the event origin
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
	Logger        *slog.Logger
}

// DefaultBusConfig returns sensible defaults.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		URL:           nats.DefaultURL,
		Name:          "sessio",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Bus publishes and applies session lifecycle events.
type Bus struct {
	conn   *nats.Conn
	name   string
	logger *slog.Logger
	owned  bool // whether Close should close the connection

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect dials NATS with the given config and returns a ready bus.
func Connect(cfg BusConfig) (*Bus, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session_notify")

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: nats connect: %w", err)
	}
	logger.Info("nats connected", "url", nc.ConnectedUrl())

	bus := NewBus(nc, cfg.Name, logger)
	bus.owned = true
	return bus, nil
}

// NewBus wraps an existing connection. Close leaves the connection open
// in this case, since it may be shared.
func NewBus(conn *nats.Conn, name string, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		conn:   conn,
		name:   name,
		logger: logger.With("component", "session_notify"),
	}
}

func (b *Bus) publish(subject string, ev Event) error {
	ev.Origin = b.name
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("notify: publish %s: %w", subject, err)
	}
	return nil
}

// Remove announces that the session under id was removed.
func (b *Bus) Remove(id string) error {
	return b.publish(SubjectRemove, Event{ID: id})
}

// Invalidate announces that the session under id was invalidated.
func (b *Bus) Invalidate(id string) error {
	return b.publish(SubjectInvalidate, Event{ID: id})
}

// Clear announces that the whole store was cleared.
func (b *Bus) Clear() error {
	return b.publish(SubjectClear, Event{})
}

// Listen subscribes to all lifecycle subjects and applies peer events to
// the given map. Events published by this bus itself are skipped when
// they echo back.
func (b *Bus) Listen(m session.Map) error {
	for _, subject := range []string{SubjectRemove, SubjectInvalidate, SubjectClear} {
		subject := subject
		sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
			b.apply(subject, msg.Data, m)
		})
		if err != nil {
			return fmt.Errorf("notify: subscribe %s: %w", subject, err)
		}
		b.mu.Lock()
		b.subs = append(b.subs, sub)
		b.mu.Unlock()
	}
	return nil
}

// apply handles one inbound event against the local map.
func (b *Bus) apply(subject string, data []byte, m session.Map) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		b.logger.Warn("dropping malformed event", "subject", subject, "error", err)
		return
	}
	if ev.Origin == b.name {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()

	var err error
	switch subject {
	case SubjectRemove:
		_, err = m.Remove(ctx, ev.ID)
	case SubjectInvalidate:
		var d *session.Data
		if d, err = m.Get(ctx, ev.ID); err == nil && d != nil {
			d.Invalidate()
		}
	case SubjectClear:
		err = m.Clear(ctx)
	}
	if err != nil {
		b.logger.Warn("failed to apply event", "subject", subject, "session_id", ev.ID, "error", err)
		return
	}
	b.logger.Debug("applied event", "subject", subject, "session_id", ev.ID, "origin", ev.Origin)
}

// Close unsubscribes from all subjects and, for connections dialed by
// Connect, closes the connection.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	if b.owned && b.conn != nil {
		b.conn.Close()
	}
}
