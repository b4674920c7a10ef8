package instrument

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sessio-dev/sessio/pkg/session"
)

// faultMap fails every operation, for exercising the error status label.
type faultMap struct {
	err error
}

func (m faultMap) List(ctx context.Context) ([]*session.Data, error)             { return nil, m.err }
func (m faultMap) Get(ctx context.Context, id string) (*session.Data, error)     { return nil, m.err }
func (m faultMap) Insert(ctx context.Context, id string, d *session.Data) error  { return m.err }
func (m faultMap) Remove(ctx context.Context, id string) (bool, error)           { return false, m.err }
func (m faultMap) RemoveExpired(ctx context.Context) (int, error)                { return 0, m.err }
func (m faultMap) Clear(ctx context.Context) error                               { return m.err }

func newCountedMap(t *testing.T, next session.Map) (*metricsMap, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := Metrics(next, WithRegistry(reg)).(*metricsMap)
	return m, reg
}

func TestMetricsCountsOperations(t *testing.T) {
	m, _ := newCountedMap(t, session.NewLocalMap())
	ctx := context.Background()

	d := session.NewData(session.NewRecord("s1", session.StaticConfig{}))
	if err := m.Insert(ctx, "s1", d); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	if _, err := m.Get(ctx, "s1"); err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if _, err := m.Get(ctx, "s1"); err != nil {
		t.Fatalf("Get() error: %v", err)
	}

	if got := testutil.ToFloat64(m.ops.WithLabelValues("insert", "ok")); got != 1 {
		t.Errorf("insert/ok count got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ops.WithLabelValues("get", "ok")); got != 2 {
		t.Errorf("get/ok count got %v, want 2", got)
	}
}

func TestMetricsErrorStatus(t *testing.T) {
	m, _ := newCountedMap(t, faultMap{err: errors.New("backend down")})

	if _, err := m.Get(context.Background(), "s1"); err == nil {
		t.Fatal("Get() did not propagate the backend error")
	}
	if got := testutil.ToFloat64(m.ops.WithLabelValues("get", "error")); got != 1 {
		t.Errorf("get/error count got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ops.WithLabelValues("get", "ok")); got != 0 {
		t.Errorf("get/ok count got %v, want 0", got)
	}
}

func TestMetricsEvictionCounter(t *testing.T) {
	backend := session.NewLocalMap()
	m, _ := newCountedMap(t, backend)
	ctx := context.Background()

	d := session.NewData(session.NewRecord("s1", session.StaticConfig{Expiration: time.Hour}))
	if err := m.Insert(ctx, "s1", d); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	d.Invalidate()

	n, err := m.RemoveExpired(ctx)
	if err != nil {
		t.Fatalf("RemoveExpired() error: %v", err)
	}
	if n != 1 {
		t.Fatalf("RemoveExpired() got %d, want 1", n)
	}
	if got := testutil.ToFloat64(m.evicted); got != 1 {
		t.Errorf("evicted count got %v, want 1", got)
	}
}

func TestMetricsNamespaceAndLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := Metrics(session.NewLocalMap(),
		WithRegistry(reg),
		WithNamespace("app"),
		WithSubsystem("sessions"),
		WithConstLabels(prometheus.Labels{"node": "a"}),
	)

	if err := m.Clear(context.Background()); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	names, err := testutil.GatherAndCount(reg, "app_sessions_ops_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error: %v", err)
	}
	if names == 0 {
		t.Fatal("no app_sessions_ops_total series registered")
	}
}
