package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sessio-dev/sessio/pkg/instrument"
	"github.com/sessio-dev/sessio/pkg/notify"
	"github.com/sessio-dev/sessio/pkg/session"
)

func serveCmd() *cobra.Command {
	var (
		backend       backendFlags
		addr          string
		cookieName    string
		natsURL       string
		nodeName      string
		sweepInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo session server",
		Long: `Serve runs an HTTP server demonstrating cookie sessions over the
configured backend, with Prometheus metrics on /metrics and a
websocket session monitor on /ws.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), backend, addr, cookieName, natsURL, nodeName, sweepInterval)
		},
	}

	backend.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&cookieName, "cookie-name", session.DefaultCookieName, "session cookie name")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS URL for invalidation fan-out (empty = disabled)")
	cmd.Flags().StringVar(&nodeName, "node-name", "sessio", "node name used as event origin on the bus")
	cmd.Flags().DurationVar(&sweepInterval, "sweep-interval", time.Minute, "background eviction sweep interval (0 = disabled)")
	return cmd
}

func runServe(ctx context.Context, backend backendFlags, addr, cookieName, natsURL, nodeName string, sweepInterval time.Duration) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	base, cleanup, err := backend.open(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	backed := instrument.Trace(instrument.Metrics(base))
	store := session.NewStore(backed,
		session.WithLogger(logger),
		session.WithSweepInterval(sweepInterval),
	)
	defer store.Close()

	var bus *notify.Bus
	if natsURL != "" {
		cfg := notify.DefaultBusConfig()
		cfg.URL = natsURL
		cfg.Name = nodeName
		cfg.Logger = logger
		bus, err = notify.Connect(cfg)
		if err != nil {
			return err
		}
		defer bus.Close()
		if err := bus.Listen(backed); err != nil {
			return err
		}
	}

	cookieCfg := session.CookieConfig{
		Name:       cookieName,
		Expiration: backend.ttl,
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(session.Middleware(store, cookieCfg))
		r.Get("/", handleHome)
		r.Post("/logout", handleLogout(store, bus, cookieCfg))
		r.Get("/sessions", handleSessions(store))
		r.Post("/sweep", handleSweep(store))
		r.Get("/ws", handleWS(logger))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "backend", backend.backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// sessionState is the JSON view of a session exposed by the demo routes.
type sessionState struct {
	ID           string    `json:"id"`
	Visits       int       `json:"visits"`
	Created      time.Time `json:"created"`
	LastAccessed time.Time `json:"last_accessed"`
	Expires      time.Time `json:"expires"`
	Attributes   int       `json:"attributes"`
}

func snapshotState(sess session.Session) (sessionState, error) {
	var state sessionState
	err := sess.With(func(rec *session.Record) error {
		visits, _ := session.Attr[int](rec, "visits")
		state = sessionState{
			ID:           rec.ID(),
			Visits:       visits,
			Created:      rec.CreationTime(),
			LastAccessed: rec.LastAccessed(),
			Expires:      rec.Expires(),
			Attributes:   rec.Len(),
		}
		return nil
	})
	return state, err
}

func handleHome(w http.ResponseWriter, r *http.Request) {
	sess := session.FromRequest(r)

	err := sess.With(func(rec *session.Record) error {
		visits, _ := session.Attr[int](rec, "visits")
		rec.Set("visits", visits+1)
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	state, _ := snapshotState(sess)
	writeJSON(w, state)
}

func handleLogout(store *session.Store, bus *notify.Bus, cfg session.CookieConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromRequest(r)
		id := sess.Handle().ID()

		sess.Invalidate()
		if _, err := store.Remove(r.Context(), id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if bus != nil {
			if err := bus.Remove(id); err != nil {
				slog.Default().Warn("failed to announce removal", "error", err)
			}
		}

		session.ClearCookie(w, cfg)
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSessions(store *session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handles, err := store.List(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		states := make([]sessionState, 0, len(handles))
		for _, d := range handles {
			state, err := snapshotState(wrapperFor(d))
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			states = append(states, state)
		}
		writeJSON(w, states)
	}
}

// wrapperFor binds a raw handle to a throwaway wrapper for scoped access.
func wrapperFor(d *session.Data) *session.CookieSession {
	sess := &session.CookieSession{}
	sess.Bind(d)
	return sess
}

func handleSweep(store *session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := store.RemoveExpired(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]int{"removed": n})
	}
}

// handleWS streams the session state over a websocket: every inbound
// message is answered with the current snapshot.
func handleWS(logger *slog.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromRequest(r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			state, err := snapshotState(sess)
			if err != nil {
				return
			}
			if err := conn.WriteJSON(state); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
