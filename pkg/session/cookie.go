package session

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultCookieName is the session cookie name used when CookieConfig
// does not set one.
const DefaultCookieName = "session"

// CookieConfig is the Config for cookie-issued sessions, plus the cookie
// attributes the middleware writes.
type CookieConfig struct {
	// Name is the cookie name. Default: "session".
	Name string

	// Expiration is the sliding expiration window. Zero means sessions
	// never expire by time; the cookie is then issued without an Expires
	// attribute and lives for the browser session.
	Expiration time.Duration

	// IDGenerator overrides the default UUIDv4 generator.
	IDGenerator func() string

	// Cookie attributes.
	Path     string // default "/"
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// ExpireAfter returns the configured sliding window.
func (c CookieConfig) ExpireAfter() time.Duration {
	return c.Expiration
}

// GenerateID returns a new session identifier.
func (c CookieConfig) GenerateID() string {
	if c.IDGenerator != nil {
		return c.IDGenerator()
	}
	return uuid.NewString()
}

// normalize applies safe defaults without breaking callers.
func (c CookieConfig) normalize() CookieConfig {
	if c.Name == "" {
		c.Name = DefaultCookieName
	}
	if c.Path == "" {
		c.Path = "/"
	}
	return c
}

// CookieSession is the cookie-backed caller-facing wrapper. It satisfies
// Wrapper, so it crosses the store boundary through Get and Put; holders
// reach the record only through With.
type CookieSession struct {
	data *Data
}

// Bind adopts a handle fetched from a backend.
func (s *CookieSession) Bind(d *Data) { s.data = d }

// Handle returns the bound handle, or nil.
func (s *CookieSession) Handle() *Data { return s.data }

// With runs fn with exclusive access to the session record.
func (s *CookieSession) With(fn func(*Record) error) error {
	if s.data == nil {
		return ErrNoHandle
	}
	return s.data.With(fn)
}

// Invalidate forces the session to immediate expiry.
func (s *CookieSession) Invalidate() {
	if s.data != nil {
		s.data.Invalidate()
	}
}

type cookieSessionKey struct{}

// FromRequest returns the CookieSession attached by Middleware, or nil
// when the request did not pass through it.
func FromRequest(r *http.Request) *CookieSession {
	s, _ := r.Context().Value(cookieSessionKey{}).(*CookieSession)
	return s
}

// Middleware returns net/http middleware that attaches a CookieSession to
// every request. A valid session cookie resumes the stored session; a
// missing, unknown, or expired one yields a fresh session and a new
// cookie. Resumed sessions are touched before the handler runs, and the
// session is re-inserted after it returns so attribute changes reach
// remote backends too. Sessions the handler invalidated are not written
// back, so an in-handler logout sticks.
func Middleware(store *Store, config CookieConfig) func(http.Handler) http.Handler {
	config = config.normalize()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var sess *CookieSession
			if c, err := r.Cookie(config.Name); err == nil && c.Value != "" {
				sess, err = Get[CookieSession](ctx, store, c.Value)
				if err != nil {
					http.Error(w, "session store unavailable", http.StatusInternalServerError)
					return
				}
			}

			if sess == nil {
				sess = &CookieSession{}
				sess.Bind(NewData(NewRecord(config.GenerateID(), config)))
			} else {
				sess.data.Touch()
			}

			SetCookie(w, config, sess.data.ID(), sess.data.Expires())
			ctx = context.WithValue(ctx, cookieSessionKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))

			// A handler that invalidated the session (logout) ended it;
			// writing the expired record back would resurrect it in the
			// store until the next sweep.
			if sess.data.Expired() {
				return
			}

			// Persist even when the handler canceled the request context.
			if err := Put(context.WithoutCancel(r.Context()), store, sess.data.ID(), sess); err != nil {
				store.logger.Warn("failed to persist session", "error", err)
			}
		})
	}
}

// SetCookie issues the session cookie. A zero expiry produces a cookie
// without an Expires attribute.
func SetCookie(w http.ResponseWriter, config CookieConfig, id string, expires time.Time) {
	config = config.normalize()

	cookie := &http.Cookie{
		Name:     config.Name,
		Value:    id,
		Path:     config.Path,
		Domain:   config.Domain,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: config.SameSite,
	}
	if !expires.IsZero() {
		cookie.Expires = expires
	}
	http.SetCookie(w, cookie)
}

// ClearCookie removes the session cookie from the client.
func ClearCookie(w http.ResponseWriter, config CookieConfig) {
	config = config.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     config.Name,
		Value:    "",
		Path:     config.Path,
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: config.SameSite,
	})
}
