package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func cookieTestHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := FromRequest(r)
		if sess == nil {
			t.Fatal("FromRequest() returned nil inside the middleware")
		}
		err := sess.With(func(rec *Record) error {
			visits, _ := Attr[int](rec, "visits")
			rec.Set("visits", visits+1)
			return nil
		})
		if err != nil {
			t.Fatalf("With() error: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no %q cookie in response", name)
	return nil
}

func TestMiddlewareIssuesCookie(t *testing.T) {
	store := newTestStore(t, nil)
	handler := Middleware(store, CookieConfig{Expiration: time.Hour})(cookieTestHandler(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	c := sessionCookie(t, rec, DefaultCookieName)
	if c.Value == "" {
		t.Fatal("cookie issued without a session id")
	}
	if !c.HttpOnly {
		t.Fatal("cookie not HttpOnly")
	}
	if c.Path != "/" {
		t.Fatalf("cookie path got %q, want /", c.Path)
	}
	if c.Expires.IsZero() {
		t.Fatal("cookie has no Expires for a finite window")
	}

	d, err := store.GetData(context.Background(), c.Value)
	if err != nil {
		t.Fatalf("GetData() error: %v", err)
	}
	if d == nil {
		t.Fatal("session not persisted after the handler returned")
	}
}

func TestMiddlewareResumesSession(t *testing.T) {
	store := newTestStore(t, nil)
	handler := Middleware(store, CookieConfig{Expiration: time.Hour})(cookieTestHandler(t))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	c := sessionCookie(t, first, DefaultCookieName)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)

	if got := sessionCookie(t, second, DefaultCookieName); got.Value != c.Value {
		t.Fatalf("resumed request re-issued id %q, want %q", got.Value, c.Value)
	}

	d, err := store.GetData(context.Background(), c.Value)
	if err != nil || d == nil {
		t.Fatalf("GetData() got (%v, %v)", d, err)
	}
	_ = d.With(func(r *Record) error {
		if visits, _ := Attr[int](r, "visits"); visits != 2 {
			t.Fatalf("visits got %d after two requests, want 2", visits)
		}
		return nil
	})
}

func TestMiddlewareReplacesExpiredSession(t *testing.T) {
	store := newTestStore(t, nil)
	handler := Middleware(store, CookieConfig{Expiration: time.Hour})(cookieTestHandler(t))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	c := sessionCookie(t, first, DefaultCookieName)

	d, err := store.GetData(context.Background(), c.Value)
	if err != nil || d == nil {
		t.Fatalf("GetData() got (%v, %v)", d, err)
	}
	d.Invalidate()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)

	if got := sessionCookie(t, second, DefaultCookieName); got.Value == c.Value {
		t.Fatal("expired session id was reused")
	}
}

// A handler that ends the session (invalidate plus remove, the logout
// flow) must not have its removal undone by the middleware's write-back.
func TestMiddlewareLogoutRemovalSticks(t *testing.T) {
	store := newTestStore(t, nil)
	cfg := CookieConfig{Expiration: time.Hour}

	seed := Middleware(store, cfg)(cookieTestHandler(t))
	first := httptest.NewRecorder()
	seed.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	c := sessionCookie(t, first, DefaultCookieName)

	logout := Middleware(store, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := FromRequest(r)
		id := sess.Handle().ID()

		sess.Invalidate()
		ok, err := store.Remove(r.Context(), id)
		if err != nil || !ok {
			t.Fatalf("Remove() got (%v, %v), want (true, nil)", ok, err)
		}
		ClearCookie(w, cfg)
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	logout.ServeHTTP(httptest.NewRecorder(), req)

	d, err := store.GetData(context.Background(), c.Value)
	if err != nil {
		t.Fatalf("GetData() error: %v", err)
	}
	if d != nil {
		t.Fatal("removed session was re-inserted after the handler returned")
	}
}

func TestMiddlewareCustomConfig(t *testing.T) {
	store := newTestStore(t, nil)
	cfg := CookieConfig{
		Name:        "app_session",
		IDGenerator: func() string { return "fixed-id" },
	}
	handler := Middleware(store, cfg)(cookieTestHandler(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	c := sessionCookie(t, rec, "app_session")
	if c.Value != "fixed-id" {
		t.Fatalf("cookie value got %q, want the generated id", c.Value)
	}
	// Zero window: browser-session cookie, no Expires attribute.
	if !c.Expires.IsZero() {
		t.Fatalf("cookie Expires got %v, want unset", c.Expires)
	}
}

func TestClearCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	ClearCookie(rec, CookieConfig{})

	c := sessionCookie(t, rec, DefaultCookieName)
	if c.Value != "" {
		t.Fatalf("cleared cookie still carries value %q", c.Value)
	}
	if c.MaxAge != -1 {
		t.Fatalf("cleared cookie MaxAge got %d, want -1", c.MaxAge)
	}
}
