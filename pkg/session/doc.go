// Package session provides a concurrent, pluggable server-side session
// store: short-lived per-client records keyed by an opaque identifier,
// with expiration, explicit invalidation, and a type-erased attribute bag.
//
// # Records and handles
//
// A Record holds one session's identity, timestamps, and attributes. It is
// never touched directly; every holder shares a *Data handle and reaches
// the record through scoped access:
//
//	err := data.With(func(r *session.Record) error {
//	    r.Set("user", "alice")
//	    return nil
//	})
//	name, ok := session.Attr[string](r, "user") // inside With
//
// # Backends
//
// The Map interface is the storage contract. LocalMap is the in-memory
// reference backend; RedisMap and SQLMap persist gob-encoded records to
// shared stores for multi-server deployments:
//
//	store := session.NewStore(nil) // LocalMap by default
//	// or
//	store := session.NewStore(session.NewRedisMap(rdb, cfg))
//	// or
//	store := session.NewStore(session.NewSQLMap(db, cfg))
//
// # The generic boundary
//
// Transport-specific wrapper types (cookie, header, URL token) implement
// Wrapper and cross the store boundary through Get and Put, so one store
// serves any number of transports without knowing about them:
//
//	sess, err := session.Get[session.CookieSession](ctx, store, id)
//
// CookieSession plus Middleware is the reference consumer for net/http
// servers.
package session
