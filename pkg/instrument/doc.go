// Package instrument provides observability decorators for session map
// backends: Prometheus metrics and OpenTelemetry tracing. Decorators wrap
// any session.Map and are stack-composable:
//
//	backend := instrument.Trace(instrument.Metrics(session.NewLocalMap()))
//	store := session.NewStore(backend)
package instrument
