// Package seenn mirrors server-authoritative job state into a local,
// observable store for UI consumption. It maintains exactly one transport
// to the server — a push-based event stream or a pull-based poller — and
// reconciles the events it delivers into a consistent per-job view with
// last-value-wins semantics.
//
// # Quick Start
//
//	c, err := seenn.New("https://api.example.com",
//	    seenn.WithAPIKey("sk_..."),
//	)
//	if err != nil { ... }
//	defer c.Dispose()
//
//	cancel := c.SubscribeToJob("job-123", func(rec *job.Record) {
//	    // rec is nil until the first event for job-123, then the
//	    // last-known snapshot on every change.
//	})
//	defer cancel()
//
//	_ = c.Connect(ctx, "user-1")
//
// # Architecture
//
// Transport adapters (stream, poll) parse wire data into typed domain
// events; the client translates events into store mutations; the store
// fans changes out to subscribers with replay-on-subscribe semantics.
// Native notification surfaces attach at the notify.Sink boundary.
//
// The mirror is best-effort: it does not persist across restarts and does
// not guarantee exactly-once delivery. During outages, records stay at
// their last-known value and the connection-state subscription reports
// the outage.
package seenn
