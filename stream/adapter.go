// Package stream implements the push-based transport adapter: a long-lived
// chunked HTTP GET whose body is parsed incrementally into named frames.
// The adapter tracks a resume cursor, watches liveness with a heartbeat
// watchdog, and reconnects with exponential backoff when the stream drops.
package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seenn-io/seenn-go/backoff"
	"github.com/seenn-io/seenn-go/transport"
)

// DefaultHeartbeatTimeout is how long the adapter tolerates a silent
// stream before treating the connection as stalled. Any frame, including
// dedicated heartbeats, resets the clock.
const DefaultHeartbeatTimeout = 30 * time.Second

// Adapter is the streaming transport. It implements transport.Transport.
type Adapter struct {
	*transport.Hub

	url              string
	apiKey           string
	httpc            *http.Client
	logger           *slog.Logger
	retry            bool
	maxAttempts      int
	strategy         backoff.Strategy
	heartbeatTimeout time.Duration

	// active gates every emission and timer callback: some timer/abort
	// APIs cannot guarantee immediate cancellation, so late callbacks
	// check it before touching anything.
	active atomic.Bool

	mu          sync.Mutex
	userID      string
	cursor      string
	attempts    int
	lifeCtx     context.Context
	lifeStop    context.CancelFunc
	attemptStop context.CancelFunc
	heartbeat   *time.Timer
	retryTimer  *time.Timer
}

var _ transport.Transport = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithAPIKey sets the bearer token sent on the connection request.
func WithAPIKey(key string) Option {
	return func(a *Adapter) { a.apiKey = key }
}

// WithHTTPClient sets the HTTP client used to open the stream. The
// default client has no timeout, as required for a long-lived body.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.httpc = c }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithReconnect configures the retry policy: whether to retry at all, the
// maximum number of attempts, and the delay strategy.
func WithReconnect(enabled bool, maxAttempts int, strategy backoff.Strategy) Option {
	return func(a *Adapter) {
		a.retry = enabled
		a.maxAttempts = maxAttempts
		a.strategy = strategy
	}
}

// WithHeartbeatTimeout overrides the stall watchdog interval.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.heartbeatTimeout = d }
}

// New creates a streaming adapter for the given stream URL.
func New(streamURL string, opts ...Option) *Adapter {
	a := &Adapter{
		Hub:              transport.NewHub(),
		url:              streamURL,
		httpc:            &http.Client{},
		logger:           slog.Default(),
		retry:            true,
		maxAttempts:      10,
		strategy:         backoff.Default(time.Second),
		heartbeatTimeout: DefaultHeartbeatTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Connect opens the stream for the given user. No-op if already
// connecting or connected. Transport failures never return from Connect;
// they surface as error events and drive the reconnect state machine.
func (a *Adapter) Connect(ctx context.Context, userID string) error {
	switch a.State() {
	case transport.StateConnecting, transport.StateConnected:
		return nil
	}

	// Connect during a backoff wait supersedes the scheduled retry:
	// the armed timer and any prior contexts must go, or the stale
	// retry would open a second concurrent stream.
	a.mu.Lock()
	a.stopTimersLocked()
	if a.attemptStop != nil {
		a.attemptStop()
		a.attemptStop = nil
	}
	if a.lifeStop != nil {
		a.lifeStop()
	}
	a.userID = userID
	a.attempts = 0
	a.lifeCtx, a.lifeStop = context.WithCancel(ctx)
	a.mu.Unlock()

	a.active.Store(true)
	a.SetState(transport.StateConnecting)

	go a.open()
	return nil
}

// Disconnect disables auto-retry, aborts the in-flight transport, clears
// all timers, and transitions to disconnected. Safe at any time,
// including mid-parse or mid-backoff-wait.
func (a *Adapter) Disconnect() {
	a.active.Store(false)

	a.mu.Lock()
	if a.lifeStop != nil {
		a.lifeStop()
		a.lifeStop = nil
	}
	if a.attemptStop != nil {
		a.attemptStop()
		a.attemptStop = nil
	}
	a.stopTimersLocked()
	a.mu.Unlock()

	a.SetState(transport.StateDisconnected)
}

// Cursor returns the current resume cursor.
func (a *Adapter) Cursor() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursor
}

// open performs one connection attempt and runs the read loop until the
// stream ends. It is the only goroutine touching the response body.
func (a *Adapter) open() {
	a.mu.Lock()
	if a.lifeCtx == nil {
		a.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(a.lifeCtx)
	if a.attemptStop != nil {
		a.attemptStop()
	}
	a.attemptStop = cancel
	reqURL := a.buildURL()
	a.mu.Unlock()

	if !a.active.Load() {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		a.emitError(transport.ErrCodeConnection, fmt.Sprintf("build stream request: %v", err))
		a.scheduleReconnect()
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpc.Do(req)
	if err != nil {
		if !a.active.Load() {
			return
		}
		a.emitError(transport.ErrCodeNetwork, fmt.Sprintf("open stream: %v", err))
		a.scheduleReconnect()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse
		if !a.active.Load() {
			return
		}
		code := transport.ErrCodeConnection
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			code = transport.ErrCodeAuth
		}
		a.emitError(code, fmt.Sprintf("stream returned status %d", resp.StatusCode))
		a.scheduleReconnect()
		return
	}

	// Response headers are in: the stream is live.
	a.mu.Lock()
	a.attempts = 0
	a.mu.Unlock()
	a.SetState(transport.StateConnected)
	a.logger.Debug("stream connected", slog.String("url", a.url))
	a.armWatchdog()

	a.readLoop(resp.Body)
}

// readLoop feeds body chunks through the parser and dispatches completed
// frames. Only newly received bytes are parsed; partial frames stay in
// the parser buffer.
func (a *Adapter) readLoop(body io.Reader) {
	parser := NewParser()
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, frame := range parser.Feed(buf[:n]) {
				if !a.active.Load() {
					return
				}
				a.handleFrame(frame)
			}
		}
		if err != nil {
			break
		}
	}

	if !a.active.Load() {
		return
	}
	a.logger.Debug("stream closed by peer")
	a.scheduleReconnect()
}

// handleFrame resets the watchdog, advances the resume cursor, and emits
// the frame as a domain event.
func (a *Adapter) handleFrame(f Frame) {
	a.mu.Lock()
	if f.ID != "" {
		a.cursor = f.ID
	}
	if a.heartbeat != nil {
		a.heartbeat.Reset(a.heartbeatTimeout)
	}
	cursor := a.cursor
	a.mu.Unlock()

	evtType := transport.EventType(f.Event)
	switch evtType {
	case transport.EventHeartbeat, transport.EventConnectionIdle:
		// Liveness only; the watchdog reset above is their entire effect.
		return
	}

	a.Emit(transport.Event{
		Type:      evtType,
		Data:      f.Data,
		Raw:       f.Raw,
		Cursor:    cursor,
		Timestamp: time.Now().UTC(),
	})

	// A server-sent error frame tears the connection down and retries.
	if evtType == transport.EventError {
		a.mu.Lock()
		if a.attemptStop != nil {
			a.attemptStop()
		}
		a.mu.Unlock()
	}
}

// armWatchdog starts the heartbeat timer. If no frame arrives within the
// timeout the connection is treated as stalled: the transport is torn
// down and the reconnect path runs as if the stream had closed.
func (a *Adapter) armWatchdog() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.heartbeat != nil {
		a.heartbeat.Stop()
	}
	a.heartbeat = time.AfterFunc(a.heartbeatTimeout, func() {
		if !a.active.Load() {
			return
		}
		a.logger.Warn("stream stalled, no frame within heartbeat window",
			slog.Duration("timeout", a.heartbeatTimeout))
		a.mu.Lock()
		if a.attemptStop != nil {
			a.attemptStop()
		}
		a.mu.Unlock()
		// Aborting the request makes readLoop's Read fail, which drives
		// scheduleReconnect. No separate path needed.
	})
}

// scheduleReconnect runs the retry state machine: increments the attempt
// counter, transitions to reconnecting, and arms the backoff timer.
// Exceeding the limit (or retry being disabled) lands in disconnected.
func (a *Adapter) scheduleReconnect() {
	if !a.active.Load() {
		return
	}

	a.mu.Lock()
	a.stopTimersLocked()
	if !a.retry || a.attempts >= a.maxAttempts {
		exhausted := a.retry
		a.mu.Unlock()
		if exhausted {
			a.logger.Error("stream reconnect attempts exhausted",
				slog.Int("max_attempts", a.maxAttempts))
		}
		a.active.Store(false)
		a.SetState(transport.StateDisconnected)
		return
	}
	a.attempts++
	delay := a.strategy.Delay(a.attempts)
	attempt := a.attempts
	a.mu.Unlock()

	a.logger.Info("stream reconnecting",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))
	a.SetState(transport.StateReconnecting)

	a.mu.Lock()
	if a.active.Load() {
		a.retryTimer = time.AfterFunc(delay, func() {
			if !a.active.Load() {
				return
			}
			a.open()
		})
	}
	a.mu.Unlock()
}

// buildURL attaches userId and, when a cursor exists, lastEventId query
// parameters. Callers must hold mu.
func (a *Adapter) buildURL() string {
	q := url.Values{}
	q.Set("userId", a.userID)
	if a.cursor != "" {
		q.Set("lastEventId", a.cursor)
	}
	sep := "?"
	if strings.Contains(a.url, "?") {
		sep = "&"
	}
	return a.url + sep + q.Encode()
}

func (a *Adapter) emitError(code, message string) {
	if !a.active.Load() {
		return
	}
	a.logger.Warn("stream error", slog.String("code", code), slog.String("message", message))
	a.Emit(transport.ErrorEvent(code, message))
}

// stopTimersLocked stops the watchdog and retry timers. Callers must hold
// mu.
func (a *Adapter) stopTimersLocked() {
	if a.heartbeat != nil {
		a.heartbeat.Stop()
		a.heartbeat = nil
	}
	if a.retryTimer != nil {
		a.retryTimer.Stop()
		a.retryTimer = nil
	}
}
