package seenn

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/seenn-io/seenn-go/backoff"
	"github.com/seenn-io/seenn-go/job"
	"github.com/seenn-io/seenn-go/poll"
	"github.com/seenn-io/seenn-go/store"
	"github.com/seenn-io/seenn-go/stream"
	"github.com/seenn-io/seenn-go/transport"
)

// Client is the facade host code talks to. It binds exactly one transport
// adapter to the entity store per connection, translates adapter events
// into store mutations, and exposes a stable subscribe API independent of
// which transport is active.
type Client struct {
	cfg       Config
	logger    *slog.Logger
	httpc     *http.Client
	strategy  backoff.Strategy
	pollCodec poll.Codec
	onMessage func(transport.Event)
	onError   func(transport.ErrorInfo)

	st *store.Store

	mu       sync.Mutex
	tr       transport.Transport
	cancels  []func()
	userID   string
	disposed bool
}

// New creates a client for the given API origin.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	c := &Client{
		cfg:       DefaultConfig(),
		pollCodec: &poll.JSONCodec{},
	}
	c.cfg.BaseURL = baseURL
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		level := slog.LevelInfo
		if c.cfg.Debug {
			level = slog.LevelDebug
		}
		c.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	if c.strategy == nil {
		c.strategy = backoff.Default(c.cfg.ReconnectInterval)
	}

	c.st = store.New(c.logger)
	return c, nil
}

// Connect activates the configured transport for the given user. No-op if
// a transport is already active. Transport-level failures never return
// from Connect; they surface through the connection-state subscription
// and the error handler.
func (c *Client) Connect(ctx context.Context, userID string) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.tr != nil {
		c.mu.Unlock()
		return nil
	}

	tr, err := c.buildTransport()
	if err != nil {
		c.mu.Unlock()
		return err
	}

	// Register every listener before the adapter starts so no early
	// event is lost.
	cancels := []func(){
		tr.SubscribeState(c.st.SetConnectionState),
		tr.Subscribe(transport.EventChildProgress, c.handleChildProgress),
		tr.Subscribe(transport.EventInAppMessage, c.handleMessage),
		tr.Subscribe(transport.EventError, c.handleError),
	}
	for _, et := range transport.JobEventTypes {
		cancels = append(cancels, tr.Subscribe(et, c.handleJobEvent))
	}

	c.tr = tr
	c.cancels = cancels
	c.userID = userID
	c.mu.Unlock()

	return tr.Connect(ctx, userID)
}

// Disconnect tears down the active transport: every listener is removed
// before the adapter stops, so no event from a stale adapter can be
// processed after a subsequent Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	tr := c.tr
	cancels := c.cancels
	c.tr = nil
	c.cancels = nil
	c.mu.Unlock()

	if tr == nil {
		return
	}
	for _, cancel := range cancels {
		cancel()
	}
	tr.Reset()
	tr.Disconnect()
	c.st.SetConnectionState(transport.StateDisconnected)
}

// Reconnect fully tears down and re-establishes the connection with the
// remembered user id. Heavier than the stream's internal reconnect; meant
// for app-foreground recovery. No-op when no user id is known.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()
	if userID == "" {
		return nil
	}

	c.Disconnect()
	return c.Connect(ctx, userID)
}

// UpdateJob writes a record straight into the store, bypassing any
// transport. For optimistic or externally-sourced updates.
func (c *Client) UpdateJob(rec *job.Record) {
	c.st.UpsertJob(rec)
}

// SubscribeToJob observes one job. The callback fires synchronously with
// the current record (nil if none) and again on every change.
func (c *Client) SubscribeToJob(jobID string, fn store.JobCallback) (cancel func()) {
	return c.st.SubscribeJob(jobID, fn)
}

// SubscribeToAllJobs observes the whole table as cloned snapshots.
func (c *Client) SubscribeToAllJobs(fn store.AllJobsCallback) (cancel func()) {
	return c.st.SubscribeAllJobs(fn)
}

// SubscribeToConnectionState observes connection-state transitions.
func (c *Client) SubscribeToConnectionState(fn store.StateCallback) (cancel func()) {
	return c.st.SubscribeConnectionState(fn)
}

// GetJob returns the last-known record for a job, or nil.
func (c *Client) GetJob(jobID string) *job.Record { return c.st.GetJob(jobID) }

// GetAllJobs returns a snapshot of every mirrored job.
func (c *Client) GetAllJobs() map[string]*job.Record { return c.st.GetAllJobs() }

// GetConnectionState returns the current connection state.
func (c *Client) GetConnectionState() transport.State { return c.st.GetConnectionState() }

// Store exposes the underlying entity store, e.g. for attaching a
// notify.Bridge.
func (c *Client) Store() *store.Store { return c.st }

// Dispose disconnects and releases the store. The client is unusable
// afterward.
func (c *Client) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.mu.Unlock()

	c.Disconnect()
	c.st.Dispose()
}

// ── Polling-only surface ────────────────────────────

// SubscribeJobForPolling adds a job id to the polling set, fetching it
// once immediately.
func (c *Client) SubscribeJobForPolling(jobID string) error {
	p, err := c.pollingAdapter()
	if err != nil {
		return err
	}
	p.SubscribeJob(jobID)
	return nil
}

// SubscribeJobsForPolling adds several job ids to the polling set.
func (c *Client) SubscribeJobsForPolling(jobIDs []string) error {
	p, err := c.pollingAdapter()
	if err != nil {
		return err
	}
	p.SubscribeJobs(jobIDs)
	return nil
}

// UnsubscribeJobFromPolling removes a job id from the polling set.
func (c *Client) UnsubscribeJobFromPolling(jobID string) error {
	p, err := c.pollingAdapter()
	if err != nil {
		return err
	}
	p.UnsubscribeJob(jobID)
	return nil
}

// GetPollingSubscribedJobIDs returns the tracked polling ids in sorted
// order, or nil when polling is not the active transport.
func (c *Client) GetPollingSubscribedJobIDs() []string {
	p, err := c.pollingAdapter()
	if err != nil {
		return nil
	}
	return p.SubscribedJobIDs()
}

func (c *Client) pollingAdapter() (*poll.Adapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.tr.(*poll.Adapter); ok {
		return p, nil
	}
	return nil, ErrPollingOnly
}

// ── Event handlers ──────────────────────────────────

// handleJobEvent applies a full job snapshot to the store, regardless of
// which lifecycle event carried it.
func (c *Client) handleJobEvent(evt transport.Event) {
	rec, err := evt.JobRecord()
	if err != nil {
		c.logger.Warn("discarding undecodable job event",
			slog.String("type", string(evt.Type)),
			slog.String("error", err.Error()))
		return
	}
	if rec.JobID == "" {
		c.logger.Warn("discarding job event without id", slog.String("type", string(evt.Type)))
		return
	}
	c.st.UpsertJob(rec)
}

// handleChildProgress shallow-merges child-progress data onto the parent
// record. Events for unknown parents are dropped.
func (c *Client) handleChildProgress(evt transport.Event) {
	var ref struct {
		ParentJobID string `json:"parentJobId"`
	}
	if evt.Data == nil || json.Unmarshal(evt.Data, &ref) != nil || ref.ParentJobID == "" {
		c.logger.Warn("discarding malformed child-progress event")
		return
	}

	parent := c.st.GetJob(ref.ParentJobID)
	if parent == nil {
		c.logger.Debug("dropping child progress for unknown parent",
			slog.String("parent_job_id", ref.ParentJobID))
		return
	}

	merged, err := parent.MergeJSON(evt.Data)
	if err != nil {
		c.logger.Warn("child-progress merge failed",
			slog.String("parent_job_id", ref.ParentJobID),
			slog.String("error", err.Error()))
		return
	}
	c.st.UpsertJob(merged)
}

// handleMessage forwards in-app messages to the configured handler.
// Messages are not stored.
func (c *Client) handleMessage(evt transport.Event) {
	if c.onMessage != nil {
		c.onMessage(evt)
	}
}

func (c *Client) handleError(evt transport.Event) {
	info := evt.ErrorInfo()
	c.logger.Warn("transport error",
		slog.String("code", info.Code),
		slog.String("message", info.Message))
	if c.onError != nil {
		c.onError(info)
	}
}

// buildTransport constructs the configured adapter. Callers must hold mu.
func (c *Client) buildTransport() (transport.Transport, error) {
	switch c.cfg.Transport {
	case TransportStreaming:
		opts := []stream.Option{
			stream.WithLogger(c.logger),
			stream.WithReconnect(c.cfg.Reconnect, c.cfg.MaxReconnectAttempts, c.strategy),
			stream.WithHeartbeatTimeout(c.cfg.HeartbeatTimeout),
		}
		if c.cfg.APIKey != "" {
			opts = append(opts, stream.WithAPIKey(c.cfg.APIKey))
		}
		if c.httpc != nil {
			opts = append(opts, stream.WithHTTPClient(c.httpc))
		}
		return stream.New(c.cfg.streamURL(), opts...), nil

	case TransportPolling:
		opts := []poll.Option{
			poll.WithLogger(c.logger),
			poll.WithBasePath(c.cfg.BasePath),
			poll.WithInterval(c.cfg.PollInterval),
			poll.WithConcurrency(c.cfg.PollConcurrency),
			poll.WithCodec(c.pollCodec),
		}
		if c.cfg.APIKey != "" {
			opts = append(opts, poll.WithAPIKey(c.cfg.APIKey))
		}
		if c.cfg.PollRate > 0 {
			opts = append(opts, poll.WithRateLimit(c.cfg.PollRate))
		}
		if c.httpc != nil {
			opts = append(opts, poll.WithHTTPClient(c.httpc))
		}
		return poll.New(c.cfg.BaseURL, opts...), nil

	default:
		return nil, ErrUnknownTransport
	}
}
