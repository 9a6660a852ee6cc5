// Package poll implements the pull-based transport adapter: a recurring
// timer fetches a point-in-time snapshot for every subscribed job id and
// synthesizes the same lifecycle events the streaming transport delivers,
// so the orchestrator applies one handler set regardless of transport.
package poll

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/seenn-io/seenn-go/job"
	"github.com/seenn-io/seenn-go/transport"
)

// DefaultInterval is the default poll cadence.
const DefaultInterval = 3 * time.Second

// Adapter is the polling transport. It implements transport.Transport.
type Adapter struct {
	*transport.Hub

	baseURL     string
	basePath    string
	apiKey      string
	interval    time.Duration
	concurrency int
	codec       Codec
	limiter     *rate.Limiter
	httpc       *http.Client
	logger      *slog.Logger

	active atomic.Bool

	mu     sync.Mutex
	ids    map[string]struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

var _ transport.Transport = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithAPIKey sets the bearer token sent on snapshot requests.
func WithAPIKey(key string) Option {
	return func(a *Adapter) { a.apiKey = key }
}

// WithBasePath overrides the API base path (default "/v1").
func WithBasePath(p string) Option {
	return func(a *Adapter) { a.basePath = p }
}

// WithInterval sets the poll cadence.
func WithInterval(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithConcurrency bounds how many snapshot fetches run at once within a
// poll pass. The default of 1 keeps passes strictly sequential, which
// also fixes delivery order.
func WithConcurrency(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithCodec sets the snapshot decode format.
func WithCodec(c Codec) Option {
	return func(a *Adapter) { a.codec = c }
}

// WithRateLimit caps snapshot requests per second across all tracked ids.
// Zero means unlimited.
func WithRateLimit(rps float64) Option {
	return func(a *Adapter) {
		if rps > 0 {
			a.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithHTTPClient sets the HTTP client used for snapshot fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.httpc = c }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// New creates a polling adapter against the given base URL.
func New(baseURL string, opts ...Option) *Adapter {
	a := &Adapter{
		Hub:         transport.NewHub(),
		baseURL:     baseURL,
		basePath:    "/v1",
		interval:    DefaultInterval,
		concurrency: 1,
		codec:       &JSONCodec{},
		httpc:       &http.Client{Timeout: 15 * time.Second},
		logger:      slog.Default(),
		ids:         make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Connect transitions directly to connected (there is no handshake),
// performs one immediate poll pass, and starts the interval timer.
func (a *Adapter) Connect(ctx context.Context, _ string) error {
	if a.active.Load() {
		return nil
	}

	a.mu.Lock()
	a.ctx, a.cancel = context.WithCancel(ctx)
	loopCtx := a.ctx
	a.mu.Unlock()

	a.active.Store(true)
	a.SetState(transport.StateConnected)

	go a.loop(loopCtx)
	return nil
}

// Disconnect stops the timer and transitions to disconnected. The tracked
// id set is deliberately kept, so it remains inspectable and a later
// Connect resumes polling the same ids.
func (a *Adapter) Disconnect() {
	a.active.Store(false)

	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.mu.Unlock()

	a.SetState(transport.StateDisconnected)
}

// SubscribeJob adds a job id to the tracked set and fetches it once
// immediately, without waiting for the next tick.
func (a *Adapter) SubscribeJob(jobID string) {
	if jobID == "" {
		return
	}

	a.mu.Lock()
	a.ids[jobID] = struct{}{}
	ctx := a.ctx
	a.mu.Unlock()

	if a.active.Load() && ctx != nil {
		a.refresh(ctx, jobID)
	}
}

// SubscribeJobs adds several job ids, each fetched once immediately.
func (a *Adapter) SubscribeJobs(jobIDs []string) {
	for _, id := range jobIDs {
		a.SubscribeJob(id)
	}
}

// UnsubscribeJob removes a job id from the tracked set. An in-flight
// fetch for the id is not cancelled; its result may still be emitted.
func (a *Adapter) UnsubscribeJob(jobID string) {
	a.mu.Lock()
	delete(a.ids, jobID)
	a.mu.Unlock()
}

// SubscribedJobIDs returns the tracked ids in sorted order.
func (a *Adapter) SubscribedJobIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.ids))
	for id := range a.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// loop runs one immediate pass, then one per interval tick until the
// adapter is disconnected.
func (a *Adapter) loop(ctx context.Context) {
	a.pass(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.active.Load() {
				return
			}
			a.pass(ctx)
		}
	}
}

// pass fetches every tracked id's snapshot, in sorted order. Per-id
// failures are logged and do not abort the pass for the remaining ids.
// With concurrency 1 (the default) fetches are strictly sequential.
func (a *Adapter) pass(ctx context.Context) {
	ids := a.SubscribedJobIDs()
	if len(ids) == 0 {
		return
	}

	if a.concurrency <= 1 {
		for _, id := range ids {
			if ctx.Err() != nil {
				return
			}
			a.refresh(ctx, id)
		}
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			a.refresh(gctx, id)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // fetch errors are handled per id
}

// refresh fetches one job snapshot and emits the matching synthetic
// event. Terminal statuses and not-found responses remove the id from the
// tracked set.
func (a *Adapter) refresh(ctx context.Context, jobID string) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return
		}
	}

	rec, status, err := a.fetch(ctx, jobID)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Warn("poll fetch failed",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()))
		}
		return
	}

	if status == http.StatusNotFound {
		// Job no longer exists on the server; stop polling it.
		a.logger.Debug("job gone, unsubscribing", slog.String("job_id", jobID))
		a.UnsubscribeJob(jobID)
		return
	}

	if !a.active.Load() {
		return
	}

	a.Emit(transport.Event{
		Type:      eventForStatus(rec.Status),
		Record:    rec,
		Timestamp: time.Now().UTC(),
	})

	if rec.Status.Terminal() {
		a.UnsubscribeJob(jobID)
	}
}

// fetch performs the snapshot GET. It returns the HTTP status so the
// caller can distinguish not-found from other failures; non-2xx statuses
// other than 404 are returned as errors.
func (a *Adapter) fetch(ctx context.Context, jobID string) (*job.Record, int, error) {
	url := a.baseURL + a.basePath + "/jobs/" + jobID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build snapshot request: %w", err)
	}
	req.Header.Set("Accept", a.codec.ContentType())
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil, http.StatusNotFound, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, fmt.Errorf("snapshot returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read snapshot body: %w", err)
	}

	var rec job.Record
	if err := a.codec.Decode(body, &rec); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode %s snapshot: %w", a.codec.Name(), err)
	}
	if rec.JobID == "" {
		rec.JobID = jobID
	}
	return &rec, resp.StatusCode, nil
}

// eventForStatus maps a snapshot's status to the synthetic lifecycle
// event name, so snapshots and stream frames hit the same orchestrator
// handlers.
func eventForStatus(s job.Status) transport.EventType {
	switch s {
	case job.StatusCompleted:
		return transport.EventJobCompleted
	case job.StatusFailed:
		return transport.EventJobFailed
	case job.StatusCancelled:
		return transport.EventJobCancelled
	case job.StatusRunning:
		return transport.EventJobProgress
	case job.StatusPending, job.StatusQueued:
		return transport.EventJobStarted
	default:
		return transport.EventJobProgress
	}
}
