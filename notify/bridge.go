package notify

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/seenn-io/seenn-go/job"
	"github.com/seenn-io/seenn-go/store"
)

// Bridge projects store-derived job snapshots onto a Sink. It subscribes
// to the whole table and issues Start on a job's first appearance, Update
// on non-terminal changes, End on completed/failed, and Cancel on
// cancelled. Updates that don't change the record since the last
// projection are skipped.
type Bridge struct {
	sink   Sink
	st     *store.Store
	logger *slog.Logger

	mu      sync.Mutex
	cancel  func()
	lastSeq map[string]string // jobID → fingerprint of last projected snapshot
}

// NewBridge creates a bridge between the store and the sink. Call Start
// to begin projecting.
func NewBridge(st *store.Store, sink Sink, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		sink:    sink,
		st:      st,
		logger:  logger,
		lastSeq: make(map[string]string),
	}
}

// Start subscribes to the store. The current table snapshot is projected
// immediately (replay-on-subscribe), so a bridge attached late still
// mirrors every live job.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	if b.cancel != nil {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	cancel := b.st.SubscribeAllJobs(func(all map[string]*job.Record) {
		b.project(ctx, all)
	})

	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
}

// Stop unsubscribes from the store. Surfaces already shown are left as
// they are; stopping the bridge must not dismiss the user's notifications.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// project reconciles one table snapshot against the surfaces already
// shown.
func (b *Bridge) project(ctx context.Context, all map[string]*job.Record) {
	for id, rec := range all {
		if err := ValidateRecord(rec); err != nil {
			b.logger.Warn("skipping invalid record", slog.String("job_id", id), slog.String("error", err.Error()))
			continue
		}

		fp := fingerprint(rec)
		b.mu.Lock()
		prev, known := b.lastSeq[id]
		if known && prev == fp {
			b.mu.Unlock()
			continue
		}
		b.lastSeq[id] = fp
		b.mu.Unlock()

		var err error
		switch {
		case rec.Status == job.StatusCancelled:
			err = b.sink.Cancel(ctx, id)
		case rec.Status.Terminal():
			err = b.sink.End(ctx, id, rec)
		case !known:
			err = b.sink.Start(ctx, rec)
		default:
			err = b.sink.Update(ctx, rec)
		}
		if err != nil {
			b.logger.Warn("notification sink call failed",
				slog.String("job_id", id),
				slog.String("error", err.Error()))
		}
	}

	// Drop bookkeeping for jobs removed from the table so a reused
	// surface starts fresh.
	b.mu.Lock()
	for id := range b.lastSeq {
		if _, ok := all[id]; !ok {
			delete(b.lastSeq, id)
		}
	}
	b.mu.Unlock()
}

// fingerprint summarizes the fields a surface renders; matching
// fingerprints mean the update would be a visual no-op.
func fingerprint(rec *job.Record) string {
	return string(rec.Status) + "|" + rec.Title + "|" + rec.Message + "|" + strconv.Itoa(rec.Progress)
}
