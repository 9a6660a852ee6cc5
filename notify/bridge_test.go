package notify

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/seenn-io/seenn-go/job"
	"github.com/seenn-io/seenn-go/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type call struct {
	op    string
	jobID string
}

type recordingSink struct {
	mu    sync.Mutex
	calls []call
}

func (s *recordingSink) record(op, id string) {
	s.mu.Lock()
	s.calls = append(s.calls, call{op: op, jobID: id})
	s.mu.Unlock()
}

func (s *recordingSink) Start(_ context.Context, rec *job.Record) error {
	s.record("start", rec.JobID)
	return nil
}

func (s *recordingSink) Update(_ context.Context, rec *job.Record) error {
	s.record("update", rec.JobID)
	return nil
}

func (s *recordingSink) End(_ context.Context, jobID string, _ *job.Record) error {
	s.record("end", jobID)
	return nil
}

func (s *recordingSink) Cancel(_ context.Context, jobID string) error {
	s.record("cancel", jobID)
	return nil
}

func (s *recordingSink) snapshot() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]call, len(s.calls))
	copy(out, s.calls)
	return out
}

func TestBridgeLifecycleProjection(t *testing.T) {
	t.Parallel()

	st := store.New(testLogger())
	sink := &recordingSink{}
	b := NewBridge(st, sink, testLogger())
	b.Start(context.Background())
	defer b.Stop()

	st.UpsertJob(&job.Record{JobID: "j1", Status: job.StatusRunning, Progress: 10})
	st.UpsertJob(&job.Record{JobID: "j1", Status: job.StatusRunning, Progress: 60})
	st.UpsertJob(&job.Record{JobID: "j1", Status: job.StatusCompleted, Progress: 100})

	calls := sink.snapshot()
	if len(calls) != 3 {
		t.Fatalf("calls = %v, want start/update/end", calls)
	}
	if calls[0].op != "start" || calls[1].op != "update" || calls[2].op != "end" {
		t.Errorf("ops = %v", calls)
	}
}

func TestBridgeCancelledMapsToCancel(t *testing.T) {
	t.Parallel()

	st := store.New(testLogger())
	sink := &recordingSink{}
	b := NewBridge(st, sink, testLogger())
	b.Start(context.Background())
	defer b.Stop()

	st.UpsertJob(&job.Record{JobID: "j1", Status: job.StatusRunning, Progress: 30})
	st.UpsertJob(&job.Record{JobID: "j1", Status: job.StatusCancelled, Progress: 30})

	calls := sink.snapshot()
	if len(calls) != 2 || calls[1].op != "cancel" {
		t.Errorf("calls = %v, want cancel last", calls)
	}
}

func TestBridgeDeduplicatesUnchangedSnapshots(t *testing.T) {
	t.Parallel()

	st := store.New(testLogger())
	sink := &recordingSink{}
	b := NewBridge(st, sink, testLogger())
	b.Start(context.Background())
	defer b.Stop()

	rec := &job.Record{JobID: "j1", Status: job.StatusRunning, Progress: 10}
	st.UpsertJob(rec)
	// Unrelated job publishes a new table snapshot; j1 is unchanged and
	// must not be re-projected.
	st.UpsertJob(&job.Record{JobID: "j2", Status: job.StatusRunning, Progress: 5})

	var j1Calls int
	for _, c := range sink.snapshot() {
		if c.jobID == "j1" {
			j1Calls++
		}
	}
	if j1Calls != 1 {
		t.Errorf("j1 projected %d times, want 1", j1Calls)
	}
}

func TestBridgeReplaysExistingJobsOnStart(t *testing.T) {
	t.Parallel()

	st := store.New(testLogger())
	st.UpsertJob(&job.Record{JobID: "early", Status: job.StatusRunning, Progress: 50})

	sink := &recordingSink{}
	b := NewBridge(st, sink, testLogger())
	b.Start(context.Background())
	defer b.Stop()

	calls := sink.snapshot()
	if len(calls) != 1 || calls[0].op != "start" || calls[0].jobID != "early" {
		t.Errorf("calls = %v, want start for pre-existing job", calls)
	}
}

func TestBridgeSkipsInvalidRecords(t *testing.T) {
	t.Parallel()

	st := store.New(testLogger())
	sink := &recordingSink{}
	b := NewBridge(st, sink, testLogger())
	b.Start(context.Background())
	defer b.Stop()

	st.UpsertJob(&job.Record{JobID: "bad", Status: job.StatusRunning, Progress: 250})

	if calls := sink.snapshot(); len(calls) != 0 {
		t.Errorf("invalid record reached the sink: %v", calls)
	}
}

func TestBridgeStopHaltsProjection(t *testing.T) {
	t.Parallel()

	st := store.New(testLogger())
	sink := &recordingSink{}
	b := NewBridge(st, sink, testLogger())
	b.Start(context.Background())
	b.Stop()

	st.UpsertJob(&job.Record{JobID: "j1", Status: job.StatusRunning, Progress: 10})

	if calls := sink.snapshot(); len(calls) != 0 {
		t.Errorf("sink called after Stop: %v", calls)
	}
}

func TestValidateRecord(t *testing.T) {
	t.Parallel()

	if err := ValidateRecord(nil); err == nil {
		t.Error("nil record accepted")
	}
	if err := ValidateRecord(&job.Record{Status: job.StatusRunning}); err == nil {
		t.Error("empty job id accepted")
	}
	if err := ValidateRecord(&job.Record{JobID: "j", Progress: -1}); err == nil {
		t.Error("negative progress accepted")
	}
	if err := ValidateRecord(&job.Record{JobID: "j", Progress: 101}); err == nil {
		t.Error("progress > 100 accepted")
	}
	if err := ValidateRecord(&job.Record{JobID: "j", Progress: 100}); err != nil {
		t.Errorf("valid record rejected: %v", err)
	}
}
