package poll

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/seenn-io/seenn-go/job"
	"github.com/seenn-io/seenn-go/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// jobServer serves job snapshots from a mutable in-memory map.
type jobServer struct {
	mu   sync.Mutex
	jobs map[string]*job.Record
	gone map[string]bool
	srv  *httptest.Server

	requests []string
}

func newJobServer(t *testing.T) *jobServer {
	t.Helper()
	s := &jobServer{
		jobs: make(map[string]*job.Record),
		gone: make(map[string]bool),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/v1/jobs/"):]
		s.mu.Lock()
		s.requests = append(s.requests, id)
		rec, ok := s.jobs[id]
		gone := s.gone[id]
		s.mu.Unlock()

		if gone || !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Accept") == "application/msgpack" {
			data, _ := msgpack.Marshal(rec)
			w.Header().Set("Content-Type", "application/msgpack")
			w.Write(data) //nolint:errcheck // test server
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rec) //nolint:errcheck // test server
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *jobServer) put(rec *job.Record) {
	s.mu.Lock()
	s.jobs[rec.JobID] = rec
	s.mu.Unlock()
}

func (s *jobServer) remove(id string) {
	s.mu.Lock()
	s.gone[id] = true
	s.mu.Unlock()
}

func (s *jobServer) requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	copy(out, s.requests)
	return out
}

func collect(a *Adapter, types ...transport.EventType) <-chan transport.Event {
	ch := make(chan transport.Event, 32)
	for _, t := range types {
		a.Subscribe(t, func(evt transport.Event) { ch <- evt })
	}
	return ch
}

func TestConnectIsImmediate(t *testing.T) {
	t.Parallel()

	srv := newJobServer(t)
	a := New(srv.srv.URL, WithLogger(testLogger()))
	defer a.Disconnect()

	require.Equal(t, transport.StateDisconnected, a.State())
	require.NoError(t, a.Connect(context.Background(), "user-1"))
	require.Equal(t, transport.StateConnected, a.State(), "polling connect has no handshake")
}

func TestSubscribeFetchesEagerly(t *testing.T) {
	t.Parallel()

	srv := newJobServer(t)
	srv.put(&job.Record{JobID: "j1", Status: job.StatusRunning, Progress: 30})

	// Long interval: only the eager fetch can produce the event.
	a := New(srv.srv.URL, WithLogger(testLogger()), WithInterval(time.Hour))
	defer a.Disconnect()
	events := collect(a, transport.EventJobProgress)

	require.NoError(t, a.Connect(context.Background(), "user-1"))
	a.SubscribeJob("j1")

	select {
	case evt := <-events:
		rec, err := evt.JobRecord()
		require.NoError(t, err)
		require.Equal(t, "j1", rec.JobID)
		require.Equal(t, 30, rec.Progress)
	case <-time.After(2 * time.Second):
		t.Fatal("eager fetch did not emit")
	}
}

func TestSnapshotToEventMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status job.Status
		want   transport.EventType
	}{
		{job.StatusCompleted, transport.EventJobCompleted},
		{job.StatusFailed, transport.EventJobFailed},
		{job.StatusCancelled, transport.EventJobCancelled},
		{job.StatusRunning, transport.EventJobProgress},
		{job.StatusPending, transport.EventJobStarted},
		{job.StatusQueued, transport.EventJobStarted},
		{job.Status("mystery"), transport.EventJobProgress},
	}
	for _, tt := range tests {
		if got := eventForStatus(tt.status); got != tt.want {
			t.Errorf("eventForStatus(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestTerminalAutoUnsubscribe(t *testing.T) {
	t.Parallel()

	srv := newJobServer(t)
	srv.put(&job.Record{JobID: "x", Status: job.StatusCompleted, Progress: 100})

	a := New(srv.srv.URL, WithLogger(testLogger()), WithInterval(time.Hour))
	defer a.Disconnect()
	events := collect(a, transport.EventJobCompleted)

	require.NoError(t, a.Connect(context.Background(), "user-1"))
	a.SubscribeJob("x")

	select {
	case evt := <-events:
		rec, err := evt.JobRecord()
		require.NoError(t, err)
		require.Equal(t, job.StatusCompleted, rec.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("terminal event not emitted")
	}

	require.NotContains(t, a.SubscribedJobIDs(), "x",
		"terminal job still tracked after the pass")
}

func TestNotFoundRemovesID(t *testing.T) {
	t.Parallel()

	srv := newJobServer(t)
	srv.put(&job.Record{JobID: "j1", Status: job.StatusRunning})

	a := New(srv.srv.URL, WithLogger(testLogger()), WithInterval(30*time.Millisecond))
	defer a.Disconnect()

	require.NoError(t, a.Connect(context.Background(), "user-1"))
	a.SubscribeJob("j1")
	require.Contains(t, a.SubscribedJobIDs(), "j1")

	srv.remove("j1")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(a.SubscribedJobIDs()) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("tracked ids = %v, want empty after 404", a.SubscribedJobIDs())
}

func TestPassOrderIsDeterministic(t *testing.T) {
	t.Parallel()

	srv := newJobServer(t)
	for _, id := range []string{"c", "a", "b"} {
		srv.put(&job.Record{JobID: id, Status: job.StatusRunning})
	}

	a := New(srv.srv.URL, WithLogger(testLogger()), WithInterval(time.Hour))
	defer a.Disconnect()

	// Track before connecting so the eager fetch path stays out of it
	// and only the initial pass runs.
	a.SubscribeJobs([]string{"c", "a", "b"})
	require.Equal(t, []string{"a", "b", "c"}, a.SubscribedJobIDs())

	require.NoError(t, a.Connect(context.Background(), "user-1"))

	deadline := time.Now().Add(2 * time.Second)
	for len(srv.requested()) < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, []string{"a", "b", "c"}, srv.requested(), "pass order not sorted")
}

func TestPerIDFailureIsolated(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/v1/jobs/"):]
		if id == "bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(&job.Record{JobID: id, Status: job.StatusRunning, Progress: 10}) //nolint:errcheck // test server
	}))
	defer srv.Close()

	a := New(srv.URL, WithLogger(testLogger()), WithInterval(time.Hour))
	defer a.Disconnect()
	events := collect(a, transport.EventJobProgress)

	a.SubscribeJobs([]string{"bad", "ok"})
	require.NoError(t, a.Connect(context.Background(), "user-1"))

	select {
	case evt := <-events:
		rec, err := evt.JobRecord()
		require.NoError(t, err)
		require.Equal(t, "ok", rec.JobID, "failure for one id aborted the pass")
	case <-time.After(2 * time.Second):
		t.Fatal("healthy id was not fetched after a failing one")
	}
}

func TestDisconnectKeepsTrackedSet(t *testing.T) {
	t.Parallel()

	srv := newJobServer(t)
	srv.put(&job.Record{JobID: "j1", Status: job.StatusRunning})

	a := New(srv.srv.URL, WithLogger(testLogger()), WithInterval(time.Hour))
	require.NoError(t, a.Connect(context.Background(), "user-1"))
	a.SubscribeJob("j1")

	a.Disconnect()
	require.Equal(t, transport.StateDisconnected, a.State())
	require.Equal(t, []string{"j1"}, a.SubscribedJobIDs(), "tracked set cleared by Disconnect")
}

func TestMsgpackCodecNegotiation(t *testing.T) {
	t.Parallel()

	srv := newJobServer(t)
	srv.put(&job.Record{JobID: "m1", Status: job.StatusRunning, Progress: 64, Title: "encode"})

	a := New(srv.srv.URL,
		WithLogger(testLogger()),
		WithInterval(time.Hour),
		WithCodec(GetCodec(CodecNameMsgpack)),
	)
	defer a.Disconnect()
	events := collect(a, transport.EventJobProgress)

	require.NoError(t, a.Connect(context.Background(), "user-1"))
	a.SubscribeJob("m1")

	select {
	case evt := <-events:
		rec, err := evt.JobRecord()
		require.NoError(t, err)
		require.Equal(t, 64, rec.Progress)
		require.Equal(t, "encode", rec.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("msgpack snapshot not decoded")
	}
}

func TestGetCodecDefaultsToJSON(t *testing.T) {
	t.Parallel()

	require.Equal(t, CodecNameJSON, GetCodec("").Name())
	require.Equal(t, CodecNameJSON, GetCodec("protobuf").Name())
	require.Equal(t, CodecNameMsgpack, GetCodec(CodecNameMsgpack).Name())
}

func TestBoundedConcurrentPass(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	inFlight, peak := 0, 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()

		id := r.URL.Path[len("/v1/jobs/"):]
		json.NewEncoder(w).Encode(&job.Record{JobID: id, Status: job.StatusRunning}) //nolint:errcheck // test server
	}))
	defer srv.Close()

	a := New(srv.URL, WithLogger(testLogger()), WithInterval(time.Hour), WithConcurrency(2))
	defer a.Disconnect()

	a.SubscribeJobs([]string{"a", "b", "c", "d", "e", "f"})
	require.NoError(t, a.Connect(context.Background(), "user-1"))

	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.LessOrEqual(t, peak, 2, "concurrency bound exceeded")
	require.Greater(t, peak, 0)
}
