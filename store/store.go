// Package store holds the in-memory mirror of server-side job state: a
// keyed table of job records plus a connection-state cell, each
// independently observable with replay-on-subscribe semantics. The store
// never infers progress; it broadcasts whatever complete replacement
// values the orchestrator hands it.
package store

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/seenn-io/seenn-go/job"
	"github.com/seenn-io/seenn-go/transport"
)

// JobCallback observes one job's record. It receives nil when the job is
// removed.
type JobCallback func(*job.Record)

// AllJobsCallback observes the full table as a cloned snapshot.
type AllJobsCallback func(map[string]*job.Record)

// StateCallback observes the connection state.
type StateCallback func(transport.State)

type jobSub struct {
	id string
	fn JobCallback
}

type allSub struct {
	id string
	fn AllJobsCallback
}

type stateSub struct {
	id string
	fn StateCallback
}

// Store is the observable entity store. It is safe for concurrent use; the
// table is mutated only through its own methods and callers only ever see
// cloned records.
type Store struct {
	logger *slog.Logger

	mu        sync.Mutex
	jobs      map[string]*job.Record
	connState transport.State
	jobSubs   map[string][]jobSub
	allSubs   []allSub
	stateSubs []stateSub
	disposed  bool
}

// New creates an empty store in the disconnected state.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:    logger,
		jobs:      make(map[string]*job.Record),
		connState: transport.StateDisconnected,
		jobSubs:   make(map[string][]jobSub),
	}
}

// UpsertJob replaces the record for record.JobID and publishes: the full
// record to that id's subscribers, then a cloned table snapshot to
// all-jobs subscribers. Field semantics are not validated; the caller is
// trusted to pass complete replacement values.
func (s *Store) UpsertJob(record *job.Record) {
	if record == nil || record.JobID == "" {
		return
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.jobs[record.JobID] = record.Clone()
	idSnap := snapshotJobSubs(s.jobSubs[record.JobID])
	allSnap := snapshotAllSubs(s.allSubs)
	table := s.cloneTableLocked()
	s.mu.Unlock()

	published := record.Clone()
	for _, sub := range idSnap {
		sub.fn(published)
	}
	for _, sub := range allSnap {
		sub.fn(table)
	}
}

// RemoveJob publishes nil to the id's subscribers, deletes the table
// entry, and republishes the all-jobs snapshot. Records are never removed
// any other way.
func (s *Store) RemoveJob(jobID string) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	idSnap := snapshotJobSubs(s.jobSubs[jobID])
	delete(s.jobs, jobID)
	allSnap := snapshotAllSubs(s.allSubs)
	table := s.cloneTableLocked()
	s.mu.Unlock()

	for _, sub := range idSnap {
		sub.fn(nil)
	}
	for _, sub := range allSnap {
		sub.fn(table)
	}
}

// SubscribeJob registers a callback for one job id. The callback is
// invoked synchronously with the current record (nil if none) before this
// returns, then again on every change. The returned cancel func is
// idempotent.
func (s *Store) SubscribeJob(jobID string, fn JobCallback) (cancel func()) {
	id := uuid.NewString()

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return func() {}
	}
	s.jobSubs[jobID] = append(s.jobSubs[jobID], jobSub{id: id, fn: fn})
	current := s.jobs[jobID].Clone()
	s.mu.Unlock()

	fn(current)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.jobSubs[jobID]
		for i, sub := range subs {
			if sub.id == id {
				s.jobSubs[jobID] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAllJobs registers a callback for the whole table. It is
// replayed the current snapshot synchronously before this returns.
func (s *Store) SubscribeAllJobs(fn AllJobsCallback) (cancel func()) {
	id := uuid.NewString()

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return func() {}
	}
	s.allSubs = append(s.allSubs, allSub{id: id, fn: fn})
	table := s.cloneTableLocked()
	s.mu.Unlock()

	fn(table)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.allSubs {
			if sub.id == id {
				s.allSubs = append(s.allSubs[:i:i], s.allSubs[i+1:]...)
				return
			}
		}
	}
}

// SubscribeConnectionState registers a connection-state callback, replayed
// the current state synchronously before this returns.
func (s *Store) SubscribeConnectionState(fn StateCallback) (cancel func()) {
	id := uuid.NewString()

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return func() {}
	}
	s.stateSubs = append(s.stateSubs, stateSub{id: id, fn: fn})
	current := s.connState
	s.mu.Unlock()

	fn(current)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.stateSubs {
			if sub.id == id {
				s.stateSubs = append(s.stateSubs[:i:i], s.stateSubs[i+1:]...)
				return
			}
		}
	}
}

// SetConnectionState updates the connection-state cell. Writing the
// current value again is a no-op and notifies nobody.
func (s *Store) SetConnectionState(state transport.State) {
	s.mu.Lock()
	if s.disposed || s.connState == state {
		s.mu.Unlock()
		return
	}
	s.connState = state
	snap := make([]stateSub, len(s.stateSubs))
	copy(snap, s.stateSubs)
	s.mu.Unlock()

	for _, sub := range snap {
		sub.fn(state)
	}
}

// GetJob returns a clone of the current record for jobID, or nil.
func (s *Store) GetJob(jobID string) *job.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[jobID].Clone()
}

// GetAllJobs returns a cloned snapshot of the whole table.
func (s *Store) GetAllJobs() map[string]*job.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneTableLocked()
}

// GetConnectionState returns the current connection state.
func (s *Store) GetConnectionState() transport.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState
}

// Dispose releases all subscriber callbacks and clears the table. The
// store is unusable afterward: mutations and subscriptions become no-ops.
func (s *Store) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.jobs = make(map[string]*job.Record)
	s.jobSubs = make(map[string][]jobSub)
	s.allSubs = nil
	s.stateSubs = nil
	s.mu.Unlock()

	s.logger.Debug("job store disposed")
}

// cloneTableLocked builds a snapshot of the table. Callers must hold mu.
func (s *Store) cloneTableLocked() map[string]*job.Record {
	out := make(map[string]*job.Record, len(s.jobs))
	for id, rec := range s.jobs {
		out[id] = rec.Clone()
	}
	return out
}

// Subscriber lists are snapshotted before iteration so a subscriber added
// during another subscriber's callback is never notified for the in-flight
// publish.
func snapshotJobSubs(subs []jobSub) []jobSub {
	out := make([]jobSub, len(subs))
	copy(out, subs)
	return out
}

func snapshotAllSubs(subs []allSub) []allSub {
	out := make([]allSub, len(subs))
	copy(out, subs)
	return out
}
