// Package job defines the client-side view of a server-tracked job: the
// last-known snapshot of one unit of long-running work, identified by a
// stable id. Records are values; the store owns the canonical copy and
// everything else passes freshly constructed replacements.
package job

import (
	"encoding/json"
	"time"
)

// Status represents the server-reported lifecycle status of a job.
type Status string

const (
	// StatusPending means the job has been accepted but not yet queued.
	StatusPending Status = "pending"
	// StatusQueued means the job is waiting for a worker.
	StatusQueued Status = "queued"
	// StatusRunning means the job is executing.
	StatusRunning Status = "running"
	// StatusCompleted means the job finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the job failed permanently.
	StatusFailed Status = "failed"
	// StatusCancelled means the job was cancelled.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further progress events are expected.
// Once a record reaches a terminal status, callers must treat it as
// immutable; the store does not enforce this.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Stage describes a named phase within a multi-stage job.
type Stage struct {
	Name    string `json:"name"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

// ETA is a server-estimated completion time with a confidence score
// derived from the given number of samples.
type ETA struct {
	CompletesAt time.Time `json:"completesAt"`
	Confidence  float64   `json:"confidence"`
	Samples     int       `json:"samples"`
}

// QueuePosition is the job's place in the server queue, when queued.
type QueuePosition struct {
	Position int `json:"position"`
	Total    int `json:"total,omitempty"`
}

// ChildCounts aggregates the state of a parent job's children.
type ChildCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Record is the last-known state of one job, replaced wholesale on every
// event observed for its id. Field names follow the wire's camelCase.
type Record struct {
	JobID    string `json:"jobId"`
	Status   Status `json:"status"`
	Title    string `json:"title,omitempty"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`

	Stage *Stage         `json:"stage,omitempty"`
	ETA   *ETA           `json:"eta,omitempty"`
	Queue *QueuePosition `json:"queue,omitempty"`

	// Result is the payload attached on terminal success; Error on
	// terminal failure. Both are kept opaque to the mirror.
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`

	// Parent/child linkage. A child carries its parent's id and its own
	// index; a parent carries aggregate child counts.
	ParentJobID string       `json:"parentJobId,omitempty"`
	ParentIndex int          `json:"parentIndex,omitempty"`
	Children    *ChildCounts `json:"children,omitempty"`

	CreatedAt   time.Time  `json:"createdAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Terminal reports whether the record's status is terminal.
func (r *Record) Terminal() bool { return r.Status.Terminal() }

// Clone returns a deep copy of the record. The store hands clones to
// subscribers so no caller can reach into the canonical table entry.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Stage != nil {
		s := *r.Stage
		cp.Stage = &s
	}
	if r.ETA != nil {
		e := *r.ETA
		cp.ETA = &e
	}
	if r.Queue != nil {
		q := *r.Queue
		cp.Queue = &q
	}
	if r.Children != nil {
		c := *r.Children
		cp.Children = &c
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		cp.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	cp.Result = append(json.RawMessage(nil), r.Result...)
	cp.Error = append(json.RawMessage(nil), r.Error...)
	return &cp
}

// MergeJSON shallow-merges a JSON patch onto a copy of the record: fields
// present in the patch overwrite, everything else is retained. Used for
// child-progress events, which carry partial parent updates.
func (r *Record) MergeJSON(patch []byte) (*Record, error) {
	cp := r.Clone()
	if err := json.Unmarshal(patch, cp); err != nil {
		return nil, err
	}
	return cp, nil
}
