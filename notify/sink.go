// Package notify defines the boundary to OS-level persistent notification
// surfaces (a Live Activity on iOS, an ongoing notification on Android).
// The core never touches those surfaces directly: it talks to a Sink, and
// the Bridge projects store snapshots into sink calls.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seenn-io/seenn-go/job"
)

// ErrInvalidRecord is returned when caller input fails sink validation.
var ErrInvalidRecord = errors.New("notify: invalid job record")

// Sink is a job notification surface keyed by job id. Implementations
// live outside this module (native bridges); LogSink is provided for
// development and tests. Sinks may buffer: events emitted before a
// surface is ready can be delivered once it is, and the bridge tolerates
// that.
type Sink interface {
	// Start opens a persistent surface for the job.
	Start(ctx context.Context, rec *job.Record) error

	// Update refreshes the surface with a newer snapshot.
	Update(ctx context.Context, rec *job.Record) error

	// End finalizes the surface for a job that reached completed or
	// failed, showing the terminal snapshot.
	End(ctx context.Context, jobID string, rec *job.Record) error

	// Cancel dismisses the surface without a terminal snapshot.
	Cancel(ctx context.Context, jobID string) error
}

// ValidateRecord guards sink input: malformed caller input must never
// reach a native surface.
func ValidateRecord(rec *job.Record) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if rec.JobID == "" {
		return fmt.Errorf("%w: empty job id", ErrInvalidRecord)
	}
	if rec.Progress < 0 || rec.Progress > 100 {
		return fmt.Errorf("%w: progress %d out of range", ErrInvalidRecord, rec.Progress)
	}
	return nil
}

// LogSink writes sink calls to a structured logger. Useful as a default
// when no native surface is wired up.
type LogSink struct {
	Logger *slog.Logger
}

// NewLogSink creates a LogSink on the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{Logger: logger}
}

func (s *LogSink) Start(_ context.Context, rec *job.Record) error {
	s.Logger.Info("notification start",
		slog.String("job_id", rec.JobID),
		slog.String("status", string(rec.Status)),
		slog.Int("progress", rec.Progress))
	return nil
}

func (s *LogSink) Update(_ context.Context, rec *job.Record) error {
	s.Logger.Info("notification update",
		slog.String("job_id", rec.JobID),
		slog.String("status", string(rec.Status)),
		slog.Int("progress", rec.Progress))
	return nil
}

func (s *LogSink) End(_ context.Context, jobID string, rec *job.Record) error {
	s.Logger.Info("notification end",
		slog.String("job_id", jobID),
		slog.String("status", string(rec.Status)))
	return nil
}

func (s *LogSink) Cancel(_ context.Context, jobID string) error {
	s.Logger.Info("notification cancel", slog.String("job_id", jobID))
	return nil
}
