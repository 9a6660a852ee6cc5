// Package transport defines the event contract shared by every transport
// adapter: the domain event envelope, the connection-state machine, and an
// ordered publish/subscribe emitter with snapshot-before-iterate delivery.
package transport

import (
	"encoding/json"
	"time"

	"github.com/seenn-io/seenn-go/job"
)

// EventType names a domain event emitted by a transport adapter. Streaming
// events carry the server's frame name; the polling adapter synthesizes the
// same names from point-in-time snapshots so the orchestrator can apply one
// handler set regardless of transport.
type EventType string

const (
	EventConnected      EventType = "connected"
	EventJobSync        EventType = "job.sync"
	EventConnectionIdle EventType = "connection.idle"
	EventJobStarted     EventType = "job.started"
	EventJobProgress    EventType = "job.progress"
	EventJobCompleted   EventType = "job.completed"
	EventJobFailed      EventType = "job.failed"
	EventJobCancelled   EventType = "job.cancelled"
	EventChildProgress  EventType = "child.progress"
	EventInAppMessage   EventType = "in_app_message"
	EventHeartbeat      EventType = "heartbeat"
	EventError          EventType = "error"
)

// JobEventTypes lists the lifecycle events whose payload is a full job
// snapshot, in the order the orchestrator registers handlers for them.
var JobEventTypes = []EventType{
	EventJobSync,
	EventJobStarted,
	EventJobProgress,
	EventJobCompleted,
	EventJobFailed,
	EventJobCancelled,
}

// Event is the envelope delivered to orchestrator handlers.
type Event struct {
	// Type identifies the domain event.
	Type EventType

	// Data is the JSON payload, when the frame's data parsed as JSON.
	Data json.RawMessage

	// Raw is the payload as received. When Data is nil the payload did
	// not parse as JSON and Raw is the only view of it.
	Raw string

	// Record is set when the adapter already decoded the payload into a
	// job snapshot (the polling adapter does; the stream adapter leaves
	// decoding to the handler).
	Record *job.Record

	// Cursor is the stream resume cursor that accompanied the frame,
	// if any. Polling events carry none.
	Cursor string

	// Timestamp is when the adapter emitted the event.
	Timestamp time.Time
}

// JobRecord returns the event payload decoded as a job snapshot, using the
// pre-decoded record when available.
func (e *Event) JobRecord() (*job.Record, error) {
	if e.Record != nil {
		return e.Record, nil
	}
	var rec job.Record
	if err := json.Unmarshal(e.Data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Error codes carried by EventError payloads.
const (
	ErrCodeNetwork    = "network"
	ErrCodeConnection = "connection"
	ErrCodeAuth       = "auth"
	ErrCodeValidation = "validation"
	ErrCodeUnknown    = "unknown"
)

// ErrorInfo is the payload of an EventError event.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEvent builds an EventError envelope for the given code and message.
func ErrorEvent(code, message string) Event {
	data, _ := json.Marshal(ErrorInfo{Code: code, Message: message})
	return Event{
		Type:      EventError,
		Data:      data,
		Raw:       string(data),
		Timestamp: time.Now().UTC(),
	}
}

// ErrorInfo decodes the event payload as an ErrorInfo. Events whose payload
// is not structured fall back to an unknown-code info with the raw text.
func (e *Event) ErrorInfo() ErrorInfo {
	var info ErrorInfo
	if len(e.Data) > 0 && json.Unmarshal(e.Data, &info) == nil && info.Code != "" {
		return info
	}
	return ErrorInfo{Code: ErrCodeUnknown, Message: e.Raw}
}
