package seenn

import "time"

// TransportKind selects which transport adapter the client activates.
type TransportKind string

const (
	// TransportStreaming uses the long-lived server-push event stream.
	TransportStreaming TransportKind = "streaming"
	// TransportPolling uses periodic per-job snapshot fetches.
	TransportPolling TransportKind = "polling"
)

// Config holds client configuration. Zero values are filled from
// DefaultConfig by New; only BaseURL is required.
type Config struct {
	// BaseURL is the API origin, e.g. "https://api.example.com".
	BaseURL string

	// APIKey, when set, is sent as an Authorization bearer token on
	// every request.
	APIKey string

	// StreamURL overrides the event-stream endpoint. Defaults to
	// BaseURL+BasePath+"/jobs/stream".
	StreamURL string

	// BasePath is the API path prefix.
	BasePath string

	// Transport selects the adapter.
	Transport TransportKind

	// PollInterval is the polling cadence (polling transport only).
	PollInterval time.Duration

	// Reconnect enables automatic reconnection of the stream.
	Reconnect bool

	// ReconnectInterval is the base backoff delay; the effective delay
	// is min(ReconnectInterval * 2^(attempt-1), 30s).
	ReconnectInterval time.Duration

	// MaxReconnectAttempts bounds consecutive failed reconnects before
	// the client gives up until the next explicit Connect.
	MaxReconnectAttempts int

	// HeartbeatTimeout is how long a silent stream is tolerated before
	// it is treated as stalled.
	HeartbeatTimeout time.Duration

	// PollConcurrency bounds in-flight snapshot fetches within one poll
	// pass. 1 keeps passes strictly sequential.
	PollConcurrency int

	// PollRate caps snapshot requests per second. Zero means unlimited.
	PollRate float64

	// Debug enables verbose logging on the default logger.
	Debug bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:             "/v1",
		Transport:            TransportStreaming,
		PollInterval:         3 * time.Second,
		Reconnect:            true,
		ReconnectInterval:    time.Second,
		MaxReconnectAttempts: 10,
		HeartbeatTimeout:     30 * time.Second,
		PollConcurrency:      1,
	}
}

// streamURL resolves the effective stream endpoint.
func (c Config) streamURL() string {
	if c.StreamURL != "" {
		return c.StreamURL
	}
	return c.BaseURL + c.BasePath + "/jobs/stream"
}
