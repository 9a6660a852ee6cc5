package seenn

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/seenn-io/seenn-go/backoff"
	"github.com/seenn-io/seenn-go/poll"
	"github.com/seenn-io/seenn-go/transport"
)

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the bearer token sent to the server.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.cfg.APIKey = key }
}

// WithStreamURL overrides the event-stream endpoint.
func WithStreamURL(u string) Option {
	return func(c *Client) { c.cfg.StreamURL = u }
}

// WithBasePath overrides the API path prefix (default "/v1").
func WithBasePath(p string) Option {
	return func(c *Client) { c.cfg.BasePath = p }
}

// WithTransport selects the transport adapter.
func WithTransport(kind TransportKind) Option {
	return func(c *Client) { c.cfg.Transport = kind }
}

// WithPollInterval sets the polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.cfg.PollInterval = d }
}

// WithReconnect configures stream reconnection.
func WithReconnect(enabled bool, interval time.Duration, maxAttempts int) Option {
	return func(c *Client) {
		c.cfg.Reconnect = enabled
		if interval > 0 {
			c.cfg.ReconnectInterval = interval
		}
		if maxAttempts > 0 {
			c.cfg.MaxReconnectAttempts = maxAttempts
		}
	}
}

// WithHeartbeatTimeout overrides the stream stall watchdog interval.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(c *Client) { c.cfg.HeartbeatTimeout = d }
}

// WithBackoff replaces the reconnect delay strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(c *Client) { c.strategy = s }
}

// WithPollConcurrency bounds in-flight fetches within one poll pass.
func WithPollConcurrency(n int) Option {
	return func(c *Client) { c.cfg.PollConcurrency = n }
}

// WithPollRate caps snapshot requests per second.
func WithPollRate(rps float64) Option {
	return func(c *Client) { c.cfg.PollRate = rps }
}

// WithPollCodec sets the snapshot decode format (JSON by default).
func WithPollCodec(codec poll.Codec) Option {
	return func(c *Client) { c.pollCodec = codec }
}

// WithHTTPClient sets the HTTP client used by both transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpc = hc }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithDebug enables verbose logging.
func WithDebug() Option {
	return func(c *Client) { c.cfg.Debug = true }
}

// WithMessageHandler receives in-app message events. Messages are
// forwarded, never stored.
func WithMessageHandler(fn func(transport.Event)) Option {
	return func(c *Client) { c.onMessage = fn }
}

// WithErrorHandler receives transport error events in addition to the
// connection-state transitions they drive.
func WithErrorHandler(fn func(transport.ErrorInfo)) Option {
	return func(c *Client) { c.onError = fn }
}
