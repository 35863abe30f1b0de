package vision

import (
	"io"
	"time"

	"github.com/wudi/ocrkit/observability"
)

const (
	// DefaultCollectTimeout bounds the wait for each next result, not the
	// whole batch. Accurate recognition of a dense page can take a while.
	DefaultCollectTimeout = 5 * time.Minute
	// DefaultStopGrace is how long Stop waits for a clean exit before the
	// engine is killed.
	DefaultStopGrace = 5 * time.Second
)

// Option configures a Client at construction time.
type Option func(*Client)

// WithLogger routes the client's diagnostics to log.
func WithLogger(log observability.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithCollectTimeout overrides the per-result wait used by Collect.
func WithCollectTimeout(d time.Duration) Option {
	return func(c *Client) { c.collectTimeout = d }
}

// WithStopGrace overrides how long Stop waits before killing the engine.
func WithStopGrace(d time.Duration) Option {
	return func(c *Client) { c.stopGrace = d }
}

// WithStderr forwards the engine's stderr to w. By default it is discarded.
func WithStderr(w io.Writer) Option {
	return func(c *Client) { c.stderr = w }
}
