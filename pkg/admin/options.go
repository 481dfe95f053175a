package admin

import (
	"log/slog"
	"net/http"
)

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *API) {
		if log != nil {
			a.log = log
		}
	}
}

// WithVersion sets the version reported by /about.
func WithVersion(version string) Option {
	return func(a *API) { a.version = version }
}

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(a *API) { a.metrics = h }
}
