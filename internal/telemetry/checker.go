package telemetry

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"ollama-dash/internal/ollama"
)

// VersionProber is the daemon call used as the connectivity check.
type VersionProber interface {
	Version(ctx context.Context) (ollama.VersionResponse, error)
}

// Status is the outcome of the most recent check.
type Status struct {
	Healthy   bool      `json:"healthy"`
	Version   string    `json:"version,omitempty"`
	Build     string    `json:"build,omitempty"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// Checker probes the daemon when asked. It never polls on its own.
type Checker struct {
	prober  VersionProber
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time

	status atomic.Value // Status
}

// NewChecker creates a checker. metrics and logger may be nil.
func NewChecker(prober VersionProber, metrics *Metrics, logger *slog.Logger) *Checker {
	c := &Checker{
		prober:  prober,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
	c.status.Store(Status{})
	return c
}

// Check performs one version probe and records the result.
func (c *Checker) Check(ctx context.Context) (ollama.VersionResponse, error) {
	v, err := c.prober.Version(ctx)
	st := Status{LastCheck: c.now()}
	if err != nil {
		st.LastError = ollama.ErrorMessage(err)
		if c.logger != nil {
			c.logger.Debug("daemon connectivity check failed", "err", err)
		}
	} else {
		st.Healthy = true
		st.Version = v.Version
		st.Build = v.Build
	}
	c.status.Store(st)
	c.metrics.SetDaemonUp(st.Healthy)
	return v, err
}

// Status returns the last recorded result. Before the first check it reports unhealthy.
func (c *Checker) Status() Status {
	return c.status.Load().(Status)
}

// Healthy reports whether the last check succeeded.
func (c *Checker) Healthy() bool {
	return c.Status().Healthy
}
