package app

import (
	"context"

	"github.com/google/uuid"

	"github.com/tphakala/birdnet-artifacts/internal/buildinfo"
	"github.com/tphakala/birdnet-artifacts/internal/conf"
	"github.com/tphakala/birdnet-artifacts/internal/logger"
)

// Context is the per-invocation state the root command fills in before a
// subcommand runs.
type Context struct {
	ConfigFile string
	Debug      bool

	Settings *conf.Settings
	Build    *buildinfo.Context

	// RunID tags every log line of one invocation.
	RunID string

	closers []func()
}

// NewContext returns a Context with a fresh run ID.
func NewContext(build *buildinfo.Context) *Context {
	return &Context{Build: build, RunID: uuid.NewString()}
}

// Open wires the pipeline for the loaded settings.
func (c *Context) Open() (*App, error) {
	return Open(c.Settings, c.Build)
}

// Trace attaches the run ID to ctx for log correlation.
func (c *Context) Trace(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return logger.WithTraceID(ctx, c.RunID)
}

// OnClose registers fn to run when the invocation ends.
func (c *Context) OnClose(fn func()) {
	c.closers = append(c.closers, fn)
}

// Close runs the registered functions in reverse order.
func (c *Context) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
