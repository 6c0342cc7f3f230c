package internal

import (
	"io"

	"github.com/starford/daymark/internal/clock"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	clock     clock.Clock
	logOutput io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithClock overrides the wall clock used for "today".
func WithClock(c clock.Clock) Option {
	return func(a *application) {
		a.clock = c
	}
}

// WithLogOutput redirects the JSON log stream. The MCP command uses it to
// keep stdout free for the protocol.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}
