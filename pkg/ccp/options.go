package ccp

import (
	"log"
	"time"
)

const DefaultTimeout = 500 * time.Millisecond

type config struct {
	timeout  time.Duration
	logger   *log.Logger
	recorder Recorder
	debug    bool
}

func defaultConfig() config {
	return config{
		timeout: DefaultTimeout,
	}
}

// Option configures a Session.
type Option func(*config)

// WithTimeout sets how long to wait for each reply. Non-positive values are
// ignored.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLogger logs one line per exchange to l.
func WithLogger(l *log.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithRecorder hands every CRO and CRM to r.
func WithRecorder(r Recorder) Option {
	return func(c *config) {
		c.recorder = r
	}
}

// WithDebug dumps every frame to the debug log file.
func WithDebug(enabled bool) Option {
	return func(c *config) {
		c.debug = enabled
	}
}
