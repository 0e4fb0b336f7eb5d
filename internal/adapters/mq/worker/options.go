package worker

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/hatch/pkg/logger"
)

type settings struct {
	name     string
	logger   logger.Logger
	clock    clockwork.Clock
	interval time.Duration
}

// Option applies a configuration option to a worker.
type Option func(*settings)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock that drives the worker's ticker.
func WithClock(c clockwork.Clock) Option {
	return func(s *settings) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithInterval sets the period of the worker's ticker.
func WithInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.interval = d
		}
	}
}

func newSettings(name string, interval time.Duration, opts []Option) settings {
	s := settings{
		name:     name,
		clock:    clockwork.NewRealClock(),
		interval: interval,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger = s.logger.Named(s.name)
	return s
}
