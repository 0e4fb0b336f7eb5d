package repository

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/hatch/pkg/metrics"
)

type options struct {
	clock clockwork.Clock
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithClock sets the time source used to stamp exchanged sessions.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// observe records the latency of one store operation and counts it as a
// failure when *err is set. Call it deferred with a pointer to the named
// error result.
func observe(store, op string, start time.Time, err *error) {
	metrics.RecordStoreLatency(store, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil && *err != nil {
		metrics.RecordStoreError(store, op)
	}
}
