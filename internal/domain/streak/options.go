package streak

import "time"

// Default evaluation rules.
const (
	DefaultWakingDayHour = 4
	DefaultHitThreshold  = 30 * time.Minute
	DefaultExpiryWindow  = 28 * time.Hour
)

// Option applies a configuration option to the Evaluator.
type Option func(*Evaluator)

// WithWakingDayHour sets the hour of day at which a waking day begins.
func WithWakingDayHour(hour int) Option {
	return func(e *Evaluator) {
		if hour >= 0 && hour < 24 {
			e.wakingDayHour = hour
		}
	}
}

// WithHitThreshold sets the minimum session duration counted as a hit.
func WithHitThreshold(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.hitThreshold = d
		}
	}
}

// WithExpiryWindow sets how long after the latest completed session a
// talent starts expiring.
func WithExpiryWindow(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.expiryWindow = d
		}
	}
}

// WithLocation sets the time zone the waking-day boundary is computed in.
func WithLocation(loc *time.Location) Option {
	return func(e *Evaluator) {
		if loc != nil {
			e.location = loc
		}
	}
}
