// Package incubation converts elapsed wall-clock time into level progress
// for the one talent that is actively being practiced.
package incubation

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/hatch/internal/domain/failure"
	"github.com/okian/hatch/internal/domain/model"
)

const secondsPerHour = 3600

// Incubator accrues progress for a single (talent, session) pair.
//
// Idle -> Incubating via Incubate, Incubating -> Idle via Stop. Poll and
// Stop fail with failure.ErrInactiveIncubation while idle.
type Incubator interface {
	// Incubate adopts the pair. Valid only while idle.
	Incubate(t model.Talent, s model.Session) error
	// Poll recomputes accrual from the session origin and returns the
	// updated pair. A nil pair with a nil error means there is nothing to
	// report.
	Poll() (*model.Pair, error)
	// Stop discards the active pair without polling it.
	Stop() error
	// IsIncubating reports whether a pair is active.
	IsIncubating() bool
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithClock sets the time source used by Poll.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// Engine is the wall-clock Incubator. Every Poll recomputes progress from
// the session start rather than adding a delta, so repeated or
// overlapping polls converge on the same values.
type Engine struct {
	mu    sync.Mutex
	clock clockwork.Clock

	active  bool
	talent  model.Talent
	session model.Session

	// captured at adoption
	target         float64
	secondsAtStart float64
	origin         time.Time
}

// NewEngine creates an idle engine reading the real clock unless
// overridden by options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Incubate implements Incubator.
func (e *Engine) Incubate(t model.Talent, s model.Session) error {
	const op = "incubation.incubate"
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.clock == nil {
		return failure.NewKind(op, failure.ErrNotConfigured)
	}
	if e.active {
		return fmt.Errorf("%s: talent %d: %w", op, e.talent.ID, ErrAlreadyIncubating)
	}
	if t.ProgressTarget <= 0 {
		return fmt.Errorf("%s: talent %d: %w", op, t.ID, ErrInvalidTarget)
	}
	if s.TalentID != t.ID {
		return fmt.Errorf("%s: session %d talent %d: %w", op, s.ID, t.ID, ErrMismatchedPair)
	}
	if !s.Open() {
		return fmt.Errorf("%s: session %d: %w", op, s.ID, ErrSessionFinalized)
	}

	e.active = true
	e.talent = t
	e.session = s.Clone()
	e.target = t.ProgressTarget
	e.secondsAtStart = t.TotalSeconds
	e.origin = s.Start
	return nil
}

// Poll implements Incubator.
func (e *Engine) Poll() (*model.Pair, error) {
	const op = "incubation.poll"
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.clock == nil {
		return nil, failure.NewKind(op, failure.ErrNotConfigured)
	}
	if !e.active {
		return nil, failure.NewKind(op, failure.ErrInactiveIncubation)
	}

	elapsed := e.clock.Now().Sub(e.origin).Seconds()
	if elapsed < 0 {
		// session stamped ahead of this clock
		elapsed = 0
	}
	progress := Progress(elapsed, e.target)

	e.talent.Progress = progress
	e.talent.TotalSeconds = e.secondsAtStart + elapsed
	e.session.ProgressObtained = progress

	return &model.Pair{Talent: e.talent, Session: e.session.Clone()}, nil
}

// Stop implements Incubator.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return failure.NewKind("incubation.stop", failure.ErrInactiveIncubation)
	}
	e.active = false
	e.talent = model.Talent{}
	e.session = model.Session{}
	return nil
}

// IsIncubating implements Incubator.
func (e *Engine) IsIncubating() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Active returns the adopted pair as last polled, without polling.
func (e *Engine) Active() (model.Pair, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return model.Pair{}, false
	}
	return model.Pair{Talent: e.talent, Session: e.session.Clone()}, true
}

// Progress returns the level fraction earned by elapsedSeconds of practice
// against a target of targetHours. One level takes exactly targetHours.
func Progress(elapsedSeconds, targetHours float64) float64 {
	rate := 1 / (targetHours * secondsPerHour)
	return rate * elapsedSeconds
}
