// Package streak recomputes the daily streak and expiry flags of every
// talent from the full session history.
package streak

import (
	"fmt"
	"time"

	"github.com/okian/hatch/internal/domain/failure"
	"github.com/okian/hatch/internal/domain/model"
)

const op = "streak.evaluate"

// Result is the outcome of one evaluation pass: the full talent list with
// derived fields recomputed, and the session list it was computed from.
type Result struct {
	Talents  []model.Talent
	Sessions []model.Session
}

// Evaluator is a pure batch computation; it holds only its rules and is
// safe for concurrent use.
type Evaluator struct {
	wakingDayHour int
	hitThreshold  time.Duration
	expiryWindow  time.Duration
	location      *time.Location
}

// NewEvaluator creates an evaluator with the default rules: a waking day
// starting at 04:00 local time, 30 minute hits and a 28 hour expiry window.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		wakingDayHour: DefaultWakingDayHour,
		hitThreshold:  DefaultHitThreshold,
		expiryWindow:  DefaultExpiryWindow,
		location:      time.Local,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate recomputes StreakObtained, Expiring and StreakCount of every
// talent at now.
//
// With no talents or no sessions it returns a nil Result and a nil error:
// nothing was evaluated and callers must not assume any field was touched.
// An open session belonging to an evaluated talent fails the whole pass
// with failure.ErrUnterminatedSession. The inputs are never modified.
func (e *Evaluator) Evaluate(talents []model.Talent, sessions []model.Session, now time.Time) (*Result, error) {
	if e == nil || e.location == nil || e.hitThreshold <= 0 {
		return nil, failure.NewKind(op, failure.ErrNotConfigured)
	}
	if len(talents) == 0 || len(sessions) == 0 {
		return nil, nil
	}

	boundary := WakingDayStart(now, e.wakingDayHour, e.location)
	expiresBefore := now.Add(-e.expiryWindow)

	byTalent := make(map[int64][]int, len(talents))
	for i := range sessions {
		id := sessions[i].TalentID
		byTalent[id] = append(byTalent[id], i)
	}

	out := make([]model.Talent, len(talents))
	for i, t := range talents {
		idx := byTalent[t.ID]
		if len(idx) == 0 {
			out[i] = t.WithDerived(model.Derived{})
			continue
		}

		d, err := e.derive(t, sessions, idx, boundary, expiresBefore)
		if err != nil {
			return nil, err
		}
		out[i] = t.WithDerived(d)
	}

	cloned := make([]model.Session, len(sessions))
	for i := range sessions {
		cloned[i] = sessions[i].Clone()
	}
	return &Result{Talents: out, Sessions: cloned}, nil
}

func (e *Evaluator) derive(t model.Talent, sessions []model.Session, idx []int, boundary, expiresBefore time.Time) (model.Derived, error) {
	hits := 0
	var latest *model.Session
	for _, i := range idx {
		s := &sessions[i]
		dur, ok := s.Duration()
		if !ok {
			return model.Derived{}, failure.WrapKind(op, failure.ErrUnterminatedSession,
				fmt.Errorf("session %d of talent %d started %s", s.ID, t.ID, s.Start.Format(time.RFC3339)))
		}
		if !s.Start.Before(boundary) && dur >= e.hitThreshold {
			hits++
		}
		if latest == nil || !s.End.Before(*latest.End) {
			latest = s
		}
	}

	return model.Derived{
		StreakObtained: hits > 0,
		Expiring:       !latest.End.After(expiresBefore),
		StreakCount:    t.StreakCount,
	}, nil
}

// WakingDayStart returns the start of the waking day containing now: today
// at hour:00 in loc, or the day before when now is not past it. Hours before
// the boundary belong to the previous waking day.
func WakingDayStart(now time.Time, hour int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	boundary := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !local.After(boundary) {
		boundary = boundary.AddDate(0, 0, -1)
	}
	return boundary
}

// Validate reports whether the rules are usable.
func Validate(hour int, hit, expiry time.Duration) error {
	switch {
	case hour < 0 || hour > 23:
		return fmt.Errorf("waking day hour %d: %w", hour, ErrInvalidOption)
	case hit <= 0:
		return fmt.Errorf("hit threshold %s: %w", hit, ErrInvalidOption)
	case expiry <= 0:
		return fmt.Errorf("expiry window %s: %w", expiry, ErrInvalidOption)
	}
	return nil
}
