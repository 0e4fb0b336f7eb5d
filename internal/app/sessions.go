package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/hatch/internal/adapters/repository"
	"github.com/okian/hatch/internal/domain/failure"
	"github.com/okian/hatch/internal/domain/incubation"
	"github.com/okian/hatch/internal/domain/model"
	"github.com/okian/hatch/pkg/logger"
	"github.com/okian/hatch/pkg/metrics"
)

// StartSession opens a session for the talent and starts incubating it.
// An active incubation is saved and stopped first, so its last fractional
// accrual is never lost.
func (s *Service) StartSession(ctx context.Context, talentID int64) (model.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.talents.Get(ctx, talentID); err != nil {
		return model.Pair{}, fmt.Errorf("start session: %w", err)
	}

	if s.incubator.IsIncubating() {
		if _, err := s.saveThenStop(ctx); err != nil {
			return model.Pair{}, fmt.Errorf("start session: switch: %w", err)
		}
	}

	// reload: the switch may have just persisted accrual for this talent
	t, err := s.talents.Get(ctx, talentID)
	if err != nil {
		return model.Pair{}, fmt.Errorf("start session: %w", err)
	}

	session, err := s.sessions.Exchange(ctx, t)
	if err != nil {
		return model.Pair{}, fmt.Errorf("start session: %w", err)
	}

	engine := incubation.NewEngine(incubation.WithClock(s.clock))
	if err := engine.Incubate(t, session); err != nil {
		// never leave an open session behind that is not incubating
		if _, uerr := s.sessions.Update(ctx, session.Finalize(session.Start)); uerr != nil {
			s.logger.Error(ctx, "failed to close rejected session",
				logger.Int64("session_id", session.ID),
				logger.Error(uerr),
			)
		}
		return model.Pair{}, fmt.Errorf("start session: %w", err)
	}
	s.incubator = engine

	metrics.RecordSessionStarted()
	metrics.UpdateIncubationActive(true)
	s.logger.Info(ctx, "session started",
		logger.Int64("talent_id", t.ID),
		logger.Int64("session_id", session.ID),
		logger.Float64("progress_target", t.ProgressTarget),
	)
	s.notify(ctx, model.ChangeSessionStarted, t.ID)

	return model.Pair{Talent: t, Session: session}, nil
}

// StopSession saves the active incubation, finalizes its session and
// stops. It fails with failure.ErrInactiveIncubation while idle.
func (s *Service) StopSession(ctx context.Context) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.incubator.IsIncubating() {
		return model.Session{}, failure.NewKind("service.stop_session", failure.ErrInactiveIncubation)
	}
	return s.saveThenStop(ctx)
}

// PollSession recomputes the active accrual and persists it. An idle
// engine is not an error: it returns a nil pair.
func (s *Service) PollSession(ctx context.Context) (*model.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, err := s.incubator.Poll()
	switch failure.Classify(err) {
	case failure.KindNone:
	case failure.KindInactiveIncubation:
		metrics.RecordIncubationPollAbsorbed()
		return nil, nil
	default:
		return nil, err
	}
	if pair == nil {
		metrics.RecordIncubationPollAbsorbed()
		return nil, nil
	}

	saved, err := s.persist(ctx, *pair)
	if err != nil {
		return nil, fmt.Errorf("poll session: %w", err)
	}
	metrics.RecordIncubationPoll(saved.Talent.Progress)
	return &saved, nil
}

// ActiveSession returns the incubating pair as last polled, without
// polling it.
func (s *Service) ActiveSession() (model.Pair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activePair()
}

// GetSession returns one session.
func (s *Service) GetSession(ctx context.Context, id int64) (model.Session, error) {
	return s.sessions.Get(ctx, id)
}

// ListSessions returns all sessions, or those of one talent when talentID
// is non-nil.
func (s *Service) ListSessions(ctx context.Context, talentID *int64) ([]model.Session, error) {
	if talentID != nil {
		return s.sessions.ListByTalent(ctx, *talentID)
	}
	return s.sessions.List(ctx)
}

// activePair must be called with mu held.
func (s *Service) activePair() (model.Pair, bool) {
	a, ok := s.incubator.(interface{ Active() (model.Pair, bool) })
	if !ok {
		return model.Pair{}, false
	}
	return a.Active()
}

// saveThenStop polls once, persists the accrual, finalizes the session and
// stops the engine. It must be called with mu held while incubating.
func (s *Service) saveThenStop(ctx context.Context) (model.Session, error) {
	pair, err := s.incubator.Poll()
	if err != nil {
		return model.Session{}, err
	}
	end := s.clock.Now()

	saved, err := s.persist(ctx, *pair)
	if err != nil {
		return model.Session{}, err
	}
	done, err := s.sessions.Update(ctx, saved.Session.Finalize(end))
	if err != nil {
		return model.Session{}, err
	}
	if err := s.incubator.Stop(); err != nil {
		return model.Session{}, err
	}
	s.incubator = incubation.NullIncubator

	d, _ := done.Duration()
	metrics.RecordSessionStopped()
	metrics.UpdateIncubationActive(false)
	s.logger.Info(ctx, "session stopped",
		logger.Int64("talent_id", done.TalentID),
		logger.Int64("session_id", done.ID),
		logger.Duration("duration", d),
		logger.Float64("progress_obtained", done.ProgressObtained),
	)
	s.notify(ctx, model.ChangeSessionStopped, done.TalentID)
	return done, nil
}

// persist writes the engine-owned fields of the pair. Only progress and
// totalSeconds are taken from the engine's talent; everything else comes
// from storage.
func (s *Service) persist(ctx context.Context, pair model.Pair) (model.Pair, error) {
	stored, err := s.talents.Get(ctx, pair.Talent.ID)
	if err != nil {
		return model.Pair{}, err
	}
	t, err := s.talents.Update(ctx, stored.WithAccrual(pair.Talent))
	if err != nil {
		return model.Pair{}, err
	}
	session, err := s.sessions.Update(ctx, pair.Session)
	if err != nil {
		return model.Pair{}, err
	}
	return model.Pair{Talent: t, Session: session}, nil
}

// recoverOpenSessions finalizes sessions a previous run left open. Each
// ends at the instant of its last persisted accrual, measured against the
// target the session opened with, so downtime is not counted as practice.
// It must be called with mu held while idle.
func (s *Service) recoverOpenSessions(ctx context.Context) error {
	all, err := s.sessions.List(ctx)
	if err != nil {
		return err
	}
	for _, session := range all {
		if !session.Open() {
			continue
		}
		target := session.ProgressTarget
		if target <= 0 {
			// opened before targets were recorded on sessions
			t, err := s.talents.Get(ctx, session.TalentID)
			switch {
			case err == nil:
				target = t.ProgressTarget
			case errors.Is(err, repository.ErrNotFound):
			default:
				return err
			}
		}
		end := session.Start.Add(accrued(session.ProgressObtained, target))
		if _, err := s.sessions.Update(ctx, session.Finalize(end)); err != nil {
			return err
		}
		s.logger.Warn(ctx, "closed session left open by a previous run",
			logger.Int64("session_id", session.ID),
			logger.Int64("talent_id", session.TalentID),
			logger.Time("end", end),
		)
	}
	return nil
}

// accrued inverts incubation.Progress.
func accrued(progress, targetHours float64) time.Duration {
	return time.Duration(progress * targetHours * float64(time.Hour))
}
