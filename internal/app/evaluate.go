package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/hatch/internal/domain/model"
	"github.com/okian/hatch/internal/domain/streak"
	"github.com/okian/hatch/pkg/logger"
	"github.com/okian/hatch/pkg/metrics"
)

// Evaluate implements worker.Evaluator.
func (s *Service) Evaluate(ctx context.Context) error {
	_, err := s.RunEvaluation(ctx)
	return err
}

// RunEvaluation recomputes the streak fields of every talent at the
// current instant and persists the talents whose fields moved in a single
// all-or-nothing write. The incubating session is excluded: it is open by
// design. A nil result means there was nothing to evaluate and nothing was
// written. On error the stored state is left untouched.
func (s *Service) RunEvaluation(ctx context.Context) (*streak.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	talents, err := s.talents.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	if pair, ok := s.activePair(); ok {
		sessions = without(sessions, pair.Session.ID)
	}

	res, err := s.evaluator.Evaluate(talents, sessions, s.clock.Now())
	if err != nil {
		metrics.RecordEvaluationFailed()
		return nil, err
	}
	if res == nil {
		metrics.RecordEvaluationSkipped()
		return nil, nil
	}

	var streaks, expiring int
	var moved []model.Talent
	for i, t := range res.Talents {
		if t.StreakObtained {
			streaks++
		}
		if t.Expiring {
			expiring++
		}
		if t.Derived() != talents[i].Derived() {
			moved = append(moved, t)
		}
	}
	if len(moved) > 0 {
		if err := s.talents.UpdateAll(ctx, moved); err != nil {
			metrics.RecordEvaluationFailed()
			return nil, fmt.Errorf("evaluate: persist: %w", err)
		}
	}

	latency := float64(time.Since(start).Microseconds()) / 1000
	metrics.RecordEvaluation(latency)
	metrics.UpdateStreakTotals(len(res.Talents), streaks, expiring)
	s.logger.Debug(ctx, "evaluation complete",
		logger.Int("talents", len(res.Talents)),
		logger.Int("streaks", streaks),
		logger.Int("expiring", expiring),
		logger.Int("written", len(moved)),
	)
	return res, nil
}

func without(sessions []model.Session, id int64) []model.Session {
	out := sessions[:0]
	for _, s := range sessions {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}
