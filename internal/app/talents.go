package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/hatch/internal/domain/model"
	"github.com/okian/hatch/pkg/logger"
)

// NewTalent creates a talent at level zero. A non-positive target falls
// back to the configured default.
func (s *Service) NewTalent(ctx context.Context, name string, progressTarget float64) (model.Talent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Talent{}, fmt.Errorf("%w: name must not be empty", ErrInvalidTalent)
	}
	if progressTarget <= 0 {
		progressTarget = s.defaultTarget
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.talents.Create(ctx, model.NewTalent(0, name, s.userID, progressTarget))
	if err != nil {
		return model.Talent{}, fmt.Errorf("create talent: %w", err)
	}
	s.logger.Info(ctx, "talent created",
		logger.Int64("talent_id", t.ID),
		logger.String("name", t.Name),
	)
	s.notify(ctx, model.ChangeTalentCreated, t.ID)
	return t, nil
}

// ListTalents returns every talent ordered by id.
func (s *Service) ListTalents(ctx context.Context) ([]model.Talent, error) {
	return s.talents.List(ctx)
}

// GetTalent returns one talent.
func (s *Service) GetTalent(ctx context.Context, id int64) (model.Talent, error) {
	return s.talents.Get(ctx, id)
}

// UpdateTalent applies the user-editable fields of t: name, progressTarget
// and whiteStars. Accrued and derived fields keep their stored values. An
// incubating talent keeps accruing against the target it was adopted with
// until its session stops.
func (s *Service) UpdateTalent(ctx context.Context, t model.Talent) (model.Talent, error) {
	name := strings.TrimSpace(t.Name)
	switch {
	case name == "":
		return model.Talent{}, fmt.Errorf("%w: name must not be empty", ErrInvalidTalent)
	case t.ProgressTarget <= 0:
		return model.Talent{}, fmt.Errorf("%w: progressTarget must be positive", ErrInvalidTalent)
	case t.WhiteStars < 0:
		return model.Talent{}, fmt.Errorf("%w: whiteStars must not be negative", ErrInvalidTalent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.talents.Get(ctx, t.ID)
	if err != nil {
		return model.Talent{}, fmt.Errorf("update talent: %w", err)
	}
	stored.Name = name
	stored.ProgressTarget = t.ProgressTarget
	stored.WhiteStars = t.WhiteStars

	updated, err := s.talents.Update(ctx, stored)
	if err != nil {
		return model.Talent{}, fmt.Errorf("update talent: %w", err)
	}
	s.notify(ctx, model.ChangeTalentUpdated, updated.ID)
	return updated, nil
}

// DeleteTalent removes a talent. If it is incubating, its session is
// saved and stopped first. Its sessions are kept.
func (s *Service) DeleteTalent(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pair, ok := s.activePair(); ok && pair.Talent.ID == id {
		if _, err := s.saveThenStop(ctx); err != nil {
			return fmt.Errorf("delete talent: stop: %w", err)
		}
	}
	if err := s.talents.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete talent: %w", err)
	}
	s.logger.Info(ctx, "talent deleted", logger.Int64("talent_id", id))
	s.notify(ctx, model.ChangeTalentDeleted, id)
	return nil
}
