// Package repository persists talents and sessions. It provides the
// talent-persistence and session-exchange services the progression core
// consumes, backed by memory or SQLite.
package repository

import (
	"context"

	"github.com/okian/hatch/internal/domain/model"
)

// TalentStore provides read/write access to talents. Implementations return
// copies: mutating a returned value never alters stored state.
type TalentStore interface {
	// Create stores t under a newly assigned id and returns the stored value.
	Create(ctx context.Context, t model.Talent) (model.Talent, error)
	// List returns every talent ordered by id.
	List(ctx context.Context) ([]model.Talent, error)
	// Get returns ErrNotFound if the talent is unknown.
	Get(ctx context.Context, id int64) (model.Talent, error)
	// Update replaces the stored talent with the same id.
	Update(ctx context.Context, t model.Talent) (model.Talent, error)
	// UpdateAll replaces every given talent, or none of them: it fails
	// with ErrNotFound and writes nothing if any id is unknown.
	UpdateAll(ctx context.Context, talents []model.Talent) error
	// Delete removes the talent. Its sessions are kept as history.
	Delete(ctx context.Context, id int64) error
	// Count returns the number of stored talents.
	Count(ctx context.Context) (int, error)
}

// SessionStore is the session-exchange service.
type SessionStore interface {
	// Exchange opens a new session for t starting now. It fails with
	// ErrOpenSession if t already has an open session.
	Exchange(ctx context.Context, t model.Talent) (model.Session, error)
	// Update replaces a stored session. A finalized session is never
	// modified again: updating one fails with ErrSessionClosed.
	Update(ctx context.Context, s model.Session) (model.Session, error)
	// Get returns ErrNotFound if the session is unknown.
	Get(ctx context.Context, id int64) (model.Session, error)
	// List returns every session ordered by id.
	List(ctx context.Context) ([]model.Session, error)
	// ListByTalent returns the sessions of one talent ordered by id.
	ListByTalent(ctx context.Context, talentID int64) ([]model.Session, error)
}
