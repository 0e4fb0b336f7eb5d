package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/hatch/internal/domain/model"
)

const memoryStore = "memory"

// MemoryTalentStore is an in-memory TalentStore. Ids are assigned
// sequentially from 0.
type MemoryTalentStore struct {
	mu      sync.RWMutex
	talents map[int64]model.Talent
	nextID  int64
}

// NewMemoryTalentStore creates an empty talent store.
func NewMemoryTalentStore() *MemoryTalentStore {
	return &MemoryTalentStore{talents: make(map[int64]model.Talent)}
}

// Create implements TalentStore.
func (s *MemoryTalentStore) Create(ctx context.Context, t model.Talent) (_ model.Talent, err error) {
	defer observe(memoryStore, "talent_create", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return model.Talent{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.nextID
	s.nextID++
	s.talents[t.ID] = t
	return t, nil
}

// List implements TalentStore.
func (s *MemoryTalentStore) List(ctx context.Context) (_ []model.Talent, err error) {
	defer observe(memoryStore, "talent_list", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Talent, 0, len(s.talents))
	for _, t := range s.talents {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get implements TalentStore.
func (s *MemoryTalentStore) Get(ctx context.Context, id int64) (_ model.Talent, err error) {
	defer observe(memoryStore, "talent_get", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return model.Talent{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.talents[id]
	if !ok {
		return model.Talent{}, fmt.Errorf("talent %d: %w", id, ErrNotFound)
	}
	return t, nil
}

// Update implements TalentStore.
func (s *MemoryTalentStore) Update(ctx context.Context, t model.Talent) (_ model.Talent, err error) {
	defer observe(memoryStore, "talent_update", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return model.Talent{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.talents[t.ID]; !ok {
		return model.Talent{}, fmt.Errorf("talent %d: %w", t.ID, ErrNotFound)
	}
	s.talents[t.ID] = t
	return t, nil
}

// UpdateAll implements TalentStore.
func (s *MemoryTalentStore) UpdateAll(ctx context.Context, talents []model.Talent) (err error) {
	defer observe(memoryStore, "talent_update_all", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range talents {
		if _, ok := s.talents[t.ID]; !ok {
			return fmt.Errorf("talent %d: %w", t.ID, ErrNotFound)
		}
	}
	for _, t := range talents {
		s.talents[t.ID] = t
	}
	return nil
}

// Delete implements TalentStore.
func (s *MemoryTalentStore) Delete(ctx context.Context, id int64) (err error) {
	defer observe(memoryStore, "talent_delete", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.talents[id]; !ok {
		return fmt.Errorf("talent %d: %w", id, ErrNotFound)
	}
	delete(s.talents, id)
	return nil
}

// Count implements TalentStore.
func (s *MemoryTalentStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.talents), nil
}

// MemorySessionStore is an in-memory SessionStore. Ids are assigned
// sequentially from 0.
type MemorySessionStore struct {
	mu       sync.RWMutex
	clock    clockwork.Clock
	sessions []model.Session // indexed by id
}

// NewMemorySessionStore creates an empty session store.
func NewMemorySessionStore(opts ...Option) *MemorySessionStore {
	o := buildOptions(opts)
	return &MemorySessionStore{clock: o.clock}
}

// Exchange implements SessionStore.
func (s *MemorySessionStore) Exchange(ctx context.Context, t model.Talent) (_ model.Session, err error) {
	defer observe(memoryStore, "session_exchange", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return model.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.TalentID == t.ID && existing.Open() {
			return model.Session{}, fmt.Errorf("talent %d session %d: %w", t.ID, existing.ID, ErrOpenSession)
		}
	}
	session := model.NewSession(int64(len(s.sessions)), t, s.clock.Now())
	s.sessions = append(s.sessions, session)
	return session.Clone(), nil
}

// Update implements SessionStore.
func (s *MemorySessionStore) Update(ctx context.Context, session model.Session) (_ model.Session, err error) {
	defer observe(memoryStore, "session_update", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return model.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID < 0 || session.ID >= int64(len(s.sessions)) {
		return model.Session{}, fmt.Errorf("session %d: %w", session.ID, ErrNotFound)
	}
	if !s.sessions[session.ID].Open() {
		return model.Session{}, fmt.Errorf("session %d: %w", session.ID, ErrSessionClosed)
	}
	s.sessions[session.ID] = session.Clone()
	return session.Clone(), nil
}

// Get implements SessionStore.
func (s *MemorySessionStore) Get(ctx context.Context, id int64) (_ model.Session, err error) {
	defer observe(memoryStore, "session_get", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return model.Session{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || id >= int64(len(s.sessions)) {
		return model.Session{}, fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	return s.sessions[id].Clone(), nil
}

// List implements SessionStore.
func (s *MemorySessionStore) List(ctx context.Context) (_ []model.Session, err error) {
	defer observe(memoryStore, "session_list", time.Now(), &err)
	return s.filter(ctx, func(model.Session) bool { return true })
}

// ListByTalent implements SessionStore.
func (s *MemorySessionStore) ListByTalent(ctx context.Context, talentID int64) (_ []model.Session, err error) {
	defer observe(memoryStore, "session_list_by_talent", time.Now(), &err)
	return s.filter(ctx, func(session model.Session) bool { return session.TalentID == talentID })
}

func (s *MemorySessionStore) filter(ctx context.Context, keep func(model.Session) bool) ([]model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if keep(session) {
			out = append(out, session.Clone())
		}
	}
	return out, nil
}
