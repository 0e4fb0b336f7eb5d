// Package service wires the progression core to persistence and the
// background workers. It implements the dependencies required by the
// HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	eventqueue "github.com/okian/hatch/internal/adapters/mq/queue"
	"github.com/okian/hatch/internal/adapters/mq/worker"
	"github.com/okian/hatch/internal/adapters/repository"
	"github.com/okian/hatch/internal/domain/incubation"
	"github.com/okian/hatch/internal/domain/model"
	"github.com/okian/hatch/internal/domain/streak"
	"github.com/okian/hatch/pkg/logger"
	"github.com/okian/hatch/pkg/metrics"
)

// Default service configuration.
const (
	DefaultProgressTarget   = 40
	DefaultPollInterval     = 200 * time.Millisecond
	DefaultEvaluateInterval = time.Minute
)

// Service owns the single active incubation and keeps the derived streak
// fields of every talent current.
type Service struct {
	// mu serializes every operation that writes talents or sessions, so
	// an evaluation never interleaves with a poll.
	mu sync.Mutex

	talents   repository.TalentStore
	sessions  repository.SessionStore
	evaluator *streak.Evaluator
	clock     clockwork.Clock

	// queue is replaced by a fresh one from newQueue when Start follows
	// a Stop, which closes it.
	queue    eventqueue.Queue
	newQueue func() eventqueue.Queue

	// incubator is incubation.NullIncubator while no talent is selected.
	incubator incubation.Incubator

	defaultTarget    float64
	userID           int64
	pollInterval     time.Duration
	evaluateInterval time.Duration

	started bool
	cancel  context.CancelFunc
	workers []worker.Worker

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source shared by the engine, the evaluator and
// the workers.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithStores sets the talent and session stores.
func WithStores(talents repository.TalentStore, sessions repository.SessionStore) Option {
	return func(s *Service) {
		if talents != nil && sessions != nil {
			s.talents = talents
			s.sessions = sessions
		}
	}
}

// WithEvaluator sets the streak evaluator.
func WithEvaluator(e *streak.Evaluator) Option {
	return func(s *Service) {
		if e != nil {
			s.evaluator = e
		}
	}
}

// WithQueue sets the constructor of the change queue feeding the
// evaluation worker.
func WithQueue(newQueue func() eventqueue.Queue) Option {
	return func(s *Service) {
		if newQueue != nil {
			s.newQueue = newQueue
		}
	}
}

// WithDefaultProgressTarget sets the progress target of new talents, in hours.
func WithDefaultProgressTarget(hours float64) Option {
	return func(s *Service) {
		if hours > 0 {
			s.defaultTarget = hours
		}
	}
}

// WithUserID sets the owner stamped on new talents.
func WithUserID(id int64) Option {
	return func(s *Service) {
		s.userID = id
	}
}

// WithPollInterval sets the incubation poll period.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithEvaluateInterval sets the periodic re-evaluation period.
func WithEvaluateInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.evaluateInterval = d
		}
	}
}

// New constructs a Service. Without options it keeps everything in memory
// and reads the real clock.
func New(opts ...Option) *Service {
	s := &Service{
		clock:            clockwork.NewRealClock(),
		incubator:        incubation.NullIncubator,
		defaultTarget:    DefaultProgressTarget,
		pollInterval:     DefaultPollInterval,
		evaluateInterval: DefaultEvaluateInterval,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.talents == nil {
		s.talents = repository.NewMemoryTalentStore()
		s.sessions = repository.NewMemorySessionStore(repository.WithClock(s.clock))
	}
	if s.evaluator == nil {
		s.evaluator = streak.NewEvaluator()
	}
	if s.newQueue == nil {
		s.newQueue = func() eventqueue.Queue { return eventqueue.NewInMemoryQueue() }
	}
	s.queue = s.newQueue()
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// Start finalizes sessions left open by a previous run and starts the
// evaluation worker and the incubation poller.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting progression service...")

	if err := s.recoverOpenSessions(ctx); err != nil {
		return fmt.Errorf("recover open sessions: %w", err)
	}

	if s.queue.IsClosed() {
		s.queue = s.newQueue()
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.workers = []worker.Worker{
		worker.NewEvaluationWorker(s.queue, s,
			worker.WithClock(s.clock),
			worker.WithInterval(s.evaluateInterval),
			worker.WithLogger(s.logger),
		),
		worker.NewIncubationPoller(s,
			worker.WithClock(s.clock),
			worker.WithInterval(s.pollInterval),
			worker.WithLogger(s.logger),
		),
	}
	for _, w := range s.workers {
		go w.Run(runCtx)
	}

	s.started = true
	s.logger.Info(ctx, "progression service started",
		logger.Duration("pollInterval", s.pollInterval),
		logger.Duration("evaluateInterval", s.evaluateInterval),
		logger.Float64("defaultProgressTarget", s.defaultTarget),
	)

	// flags may be stale after downtime
	s.notify(ctx, model.ChangeServiceStarted, 0)
	return nil
}

// Stop shuts the workers down, saves and stops the active incubation so no
// session is left open, and closes the change queue. The service may be
// started again afterwards.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.started = false
	cancel, workers := s.cancel, s.workers
	s.cancel, s.workers = nil, nil
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping progression service...")

	cancel()
	var errs []error
	for _, w := range workers {
		if err := w.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	if s.incubator.IsIncubating() {
		if _, err := s.saveThenStop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.queue.Close(); err != nil {
		errs = append(errs, err)
	}
	s.mu.Unlock()

	s.logger.Info(ctx, "progression service stopped")
	return errors.Join(errs...)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.Lock()
	started := s.started
	pair, incubating := s.activePair()
	queued := s.queue.Len()
	s.mu.Unlock()

	stats := map[string]interface{}{
		"started":               started,
		"incubating":            incubating,
		"queueLength":           queued,
		"pollInterval":          s.pollInterval.String(),
		"evaluateInterval":      s.evaluateInterval.String(),
		"defaultProgressTarget": s.defaultTarget,
	}
	if incubating {
		stats["activeTalentId"] = pair.Talent.ID
		stats["activeSessionId"] = pair.Session.ID
	}

	if n, err := s.talents.Count(ctx); err == nil {
		stats["totalTalents"] = n
	}
	if all, err := s.sessions.List(ctx); err == nil {
		stats["totalSessions"] = len(all)
	}

	metrics.UpdateQueueSize(queued)
	return stats
}

// notify enqueues a change for the evaluation worker. A refused change is
// only logged: the periodic evaluation catches up. It must be called with
// mu held.
func (s *Service) notify(ctx context.Context, kind model.ChangeKind, talentID int64) {
	err := s.queue.Enqueue(ctx, model.Change{Kind: kind, TalentID: talentID, At: s.clock.Now()})
	switch {
	case err == nil:
	case errors.Is(err, eventqueue.ErrClosed):
		s.logger.Debug(ctx, "change dropped, queue closed", logger.String("kind", string(kind)))
	default:
		s.logger.Warn(ctx, "change dropped",
			logger.String("kind", string(kind)),
			logger.Int64("talent_id", talentID),
			logger.Error(err),
		)
	}
}
