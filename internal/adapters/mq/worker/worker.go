// Package worker runs the background loops of the progression service:
// change-driven evaluation and periodic incubation polling.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/hatch/internal/domain/failure"
	"github.com/okian/hatch/internal/domain/model"
	"github.com/okian/hatch/pkg/logger"
	"github.com/okian/hatch/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultEvaluateInterval = time.Minute
	defaultPollInterval     = 200 * time.Millisecond
)

// Queue defines how the evaluation worker receives changes.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Change
}

// Evaluator runs one streak evaluation over the whole population.
type Evaluator interface {
	Evaluate(ctx context.Context) error
}

// Poller polls the active incubation and persists its accrual. It returns
// a nil pair when nothing is incubating.
type Poller interface {
	PollSession(ctx context.Context) (*model.Pair, error)
}

// Worker is a background loop.
type Worker interface {
	// Run starts the loop until ctx is canceled or Shutdown is called.
	Run(ctx context.Context)

	// Shutdown stops the loop and waits for it to return.
	Shutdown(ctx context.Context) error
}

// loop holds the shutdown plumbing shared by both workers.
type loop struct {
	settings
	stopOnce sync.Once
	shutdown chan struct{}
	done     chan struct{}
}

func newLoop(s settings) loop {
	return loop{
		settings: s,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Shutdown gracefully stops the worker.
func (l *loop) Shutdown(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.shutdown) })

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		l.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// EvaluationWorker re-evaluates streaks whenever a change arrives and on a
// fixed period, so flags roll over at the waking-day boundary even when
// nothing changes.
type EvaluationWorker struct {
	loop
	queue     Queue
	evaluator Evaluator
}

// NewEvaluationWorker creates a worker draining q into ev.
func NewEvaluationWorker(q Queue, ev Evaluator, opts ...Option) *EvaluationWorker {
	return &EvaluationWorker{
		loop:      newLoop(newSettings("evaluation-worker", defaultEvaluateInterval, opts)),
		queue:     q,
		evaluator: ev,
	}
}

// Run starts the worker loop.
func (w *EvaluationWorker) Run(ctx context.Context) {
	defer close(w.done)

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	changes := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			n := 1 + drain(changes)
			w.logger.Debug(ctx, "change received",
				logger.String("kind", string(c.Kind)),
				logger.Int64("talent_id", c.TalentID),
				logger.Int("coalesced", n),
			)
			w.evaluate(ctx)
		case <-ticker.Chan():
			w.evaluate(ctx)
		}
	}
}

// drain consumes changes that are already waiting so that a burst of
// mutations costs one evaluation.
func drain(changes <-chan model.Change) int {
	n := 0
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

func (w *EvaluationWorker) evaluate(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := w.evaluator.Evaluate(ctx); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", failure.Classify(err).String())
		w.logger.Error(ctx, "evaluation failed", logger.Error(err))
	}
}

// IncubationPoller polls the active incubation on a fixed period. Idle
// ticks are absorbed by the Poller; anything else it returns is logged and
// counted, and polling continues.
type IncubationPoller struct {
	loop
	poller Poller
}

// NewIncubationPoller creates a poller ticking every 200ms unless
// overridden with WithInterval.
func NewIncubationPoller(p Poller, opts ...Option) *IncubationPoller {
	return &IncubationPoller{
		loop:   newLoop(newSettings("incubation-poller", defaultPollInterval, opts)),
		poller: p,
	}
}

// Run starts the poll loop.
func (p *IncubationPoller) Run(ctx context.Context) {
	defer close(p.done)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.Chan():
			if _, err := p.poller.PollSession(ctx); err != nil {
				metrics.RecordWorkerError()
				metrics.RecordErrorByComponent("poller", failure.Classify(err).String())
				p.logger.Error(ctx, "poll failed", logger.Error(err))
			}
		}
	}
}
