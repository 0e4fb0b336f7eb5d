package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	worker "github.com/okian/hatch/internal/adapters/mq/worker"
	"github.com/okian/hatch/internal/domain/failure"
	model "github.com/okian/hatch/internal/domain/model"
	logging "github.com/okian/hatch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	_ = logging.Init()
	goleak.VerifyTestMain(m)
}

// Mock implementations for testing.
type mockQueue struct {
	changes chan model.Change
}

func newMockQueue() *mockQueue {
	return &mockQueue{changes: make(chan model.Change, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan model.Change {
	return mq.changes
}

type mockEvaluator struct {
	mu    sync.Mutex
	calls int
	err   error
	ran   chan struct{}
}

func newMockEvaluator() *mockEvaluator {
	return &mockEvaluator{ran: make(chan struct{}, 100)}
}

func (me *mockEvaluator) Evaluate(context.Context) error {
	me.mu.Lock()
	me.calls++
	err := me.err
	me.mu.Unlock()
	me.ran <- struct{}{}
	return err
}

func (me *mockEvaluator) count() int {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.calls
}

type mockPoller struct {
	mu    sync.Mutex
	polls int
	err   error
	ran   chan struct{}
}

func (mp *mockPoller) PollSession(context.Context) (*model.Pair, error) {
	mp.mu.Lock()
	mp.polls++
	err := mp.err
	mp.mu.Unlock()
	mp.ran <- struct{}{}
	return nil, err
}

func waitTicker(fc *clockwork.FakeClock) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = fc.BlockUntilContext(ctx, 1)
}

func waitRun(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-time.After(time.Second):
		return false
	}
}

func TestEvaluationWorker(t *testing.T) {
	convey.Convey("Given a running evaluation worker", t, func() {
		fc := clockwork.NewFakeClockAt(time.Date(2020, time.April, 21, 3, 59, 0, 0, time.UTC))
		q := newMockQueue()
		ev := newMockEvaluator()
		w := worker.NewEvaluationWorker(q, ev,
			worker.WithClock(fc),
			worker.WithInterval(time.Minute),
			worker.WithName("test-evaluator"),
		)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)
		waitTicker(fc)

		convey.Convey("When a change arrives", func() {
			q.changes <- model.Change{Kind: model.ChangeTalentCreated, TalentID: 1}

			convey.Convey("Then the population is evaluated", func() {
				convey.So(waitRun(ev.ran), convey.ShouldBeTrue)
				convey.So(ev.count(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the evaluation interval elapses", func() {
			fc.Advance(time.Minute)

			convey.Convey("Then the population is evaluated without a change", func() {
				convey.So(waitRun(ev.ran), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When evaluation fails", func() {
			ev.mu.Lock()
			ev.err = failure.NewKind("streak.evaluate", failure.ErrUnterminatedSession)
			ev.mu.Unlock()
			q.changes <- model.Change{Kind: model.ChangeSessionStopped}
			convey.So(waitRun(ev.ran), convey.ShouldBeTrue)

			convey.Convey("Then the worker keeps running", func() {
				q.changes <- model.Change{Kind: model.ChangeSessionStarted}
				convey.So(waitRun(ev.ran), convey.ShouldBeTrue)
				convey.So(ev.count(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()

			convey.Convey("Then it stops gracefully and twice is harmless", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(fc.BlockUntilContext(shutdownCtx, 0), convey.ShouldBeNil)
			})
		})

		convey.Reset(func() {
			cancel()
			ctx, stop := context.WithTimeout(context.Background(), time.Second)
			defer stop()
			_ = w.Shutdown(ctx)
		})
	})

	convey.Convey("Given the queue is closed", t, func() {
		q := newMockQueue()
		w := worker.NewEvaluationWorker(q, newMockEvaluator(), worker.WithClock(clockwork.NewFakeClockAt(time.Unix(0, 0))))
		close(q.changes)

		convey.Convey("Then Run returns on its own", func() {
			done := make(chan struct{})
			go func() {
				w.Run(context.Background())
				close(done)
			}()
			convey.So(waitRun(done), convey.ShouldBeTrue)
		})
	})
}

func TestEvaluationWorker_Coalesces(t *testing.T) {
	convey.Convey("Given a burst of changes queued before the worker starts", t, func() {
		fc := clockwork.NewFakeClockAt(time.Unix(0, 0))
		q := newMockQueue()
		for i := 0; i < 5; i++ {
			q.changes <- model.Change{Kind: model.ChangeTalentUpdated, TalentID: int64(i)}
		}
		ev := newMockEvaluator()
		w := worker.NewEvaluationWorker(q, ev, worker.WithClock(fc))

		ctx, cancel := context.WithCancel(context.Background())
		go w.Run(ctx)
		convey.So(waitRun(ev.ran), convey.ShouldBeTrue)
		cancel()
		convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)

		convey.Convey("Then they cost a single evaluation", func() {
			convey.So(ev.count(), convey.ShouldEqual, 1)
		})
	})
}

func TestIncubationPoller(t *testing.T) {
	convey.Convey("Given a running incubation poller", t, func() {
		fc := clockwork.NewFakeClockAt(time.Unix(0, 0))
		mp := &mockPoller{ran: make(chan struct{}, 100)}
		p := worker.NewIncubationPoller(mp, worker.WithClock(fc))

		ctx, cancel := context.WithCancel(context.Background())
		go p.Run(ctx)
		waitTicker(fc)

		convey.Convey("When 200ms pass", func() {
			fc.Advance(200 * time.Millisecond)

			convey.Convey("Then the incubation is polled once", func() {
				convey.So(waitRun(mp.ran), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When less than an interval passes", func() {
			fc.Advance(199 * time.Millisecond)

			convey.Convey("Then nothing is polled", func() {
				convey.So(waitRun(mp.ran), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When a poll fails", func() {
			mp.mu.Lock()
			mp.err = errors.New("store unavailable")
			mp.mu.Unlock()
			fc.Advance(200 * time.Millisecond)
			convey.So(waitRun(mp.ran), convey.ShouldBeTrue)

			convey.Convey("Then polling continues on the next tick", func() {
				fc.Advance(200 * time.Millisecond)
				convey.So(waitRun(mp.ran), convey.ShouldBeTrue)
			})
		})

		convey.Reset(func() {
			cancel()
			_ = p.Shutdown(context.Background())
		})
	})
}
