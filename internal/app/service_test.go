package service_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/okian/hatch/internal/adapters/repository"
	service "github.com/okian/hatch/internal/app"
	"github.com/okian/hatch/internal/domain/failure"
	"github.com/okian/hatch/internal/domain/model"
	"github.com/okian/hatch/internal/domain/streak"
	"github.com/okian/hatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var morning = time.Date(2020, time.April, 21, 8, 0, 0, 0, time.UTC)

type fixture struct {
	clock    *clockwork.FakeClock
	talents  *repository.MemoryTalentStore
	sessions *repository.MemorySessionStore
	svc      *service.Service
}

func newFixture(opts ...service.Option) fixture {
	fc := clockwork.NewFakeClockAt(morning)
	talents := repository.NewMemoryTalentStore()
	sessions := repository.NewMemorySessionStore(repository.WithClock(fc))
	base := []service.Option{
		service.WithClock(fc),
		service.WithStores(talents, sessions),
		service.WithEvaluator(streak.NewEvaluator(streak.WithLocation(time.UTC))),
		service.WithUserID(7),
	}
	return fixture{
		clock:    fc,
		talents:  talents,
		sessions: sessions,
		svc:      service.New(append(base, opts...)...),
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-7 }

func TestService_Talents(t *testing.T) {
	Convey("Given a service", t, func() {
		ctx := context.Background()
		f := newFixture(service.WithDefaultProgressTarget(12))

		Convey("When a talent is created without a target", func() {
			talent, err := f.svc.NewTalent(ctx, "  Programming ", 0)
			So(err, ShouldBeNil)

			Convey("Then it gets the defaults", func() {
				want := model.NewTalent(0, "Programming", 7, 12)
				So(cmp.Diff(want, talent), ShouldBeEmpty)
			})
		})

		Convey("When a talent is created without a name", func() {
			_, err := f.svc.NewTalent(ctx, "   ", 7)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, service.ErrInvalidTalent), ShouldBeTrue)
			})
		})

		Convey("When a talent is updated", func() {
			talent, err := f.svc.NewTalent(ctx, "Music Creation", 7)
			So(err, ShouldBeNil)
			stored := talent
			stored.Progress = 0.5
			stored.TotalSeconds = 12600
			stored.StreakObtained = true
			_, err = f.talents.Update(ctx, stored)
			So(err, ShouldBeNil)

			edit := talent
			edit.Name = "Music"
			edit.ProgressTarget = 9
			edit.WhiteStars = 3
			edit.Progress = 99
			edit.Expiring = true
			got, err := f.svc.UpdateTalent(ctx, edit)
			So(err, ShouldBeNil)

			Convey("Then only the editable fields change", func() {
				So(got.Name, ShouldEqual, "Music")
				So(got.ProgressTarget, ShouldEqual, 9)
				So(got.WhiteStars, ShouldEqual, 3)
				So(got.Progress, ShouldEqual, 0.5)
				So(got.TotalSeconds, ShouldEqual, 12600)
				So(got.StreakObtained, ShouldBeTrue)
				So(got.Expiring, ShouldBeFalse)
			})

			Convey("Then invalid edits are rejected", func() {
				edit.ProgressTarget = 0
				_, err := f.svc.UpdateTalent(ctx, edit)
				So(errors.Is(err, service.ErrInvalidTalent), ShouldBeTrue)
			})
		})

		Convey("When an unknown talent is touched", func() {
			_, err := f.svc.GetTalent(ctx, 42)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			So(errors.Is(f.svc.DeleteTalent(ctx, 42), repository.ErrNotFound), ShouldBeTrue)
			_, err = f.svc.StartSession(ctx, 42)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_Sessions(t *testing.T) {
	Convey("Given a talent with a seven hour target", t, func() {
		ctx := context.Background()
		f := newFixture()
		coding, err := f.svc.NewTalent(ctx, "Programming", 7)
		So(err, ShouldBeNil)

		Convey("When nothing is incubating", func() {
			Convey("Then polling reports nothing", func() {
				pair, err := f.svc.PollSession(ctx)
				So(err, ShouldBeNil)
				So(pair, ShouldBeNil)
			})

			Convey("Then stopping is an inactive incubation", func() {
				_, err := f.svc.StopSession(ctx)
				So(failure.Classify(err), ShouldEqual, failure.KindInactiveIncubation)
			})

			Convey("Then there is no active session", func() {
				_, ok := f.svc.ActiveSession()
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a session is started and polled after one second", func() {
			started, err := f.svc.StartSession(ctx, coding.ID)
			So(err, ShouldBeNil)
			f.clock.Advance(time.Second)
			pair, err := f.svc.PollSession(ctx)
			So(err, ShouldBeNil)

			Convey("Then one second of accrual is persisted", func() {
				So(near(pair.Talent.Progress, 1.0/(7*3600)), ShouldBeTrue)
				So(pair.Talent.TotalSeconds, ShouldEqual, 1)
				So(near(pair.Session.ProgressObtained, 1.0/(7*3600)), ShouldBeTrue)

				stored, err := f.talents.Get(ctx, coding.ID)
				So(err, ShouldBeNil)
				So(near(stored.Progress, 1.0/(7*3600)), ShouldBeTrue)
				session, err := f.sessions.Get(ctx, started.Session.ID)
				So(err, ShouldBeNil)
				So(session.Open(), ShouldBeTrue)
			})

			Convey("Then the active session is reported", func() {
				active, ok := f.svc.ActiveSession()
				So(ok, ShouldBeTrue)
				So(active.Talent.ID, ShouldEqual, coding.ID)
				So(active.Session.ID, ShouldEqual, started.Session.ID)
			})

			Convey("Then stopping finalizes the session at now", func() {
				f.clock.Advance(time.Hour)
				done, err := f.svc.StopSession(ctx)
				So(err, ShouldBeNil)
				d, ok := done.Duration()
				So(ok, ShouldBeTrue)
				So(d, ShouldEqual, time.Hour+time.Second)

				stored, err := f.talents.Get(ctx, coding.ID)
				So(err, ShouldBeNil)
				So(stored.TotalSeconds, ShouldEqual, 3601)

				_, ok = f.svc.ActiveSession()
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When another talent is started while one incubates", func() {
			music, err := f.svc.NewTalent(ctx, "Music Creation", 14)
			So(err, ShouldBeNil)
			first, err := f.svc.StartSession(ctx, coding.ID)
			So(err, ShouldBeNil)
			f.clock.Advance(30 * time.Minute)

			second, err := f.svc.StartSession(ctx, music.ID)
			So(err, ShouldBeNil)

			Convey("Then the first is saved before the switch", func() {
				prev, err := f.sessions.Get(ctx, first.Session.ID)
				So(err, ShouldBeNil)
				d, ok := prev.Duration()
				So(ok, ShouldBeTrue)
				So(d, ShouldEqual, 30*time.Minute)
				So(near(prev.ProgressObtained, 1800.0/(7*3600)), ShouldBeTrue)

				stored, err := f.talents.Get(ctx, coding.ID)
				So(err, ShouldBeNil)
				So(stored.TotalSeconds, ShouldEqual, 1800)
			})

			Convey("Then the second is incubating", func() {
				active, ok := f.svc.ActiveSession()
				So(ok, ShouldBeTrue)
				So(active.Talent.ID, ShouldEqual, music.ID)
				So(active.Session.ID, ShouldEqual, second.Session.ID)
			})
		})

		Convey("When the incubating talent is restarted", func() {
			_, err := f.svc.StartSession(ctx, coding.ID)
			So(err, ShouldBeNil)
			f.clock.Advance(time.Hour)
			_, err = f.svc.StartSession(ctx, coding.ID)
			So(err, ShouldBeNil)
			f.clock.Advance(time.Hour)
			pair, err := f.svc.PollSession(ctx)
			So(err, ShouldBeNil)

			Convey("Then lifetime seconds carry across sessions", func() {
				So(pair.Talent.TotalSeconds, ShouldEqual, 7200)
				all, err := f.svc.ListSessions(ctx, &coding.ID)
				So(err, ShouldBeNil)
				So(all, ShouldHaveLength, 2)
			})
		})

		Convey("When the incubating talent is deleted", func() {
			started, err := f.svc.StartSession(ctx, coding.ID)
			So(err, ShouldBeNil)
			f.clock.Advance(10 * time.Minute)
			So(f.svc.DeleteTalent(ctx, coding.ID), ShouldBeNil)

			Convey("Then its session is stopped and kept", func() {
				_, ok := f.svc.ActiveSession()
				So(ok, ShouldBeFalse)
				session, err := f.svc.GetSession(ctx, started.Session.ID)
				So(err, ShouldBeNil)
				So(session.Open(), ShouldBeFalse)
				_, err = f.svc.GetTalent(ctx, coding.ID)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_Evaluate(t *testing.T) {
	Convey("Given a service with talents", t, func() {
		ctx := context.Background()
		f := newFixture()
		coding, err := f.svc.NewTalent(ctx, "Programming", 7)
		So(err, ShouldBeNil)
		music, err := f.svc.NewTalent(ctx, "Music Creation", 7)
		So(err, ShouldBeNil)

		Convey("When there are no sessions", func() {
			res, err := f.svc.RunEvaluation(ctx)

			Convey("Then nothing is evaluated", func() {
				So(err, ShouldBeNil)
				So(res, ShouldBeNil)
			})
		})

		Convey("When a talent practiced for thirty minutes this morning", func() {
			_, err := f.svc.StartSession(ctx, coding.ID)
			So(err, ShouldBeNil)
			f.clock.Advance(30 * time.Minute)
			_, err = f.svc.StopSession(ctx)
			So(err, ShouldBeNil)

			res, err := f.svc.RunEvaluation(ctx)
			So(err, ShouldBeNil)

			Convey("Then its streak is obtained and persisted", func() {
				So(res, ShouldNotBeNil)
				stored, err := f.talents.Get(ctx, coding.ID)
				So(err, ShouldBeNil)
				So(stored.StreakObtained, ShouldBeTrue)
				So(stored.Expiring, ShouldBeFalse)

				other, err := f.talents.Get(ctx, music.ID)
				So(err, ShouldBeNil)
				So(other.StreakObtained, ShouldBeFalse)
			})

			Convey("Then the streak rolls over at the next waking day and expires after 28h", func() {
				f.clock.Advance(28 * time.Hour)
				_, err := f.svc.RunEvaluation(ctx)
				So(err, ShouldBeNil)
				stored, err := f.talents.Get(ctx, coding.ID)
				So(err, ShouldBeNil)
				So(stored.StreakObtained, ShouldBeFalse)
				So(stored.Expiring, ShouldBeTrue)
			})

			Convey("Then the incubating session does not break evaluation", func() {
				_, err := f.svc.StartSession(ctx, music.ID)
				So(err, ShouldBeNil)
				f.clock.Advance(time.Hour)
				_, err = f.svc.RunEvaluation(ctx)
				So(err, ShouldBeNil)
			})
		})

		Convey("When an open session exists outside the incubation", func() {
			_, err := f.sessions.Exchange(ctx, music)
			So(err, ShouldBeNil)
			before, err := f.svc.ListTalents(ctx)
			So(err, ShouldBeNil)

			_, err = f.svc.RunEvaluation(ctx)

			Convey("Then evaluation fails and nothing is written", func() {
				So(failure.Classify(err), ShouldEqual, failure.KindUnterminatedSession)
				So(f.svc.Evaluate(ctx), ShouldNotBeNil)
				after, err := f.svc.ListTalents(ctx)
				So(err, ShouldBeNil)
				So(cmp.Diff(before, after), ShouldBeEmpty)
			})
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a store holding a session left open by a previous run", t, func() {
		ctx := context.Background()
		f := newFixture(service.WithPollInterval(time.Second), service.WithEvaluateInterval(time.Hour))
		coding, err := f.talents.Create(ctx, model.NewTalent(0, "Programming", 7, 1))
		So(err, ShouldBeNil)
		orphan, err := f.sessions.Exchange(ctx, coding)
		So(err, ShouldBeNil)
		orphan.ProgressObtained = 0.25
		_, err = f.sessions.Update(ctx, orphan)
		So(err, ShouldBeNil)

		Convey("When the service starts", func() {
			So(f.svc.Start(ctx), ShouldBeNil)
			So(f.svc.Start(ctx), ShouldBeNil)

			Convey("Then the orphan ends at its last persisted accrual", func() {
				got, err := f.sessions.Get(ctx, orphan.ID)
				So(err, ShouldBeNil)
				d, ok := got.Duration()
				So(ok, ShouldBeTrue)
				So(d, ShouldEqual, 15*time.Minute)
			})

			Convey("Then the stats report a running service", func() {
				stats := f.svc.GetStats(ctx)
				So(stats["started"], ShouldEqual, true)
				So(stats["incubating"], ShouldEqual, false)
				So(stats["totalTalents"], ShouldEqual, 1)
				So(stats["totalSessions"], ShouldEqual, 1)
			})

			Convey("Then stopping saves the active incubation", func() {
				started, err := f.svc.StartSession(ctx, coding.ID)
				So(err, ShouldBeNil)
				So(f.svc.GetStats(ctx)["activeTalentId"], ShouldEqual, coding.ID)
				f.clock.Advance(20 * time.Minute)

				So(f.svc.Stop(ctx), ShouldBeNil)
				got, err := f.sessions.Get(ctx, started.Session.ID)
				So(err, ShouldBeNil)
				So(got.Open(), ShouldBeFalse)
				So(errors.Is(f.svc.Stop(ctx), service.ErrNotStarted), ShouldBeTrue)
			})

			Reset(func() {
				_ = f.svc.Stop(ctx)
			})
		})
	})
}

func TestService_Restart(t *testing.T) {
	Convey("Given a talent that reached its daily streak", t, func() {
		ctx := context.Background()
		f := newFixture(service.WithPollInterval(time.Second), service.WithEvaluateInterval(time.Hour))
		coding, err := f.svc.NewTalent(ctx, "Programming", 7)
		So(err, ShouldBeNil)
		_, err = f.svc.StartSession(ctx, coding.ID)
		So(err, ShouldBeNil)
		f.clock.Advance(40 * time.Minute)
		_, err = f.svc.StopSession(ctx)
		So(err, ShouldBeNil)
		res, err := f.svc.RunEvaluation(ctx)
		So(err, ShouldBeNil)
		So(res.Talents[0].StreakObtained, ShouldBeTrue)

		Convey("When the service is started, stopped and started again", func() {
			So(f.svc.Start(ctx), ShouldBeNil)
			So(f.svc.Stop(ctx), ShouldBeNil)
			So(f.svc.Start(ctx), ShouldBeNil)

			waitCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()

			Convey("Then both workers run again", func() {
				So(f.clock.BlockUntilContext(waitCtx, 2), ShouldBeNil)
				So(f.svc.GetStats(ctx)["started"], ShouldEqual, true)
			})

			Convey("Then the periodic evaluation rolls the streak over the next day", func() {
				So(f.clock.BlockUntilContext(waitCtx, 2), ShouldBeNil)
				f.clock.Advance(24*time.Hour + 30*time.Minute)

				rolled := false
				for !rolled && waitCtx.Err() == nil {
					got, err := f.svc.GetTalent(ctx, coding.ID)
					So(err, ShouldBeNil)
					rolled = !got.StreakObtained
					time.Sleep(5 * time.Millisecond)
				}
				So(rolled, ShouldBeTrue)
			})

			Reset(func() {
				_ = f.svc.Stop(ctx)
			})
		})
	})
}

type failingTalents struct {
	*repository.MemoryTalentStore
	err error
}

func (f failingTalents) UpdateAll(context.Context, []model.Talent) error { return f.err }

func TestService_EvaluatePersistFailure(t *testing.T) {
	Convey("Given a talent store that refuses batch writes", t, func() {
		ctx := context.Background()
		base := newFixture()
		diskFull := errors.New("disk full")
		svc := service.New(
			service.WithClock(base.clock),
			service.WithStores(failingTalents{MemoryTalentStore: base.talents, err: diskFull}, base.sessions),
			service.WithEvaluator(streak.NewEvaluator(streak.WithLocation(time.UTC))),
		)
		coding, err := svc.NewTalent(ctx, "Programming", 7)
		So(err, ShouldBeNil)
		_, err = svc.StartSession(ctx, coding.ID)
		So(err, ShouldBeNil)
		base.clock.Advance(40 * time.Minute)
		_, err = svc.StopSession(ctx)
		So(err, ShouldBeNil)
		before, err := svc.ListTalents(ctx)
		So(err, ShouldBeNil)

		Convey("When an evaluation moves a streak flag", func() {
			res, err := svc.RunEvaluation(ctx)

			Convey("Then it fails and no talent is written", func() {
				So(errors.Is(err, diskFull), ShouldBeTrue)
				So(res, ShouldBeNil)
				after, err := svc.ListTalents(ctx)
				So(err, ShouldBeNil)
				So(cmp.Diff(before, after), ShouldBeEmpty)
				So(after[0].StreakObtained, ShouldBeFalse)
			})
		})
	})
}

func TestService_RecoverRetargetedSession(t *testing.T) {
	Convey("Given a run that crashed after retargeting its incubating talent", t, func() {
		ctx := context.Background()
		f := newFixture(service.WithPollInterval(time.Second), service.WithEvaluateInterval(time.Hour))
		coding, err := f.svc.NewTalent(ctx, "Programming", 1)
		So(err, ShouldBeNil)
		started, err := f.svc.StartSession(ctx, coding.ID)
		So(err, ShouldBeNil)
		f.clock.Advance(15 * time.Minute)
		_, err = f.svc.PollSession(ctx)
		So(err, ShouldBeNil)
		coding.ProgressTarget = 4
		_, err = f.svc.UpdateTalent(ctx, coding)
		So(err, ShouldBeNil)
		f.clock.Advance(2 * time.Hour)

		Convey("When a new service starts over the same stores", func() {
			next := service.New(
				service.WithClock(f.clock),
				service.WithStores(f.talents, f.sessions),
				service.WithPollInterval(time.Second),
				service.WithEvaluateInterval(time.Hour),
			)
			So(next.Start(ctx), ShouldBeNil)

			Convey("Then the session ends at its accrual under the target it opened with", func() {
				got, err := f.sessions.Get(ctx, started.Session.ID)
				So(err, ShouldBeNil)
				So(got.ProgressTarget, ShouldEqual, 1)
				d, ok := got.Duration()
				So(ok, ShouldBeTrue)
				So(d.Seconds(), ShouldAlmostEqual, 900, 1e-3)
			})

			Reset(func() {
				_ = next.Stop(ctx)
			})
		})
	})
}
