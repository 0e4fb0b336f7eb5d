package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/hatch/internal/adapters/http/api"
	service "github.com/okian/hatch/internal/app"
	"github.com/okian/hatch/internal/client"
	"github.com/okian/hatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newServer(fc clockwork.Clock) *httptest.Server {
	svc := service.New(service.WithClock(fc))
	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(context.Background(), mux)
	return httptest.NewServer(api.RequestIDMiddleware(mux))
}

func TestClient(t *testing.T) {
	Convey("Given a client talking to a live server", t, func() {
		ctx := context.Background()
		fc := clockwork.NewFakeClockAt(time.Date(2020, time.April, 21, 8, 0, 0, 0, time.UTC))
		srv := newServer(fc)
		defer srv.Close()
		c, err := client.New(srv.URL+"/", client.WithTimeout(time.Second))
		So(err, ShouldBeNil)

		Convey("When a talent is created", func() {
			talent, err := c.CreateTalent(ctx, "Programming", 7)
			So(err, ShouldBeNil)

			Convey("Then it is listed and readable", func() {
				talents, err := c.ListTalents(ctx)
				So(err, ShouldBeNil)
				So(talents, ShouldHaveLength, 1)
				got, err := c.GetTalent(ctx, talent.ID)
				So(err, ShouldBeNil)
				So(got.ProgressTarget, ShouldEqual, 7)
			})

			Convey("Then a session can be started, polled and stopped", func() {
				pair, err := c.StartSession(ctx, talent.ID)
				So(err, ShouldBeNil)
				So(pair.Session.Open(), ShouldBeTrue)

				fc.Advance(45 * time.Minute)
				polled, err := c.Incubation(ctx)
				So(err, ShouldBeNil)
				So(polled, ShouldNotBeNil)
				So(polled.Talent.TotalSeconds, ShouldEqual, 2700)

				done, err := c.StopSession(ctx)
				So(err, ShouldBeNil)
				So(done.Open(), ShouldBeFalse)

				sessions, err := c.ListSessions(ctx, &talent.ID)
				So(err, ShouldBeNil)
				So(sessions, ShouldHaveLength, 1)

				res, err := c.Evaluate(ctx)
				So(err, ShouldBeNil)
				So(res.Talents, ShouldHaveLength, 1)
				So(res.Talents[0].StreakObtained, ShouldBeTrue)
				So(res.Sessions, ShouldHaveLength, 1)
				So(res.Sessions[0].ID, ShouldEqual, done.ID)
			})

			Convey("Then it can be deleted", func() {
				So(c.DeleteTalent(ctx, talent.ID), ShouldBeNil)
				_, err := c.GetTalent(ctx, talent.ID)
				So(client.IsCode(err, "not_found"), ShouldBeTrue)
			})
		})

		Convey("When nothing is incubating", func() {
			Convey("Then polling returns nil", func() {
				pair, err := c.Incubation(ctx)
				So(err, ShouldBeNil)
				So(pair, ShouldBeNil)
			})

			Convey("Then stopping is an API error with the inactive code", func() {
				_, err := c.StopSession(ctx)
				var apiErr *client.APIError
				So(errors.As(err, &apiErr), ShouldBeTrue)
				So(apiErr.Status, ShouldEqual, http.StatusConflict)
				So(apiErr.Code, ShouldEqual, "inactive_incubation")
			})

			Convey("Then evaluating with no talents returns nil", func() {
				res, err := c.Evaluate(ctx)
				So(err, ShouldBeNil)
				So(res, ShouldBeNil)
			})

			Convey("Then stats are reported", func() {
				stats, err := c.Stats(ctx)
				So(err, ShouldBeNil)
				So(stats["incubating"], ShouldEqual, false)
			})
		})
	})

	Convey("Given bad base URLs", t, func() {
		for _, raw := range []string{"", "localhost", "://nope"} {
			_, err := client.New(raw)
			So(errors.Is(err, client.ErrInvalidURL), ShouldBeTrue)
		}
	})

	Convey("Given a server that is down", t, func() {
		srv := newServer(clockwork.NewRealClock())
		url := srv.URL
		srv.Close()
		c, err := client.New(url)
		So(err, ShouldBeNil)

		Convey("Then calls fail with a transport error", func() {
			_, err := c.ListTalents(context.Background())
			So(err, ShouldNotBeNil)
			So(client.IsCode(err, "not_found"), ShouldBeFalse)
		})
	})
}
