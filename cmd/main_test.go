package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/hatch/internal/config"
	"github.com/okian/hatch/pkg/logger"
	"github.com/okian/hatch/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestNewService(t *testing.T) {
	convey.Convey("Given the default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()

		convey.Convey("When building the service over memory", func() {
			svc, closeStore, err := newService(ctx, cfg, logger.Get())
			convey.So(err, convey.ShouldBeNil)
			defer func() { _ = closeStore() }()

			convey.Convey("Then talents can be created", func() {
				talent, err := svc.NewTalent(ctx, "Programming", 0)
				convey.So(err, convey.ShouldBeNil)
				convey.So(talent.ProgressTarget, convey.ShouldEqual, cfg.DefaultProgressTarget)
			})
		})

		convey.Convey("When building the service over sqlite", func() {
			cfg.Store = config.StoreSQLite
			cfg.SQLitePath = filepath.Join(t.TempDir(), "hatch.db")
			svc, closeStore, err := newService(ctx, cfg, logger.Get())
			convey.So(err, convey.ShouldBeNil)

			_, err = svc.NewTalent(ctx, "Programming", 7)
			convey.So(err, convey.ShouldBeNil)
			convey.So(closeStore(), convey.ShouldBeNil)

			convey.Convey("Then talents survive reopening the store", func() {
				svc, closeStore, err := newService(ctx, cfg, logger.Get())
				convey.So(err, convey.ShouldBeNil)
				defer func() { _ = closeStore() }()
				talents, err := svc.ListTalents(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(talents, convey.ShouldHaveLength, 1)
				convey.So(talents[0].Name, convey.ShouldEqual, "Programming")
			})
		})

		convey.Convey("When the timezone cannot be loaded", func() {
			cfg.Timezone = "Nowhere/Special"
			_, _, err := newService(ctx, cfg, logger.Get())

			convey.Convey("Then building fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestNewHandler(t *testing.T) {
	convey.Convey("Given the composed HTTP handler", t, func() {
		ctx := context.Background()
		svc, closeStore, err := newService(ctx, config.New(), logger.Get())
		convey.So(err, convey.ShouldBeNil)
		defer func() { _ = closeStore() }()
		h := newHandler(ctx, svc)

		for _, path := range []string{"/talents", "/stats", "/healthz", "/api-docs", "/openapi.yaml"} {
			convey.Convey("Then GET "+path+" is served with a request id", func() {
				w := httptest.NewRecorder()
				h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("X-Request-ID"), convey.ShouldNotBeEmpty)
			})
		}
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a configuration on an ephemeral port", t, func() {
		cfg := config.New()
		cfg.Addr = "127.0.0.1:0"

		convey.Convey("When the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			convey.Convey("Then run shuts down cleanly", func() {
				convey.So(run(ctx, cfg), convey.ShouldBeNil)
			})
		})
	})
}

func TestApplyLogLevel(t *testing.T) {
	convey.Convey("Given an invalid log level", t, func() {
		convey.Convey("Then it falls back without panicking", func() {
			convey.So(func() {
				applyLogLevel(context.Background(), logger.Get(), "loud")
			}, convey.ShouldNotPanic)
			applyLogLevel(context.Background(), logger.Get(), "info")
		})
	})
}

func TestUpdateSystemMetrics(t *testing.T) {
	convey.Convey("When system metrics are updated", t, func() {
		updateSystemMetrics()

		convey.Convey("Then the goroutine gauge is exported", func() {
			n, err := testutil.GatherAndCount(metrics.GetRegistry())
			convey.So(err, convey.ShouldBeNil)
			convey.So(n, convey.ShouldBeGreaterThan, 0)

			families, err := metrics.GetRegistry().Gather()
			convey.So(err, convey.ShouldBeNil)
			found := false
			for _, f := range families {
				if strings.HasSuffix(f.GetName(), "goroutine_count") {
					found = true
				}
			}
			convey.So(found, convey.ShouldBeTrue)
		})
	})
}
