package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/hatch/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.PollInterval, convey.ShouldEqual, 200*time.Millisecond)
			convey.So(cfg.EvaluateInterval, convey.ShouldEqual, time.Minute)
			convey.So(cfg.WakingDayHour, convey.ShouldEqual, 4)
			convey.So(cfg.HitThreshold, convey.ShouldEqual, 30*time.Minute)
			convey.So(cfg.ExpiryWindow, convey.ShouldEqual, 28*time.Hour)
			convey.So(cfg.DefaultProgressTarget, convey.ShouldEqual, 40)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the local zone is resolved", func() {
			loc, err := cfg.Location()
			convey.So(err, convey.ShouldBeNil)
			convey.So(loc, convey.ShouldEqual, time.Local)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid configurations", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":        func(c *config.Config) { c.Addr = "" },
			"unknown store":     func(c *config.Config) { c.Store = "redis" },
			"empty sqlite path": func(c *config.Config) { c.Store = config.StoreSQLite; c.SQLitePath = "" },
			"zero queue":        func(c *config.Config) { c.QueueSize = 0 },
			"zero poll":         func(c *config.Config) { c.PollInterval = 0 },
			"zero evaluate":     func(c *config.Config) { c.EvaluateInterval = 0 },
			"hour 24":           func(c *config.Config) { c.WakingDayHour = 24 },
			"negative hit":      func(c *config.Config) { c.HitThreshold = -time.Minute },
			"zero expiry":       func(c *config.Config) { c.ExpiryWindow = 0 },
			"zero target":       func(c *config.Config) { c.DefaultProgressTarget = 0 },
			"bad timezone":      func(c *config.Config) { c.Timezone = "Mars/Olympus_Mons" },
		}

		convey.Convey("Then each is rejected as invalid", func() {
			for _, mutate := range cases {
				cfg := config.New()
				mutate(cfg)
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			}
		})
	})
}
