package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pavitra93/gym-tenant-system/shared/analytics"
	"github.com/pavitra93/gym-tenant-system/shared/checkins"
	"github.com/pavitra93/gym-tenant-system/shared/clock"
	"github.com/pavitra93/gym-tenant-system/shared/config"
	"github.com/pavitra93/gym-tenant-system/shared/events"
	"github.com/pavitra93/gym-tenant-system/shared/limits"
	"github.com/pavitra93/gym-tenant-system/shared/middleware"
	"github.com/pavitra93/gym-tenant-system/shared/plans"
	"github.com/pavitra93/gym-tenant-system/shared/store"
	"github.com/pavitra93/gym-tenant-system/shared/students"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

const rateLimiterTTL = 3 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	if err := config.SetupLogging(cfg.Log); err != nil {
		logrus.Fatalf("Invalid logging configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zones, err := clock.NewZones(cfg.DefaultTimezone)
	if err != nil {
		logrus.Fatalf("Invalid default timezone: %v", err)
	}

	db, err := config.ConnectDatabase(cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	st := store.New(db, store.WithTimeout(cfg.StoreTimeout), store.WithLogger(logrus.StandardLogger()))
	if err := st.Migrate(); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	var cache *utils.Cache
	redisClient, err := utils.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		logrus.Warnf("Failed to connect to Redis, caching disabled: %v", err)
	} else {
		defer redisClient.Close()
		cache = utils.NewCache(redisClient, "gym")
	}

	producer := events.NewKafkaProducer(cfg.KafkaBroker, cfg.KafkaTopic, logrus.StandardLogger())
	defer producer.Close()

	sys := clock.System{}
	log := logrus.StandardLogger()
	h := &handlers{
		students: students.NewLifecycle(st, students.Config{
			Clock:       sys,
			Zones:       zones,
			Publisher:   producer,
			Logger:      log,
			ReadRetries: cfg.ReadRetryAttempts,
		}),
		plans:    plans.NewCatalog(st, sys, log),
		checkins: checkins.NewLedger(st, sys, zones, log),
		limits:   limits.NewPolicy(st, sys),
		clock:    sys,
	}
	aggCfg := analytics.Config{Clock: sys, Zones: zones, Logger: log, DashboardTTL: cfg.DashboardCacheTTL}
	var tokenCache middleware.TokenCache
	if cache != nil {
		h.analytics = analytics.NewAggregator(st, cache, aggCfg)
		tokenCache = cache
	} else {
		h.analytics = analytics.NewAggregator(st, nil, aggCfg)
	}

	authMiddleware, err := middleware.AuthFromConfig(cfg, tokenCache)
	if err != nil {
		logrus.Fatalf("Failed to initialize auth middleware: %v", err)
	}

	router := newRouter(h, routeDeps{
		auth:    authMiddleware,
		limiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, rateLimiterTTL),
		timeout: middleware.Timeout(cfg.RequestTimeout),
		ping:    st.Ping,
	})

	if err := utils.RunServer(ctx, "Gym service", ":"+cfg.GymPort, router); err != nil {
		logrus.Fatalf("Failed to start gym service: %v", err)
	}
}
