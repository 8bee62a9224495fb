package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pavitra93/gym-tenant-system/shared/analytics"
	"github.com/pavitra93/gym-tenant-system/shared/checkins"
	"github.com/pavitra93/gym-tenant-system/shared/clock"
	"github.com/pavitra93/gym-tenant-system/shared/config"
	"github.com/pavitra93/gym-tenant-system/shared/events"
	"github.com/pavitra93/gym-tenant-system/shared/metrics"
	"github.com/pavitra93/gym-tenant-system/shared/store"
	"github.com/pavitra93/gym-tenant-system/shared/students"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

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

	// Leases need Redis; without it two replicas could sweep at once.
	redisClient, err := utils.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		logrus.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	cache := utils.NewCache(redisClient, "sweeper")

	producer := events.NewKafkaProducer(cfg.KafkaBroker, cfg.KafkaTopic, logrus.StandardLogger())
	defer producer.Close()

	sys := clock.System{}
	log := logrus.StandardLogger()
	js := &jobSet{
		students: students.NewLifecycle(st, students.Config{
			Clock:       sys,
			Zones:       zones,
			Publisher:   producer,
			Logger:      log,
			ReadRetries: cfg.ReadRetryAttempts,
		}),
		analytics: analytics.NewAggregator(st, cache, analytics.Config{Clock: sys, Zones: zones, Logger: log}),
		checkins:  checkins.NewLedger(st, sys, zones, log),
		clock:     sys,
		settings: jobSettings{
			SweepRule:         cfg.SweepSchedule,
			ReminderWindow:    cfg.ExpiryReminderWindow,
			CheckInRetention:  cfg.CheckInRetention,
			SnapshotRetention: cfg.SnapshotRetention,
		},
		log: log,
	}

	hostname, _ := os.Hostname()
	holder := fmt.Sprintf("%s-%s", hostname, uuid.NewString())
	scheduler := NewScheduler(cache, holder, cfg.SweepLeaseTTL, sys, zones.Fallback(), log)
	if err := js.register(scheduler); err != nil {
		logrus.Fatalf("Failed to register jobs: %v", err)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Sweeper is healthy", nil)
	})
	router.GET("/metrics", metrics.Handler())
	router.GET("/jobs", func(c *gin.Context) {
		utils.OKResponse(c, "Jobs retrieved successfully", scheduler.Status())
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return utils.RunServer(gctx, "Sweeper", ":"+cfg.SweeperPort, router) })
	if err := g.Wait(); err != nil {
		logrus.Fatalf("Sweeper stopped: %v", err)
	}
}
