package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pavitra93/gym-tenant-system/shared/clock"
	"github.com/pavitra93/gym-tenant-system/shared/config"
	"github.com/pavitra93/gym-tenant-system/shared/metrics"
	"github.com/pavitra93/gym-tenant-system/shared/notify"
	"github.com/pavitra93/gym-tenant-system/shared/store"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

const retryInterval = 30 * time.Second

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

	sender, err := notify.NewSESSender(cfg.SESRegion, cfg.SESSender)
	if err != nil {
		logrus.Fatalf("Failed to create SES sender: %v", err)
	}
	renderer, err := notify.NewRenderer()
	if err != nil {
		logrus.Fatalf("Failed to load email templates: %v", err)
	}

	log := logrus.StandardLogger()
	notifier := notify.NewNotifier(sender, renderer, st, st, notify.Config{
		Clock:      clock.System{},
		Zones:      zones,
		Logger:     log,
		MaxRetries: cfg.NotificationRetries,
	})
	consumer := notify.NewKafkaConsumer(cfg.KafkaBroker, cfg.KafkaTopic, cfg.KafkaGroupID, notifier, log)
	defer consumer.Close()
	retries := &retryLoop{notifier: notifier, interval: retryInterval, log: log}

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Notifier is healthy", nil)
	})
	router.GET("/metrics", metrics.Handler())
	router.GET("/stats", func(c *gin.Context) {
		stats, err := notifier.Stats(c.Request.Context())
		if err != nil {
			utils.DomainErrorResponse(c, err)
			return
		}
		utils.OKResponse(c, "Notification stats retrieved successfully", gin.H{
			"failures": stats,
			"breaker":  sender.Breaker(),
		})
	})

	logrus.WithFields(logrus.Fields{
		"topic": cfg.KafkaTopic,
		"group": cfg.KafkaGroupID,
	}).Info("Notifier starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error { return retries.Run(gctx) })
	g.Go(func() error { return utils.RunServer(gctx, "Notifier", ":"+cfg.NotifierPort, router) })
	if err := g.Wait(); err != nil {
		logrus.Fatalf("Notifier stopped: %v", err)
	}
}
