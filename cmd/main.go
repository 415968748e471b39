package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Capitan-Parrot/threatsnap/internal/api"
	"github.com/Capitan-Parrot/threatsnap/internal/config"
	"github.com/Capitan-Parrot/threatsnap/internal/database"
	"github.com/Capitan-Parrot/threatsnap/internal/frames"
	"github.com/Capitan-Parrot/threatsnap/internal/kafka"
	"github.com/Capitan-Parrot/threatsnap/internal/logger"
	"github.com/Capitan-Parrot/threatsnap/internal/metrics"
	"github.com/Capitan-Parrot/threatsnap/internal/recorder"
	"github.com/Capitan-Parrot/threatsnap/internal/s3"
	"github.com/Capitan-Parrot/threatsnap/internal/services/analysis"
	"github.com/Capitan-Parrot/threatsnap/internal/services/detection"
	"github.com/Capitan-Parrot/threatsnap/internal/services/notification"
	"github.com/Capitan-Parrot/threatsnap/internal/session"
	"github.com/Capitan-Parrot/threatsnap/internal/storage"
	"github.com/Capitan-Parrot/threatsnap/internal/watchdog"
)

const (
	module          = "main"
	shutdownTimeout = 10 * time.Second
	liveLogKeep     = 500
)

type evidenceStore interface {
	recorder.Store
	api.Evidence
}

func main() {
	// Чтение конфига
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Error(module, "load config: %v", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warn(module, "%v, using info", err)
		level = logger.INFO
	}
	logs := logger.New(level, os.Stderr, liveLogKeep)
	logger.SetDefault(logs)
	logger.Info(module, "init...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	// Хранилище улик: каталог или MinIO
	var (
		evidence evidenceStore
		buckets  frames.BucketOpener
	)
	if cfg.Minio.Enabled {
		minioClient, err := s3.NewMinioClient(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey)
		if err != nil {
			fatal("failed connect to MinIO: %v", err)
		}
		store, err := s3.NewEvidenceStore(ctx, minioClient, cfg.Minio.Bucket)
		if err != nil {
			fatal("init evidence bucket: %v", err)
		}
		evidence = store
		buckets = minioClient
	} else {
		store, err := storage.NewDirStore(cfg.Storage.Dir)
		if err != nil {
			fatal("init evidence dir: %v", err)
		}
		evidence = store
	}

	// Инициализация базы данных
	var (
		index    recorder.Index
		registry session.Registry
		history  api.History
	)
	if cfg.Postgres.DSN != "" {
		db, err := database.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			fatal("connect to postgres: %v", err)
		}
		defer db.Close()
		if err := db.Init(ctx); err != nil {
			fatal("init schema: %v", err)
		}
		index, registry, history = db, db, db

		// Горутина для закрытия зависших сессий
		go watchdog.New(db, cfg.Monitor.HeartbeatInterval).Start(ctx)
	}

	// Kafka: события сессий и удалённые команды
	var (
		events   recorder.EventSink
		consumer *kafka.Consumer
	)
	if cfg.KafkaEnabled() {
		if cfg.Kafka.EventTopic != "" {
			producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventTopic)
			if err != nil {
				fatal("failed to create Kafka producer: %v", err)
			}
			defer producer.Close()
			events = producer
		}
		if cfg.Kafka.CommandTopic != "" {
			consumer, err = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.CommandTopic)
			if err != nil {
				fatal("failed to create Kafka consumer: %v", err)
			}
			defer consumer.Close()
		}
	}

	detectClient := detection.NewClient(cfg.Detection.Endpoint, cfg.Detection.Timeout)
	analysisClient := analysis.NewClient(analysis.Config{
		BaseURL:     cfg.Analysis.BaseURL,
		APIKey:      cfg.Analysis.APIKey,
		Model:       cfg.Analysis.Model,
		Temperature: cfg.Analysis.Temperature,
		MaxTokens:   cfg.Analysis.MaxTokens,
		Timeout:     cfg.Analysis.Timeout,
	})

	var notifier recorder.Notifier
	if cfg.SMTPEnabled() {
		notifier = notification.NewMailer(notification.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, evidence)
	} else {
		logger.Warn(module, "smtp is not configured, e-mail alerts are disabled")
	}

	rec := recorder.New(evidence, analysisClient, notifier, index, events, m)

	var sessionEvents session.EventSink
	if events != nil {
		sessionEvents = events
	}

	opener := frames.NewOpener(cfg.Server.VideoDir, cfg.Monitor.FFmpegPath, cfg.Monitor.SampleFPS, buckets)
	controller := session.NewController(opener, session.Deps{
		Locator:  detectClient,
		Recorder: rec,
		Events:   sessionEvents,
		Metrics:  m,
	}, registry, session.Options{
		Threshold:         cfg.Monitor.MovementThreshold,
		Cooldown:          cfg.Monitor.Cooldown,
		FrameDelay:        cfg.Monitor.FrameDelay,
		HeartbeatInterval: cfg.Monitor.HeartbeatInterval,
	})

	if consumer != nil {
		consumer.StartListening(ctx)
		go controller.ListenAndRun(ctx, consumer)
	}

	// Настройка роутера
	handlers := api.NewHandlers(controller, evidence, opener, history, logs, m)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handlers.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(module, "starting API server on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("http server: %v", err)
		}
	}()

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info(module, "shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(module, "http shutdown: %v", err)
	}

	controller.Stop()
	cancel()
}

func fatal(format string, args ...any) {
	logger.Error(module, format, args...)
	os.Exit(1)
}
