// Guardline gateway: HTTP API, notification delivery worker, and the
// supporting Postgres/Redis/AWS plumbing for the SOS alert service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/guardline/guardline/internal/alert"
	"github.com/guardline/guardline/internal/api"
	"github.com/guardline/guardline/internal/circuitbreaker"
	"github.com/guardline/guardline/internal/config"
	"github.com/guardline/guardline/internal/db"
	"github.com/guardline/guardline/internal/dispatch"
	"github.com/guardline/guardline/internal/observ"
	"github.com/guardline/guardline/internal/redis"
	"github.com/guardline/guardline/internal/sns"
	"github.com/guardline/guardline/internal/sqs"
	"github.com/guardline/guardline/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting guardline gateway",
		zap.String("env", cfg.Env),
		zap.String("port", cfg.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Name,
		SSLMode:  cfg.DB.SSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer database.Close()

	repo := db.NewRepository(database, logger)

	redisClient, err := redis.New(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	idempotency := redis.NewIdempotencyStore(redisClient, logger)
	limiter := redis.NewRateLimiter(redisClient, cfg.SOS.RateLimit, cfg.SOS.RateLimitWindow, logger)

	dispatcher := dispatch.New(repo, logger)

	var events alert.EventPublisher
	if cfg.AWS.SQSQueueURL != "" {
		pub, err := sqs.NewPublisher(ctx, sqs.Config{
			QueueURL: cfg.AWS.SQSQueueURL,
			Region:   cfg.AWS.Region,
		}, logger)
		if err != nil {
			return fmt.Errorf("init sqs publisher: %w", err)
		}
		events = pub
	}

	var ops alert.OpsBroadcaster
	if cfg.AWS.SNSOpsTopic != "" {
		pub, err := sns.NewPublisher(ctx, sns.Config{
			OpsTopicARN: cfg.AWS.SNSOpsTopic,
			Region:      cfg.AWS.Region,
		}, logger)
		if err != nil {
			return fmt.Errorf("init sns publisher: %w", err)
		}
		ops = pub
	}

	engine := alert.New(repo, repo, dispatcher, nil, events, ops, alert.Config{
		LocationTimeout:       cfg.SOS.LocationTimeout,
		AllowEscalatedClosure: cfg.SOS.AllowEscalatedClosure,
	}, logger)

	sender, err := buildSender(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init senders: %w", err)
	}

	deliveryWorker := worker.New(repo, sender, worker.Config{
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
		MaxRetries:   cfg.Worker.MaxRetries,
	}, logger)

	handler := api.NewHandler(api.Config{
		Alerts:      engine,
		Deliveries:  dispatcher,
		Repo:        repo,
		Authz:       repo,
		Idempotency: idempotency,
		Limiter:     limiter,
		DBHealth:    database,
		RedisHealth: redisClient,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		deliveryWorker.Start(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn("delivery worker did not stop in time")
	}

	logger.Info("guardline gateway stopped")
	return nil
}

// buildSender assembles the delivery path: SES for email and SNS for SMS in
// production, the ops webhook when configured, each behind its own circuit
// breaker. Development falls back to logging deliveries.
func buildSender(ctx context.Context, cfg *config.Config, logger *zap.Logger) (worker.Sender, error) {
	if cfg.Env != "production" {
		return worker.NewLogSender(logger), nil
	}

	var senders []worker.Sender

	snsSender, err := worker.NewSNSSender(ctx, worker.SNSConfig{Region: cfg.AWS.Region}, logger)
	if err != nil {
		return nil, err
	}
	senders = append(senders, circuitbreaker.NewProtectedSender(
		snsSender, circuitbreaker.DefaultConfig("sns"), logger))

	sesSender, err := worker.NewSESSender(ctx, worker.SESConfig{
		Region:    cfg.AWS.Region,
		FromEmail: cfg.AWS.SESFromEmail,
	}, logger)
	if err != nil {
		return nil, err
	}
	senders = append(senders, circuitbreaker.NewProtectedSender(
		sesSender, circuitbreaker.DefaultConfig("ses"), logger))

	if cfg.Webhook.URL != "" {
		webhookSender := worker.NewWebhookSender(logger, worker.WebhookConfig{
			URL:     cfg.Webhook.URL,
			Timeout: cfg.Webhook.Timeout,
		})
		senders = append(senders, circuitbreaker.NewProtectedSender(
			webhookSender, circuitbreaker.DefaultConfig("webhook"), logger))
	}

	return worker.NewMultiSender(logger, senders...), nil
}
