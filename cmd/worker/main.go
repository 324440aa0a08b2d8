// cmd/worker/main.go
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/db"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/metrics"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
	"github.com/unclebandit/campaign-dispatch/internal/service"
	"github.com/unclebandit/campaign-dispatch/internal/transport"
)

// Standalone dispatch worker for deployments that split the API server from
// delivery. Consumes campaign_sends from RabbitMQ; requires RABBITMQ_URL.
func main() {
	log := logger.New()

	if err := godotenv.Load(); err != nil {
		log.Warn("no .env file found, relying on OS environment variables")
	}
	cfg := config.Load()
	if cfg.RabbitURL == "" {
		log.Error("RABBITMQ_URL must be set for the standalone worker")
		os.Exit(1)
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	q, err := queue.NewAMQP(cfg.RabbitURL, log)
	if err != nil {
		log.Error("rabbitmq connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer q.Close()

	metrics.Init()

	userRepo := &repository.UserRepository{DB: conn}
	campaignRepo := &repository.CampaignRepository{DB: conn}
	messageRepo := &repository.MessageRepository{DB: conn}

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		UserRepo:     userRepo,
		MessageRepo:  messageRepo,
		Queue:        q,
		Stats:        &service.StatsService{MessageRepo: messageRepo},
		Log:          log,
	}

	dispatcher := &service.Dispatcher{
		MessageRepo:  messageRepo,
		CampaignRepo: campaignRepo,
		UserRepo:     userRepo,
		Transport:    transport.NewMock(cfg.TransportFailureRate, int64(os.Getpid())),
		Queue:        q,
		MaxAttempts:  cfg.MaxAttempts,
		BackoffBase:  cfg.BackoffBase,
		BackoffCap:   cfg.BackoffCap,
		OnTerminal:   campaignService.OnMessageTerminal,
		Log:          log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dispatcher.Start(ctx, cfg.WorkerCount); err != nil {
		log.Error("dispatch pool failed to start", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("worker running, waiting for messages", slog.Int("workers", cfg.WorkerCount))
	<-ctx.Done()
	log.Info("worker shutting down")
}
