// cmd/server/main.go
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/controller"
	"github.com/unclebandit/campaign-dispatch/internal/db"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/metrics"
	"github.com/unclebandit/campaign-dispatch/internal/middleware"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
	"github.com/unclebandit/campaign-dispatch/internal/service"
	"github.com/unclebandit/campaign-dispatch/internal/transport"
)

func main() {
	log := logger.New()

	if err := godotenv.Load(); err != nil {
		log.Warn("no .env file found, relying on OS environment variables")
	}
	cfg := config.Load()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	if err := db.Migrate(conn); err != nil {
		log.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.SeedOnStart {
		if err := db.SeedUsersIfEmpty(conn); err != nil {
			log.Error("seeding failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	metrics.Init()

	// With a broker configured the dispatch pool runs in cmd/worker; without
	// one everything runs in this process over the in-memory queue.
	var q queue.Queue
	inProcessDispatch := cfg.RabbitURL == ""
	if inProcessDispatch {
		q = queue.NewInMemory()
	} else {
		amqpQueue, err := queue.NewAMQP(cfg.RabbitURL, log)
		if err != nil {
			log.Error("rabbitmq connection failed", slog.Any("error", err))
			os.Exit(1)
		}
		q = amqpQueue
	}
	defer q.Close()

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

	if inProcessDispatch {
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
		if err := dispatcher.Start(context.Background(), cfg.WorkerCount); err != nil {
			log.Error("dispatch pool failed to start", slog.Any("error", err))
			os.Exit(1)
		}
		log.Info("dispatch pool started", slog.Int("workers", cfg.WorkerCount))
	}

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
	}

	r := chi.NewRouter()
	r.Use(middleware.Metrics)

	r.Get("/health", campaignController.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaign)
	r.Get("/campaigns/{id}/preview", campaignController.Preview)
	r.Post("/campaigns/{id}/send", campaignController.SendCampaign)
	r.Get("/campaigns/{id}/stats", campaignController.Stats)
	r.Get("/campaigns/{id}/messages", campaignController.Messages)

	log.Info("🚀 server running", slog.String("addr", cfg.HTTPAddr))
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
