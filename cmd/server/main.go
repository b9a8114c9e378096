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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sharpsend/sendqueue/internal/config"
	"github.com/sharpsend/sendqueue/internal/controller"
	"github.com/sharpsend/sendqueue/internal/generator"
	"github.com/sharpsend/sendqueue/internal/logging"
	"github.com/sharpsend/sendqueue/internal/metrics"
	"github.com/sharpsend/sendqueue/internal/queue"
	"github.com/sharpsend/sendqueue/internal/repository"
	"github.com/sharpsend/sendqueue/internal/service"
	"github.com/sharpsend/sendqueue/internal/transport"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	metrics.Register()

	stores, err := repository.Open(cfg.Database, cfg.Queue.ScheduleGraceWindow)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer stores.DB.Close()

	clock := clockwork.NewRealClock()

	var adapter transport.Adapter = transport.NewMockAdapter(cfg.Transport.MockFailureRate)
	if cfg.Transport.RatePerSecond > 0 {
		adapter = transport.NewRateLimitedAdapter(adapter, cfg.Transport.RatePerSecond, cfg.Transport.Burst)
	}

	processor := service.NewProcessor(stores.Queue, adapter, service.ProcessorConfig{
		MaxRetries: cfg.Queue.MaxRetries,
		Backoff: service.BackoffPolicy{
			Base:   cfg.Queue.BackoffBase,
			Max:    cfg.Queue.BackoffMax,
			Factor: 2,
		},
		Concurrency: cfg.Queue.DispatchConcurrency,
		BatchSize:   cfg.Queue.DispatchBatchSize,
		SendTimeout: cfg.Queue.SendTimeout,
	}, clock, *logger)

	orchestrator := service.NewOrchestrator(stores.Queue, generator.NewTemplateRenderer(),
		service.OrchestratorConfig{RenderTimeout: cfg.Queue.RenderTimeout}, clock, *logger)

	// With AMQP configured the standalone worker consumes nudges; without it
	// an embedded worker keeps a single-binary deployment fully functional.
	var nudge queue.Queue
	var embedded *service.Worker
	if cfg.AMQP.Enabled {
		amqpQueue, err := queue.NewAMQPQueue(cfg.AMQP.URL, cfg.AMQP.Queue, *logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect amqp")
		}
		defer amqpQueue.Close()
		nudge = amqpQueue
	} else {
		memQueue := queue.NewInMemoryQueue(*logger)
		embedded = service.NewWorker(stores.Queue, processor, cfg.Queue.PollInterval, clock, *logger)
		memQueue.Subscribe(func(job queue.Job) {
			embedded.Nudge(job.PublisherID)
		})
		nudge = memQueue
	}

	campaignService := &service.CampaignService{
		Campaigns:    stores.Campaigns,
		Recipients:   stores.Recipients,
		Queue:        stores.Queue,
		Orchestrator: orchestrator,
		Renderer:     generator.NewTemplateRenderer(),
		Nudge:        nudge,
		Logger:       *logger,
	}

	queueController := &controller.QueueController{Queue: stores.Queue, Processor: processor}
	campaignController := &controller.CampaignController{CampaignService: campaignService}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, promhttp.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(controller.RequirePublisher)

		r.Get("/queue", queueController.ListQueue)
		r.Post("/queue", queueController.EnqueueEntry)
		r.Post("/queue/process", queueController.ProcessQueue)
		r.Get("/queue/{id}", queueController.GetEntry)
		r.Patch("/queue/{id}/cancel", queueController.CancelEntry)

		r.Post("/campaigns", campaignController.CreateCampaign)
		r.Get("/campaigns", campaignController.ListCampaigns)
		r.Get("/campaigns/{id}", campaignController.GetCampaign)
		r.Post("/campaigns/{id}/expand", campaignController.ExpandCampaign)
		r.Post("/campaigns/{id}/preview", campaignController.PreviewCampaign)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if embedded != nil {
		if err := embedded.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("start worker")
		}
		defer embedded.Stop()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: r,
	}

	go func() {
		logger.Info().Int("port", cfg.HTTP.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
	}
}
