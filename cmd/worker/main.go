package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/sharpsend/sendqueue/internal/config"
	"github.com/sharpsend/sendqueue/internal/logging"
	"github.com/sharpsend/sendqueue/internal/metrics"
	"github.com/sharpsend/sendqueue/internal/queue"
	"github.com/sharpsend/sendqueue/internal/repository"
	"github.com/sharpsend/sendqueue/internal/service"
	"github.com/sharpsend/sendqueue/internal/transport"
)

// The worker polls every publisher's queue on an interval and also reacts
// to nudge jobs published over AMQP when a campaign is expanded.
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

	worker := service.NewWorker(stores.Queue, processor, cfg.Queue.PollInterval, clock, *logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	defer worker.Stop()

	if cfg.AMQP.Enabled {
		amqpQueue, err := queue.NewAMQPQueue(cfg.AMQP.URL, cfg.AMQP.Queue, *logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect amqp")
		}
		defer amqpQueue.Close()

		go func() {
			if err := amqpQueue.Consume(ctx, func(job queue.Job) error {
				worker.Nudge(job.PublisherID)
				return nil
			}); err != nil {
				logger.Error().Err(err).Msg("amqp consumer stopped")
				stop()
			}
		}()
	}

	logger.Info().Dur("poll_interval", cfg.Queue.PollInterval).Msg("worker running")
	<-ctx.Done()
	logger.Info().Msg("shutting down")
}
