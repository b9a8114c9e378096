package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/sharpsend/sendqueue/internal/apperrors"
	"github.com/sharpsend/sendqueue/internal/metrics"
	"github.com/sharpsend/sendqueue/internal/model"
	"github.com/sharpsend/sendqueue/internal/repository"
	"github.com/sharpsend/sendqueue/internal/transport"
)

type ProcessorConfig struct {
	MaxRetries  int
	Backoff     BackoffPolicy
	Concurrency int
	BatchSize   int
	SendTimeout time.Duration
}

func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		MaxRetries:  3,
		Backoff:     BackoffPolicy{Base: 5 * time.Second, Max: 5 * time.Minute, Factor: 2},
		Concurrency: 5,
		BatchSize:   50,
		SendTimeout: 10 * time.Second,
	}
}

// CycleSummary is the caller-visible outcome of one processing cycle.
type CycleSummary struct {
	Processed int `json:"processedCount"`
	Sent      int `json:"sentCount"`
	Failed    int `json:"failedCount"`
	Requeued  int `json:"requeuedCount"`
}

// Processor drives due entries from pending to a terminal state. One RunCycle
// call is a bounded unit of work; the worker or the HTTP trigger decides when
// cycles happen.
type Processor struct {
	queue   repository.QueueRepositoryInterface
	adapter transport.Adapter
	cfg     ProcessorConfig
	clock   clockwork.Clock
	logger  zerolog.Logger
}

func NewProcessor(queue repository.QueueRepositoryInterface, adapter transport.Adapter, cfg ProcessorConfig, clock clockwork.Clock, logger zerolog.Logger) *Processor {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Processor{
		queue:   queue,
		adapter: adapter,
		cfg:     cfg,
		clock:   clock,
		logger:  logger.With().Str("component", "processor").Logger(),
	}
}

// RunCycle lists due entries for one publisher and dispatches them with
// bounded concurrency. Entry-level failures are absorbed into the summary;
// only store-level failures propagate.
func (p *Processor) RunCycle(ctx context.Context, publisherID string) (CycleSummary, error) {
	started := p.clock.Now()

	due, err := p.queue.ListDue(ctx, publisherID, started, p.cfg.BatchSize)
	if err != nil {
		return CycleSummary{}, fmt.Errorf("list due entries: %w", err)
	}
	if len(due) == 0 {
		return CycleSummary{}, nil
	}

	p.logger.Debug().
		Str("publisher_id", publisherID).
		Int("due", len(due)).
		Msg("processing cycle started")

	var (
		mu      sync.Mutex
		summary CycleSummary
		wg      sync.WaitGroup
		sem     = make(chan struct{}, p.cfg.Concurrency)
	)

	for _, entry := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(entry *model.QueueEntry) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := p.dispatch(ctx, entry)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeSkipped:
				return
			case outcomeSent:
				summary.Sent++
			case outcomeRequeued:
				summary.Requeued++
			case outcomeFailed:
				summary.Failed++
			}
			summary.Processed++
		}(entry)
	}
	wg.Wait()

	metrics.ObserveCycle(p.clock.Since(started).Seconds())
	p.logger.Info().
		Str("publisher_id", publisherID).
		Int("processed", summary.Processed).
		Int("sent", summary.Sent).
		Int("failed", summary.Failed).
		Int("requeued", summary.Requeued).
		Msg("processing cycle finished")

	return summary, nil
}

type dispatchOutcome int

const (
	outcomeSkipped dispatchOutcome = iota
	outcomeSent
	outcomeRequeued
	outcomeFailed
)

// dispatch drives a single entry through claim, send and status update.
func (p *Processor) dispatch(ctx context.Context, entry *model.QueueEntry) dispatchOutcome {
	now := p.clock.Now()

	if err := p.queue.ClaimSending(ctx, entry.PublisherID, entry.ID, now); err != nil {
		var conflict *apperrors.ConflictError
		if errors.As(err, &conflict) {
			// Another processor instance won the claim; not our entry anymore.
			p.logger.Debug().Str("entry_id", entry.ID).Msg("claim lost")
			return outcomeSkipped
		}
		p.logger.Error().Err(err).Str("entry_id", entry.ID).Msg("claim failed")
		return outcomeSkipped
	}

	sendErr := p.send(ctx, entry)
	if sendErr == nil {
		if err := p.queue.MarkSent(ctx, entry.PublisherID, entry.ID, p.clock.Now()); err != nil {
			p.logger.Error().Err(err).Str("entry_id", entry.ID).Msg("mark sent failed")
			return outcomeSkipped
		}
		metrics.IncSent()
		return outcomeSent
	}

	p.logger.Warn().
		Str("entry_id", entry.ID).
		Int("retry_count", entry.RetryCount).
		Err(sendErr).
		Msg("send attempt failed")

	if entry.RetryCount+1 < p.cfg.MaxRetries {
		next := p.clock.Now().Add(p.cfg.Backoff.Delay(entry.RetryCount))
		if err := p.queue.Requeue(ctx, entry.PublisherID, entry.ID, sendErr.Error(), next); err != nil {
			p.logger.Error().Err(err).Str("entry_id", entry.ID).Msg("requeue failed")
			return outcomeSkipped
		}
		metrics.IncRequeued()
		return outcomeRequeued
	}

	if err := p.queue.MarkFailed(ctx, entry.PublisherID, entry.ID, sendErr.Error()); err != nil {
		p.logger.Error().Err(err).Str("entry_id", entry.ID).Msg("mark failed failed")
		return outcomeSkipped
	}
	metrics.IncFailed()
	return outcomeFailed
}

// send calls the transport adapter under the configured timeout. Timeouts and
// provider-reported failures are indistinguishable for retry accounting.
func (p *Processor) send(ctx context.Context, entry *model.QueueEntry) error {
	sendCtx := ctx
	if p.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, p.cfg.SendTimeout)
		defer cancel()
	}

	result, err := p.adapter.Send(sendCtx, entry)
	if err != nil {
		timeout := errors.Is(err, context.DeadlineExceeded)
		return apperrors.NewTransport(err.Error(), timeout, err)
	}
	if !result.Success {
		return apperrors.NewTransport(result.Error, false, nil)
	}
	return nil
}
