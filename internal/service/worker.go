package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/sharpsend/sendqueue/internal/repository"
)

// Worker runs processing cycles on a timer and on demand. It covers every
// publisher with pending work; nudges only shortcut the wait for one of them.
type Worker struct {
	queue        repository.QueueRepositoryInterface
	processor    *Processor
	pollInterval time.Duration
	clock        clockwork.Clock
	logger       zerolog.Logger

	nudges chan string

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewWorker(queue repository.QueueRepositoryInterface, processor *Processor, pollInterval time.Duration, clock clockwork.Clock, logger zerolog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Worker{
		queue:        queue,
		processor:    processor,
		pollInterval: pollInterval,
		clock:        clock,
		logger:       logger.With().Str("component", "worker").Logger(),
		nudges:       make(chan string, 64),
		stopChan:     make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info().Dur("poll_interval", w.pollInterval).Msg("worker started")
	return nil
}

func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info().Msg("worker stopped")
}

// Nudge requests an immediate cycle for one publisher. Never blocks; a full
// buffer just means the next poll covers it.
func (w *Worker) Nudge(publisherID string) {
	select {
	case w.nudges <- publisherID:
	default:
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := w.clock.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Process immediately on start.
	w.processAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case publisherID := <-w.nudges:
			w.processOne(ctx, publisherID)
		case <-ticker.Chan():
			w.processAll(ctx)
		}
	}
}

func (w *Worker) processAll(ctx context.Context) {
	publishers, err := w.queue.Publishers(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("list publishers failed")
		return
	}
	for _, publisherID := range publishers {
		w.processOne(ctx, publisherID)
	}
}

func (w *Worker) processOne(ctx context.Context, publisherID string) {
	if _, err := w.processor.RunCycle(ctx, publisherID); err != nil {
		w.logger.Error().Err(err).Str("publisher_id", publisherID).Msg("processing cycle failed")
	}
}
