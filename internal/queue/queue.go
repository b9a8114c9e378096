package queue

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Job nudges the worker that a publisher has fresh pending entries. It carries
// no entry payload; the store remains the source of truth and the worker polls
// it on its own schedule regardless.
type Job struct {
	PublisherID string `json:"publisher_id"`
	CampaignID  string `json:"campaign_id,omitempty"`
}

// Queue is the publish side of the nudge channel.
type Queue interface {
	Publish(ctx context.Context, job Job) error
}

// InMemoryQueue delivers jobs to in-process subscribers. Used when server and
// worker run in one binary, and in tests.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers []func(Job)
	logger   zerolog.Logger
}

func NewInMemoryQueue(logger zerolog.Logger) *InMemoryQueue {
	return &InMemoryQueue{logger: logger.With().Str("component", "memqueue").Logger()}
}

func (q *InMemoryQueue) Publish(ctx context.Context, job Job) error {
	q.mu.Lock()
	handlers := make([]func(Job), len(q.handlers))
	copy(handlers, q.handlers)
	q.mu.Unlock()

	q.logger.Debug().Str("publisher_id", job.PublisherID).Int("handlers", len(handlers)).Msg("job published")
	for _, handler := range handlers {
		go handler(job)
	}
	return nil
}

// Subscribe registers a handler invoked on its own goroutine per job.
func (q *InMemoryQueue) Subscribe(handler func(Job)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// NopQueue drops every job. The worker's poll loop still picks entries up.
type NopQueue struct{}

func (NopQueue) Publish(ctx context.Context, job Job) error { return nil }

var (
	_ Queue = (*InMemoryQueue)(nil)
	_ Queue = NopQueue{}
)
