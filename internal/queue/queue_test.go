package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueueDeliversToAllSubscribers(t *testing.T) {
	q := NewInMemoryQueue(zerolog.Nop())

	var mu sync.Mutex
	got := map[string]int{}
	done := make(chan struct{}, 2)

	for i := 0; i < 2; i++ {
		q.Subscribe(func(job Job) {
			mu.Lock()
			got[job.PublisherID]++
			mu.Unlock()
			done <- struct{}{}
		})
	}

	require.NoError(t, q.Publish(context.Background(), Job{PublisherID: "pub-1", CampaignID: "camp-1"}))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the job")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, got["pub-1"])
}

func TestInMemoryQueueWithoutSubscribers(t *testing.T) {
	q := NewInMemoryQueue(zerolog.Nop())
	assert.NoError(t, q.Publish(context.Background(), Job{PublisherID: "pub-1"}))
}

func TestNopQueue(t *testing.T) {
	assert.NoError(t, NopQueue{}.Publish(context.Background(), Job{PublisherID: "pub-1"}))
}
