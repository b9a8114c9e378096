package transport

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/sharpsend/sendqueue/internal/model"
)

// MockAdapter simulates a provider for local runs. FailureRate is the
// probability of a simulated send failure (0 disables failures).
type MockAdapter struct {
	FailureRate float64
}

func NewMockAdapter(failureRate float64) *MockAdapter {
	return &MockAdapter{FailureRate: failureRate}
}

func (m *MockAdapter) Send(ctx context.Context, entry *model.QueueEntry) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}
	if m.FailureRate > 0 && rand.Float64() < m.FailureRate {
		return Result{Success: false, Error: fmt.Sprintf("mock send failed for %s", entry.RecipientEmail)}, nil
	}
	return Result{Success: true, ProviderMessageID: "mock-" + uuid.NewString()}, nil
}

func (m *MockAdapter) SendBatch(ctx context.Context, entries []*model.QueueEntry) ([]Result, error) {
	results := make([]Result, 0, len(entries))
	for _, entry := range entries {
		res, err := m.Send(ctx, entry)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

var _ Adapter = (*MockAdapter)(nil)
