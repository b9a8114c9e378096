package transport

import (
	"context"

	"github.com/sharpsend/sendqueue/internal/model"
)

// Result is the per-entry outcome of an adapter call. Mapping provider
// semantics onto this shape is the adapter's job; the core only looks at
// Success.
type Result struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

// Adapter is the uniform interface to an email service provider.
type Adapter interface {
	Send(ctx context.Context, entry *model.QueueEntry) (Result, error)
	SendBatch(ctx context.Context, entries []*model.QueueEntry) ([]Result, error)
}
