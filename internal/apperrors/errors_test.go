package apperrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsMatchWithAs(t *testing.T) {
	var validation *ValidationError
	require.ErrorAs(t, NewValidation("subject", "must not be empty"), &validation)
	assert.Equal(t, "subject", validation.Field)

	var notFound *NotFoundError
	require.ErrorAs(t, NewNotFound("queue entry", "abc"), &notFound)
	assert.Contains(t, notFound.Error(), "abc")

	var conflict *ConflictError
	require.ErrorAs(t, NewConflict("abc", "sent", "cancel not allowed"), &conflict)
	assert.Equal(t, "sent", conflict.Status)
}

func TestTransportErrorUnwraps(t *testing.T) {
	cause := context.DeadlineExceeded
	err := NewTransport("send to provider", true, cause)

	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.True(t, transport.Timeout)
	assert.Contains(t, err.Error(), "timed out")
}

func TestGeneratorErrorUnwraps(t *testing.T) {
	cause := errors.New("model overloaded")
	err := NewGenerator("rcpt-1", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "rcpt-1")

	wrapped := fmt.Errorf("expansion: %w", err)
	var genErr *GeneratorError
	require.ErrorAs(t, wrapped, &genErr)
	assert.Equal(t, "rcpt-1", genErr.RecipientID)
}
