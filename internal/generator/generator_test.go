package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharpsend/sendqueue/internal/model"
)

func TestRenderTemplate(t *testing.T) {
	data := map[string]string{"name": "Amina", "plan": "pro", "city": ""}

	got := RenderTemplate("Hi {name}, you are on {plan} in {city}.", data)
	assert.Equal(t, "Hi Amina, you are on pro in <unknown>.", got)

	// Unknown placeholders are left alone; stripping is the fallback's job.
	got = RenderTemplate("Hi {name} {nickname}", data)
	assert.Equal(t, "Hi Amina {nickname}", got)
}

func TestTemplateRendererUsesRecipientAttributes(t *testing.T) {
	campaign := &model.Campaign{
		Subject:      "{name}, your {plan} digest",
		BaseTemplate: "Hello {name} ({email}), news for the {segment} segment.",
	}
	recipient := model.Recipient{
		Email:      "amina@example.com",
		Name:       "Amina",
		Segment:    "newsletter",
		Attributes: map[string]string{"plan": "pro"},
	}

	rendered, err := NewTemplateRenderer().Render(context.Background(), campaign, recipient)
	require.NoError(t, err)
	assert.Equal(t, "Amina, your pro digest", rendered.Subject)
	assert.Equal(t, "Hello Amina (amina@example.com), news for the newsletter segment.", rendered.Content)
}

func TestFallbackStripsPlaceholders(t *testing.T) {
	campaign := &model.Campaign{
		Subject:      "Hi {name}, big news",
		BaseTemplate: "Hello {name}, your {plan} plan in {city} awaits.",
	}

	rendered := Fallback(campaign)
	assert.Equal(t, "Hi, big news", rendered.Subject)
	assert.Equal(t, "Hello, your plan in awaits.", rendered.Content)
	assert.NotContains(t, rendered.Content, "{")
}
