package generator

import (
	"context"
	"regexp"
	"strings"

	"github.com/sharpsend/sendqueue/internal/model"
)

// Rendered is the fully personalized email payload for one recipient.
type Rendered struct {
	Subject string
	Content string
}

// Renderer produces subject and body for a recipient. Implementations may be
// template-based or backed by a generative service; the orchestrator does not
// care which.
type Renderer interface {
	Render(ctx context.Context, campaign *model.Campaign, recipient model.Recipient) (Rendered, error)
}

// RenderTemplate substitutes {key} placeholders with values from data.
// Empty values render as <unknown> so a half-filled profile never produces a
// dangling placeholder.
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		if v == "" {
			v = "<unknown>"
		}
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// TemplateRenderer personalizes the campaign base template with recipient
// attributes plus the built-in name/email placeholders.
type TemplateRenderer struct{}

func NewTemplateRenderer() *TemplateRenderer { return &TemplateRenderer{} }

func (t *TemplateRenderer) Render(ctx context.Context, campaign *model.Campaign, recipient model.Recipient) (Rendered, error) {
	data := make(map[string]string, len(recipient.Attributes)+3)
	for k, v := range recipient.Attributes {
		data[k] = v
	}
	data["name"] = recipient.Name
	data["email"] = recipient.Email
	data["segment"] = recipient.Segment

	return Rendered{
		Subject: RenderTemplate(campaign.Subject, data),
		Content: RenderTemplate(campaign.BaseTemplate, data),
	}, nil
}

// Fallback renders the campaign without personalization. Used when the
// configured renderer fails or times out; expansion degrades instead of
// dropping the recipient.
func Fallback(campaign *model.Campaign) Rendered {
	return Rendered{
		Subject: stripPlaceholders(campaign.Subject),
		Content: stripPlaceholders(campaign.BaseTemplate),
	}
}

var placeholderPattern = regexp.MustCompile(`\s?\{[A-Za-z0-9_]+\}`)

func stripPlaceholders(s string) string {
	return strings.TrimSpace(placeholderPattern.ReplaceAllString(s, ""))
}

var _ Renderer = (*TemplateRenderer)(nil)
