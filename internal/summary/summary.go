// Package summary builds the incident summary prompt and delegates to a
// summarization backend when one is configured.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/linnemanlabs/alarmhook/internal/alarm"
	"github.com/linnemanlabs/alarmhook/internal/logquery"
	"github.com/linnemanlabs/go-core/log"
)

var tracer = otel.Tracer("github.com/linnemanlabs/alarmhook/internal/summary")

// Skipped is the summary used when no model is configured.
const Skipped = "Bedrock response not requested or model not configured."

// Backend is a summarization service. It receives the prompt as its single
// input and returns the raw response payload.
type Backend interface {
	Invoke(ctx context.Context, modelID, prompt string) ([]byte, error)
}

// Composer produces incident summaries.
type Composer struct {
	backend Backend
	logger  log.Logger
}

// NewComposer returns a Composer. backend may be nil when no model is configured.
func NewComposer(backend Backend, logger log.Logger) *Composer {
	if logger == nil {
		logger = log.Nop()
	}
	return &Composer{backend: backend, logger: logger}
}

// Compose returns the summary for an alarm and its query results. Without a
// model id (or backend) it returns Skipped and never calls the backend.
func (c *Composer) Compose(ctx context.Context, modelID string, al alarm.Event, rows logquery.Result) (string, error) {
	if modelID == "" || c.backend == nil {
		return Skipped, nil
	}

	ctx, span := tracer.Start(ctx, "summary.compose")
	defer span.End()
	span.SetAttributes(attribute.String("gen_ai.request.model", modelID))

	prompt := BuildPrompt(al, rows)
	span.SetAttributes(attribute.Int("alarmhook.summary.prompt_bytes", len(prompt)))

	out, err := c.backend.Invoke(ctx, modelID, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("invoke model %s: %w", modelID, err)
	}

	text := strings.ToValidUTF8(string(out), "�")
	span.SetAttributes(attribute.Int("alarmhook.summary.response_bytes", len(out)))
	c.logger.Info(ctx, "summary generated", "model", modelID, "response_bytes", len(out))
	return text, nil
}

// BuildPrompt renders the deterministic summarization prompt.
func BuildPrompt(al alarm.Event, rows logquery.Result) string {
	if rows == nil {
		rows = logquery.Result{}
	}
	return strings.Join([]string{
		"Generate a short incident report summary for this CloudWatch alarm event.",
		"Include: alarm name/state, likely impact, and immediate checks.",
		"Alarm:",
		PrettyJSON(al),
		"Logs Insights Results:",
		PrettyJSON(rows),
	}, "\n\n")
}

// PrettyJSON renders v with a two-space indent and no HTML escaping.
func PrettyJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
