// Package slack posts incident invocation records to Slack via incoming webhooks.
package slack

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/slack-go/slack"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/alarmhook/internal/incident"
	"github.com/linnemanlabs/go-core/log"
)

const (
	maxSummaryLen = 3000
	httpTimeout   = 10 * time.Second
)

// Notifier sends incident records to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Send posts an incident record to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, rec *incident.Record) error {
	if n.webhookURL == "" {
		return nil
	}

	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.client, buildMessage(rec)); err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	n.logger.Info(ctx, "incident notification sent", "incident_id", rec.ID, "status", rec.Status)
	return nil
}

func buildMessage(r *incident.Record) *slack.WebhookMessage {
	blocks := slack.Blocks{BlockSet: []slack.Block{
		headerBlock(r),
		slack.NewDividerBlock(),
		fieldsBlock(r),
		slack.NewDividerBlock(),
		bodyBlock(r),
		slack.NewDividerBlock(),
		contextBlock(r),
	}}
	return &slack.WebhookMessage{Blocks: &blocks}
}

func headerBlock(r *incident.Record) *slack.HeaderBlock {
	title := "Incident Reported"
	if r.Status == incident.StatusFailed {
		title = "Incident Pipeline Failed"
	}
	text := fmt.Sprintf("%s %s: %s", statusEmoji(r), title, r.AlarmName)
	return slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, text, false, false))
}

func fieldsBlock(r *incident.Record) *slack.SectionBlock {
	field := func(label, value string) *slack.TextBlockObject {
		if value == "" {
			value = "-"
		}
		return slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*%s:* %s", label, value), false, false)
	}

	query := r.QueryOutcome
	if query != "" {
		query = fmt.Sprintf("%s (%d rows)", query, r.QueryRows)
	}
	report := r.ReportKey
	if !r.Persisted {
		report = "not persisted"
	}

	return slack.NewSectionBlock(nil, []*slack.TextBlockObject{
		field("Status", string(r.Status)),
		field("State", r.AlarmState),
		field("Duration", fmt.Sprintf("%.1fs", r.Duration)),
		field("Logs", query),
		field("Report", report),
		field("Remediation", remediation(r)),
	}, nil)
}

func remediation(r *incident.Record) string {
	switch {
	case r.ExecutionID != "":
		return fmt.Sprintf("%s, execution %s", r.Strategy, r.ExecutionID)
	case r.Strategy != "":
		return r.Strategy + ", not started"
	default:
		return ""
	}
}

func bodyBlock(r *incident.Record) *slack.SectionBlock {
	heading, text := "Summary", r.Summary
	if r.Status == incident.StatusFailed {
		heading, text = "Error", fmt.Sprintf("`%s` %s", r.ErrorClass, r.Error)
	}
	text = truncate(text, maxSummaryLen)
	if text == "" {
		text = "_No summary available._"
	}

	body := fmt.Sprintf("*%s*\n\n%s", heading, text)
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, body, false, false), nil, nil)
}

func contextBlock(r *incident.Record) *slack.ContextBlock {
	ts := r.CompletedAt
	if ts.IsZero() {
		ts = r.CreatedAt
	}
	text := fmt.Sprintf("alarmhook • incident %s • %s", r.ID, ts.UTC().Format("2006-01-02 15:04 UTC"))
	return slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, text, false, false))
}

func statusEmoji(r *incident.Record) string {
	switch {
	case r.Status == incident.StatusFailed:
		return "\U0001f534" // red circle
	case r.ExecutionID != "":
		return "\U0001f7e1" // yellow circle, remediation in flight
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
