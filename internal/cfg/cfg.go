// Package cfg holds the application flags: the pipeline settings shared by
// every entry point and the settings only the HTTP server needs.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"time"

	"github.com/linnemanlabs/alarmhook/internal/awsclient"
	"github.com/linnemanlabs/alarmhook/internal/incident"
)

// Summarizer backends.
const (
	SummarizerBedrock   = "bedrock"
	SummarizerAnthropic = "anthropic"
)

// Pipeline configures one incident pipeline. Every stage is optional and
// stays disabled while its identifier is empty.
type Pipeline struct {
	LogGroupName      string
	LogsInsightsQuery string
	QueryLookback     time.Duration

	SSMParamName       string
	SecretID           string
	ContextErrorsFatal bool

	ReportsBucket string

	ModelID         string
	Summarizer      string
	AnthropicAPIKey string

	AutomationDocumentName   string
	AutomationParametersJSON string
	AlarmAsgName             string

	AWSRegion          string
	AWSEndpoint        string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
}

// RegisterFlags binds Pipeline fields to the given FlagSet with defaults inline
func (c *Pipeline) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.LogGroupName, "log-group-name", "", "log group to query for incident context (empty = no log query)")
	fs.StringVar(&c.LogsInsightsQuery, "logs-insights-query", "", "Logs Insights query expression (empty = no log query)")
	fs.DurationVar(&c.QueryLookback, "query-lookback", incident.DefaultQueryLookback, "log query window ending at invocation time (1m..24h)")
	fs.StringVar(&c.SSMParamName, "ssm-param-name", "", "parameter to attach to the report, read with decryption")
	fs.StringVar(&c.SecretID, "secret-id", "", "secret whose metadata (never the value) is attached to the report")
	fs.BoolVar(&c.ContextErrorsFatal, "context-errors-fatal", true, "fail the invocation when a parameter or secret lookup fails")
	fs.StringVar(&c.ReportsBucket, "reports-bucket", "", "bucket for the JSON and markdown reports (empty = not persisted)")
	fs.StringVar(&c.ModelID, "model-id", "", "summarization model id (empty = placeholder summary)")
	fs.StringVar(&c.Summarizer, "summarizer", SummarizerBedrock, "summarization backend: bedrock or anthropic")
	fs.StringVar(&c.AnthropicAPIKey, "anthropic-api-key", "", "API key for the anthropic summarizer")
	fs.StringVar(&c.AutomationDocumentName, "automation-document-name", "", "automation document started after the report (empty = no remediation)")
	fs.StringVar(&c.AutomationParametersJSON, "automation-parameters-json", "", "explicit automation parameters as a JSON object of string lists (empty = derived)")
	fs.StringVar(&c.AlarmAsgName, "alarm-asg-name", "", "AsgName passed to derived automation parameters")
	fs.StringVar(&c.AWSRegion, "aws-region", "", "AWS region (empty = SDK default chain)")
	fs.StringVar(&c.AWSEndpoint, "aws-endpoint", "", "endpoint override for every AWS service, e.g. http://localhost:4566")
	fs.StringVar(&c.AWSAccessKeyID, "aws-access-key-id", "", "static AWS access key id, mostly for local endpoints")
	fs.StringVar(&c.AWSSecretAccessKey, "aws-secret-access-key", "", "static AWS secret access key")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Pipeline) Validate() error {
	var errs []error

	if c.QueryLookback < time.Minute || c.QueryLookback > 24*time.Hour {
		errs = append(errs, fmt.Errorf("invalid QUERY_LOOKBACK %s (must be 1m..24h)", c.QueryLookback))
	}

	switch c.Summarizer {
	case SummarizerBedrock:
	case SummarizerAnthropic:
		if c.ModelID != "" && c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for the anthropic summarizer"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid SUMMARIZER %q (must be %s or %s)", c.Summarizer, SummarizerBedrock, SummarizerAnthropic))
	}

	if c.AWSEndpoint != "" {
		u, err := url.Parse(c.AWSEndpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid AWS_ENDPOINT %q (must be an http(s) URL)", c.AWSEndpoint))
		}
	}

	if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
		errs = append(errs, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// IncompleteQuery names the setting missing when only one half of the log
// query is configured, or returns "" otherwise. A half-configured query only
// disables the query stage.
func (c *Pipeline) IncompleteQuery() string {
	switch {
	case c.LogGroupName != "" && c.LogsInsightsQuery == "":
		return "LOGS_INSIGHTS_QUERY"
	case c.LogGroupName == "" && c.LogsInsightsQuery != "":
		return "LOG_GROUP_NAME"
	}
	return ""
}

// ToOptions converts the flags into pipeline options. The explicit automation
// parameters are passed through unparsed, malformed values surface as a
// configuration error on invocation.
func (c *Pipeline) ToOptions() incident.Options {
	return incident.Options{
		LogGroupName:             c.LogGroupName,
		LogsInsightsQuery:        c.LogsInsightsQuery,
		QueryLookback:            c.QueryLookback,
		SSMParamName:             c.SSMParamName,
		SecretID:                 c.SecretID,
		ReportsBucket:            c.ReportsBucket,
		ModelID:                  c.ModelID,
		AutomationDocumentName:   c.AutomationDocumentName,
		AutomationParametersJSON: c.AutomationParametersJSON,
		AlarmAsgName:             c.AlarmAsgName,
	}
}

// AWSOptions returns the SDK connection settings.
func (c *Pipeline) AWSOptions() awsclient.Options {
	return awsclient.Options{
		Region:          c.AWSRegion,
		Endpoint:        c.AWSEndpoint,
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: c.AWSSecretAccessKey,
	}
}

// Server holds the settings of the long-running HTTP service.
type Server struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	SlackWebhookURL       string
	APIToken              string
}

// RegisterFlags binds Server fields to the given FlagSet with defaults inline
func (c *Server) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for invocation history (empty = in-memory store)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for incident notifications")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on alarm ingestion (empty = no authentication)")
}

// Validate checks all configuration fields for correctness.
func (c *Server) Validate() error {
	var errs []error

	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.SlackWebhookURL != "" {
		if u, err := url.Parse(c.SlackWebhookURL); err != nil || u.Scheme != "https" || u.Host == "" {
			errs = append(errs, errors.New("invalid SLACK_WEBHOOK_URL (must be an https URL)"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
