package incident

import (
	"time"

	"github.com/linnemanlabs/alarmhook/internal/logquery"
	"github.com/linnemanlabs/alarmhook/internal/remediation"
)

// Status tracks where an invocation is in its lifecycle.
type Status string

const (
	// StatusRunning means the pipeline has not returned yet
	StatusRunning Status = "running"

	// StatusSucceeded means the pipeline returned ok
	StatusSucceeded Status = "succeeded"

	// StatusFailed means the pipeline aborted with an error
	StatusFailed Status = "failed"
)

// Result is what an invocation returns to its caller.
type Result struct {
	OK          bool   `json:"ok"`
	ReportKey   string `json:"reportKey"`
	MarkdownKey string `json:"markdownKey"`
	IncidentID  string `json:"incidentId"`
}

// Outcome is everything the pipeline learned during one invocation. It is
// populated as far as the pipeline got, also when Run returns an error.
type Outcome struct {
	Result

	AlarmName   string
	AlarmState  string
	Envelope    string
	AlarmASG    string // AutoScalingGroupName dimension, informational only
	Strategy    remediation.Kind
	ExecutionID string
	Persisted   bool
	Summary     string

	QueryOutcome logquery.Outcome
	QueryPolls   int
	QueryRows    int

	StartedAt time.Time
	Duration  time.Duration
}

// Record is the stored history entry of one invocation. The pipeline never
// reads it back.
type Record struct {
	ID           string    `json:"id"`
	AlarmName    string    `json:"alarm_name"`
	AlarmState   string    `json:"alarm_state,omitempty"`
	Envelope     string    `json:"envelope,omitempty"`
	Status       Status    `json:"status"`
	ReportKey    string    `json:"report_key,omitempty"`
	MarkdownKey  string    `json:"markdown_key,omitempty"`
	Persisted    bool      `json:"persisted"`
	Strategy     string    `json:"strategy,omitempty"`
	ExecutionID  string    `json:"execution_id,omitempty"`
	QueryOutcome string    `json:"query_outcome,omitempty"`
	QueryRows    int       `json:"query_rows"`
	Summary      string    `json:"summary,omitempty"`
	Error        string    `json:"error,omitempty"`
	ErrorClass   string    `json:"error_class,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	CompletedAt  time.Time `json:"completed_at,omitzero"`
	Duration     float64   `json:"duration_seconds,omitempty"`
}

// apply copies the outcome of a finished invocation onto r.
func (r *Record) apply(o *Outcome) {
	if o.AlarmName != "" {
		r.AlarmName = o.AlarmName
	}
	r.AlarmState = o.AlarmState
	r.Envelope = o.Envelope
	r.ReportKey = o.ReportKey
	r.MarkdownKey = o.MarkdownKey
	r.Persisted = o.Persisted
	r.Strategy = string(o.Strategy)
	r.ExecutionID = o.ExecutionID
	r.QueryOutcome = string(o.QueryOutcome)
	r.QueryRows = o.QueryRows
	r.Summary = o.Summary
	r.Duration = o.Duration.Seconds()
}
