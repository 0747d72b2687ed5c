// Package remediation decides the parameters of an automation run and
// starts it when an automation document is configured.
package remediation

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/linnemanlabs/alarmhook/internal/fault"
	"github.com/linnemanlabs/alarmhook/internal/report"
	"github.com/linnemanlabs/go-core/log"
)

var tracer = otel.Tracer("github.com/linnemanlabs/alarmhook/internal/remediation")

// Parameters are automation run parameters. Each value is a list of strings.
type Parameters map[string][]string

// Kind names a parameter strategy.
type Kind string

const (
	KindExplicit Kind = "explicit"
	KindDerived  Kind = "derived"
)

// Strategy is either an operator supplied mapping (Explicit) or one derived
// from the invocation (Derived). Exactly one applies per invocation.
type Strategy interface {
	Kind() Kind
	Parameters() Parameters
}

// Explicit forwards an operator supplied mapping verbatim.
type Explicit struct {
	Params Parameters
}

func (Explicit) Kind() Kind { return KindExplicit }

func (e Explicit) Parameters() Parameters { return e.Params }

// DerivedInput carries the invocation facts a derived mapping is built from.
type DerivedInput struct {
	IncidentID string
	AlarmName  string
	Bucket     string
	Keys       report.Keys
	AsgName    string
}

// Derived builds the mapping from the invocation.
type Derived struct {
	Input DerivedInput
}

func (Derived) Kind() Kind { return KindDerived }

// Parameters returns IncidentId, AlarmName, ReportBucket, ReportJsonKey and
// ReportMarkdownKey, plus AsgName when one is configured.
func (d Derived) Parameters() Parameters {
	in := d.Input
	p := Parameters{
		"IncidentId":        {in.IncidentID},
		"AlarmName":         {in.AlarmName},
		"ReportBucket":      {in.Bucket},
		"ReportJsonKey":     {in.Keys.JSONKey},
		"ReportMarkdownKey": {in.Keys.MarkdownKey},
	}
	if in.AsgName != "" {
		p["AsgName"] = []string{in.AsgName}
	}
	return p
}

// Resolve picks the strategy. A non-empty explicitJSON must decode to an
// object of string lists; anything else is a configuration error.
func Resolve(explicitJSON string, in DerivedInput) (Strategy, error) {
	if explicitJSON == "" {
		return Derived{Input: in}, nil
	}
	var params Parameters
	if err := json.Unmarshal([]byte(explicitJSON), &params); err != nil {
		return nil, fmt.Errorf("%w: automation parameters: %v", fault.ErrConfiguration, err)
	}
	if params == nil {
		return nil, fmt.Errorf("%w: automation parameters must be a JSON object", fault.ErrConfiguration)
	}
	return Explicit{Params: params}, nil
}

// Runner starts automation executions.
type Runner interface {
	StartAutomation(ctx context.Context, document string, params Parameters) (executionID string, err error)
}

// Trigger starts remediation runs.
type Trigger struct {
	runner Runner
	logger log.Logger
}

// NewTrigger returns a Trigger backed by runner.
func NewTrigger(runner Runner, logger log.Logger) *Trigger {
	if logger == nil {
		logger = log.Nop()
	}
	return &Trigger{runner: runner, logger: logger}
}

// Fire starts one automation run of document with the strategy's
// parameters. An empty document is a no-op returning "".
func (t *Trigger) Fire(ctx context.Context, document string, s Strategy) (string, error) {
	if document == "" {
		return "", nil
	}
	if t.runner == nil {
		return "", fmt.Errorf("%w: automation document set without a runner", fault.ErrConfiguration)
	}

	ctx, span := tracer.Start(ctx, "remediation.fire")
	defer span.End()
	span.SetAttributes(
		attribute.String("alarmhook.automation.document", document),
		attribute.String("alarmhook.automation.strategy", string(s.Kind())),
	)

	params := s.Parameters()
	execID, err := t.runner.StartAutomation(ctx, document, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("start automation %s: %w", document, err)
	}
	span.SetAttributes(attribute.String("alarmhook.automation.execution_id", execID))

	t.logger.Info(ctx, "automation started",
		"document", document,
		"execution_id", execID,
		"strategy", s.Kind(),
		"parameters", slices.Sorted(maps.Keys(params)),
	)
	return execID, nil
}
