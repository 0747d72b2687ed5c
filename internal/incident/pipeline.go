package incident

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/alarmhook/internal/alarm"
	"github.com/linnemanlabs/alarmhook/internal/fault"
	"github.com/linnemanlabs/alarmhook/internal/gather"
	"github.com/linnemanlabs/alarmhook/internal/logquery"
	"github.com/linnemanlabs/alarmhook/internal/remediation"
	"github.com/linnemanlabs/alarmhook/internal/report"
	"github.com/linnemanlabs/alarmhook/internal/summary"
	"github.com/linnemanlabs/go-core/log"
)

var tracer = otel.Tracer("github.com/linnemanlabs/alarmhook/internal/incident")

// DefaultQueryLookback is the log query window ending at invocation time.
const DefaultQueryLookback = time.Hour

// Stage names, used for spans and metrics.
const (
	StageResolve   = "resolve"
	StageStrategy  = "strategy"
	StageQuery     = "query"
	StageParameter = "parameter"
	StageSecret    = "secret"
	StageSummary   = "summary"
	StageAssemble  = "assemble"
	StagePersist   = "persist"
	StageTrigger   = "trigger"
)

// Options is the per-deployment pipeline configuration. Every field is
// optional; an empty value disables the stage that needs it.
type Options struct {
	LogGroupName      string
	LogsInsightsQuery string
	QueryLookback     time.Duration

	SSMParamName string
	SecretID     string

	ReportsBucket string
	ModelID       string

	AutomationDocumentName   string
	AutomationParametersJSON string
	AlarmAsgName             string
}

// Deps are the stage implementations the pipeline drives.
type Deps struct {
	Poller   *logquery.Poller
	Gatherer *gather.Gatherer
	Composer *summary.Composer
	Sink     *report.Sink
	Trigger  *remediation.Trigger
}

// CompleteEvent describes a finished invocation.
type CompleteEvent struct {
	Status     Status
	ErrorClass fault.Class
	Duration   float64
	Persisted  bool
	Strategy   remediation.Kind
	Triggered  bool
}

// Hooks observe pipeline progress. Nil fields are skipped. Stage hooks may be
// called concurrently.
type Hooks struct {
	OnStage    func(stage string, duration float64, err error)
	OnQuery    func(outcome logquery.Outcome, polls, rows int)
	OnComplete func(e *CompleteEvent)
}

// Pipeline runs one incident invocation end to end. It holds no state
// between invocations besides its long-lived dependencies.
type Pipeline struct {
	opts   Options
	deps   Deps
	logger log.Logger
	hooks  Hooks
	now    func() time.Time
}

// NewPipeline creates a pipeline. Missing dependencies are replaced with
// inert defaults so that unconfigured stages skip.
func NewPipeline(opts Options, deps Deps, logger log.Logger, hooks ...Hooks) *Pipeline {
	if logger == nil {
		logger = log.Nop()
	}
	if opts.QueryLookback <= 0 {
		opts.QueryLookback = DefaultQueryLookback
	}
	if deps.Poller == nil {
		deps.Poller = logquery.NewPoller(nil, logger)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = gather.New(nil, nil, logger)
	}
	if deps.Composer == nil {
		deps.Composer = summary.NewComposer(nil, logger)
	}
	if deps.Sink == nil {
		deps.Sink = report.NewSink(nil, logger)
	}
	if deps.Trigger == nil {
		deps.Trigger = remediation.NewTrigger(nil, logger)
	}
	var h Hooks
	if len(hooks) > 0 {
		h = hooks[0]
	}
	return &Pipeline{
		opts:   opts,
		deps:   deps,
		logger: logger,
		hooks:  h,
		now:    time.Now,
	}
}

// Run processes one inbound event under the given incident id. The returned
// Outcome is never nil. On error nothing further is persisted or triggered.
func (p *Pipeline) Run(ctx context.Context, id string, event []byte) (*Outcome, error) {
	now := p.now()
	out := &Outcome{
		Result:    Result{IncidentID: id},
		StartedAt: now,
	}

	ctx, span := tracer.Start(ctx, "incident.run", trace.WithAttributes(
		attribute.String("alarmhook.incident.id", id),
	))
	defer span.End()

	err := p.run(ctx, now, event, out)
	out.Duration = p.now().Sub(now)

	ev := &CompleteEvent{
		Status:     StatusSucceeded,
		ErrorClass: fault.Classify(err),
		Duration:   out.Duration.Seconds(),
		Persisted:  out.Persisted,
		Strategy:   out.Strategy,
		Triggered:  out.ExecutionID != "",
	}
	if err != nil {
		ev.Status = StatusFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		out.OK = true
	}
	span.SetAttributes(
		attribute.String("alarmhook.alarm.name", out.AlarmName),
		attribute.String("alarmhook.incident.status", string(ev.Status)),
	)
	if p.hooks.OnComplete != nil {
		p.hooks.OnComplete(ev)
	}
	return out, err
}

func (p *Pipeline) run(ctx context.Context, now time.Time, event []byte, out *Outcome) error {
	var src alarm.Source
	if err := p.stage(ctx, StageResolve, func(context.Context) error {
		var err error
		src, err = alarm.Resolve(event)
		return err
	}); err != nil {
		return fmt.Errorf("resolve event: %w", err)
	}

	al := src.Alarm()
	out.AlarmName = al.Name()
	out.AlarmState = al.State()
	out.Envelope = src.Envelope()
	out.AlarmASG = al.AutoScalingGroup()

	L := p.logger.With("incident_id", out.IncidentID, "alarm", out.AlarmName)
	L.Info(ctx, "incident invocation started",
		"state", out.AlarmState,
		"envelope", out.Envelope,
		"asg", out.AlarmASG,
	)

	keys := report.NewKeys(now)
	out.ReportKey = keys.JSONKey
	out.MarkdownKey = keys.MarkdownKey

	// the strategy is settled before anything is written so a bad override
	// leaves no artifacts behind
	var strategy remediation.Strategy
	if p.opts.AutomationDocumentName != "" {
		if err := p.stage(ctx, StageStrategy, func(context.Context) error {
			var err error
			strategy, err = remediation.Resolve(p.opts.AutomationParametersJSON, remediation.DerivedInput{
				IncidentID: out.IncidentID,
				AlarmName:  out.AlarmName,
				Bucket:     p.opts.ReportsBucket,
				Keys:       keys,
				AsgName:    p.opts.AlarmAsgName,
			})
			return err
		}); err != nil {
			return fmt.Errorf("resolve automation parameters: %w", err)
		}
		out.Strategy = strategy.Kind()
	}

	var (
		run    *logquery.Run
		param  *gather.Parameter
		secret *gather.SecretMetadata
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.stage(gctx, StageQuery, func(ctx context.Context) error {
			var err error
			run, err = p.deps.Poller.Run(ctx, p.opts.LogGroupName, p.opts.LogsInsightsQuery, now.Add(-p.opts.QueryLookback), now)
			if err != nil {
				return fmt.Errorf("log query: %w", err)
			}
			return nil
		})
	})
	g.Go(func() error {
		return p.stage(gctx, StageParameter, func(ctx context.Context) error {
			var err error
			param, err = p.deps.Gatherer.Parameter(ctx, p.opts.SSMParamName)
			return err
		})
	})
	g.Go(func() error {
		return p.stage(gctx, StageSecret, func(ctx context.Context) error {
			var err error
			secret, err = p.deps.Gatherer.SecretMetadata(ctx, p.opts.SecretID)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return err
	}

	out.QueryOutcome = run.Outcome
	out.QueryPolls = run.Polls
	out.QueryRows = len(run.Rows)
	if p.hooks.OnQuery != nil {
		p.hooks.OnQuery(run.Outcome, run.Polls, len(run.Rows))
	}

	var text string
	if err := p.stage(ctx, StageSummary, func(ctx context.Context) error {
		var err error
		text, err = p.deps.Composer.Compose(ctx, p.opts.ModelID, al, run.Rows)
		return err
	}); err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	out.Summary = text

	var jsonBody, mdBody []byte
	if err := p.stage(ctx, StageAssemble, func(context.Context) error {
		rec := report.Assemble(now, al, run.Rows, param, secret, text)
		var err error
		jsonBody, err = rec.JSON()
		mdBody = []byte(report.RenderMarkdown(rec))
		return err
	}); err != nil {
		return fmt.Errorf("assemble report: %w", err)
	}

	if err := p.stage(ctx, StagePersist, func(ctx context.Context) error {
		var err error
		out.Persisted, err = p.deps.Sink.Persist(ctx, p.opts.ReportsBucket, keys, jsonBody, mdBody)
		return err
	}); err != nil {
		return fmt.Errorf("persist report: %w", err)
	}

	if strategy != nil {
		if err := p.stage(ctx, StageTrigger, func(ctx context.Context) error {
			var err error
			out.ExecutionID, err = p.deps.Trigger.Fire(ctx, p.opts.AutomationDocumentName, strategy)
			return err
		}); err != nil {
			return fmt.Errorf("trigger remediation: %w", err)
		}
	}

	L.Info(ctx, "incident invocation complete",
		"report_key", out.ReportKey,
		"persisted", out.Persisted,
		"query_outcome", out.QueryOutcome,
		"query_rows", out.QueryRows,
		"strategy", out.Strategy,
		"execution_id", out.ExecutionID,
	)
	return nil
}

// stage times fn and reports it to the stage hook.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	if p.hooks.OnStage != nil {
		p.hooks.OnStage(name, time.Since(start).Seconds(), err)
	}
	return err
}
