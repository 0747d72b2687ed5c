// Package logquery runs asynchronous log queries and polls them to completion
// under a bounded attempt budget. Exhausting the budget is not an error: the
// caller gets an empty result and carries on with less context.
package logquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/alarmhook/internal/fault"
	"github.com/linnemanlabs/go-core/log"
)

var tracer = otel.Tracer("github.com/linnemanlabs/alarmhook/internal/logquery")

const (
	// ResultLimit caps the rows returned by a single query.
	ResultLimit = 100

	// DefaultPollInterval is the wait between status checks.
	DefaultPollInterval = 1500 * time.Millisecond

	// DefaultMaxAttempts bounds the number of status checks (~30s total wait).
	DefaultMaxAttempts = 20
)

// Status is the backend's view of an in-flight query.
type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusRunning   Status = "Running"
	StatusComplete  Status = "Complete"
	StatusFailed    Status = "Failed"
	StatusCancelled Status = "Cancelled"
	StatusTimeout   Status = "Timeout"
	StatusUnknown   Status = "Unknown"
)

// terminal reports whether the query can no longer reach Complete.
func (s Status) terminal() bool {
	return s == StatusFailed || s == StatusCancelled || s == StatusTimeout
}

// Outcome describes how a Run ended.
type Outcome string

const (
	OutcomeComplete  Outcome = "complete"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Request is an immutable query request.
type Request struct {
	LogGroup string
	Query    string
	Start    int64 // epoch seconds
	End      int64 // epoch seconds
	Limit    int32
}

// Row is a single result row, field name to value.
type Row map[string]string

// Result is an ordered sequence of rows. Empty is a valid terminal result.
type Result []Row

// Backend is the asynchronous log-query service.
type Backend interface {
	StartQuery(ctx context.Context, req Request) (queryID string, err error)
	Poll(ctx context.Context, queryID string) (Status, Result, error)
}

// Run is the outcome of a query run.
type Run struct {
	QueryID string
	Rows    Result
	Outcome Outcome
	Status  Status
	Polls   int
}

// errPending marks a poll that has not reached Complete yet.
var errPending = errors.New("query not complete")

// Poller issues queries against a Backend and polls for completion.
type Poller struct {
	backend Backend
	logger  log.Logger

	// Interval is the wait between polls, MaxAttempts the poll budget.
	Interval    time.Duration
	MaxAttempts int
}

// NewPoller returns a Poller with the default interval and attempt budget.
func NewPoller(backend Backend, logger log.Logger) *Poller {
	if logger == nil {
		logger = log.Nop()
	}
	return &Poller{
		backend:     backend,
		logger:      logger,
		Interval:    DefaultPollInterval,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Run starts a query over [start, end] and polls until it completes, fails,
// or the attempt budget runs out. Without a log group or query expression it
// returns an empty skipped run and never touches the backend.
func (p *Poller) Run(ctx context.Context, logGroup, query string, start, end time.Time) (*Run, error) {
	if logGroup == "" || query == "" {
		return &Run{Rows: Result{}, Outcome: OutcomeSkipped}, nil
	}
	if p.backend == nil {
		return nil, fmt.Errorf("%w: log query configured without a backend", fault.ErrConfiguration)
	}

	ctx, span := tracer.Start(ctx, "logquery.run", trace.WithAttributes(
		attribute.String("alarmhook.logquery.group", logGroup),
		attribute.Int("alarmhook.logquery.limit", ResultLimit),
	))
	defer span.End()

	req := Request{
		LogGroup: logGroup,
		Query:    query,
		Start:    start.Unix(),
		End:      end.Unix(),
		Limit:    ResultLimit,
	}

	queryID, err := p.backend.StartQuery(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("start query: %w", err)
	}
	if queryID == "" {
		err := fmt.Errorf("%w: start query returned no query id", fault.ErrBackendProtocol)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("alarmhook.logquery.id", queryID))

	run := &Run{QueryID: queryID, Rows: Result{}}
	err = retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		run.Polls++
		status, rows, err := p.backend.Poll(ctx, queryID)
		if err != nil {
			return fmt.Errorf("poll query %s: %w", queryID, err)
		}
		run.Status = status

		switch {
		case status == StatusComplete:
			if rows != nil {
				run.Rows = rows
			}
			run.Outcome = OutcomeComplete
			return nil
		case status.terminal():
			run.Outcome = OutcomeFailed
			return nil
		default:
			return retry.RetryableError(errPending)
		}
	})

	span.SetAttributes(attribute.Int("alarmhook.logquery.polls", run.Polls))

	switch {
	case errors.Is(err, errPending):
		run.Outcome = OutcomeExhausted
		p.logger.Warn(ctx, "log query did not complete within poll budget",
			"query_id", queryID,
			"polls", run.Polls,
			"last_status", run.Status,
		)
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	case run.Outcome == OutcomeFailed:
		p.logger.Warn(ctx, "log query ended without results",
			"query_id", queryID,
			"status", run.Status,
			"polls", run.Polls,
		)
	}

	span.SetAttributes(
		attribute.String("alarmhook.logquery.outcome", string(run.Outcome)),
		attribute.Int("alarmhook.logquery.rows", len(run.Rows)),
	)
	return run, nil
}

func (p *Poller) backoff() retry.Backoff {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	// MaxRetries counts the waits between attempts, not the attempts.
	return retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(interval))
}
