package incident

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/alarmhook/internal/alarm"
	"github.com/linnemanlabs/alarmhook/internal/fault"
	"github.com/linnemanlabs/go-core/log"
)

// DefaultListLimit bounds List when the caller gives no limit.
const DefaultListLimit = 50

// Runner executes one invocation. *Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, id string, event []byte) (*Outcome, error)
}

// Notifier delivers a finished invocation record to operators.
type Notifier interface {
	Send(ctx context.Context, r *Record) error
}

// Service is the business boundary for incident invocations: it assigns
// ids, keeps the invocation history, and notifies on completion.
type Service struct {
	store    Store
	runner   Runner
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
}

// NewService creates a new incident service. metrics and notifier may be nil.
func NewService(store Store, runner Runner, logger log.Logger, metrics *Metrics, notifier Notifier) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		runner:   runner,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
	}
}

// Invoke runs the pipeline for one inbound event. The returned Record is
// never nil and is stored whether or not the pipeline succeeded.
func (s *Service) Invoke(ctx context.Context, event []byte) (*Result, *Record, error) {
	id := ulid.Make().String()
	L := s.logger.With("incident_id", id)

	rec := &Record{
		ID:        id,
		AlarmName: alarm.UnknownName,
		Status:    StatusRunning,
		CreatedAt: time.Now(),
	}
	if err := s.store.Put(ctx, rec); err != nil {
		L.Error(ctx, err, "failed to record invocation start")
	}

	out, runErr := s.runner.Run(ctx, id, event)
	if out != nil {
		rec.apply(out)
	}
	rec.CompletedAt = time.Now()
	rec.Status = StatusSucceeded
	if runErr != nil {
		rec.Status = StatusFailed
		rec.Error = runErr.Error()
		rec.ErrorClass = string(fault.Classify(runErr))
	}

	// the caller may have gone away, history and notification still happen
	bg := context.WithoutCancel(ctx)
	if err := s.store.Put(bg, rec); err != nil {
		L.Error(bg, err, "failed to record invocation result")
	}
	s.notify(bg, L, rec)

	if runErr != nil {
		L.Error(ctx, runErr, "incident invocation failed", "error_class", rec.ErrorClass)
		return nil, rec, runErr
	}
	return &out.Result, rec, nil
}

// Get retrieves an invocation record by ID.
func (s *Service) Get(ctx context.Context, id string) (*Record, bool, error) {
	return s.store.Get(ctx, id)
}

// List returns recent invocation records, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.store.List(ctx, limit)
}

func (s *Service) notify(ctx context.Context, L log.Logger, rec *Record) {
	if s.notifier == nil {
		return
	}
	// malformed events are caller errors, not incidents
	if rec.ErrorClass == string(fault.ClassMalformedEvent) {
		return
	}
	result := "sent"
	if err := s.notifier.Send(ctx, rec); err != nil {
		result = "error"
		L.Warn(ctx, "failed to send notification", "error", err)
	}
	if s.metrics != nil {
		s.metrics.NotifyTotal.WithLabelValues(result).Inc()
	}
}
