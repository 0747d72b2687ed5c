package report

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/linnemanlabs/alarmhook/internal/fault"
	"github.com/linnemanlabs/go-core/log"
)

var tracer = otel.Tracer("github.com/linnemanlabs/alarmhook/internal/report")

const (
	ContentTypeJSON     = "application/json"
	ContentTypeMarkdown = "text/markdown"
)

// ObjectStore writes a single object.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

// Sink persists report artifacts. The JSON artifact is always written first.
type Sink struct {
	store  ObjectStore
	logger log.Logger
}

// NewSink returns a Sink writing to store.
func NewSink(store ObjectStore, logger log.Logger) *Sink {
	if logger == nil {
		logger = log.Nop()
	}
	return &Sink{store: store, logger: logger}
}

// Persist writes both artifacts under keys. It returns false without writing
// anything when bucket is empty. A failed JSON write aborts before the
// markdown write is attempted.
func (s *Sink) Persist(ctx context.Context, bucket string, keys Keys, jsonBody, markdown []byte) (bool, error) {
	if bucket == "" {
		s.logger.Info(ctx, "no report bucket configured, skipping persistence")
		return false, nil
	}
	if s.store == nil {
		return false, fmt.Errorf("%w: report bucket set without an object store", fault.ErrConfiguration)
	}

	ctx, span := tracer.Start(ctx, "report.persist")
	defer span.End()
	span.SetAttributes(
		attribute.String("alarmhook.report.bucket", bucket),
		attribute.String("alarmhook.report.key", keys.JSONKey),
	)

	if err := s.store.PutObject(ctx, bucket, keys.JSONKey, jsonBody, ContentTypeJSON); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("put %s: %w", keys.JSONKey, err)
	}
	if err := s.store.PutObject(ctx, bucket, keys.MarkdownKey, markdown, ContentTypeMarkdown); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("put %s: %w", keys.MarkdownKey, err)
	}

	s.logger.Info(ctx, "report persisted",
		"bucket", bucket,
		"report_key", keys.JSONKey,
		"markdown_key", keys.MarkdownKey,
	)
	return true, nil
}
