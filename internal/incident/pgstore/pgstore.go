// Package pgstore provides a PostgreSQL implementation of incident.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/alarmhook/internal/incident"
)

var tracer = otel.Tracer("github.com/linnemanlabs/alarmhook/internal/incident/pgstore")

//go:embed schema.sql
var schema string

// Store persists invocation records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const recordColumns = `id, alarm_name, alarm_state, envelope, status, report_key, markdown_key,
	persisted, strategy, execution_id, query_outcome, query_rows, summary, error, error_class,
	created_at, completed_at, duration_s`

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*incident.Record, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	r, err := scanRecord(s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM incident_runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	return r, true, nil
}

// Put inserts or updates a record.
func (s *Store) Put(ctx context.Context, r *incident.Record) error {
	ctx, span := startSpan(ctx, "pgstore.Put", "UPSERT")
	defer span.End()

	var completedAt *time.Time
	if !r.CompletedAt.IsZero() {
		completedAt = &r.CompletedAt
	}

	query := `INSERT INTO incident_runs (` + recordColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	ON CONFLICT (id) DO UPDATE SET
		alarm_name    = EXCLUDED.alarm_name,
		alarm_state   = EXCLUDED.alarm_state,
		envelope      = EXCLUDED.envelope,
		status        = EXCLUDED.status,
		report_key    = EXCLUDED.report_key,
		markdown_key  = EXCLUDED.markdown_key,
		persisted     = EXCLUDED.persisted,
		strategy      = EXCLUDED.strategy,
		execution_id  = EXCLUDED.execution_id,
		query_outcome = EXCLUDED.query_outcome,
		query_rows    = EXCLUDED.query_rows,
		summary       = EXCLUDED.summary,
		error         = EXCLUDED.error,
		error_class   = EXCLUDED.error_class,
		completed_at  = EXCLUDED.completed_at,
		duration_s    = EXCLUDED.duration_s`

	_, err := s.pool.Exec(ctx, query,
		r.ID, r.AlarmName, r.AlarmState, r.Envelope, string(r.Status), r.ReportKey, r.MarkdownKey,
		r.Persisted, r.Strategy, r.ExecutionID, r.QueryOutcome, r.QueryRows, r.Summary, r.Error, r.ErrorClass,
		r.CreatedAt, completedAt, r.Duration,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert incident run: %w", err)
	}
	return nil
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*incident.Record, error) {
	ctx, span := startSpan(ctx, "pgstore.List", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM incident_runs ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query incident runs: %w", err)
	}
	defer rows.Close()

	out := []*incident.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate incident runs: %w", err)
	}
	return out, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

// scanRecord scans a single row. pgx.ErrNoRows is returned unwrapped.
func scanRecord(row pgx.Row) (*incident.Record, error) {
	var (
		r           incident.Record
		status      string
		completedAt *time.Time
	)
	err := row.Scan(
		&r.ID, &r.AlarmName, &r.AlarmState, &r.Envelope, &status, &r.ReportKey, &r.MarkdownKey,
		&r.Persisted, &r.Strategy, &r.ExecutionID, &r.QueryOutcome, &r.QueryRows, &r.Summary, &r.Error, &r.ErrorClass,
		&r.CreatedAt, &completedAt, &r.Duration,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan: %w", err)
	}
	r.Status = incident.Status(status)
	if completedAt != nil {
		r.CompletedAt = *completedAt
	}
	return &r, nil
}
