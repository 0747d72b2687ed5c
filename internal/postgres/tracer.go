package postgres

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

// QueryObserver receives per-query timings (wired by main for Prometheus).
type QueryObserver interface {
	ObserveQuery(ctx context.Context, operation, outcome string, dur time.Duration)
}

// QueryObserverFunc adapts a plain function to QueryObserver.
type QueryObserverFunc func(ctx context.Context, operation, outcome string, dur time.Duration)

// ObserveQuery implements QueryObserver.
func (f QueryObserverFunc) ObserveQuery(ctx context.Context, operation, outcome string, dur time.Duration) {
	f(ctx, operation, outcome, dur)
}

type queryStartKey struct{}

type queryStart struct {
	sql    string
	nargs  int
	at     time.Time
	caller string
}

// queryTracer wraps another pgx.QueryTracer (otelpgx) and adds the calling
// store method to the span, a metrics hook, and a log line for failed or
// slow queries.
type queryTracer struct {
	inner    pgx.QueryTracer
	observer QueryObserver
	slow     time.Duration
	logAll   bool
}

func newQueryTracer(inner pgx.QueryTracer, opts Options) *queryTracer {
	return &queryTracer{
		inner:    inner,
		observer: opts.Observer,
		slow:     opts.SlowQuery,
		logAll:   opts.LogQueries,
	}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	qs := &queryStart{
		sql:    data.SQL,
		nargs:  len(data.Args),
		at:     time.Now(),
		caller: storeCaller(),
	}

	// inner tracer opens the db span
	if t.inner != nil {
		ctx = t.inner.TraceQueryStart(ctx, conn, data)
	}
	if span := trace.SpanFromContext(ctx); qs.caller != "" && span.IsRecording() {
		span.SetAttributes(attribute.String("db.caller", qs.caller))
	}
	return context.WithValue(ctx, queryStartKey{}, qs)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if t.inner != nil {
		t.inner.TraceQueryEnd(ctx, conn, data)
	}

	qs, _ := ctx.Value(queryStartKey{}).(*queryStart)
	if qs == nil {
		return
	}
	dur := time.Since(qs.at)
	op := operationName(data.CommandTag, qs.sql)

	outcome := "ok"
	if data.Err != nil {
		outcome = "error"
	}
	if t.observer != nil {
		t.observer.ObserveQuery(ctx, op, outcome, dur)
	}

	slow := t.slow > 0 && dur >= t.slow
	if data.Err == nil && !slow && !t.logAll {
		return
	}

	// args are counted, never logged: they carry alarm payloads and summaries
	fields := []any{
		"db.statement", qs.sql,
		"db.args", qs.nargs,
		"db.operation.name", op,
		"db.duration", dur.Seconds(),
	}
	if data.Err == nil {
		fields = append(fields, "db.rows", data.CommandTag.RowsAffected())
	}
	if qs.caller != "" {
		fields = append(fields, "db.caller", qs.caller)
	}

	L := log.FromContext(ctx)
	switch {
	case data.Err != nil:
		var pgErr *pgconn.PgError
		if errors.As(data.Err, &pgErr) {
			fields = append(fields, "db.error_code", pgErr.Code, "db.error_constraint", pgErr.ConstraintName)
		}
		L.Error(ctx, data.Err, "db query failed", fields...)
	case slow:
		L.Warn(ctx, "slow db query", fields...)
	default:
		L.Info(ctx, "db query", fields...)
	}
}

// operationName derives the SQL verb from the command tag, falling back to
// the statement text.
func operationName(tag pgconn.CommandTag, sql string) string {
	if f := strings.Fields(tag.String()); len(f) > 0 {
		return strings.ToUpper(f[0])
	}
	if f := strings.Fields(sql); len(f) > 0 {
		return strings.ToUpper(f[0])
	}
	return "UNKNOWN"
}

// storeCaller returns the first frame outside pgx, otelpgx and this package,
// normally the store method issuing the query.
func storeCaller() string {
	pcs := make([]uintptr, 24)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		fr, more := frames.Next()
		fn := fr.Function
		skip := strings.HasPrefix(fn, "runtime.") ||
			strings.Contains(fn, "github.com/jackc/pgx/v5") ||
			strings.Contains(fn, "github.com/exaring/otelpgx") ||
			strings.Contains(fn, "github.com/linnemanlabs/alarmhook/internal/postgres.")
		if fn != "" && !skip {
			return shortenFuncName(fn)
		}
		if !more {
			return ""
		}
	}
}

func shortenFuncName(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 && i+1 < len(fn) {
		fn = fn[i+1:]
	}
	if dot := strings.Index(fn, "."); dot >= 0 && dot+1 < len(fn) {
		fn = fn[dot+1:]
	}
	return fn
}
