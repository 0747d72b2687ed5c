// Alarmhook turns CloudWatch alarm notifications into incident reports and
// optional automated remediation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/metrics"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/otelx"
	"github.com/linnemanlabs/go-core/prof"
	v "github.com/linnemanlabs/go-core/version"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/alarmhook/internal/alarmapi"
	"github.com/linnemanlabs/alarmhook/internal/authmw"
	"github.com/linnemanlabs/alarmhook/internal/bootstrap"
	ac "github.com/linnemanlabs/alarmhook/internal/cfg"
	"github.com/linnemanlabs/alarmhook/internal/incident"
	"github.com/linnemanlabs/alarmhook/internal/incident/memstore"
	"github.com/linnemanlabs/alarmhook/internal/incident/pgstore"
	"github.com/linnemanlabs/alarmhook/internal/notify/slack"
	"github.com/linnemanlabs/alarmhook/internal/postgres"
)

const appName = "alarmhook"
const component = "server"

// maxEventBytes bounds an inbound alarm body. SNS caps messages at 256KiB
// and the envelope adds a little on top.
const maxEventBytes = 512 * 1024

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component
	vi := v.Get()

	// each package registers its own flags and options struct
	var (
		pipeCfg   ac.Pipeline
		srvCfg    ac.Server
		httpCfg   httpserver.Config
		httpmwCfg httpmw.Config
		logCfg    log.Config
		opsCfg    opshttp.Config
		profCfg   prof.Config
		traceCfg  otelx.Config
	)

	pipeCfg.RegisterFlags(flag.CommandLine)
	srvCfg.RegisterFlags(flag.CommandLine)
	httpCfg.RegisterFlags(flag.CommandLine)
	httpmwCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	opsCfg.RegisterFlags(flag.CommandLine)
	profCfg.RegisterFlags(flag.CommandLine)
	traceCfg.RegisterFlags(flag.CommandLine)
	var showVersion bool
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")

	// cmdline first, env vars below only fill what the cmdline left unset
	flag.Parse()
	if showVersion {
		fmt.Printf(
			"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return nil
	}

	cfg.FillFromEnv(flag.CommandLine, "ALARMHOOK_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(
		pipeCfg.Validate(),
		srvCfg.Validate(),
		httpCfg.Validate(),
		httpmwCfg.Validate(),
		logCfg.Validate(),
		opsCfg.Validate(),
		profCfg.Validate(),
		traceCfg.Validate(),
	); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// cross-cutting checks that only main can validate
	if srvCfg.APIPort == opsCfg.Port {
		return fmt.Errorf("http and admin ports must differ (both %d)", srvCfg.APIPort)
	}

	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	L := lg.With("component", vi.Component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"http_port", srvCfg.APIPort,
		"admin_port", opsCfg.Port,
		"enable_tracing", traceCfg.EnableTracing,
		"enable_pyroscope", profCfg.EnablePyroscope,
		"log_group", pipeCfg.LogGroupName,
		"reports_bucket", pipeCfg.ReportsBucket,
		"model_id", pipeCfg.ModelID,
		"summarizer", pipeCfg.Summarizer,
		"automation_document", pipeCfg.AutomationDocumentName,
		"explicit_automation_params", pipeCfg.AutomationParametersJSON != "",
		"context_errors_fatal", pipeCfg.ContextErrorsFatal,
		"aws_region", pipeCfg.AWSRegion,
		"aws_endpoint", pipeCfg.AWSEndpoint,
		"api_auth", srvCfg.APIToken != "",
	)

	// profiling starts early so the whole process lifetime is covered
	profOpts := profCfg.ToOptions()
	profOpts.AppName = v.AppName
	profOpts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
		"commit":    vi.Commit,
		"build_id":  vi.BuildId,
	}
	stopProf, profErr := prof.Start(ctx, profOpts)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", profCfg.PyroServer)
	}
	if stopProf != nil {
		defer stopProf()
	}

	traceOpts := traceCfg.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if shutdownOtelx == nil {
		shutdownOtelx = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOtelx(context.Background()) }()

	var m = metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, &vi)
	m.SetProfilingActive(profErr == nil && profCfg.EnablePyroscope)

	// invocation history
	var store incident.Store
	if srvCfg.DatabaseURL != "" {
		dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alarmhook_db_query_duration_seconds",
			Help:    "Duration of individual database queries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "outcome"})
		m.Registry().MustRegister(dbQueryDuration)

		pool, err := postgres.NewPool(ctx, srvCfg.DatabaseURL, postgres.Options{
			SlowQuery: 250 * time.Millisecond,
			Observer: postgres.QueryObserverFunc(func(_ context.Context, operation, outcome string, dur time.Duration) {
				dbQueryDuration.WithLabelValues(operation, outcome).Observe(dur.Seconds())
			}),
		})
		if err != nil {
			return fmt.Errorf("postgres pool: %w", err)
		}
		defer pool.Close()
		pg, err := pgstore.New(ctx, pool)
		if err != nil {
			return fmt.Errorf("pgstore init: %w", err)
		}
		store = pg
		L.Info(ctx, "using postgres store")
	} else {
		store = memstore.New()
		L.Info(ctx, "using in-memory store (no database-url configured)")
	}

	incidentMetrics := incident.NewMetrics(m.Registry())

	pipeline, err := bootstrap.Pipeline(ctx, &pipeCfg, L, incidentMetrics.Hooks())
	if err != nil {
		return fmt.Errorf("pipeline init: %w", err)
	}

	var notifier incident.Notifier
	if srvCfg.SlackWebhookURL != "" {
		notifier = slack.New(srvCfg.SlackWebhookURL, L)
		L.Info(ctx, "notifier enabled", "type", "slack")
	}

	svc := incident.NewService(store, pipeline, L, incidentMetrics, notifier)

	// readiness fails once shutdown starts so the load balancer drains us
	var shutdownGate health.ShutdownGate
	readiness := health.All(
		shutdownGate.Probe(),
	)
	liveness := health.Fixed(true, "")

	opsOpts := opsCfg.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = readiness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic

	opsHTTPStop, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}
	defer func() {
		if err := opsHTTPStop(context.Background()); err != nil {
			L.Error(ctx, err, "failed to stop ops http listener")
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.MaxBody(maxEventBytes))

	r.Get("/-/healthy", health.HealthzHandler(liveness))
	r.Get("/-/ready", health.ReadyzHandler(readiness))

	if srvCfg.APIToken == "" {
		L.Warn(ctx, "alarm ingestion is unauthenticated (no api-token configured)")
	}
	alarmapi.New(L, svc).RegisterRoutes(r, authmw.BearerToken(srvCfg.APIToken))

	// wrappers, outermost sees the raw request first
	var h http.Handler = r
	h = httpmw.WithLogger(L)(h)
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/-/healthy" && r.URL.Path != "/-/ready"
		}),
		// AnnotateHTTPRoute renames the span to the route pattern later
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(_ *http.Request) bool { return true }),
	)
	h = m.Middleware(h)
	h = httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{
		TrustedHops: httpmwCfg.TrustedProxyHops,
	})(h)
	h = httpmw.RequestID("X-Request-Id")(h)
	h = httpmw.Recover(L, nil)(h)
	h = httpmw.SecurityHeaders(h)

	apiOpts, err := httpCfg.ToOptions()
	if err != nil {
		L.Error(ctx, err, "invalid http config")
		return err
	}

	apiHTTPStop, err := httpserver.Start(ctx, fmt.Sprintf(":%d", srvCfg.APIPort), h, L, apiOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		return err
	}
	defer func() {
		if err := apiHTTPStop(context.Background()); err != nil {
			L.Error(ctx, err, "failed to stop api http listener")
		}
	}()

	if err := notifySystemd(readyStatus(&pipeCfg)); err != nil {
		// worst case systemd kills the process after its start timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()

	L.Info(context.Background(), "shutdown signal received")

	shutdownGate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	drainDuration := time.Duration(srvCfg.DrainSeconds) * time.Second
	L.Info(context.Background(), "sleeping for drain period", "drain_seconds", srvCfg.DrainSeconds)
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainDuration):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	// per-component budget sliced from the total, stopProf runs deferred
	type stopFn struct {
		name string
		fn   func(context.Context) error
	}
	stopFns := []stopFn{
		{"api http server", apiHTTPStop},
		{"ops http server", opsHTTPStop},
		{"otel", shutdownOtelx},
	}

	budget := time.Duration(srvCfg.ShutdownBudgetSeconds) * time.Second
	perComponent := budget / time.Duration(len(stopFns))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	for _, s := range stopFns {
		cctx, ccancel := context.WithTimeout(shutdownCtx, perComponent)
		if err := s.fn(cctx); err != nil {
			L.Error(context.Background(), err, s.name+" shutdown")
		}
		ccancel()
	}

	L.Info(context.Background(), "shutdown complete")
	return nil
}

// notifySystemd reports readiness with a STATUS line describing what the
// pipeline will do for each alarm.
func notifySystemd(status string) error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr) //nolint:gosec,noctx // G704: addr is from NOTIFY_SOCKET set by systemd not user input, no context support in net package for unixgram sockets
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	msg := "READY=1"
	if status != "" {
		// STATUS is a single line
		msg += "\nSTATUS=" + strings.ReplaceAll(status, "\n", " ")
	}
	if _, err := conn.Write([]byte(msg)); err != nil {
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	return nil
}

// readyStatus lists the optional stages the configuration enables.
func readyStatus(c *ac.Pipeline) string {
	var stages []string
	if c.LogGroupName != "" && c.LogsInsightsQuery != "" {
		stages = append(stages, "logs")
	}
	if c.SSMParamName != "" {
		stages = append(stages, "parameter")
	}
	if c.SecretID != "" {
		stages = append(stages, "secret")
	}
	if c.ModelID != "" {
		stages = append(stages, c.Summarizer)
	}
	if c.ReportsBucket != "" {
		stages = append(stages, "s3")
	}
	if c.AutomationDocumentName != "" {
		stages = append(stages, "automation")
	}
	if len(stages) == 0 {
		return "accepting alarms, no optional stages enabled"
	}
	return "accepting alarms, stages: " + strings.Join(stages, ",")
}
