// Invoke runs one incident invocation for an alarm event read from a file or
// stdin and prints the result, the way a function runtime would call it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/otelx"
	v "github.com/linnemanlabs/go-core/version"

	"github.com/linnemanlabs/alarmhook/internal/bootstrap"
	ac "github.com/linnemanlabs/alarmhook/internal/cfg"
	"github.com/linnemanlabs/alarmhook/internal/fault"
	"github.com/linnemanlabs/alarmhook/internal/incident"
	"github.com/linnemanlabs/alarmhook/internal/incident/memstore"
)

const appName = "alarmhook"
const component = "invoke"

// maxEventBytes matches the server's body limit.
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

	var (
		pipeCfg   ac.Pipeline
		logCfg    log.Config
		traceCfg  otelx.Config
		eventPath string
	)
	pipeCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	traceCfg.RegisterFlags(flag.CommandLine)
	flag.StringVar(&eventPath, "event", "", "file holding the alarm event (empty or - = stdin)")
	flag.Parse()

	cfg.FillFromEnv(flag.CommandLine, "ALARMHOOK_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(pipeCfg.Validate(), logCfg.Validate(), traceCfg.Validate()); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()
	L := lg.With("component", component)
	ctx = log.WithContext(ctx, L)

	traceOpts := traceCfg.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = component
	traceOpts.Version = v.Version
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if shutdownOtelx != nil {
		// flush spans of this single invocation before exit
		defer func() { _ = shutdownOtelx(context.Background()) }()
	}

	in, closeIn, err := openEvent(eventPath)
	if err != nil {
		return err
	}
	defer closeIn()

	pipeline, err := bootstrap.Pipeline(ctx, &pipeCfg, L)
	if err != nil {
		return fmt.Errorf("pipeline init: %w", err)
	}

	return invoke(ctx, incident.NewService(memstore.New(), pipeline, L, nil, nil), in, os.Stdout)
}

func openEvent(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path) //nolint:gosec // G304: the event path is an operator supplied flag
	if err != nil {
		return nil, nil, fmt.Errorf("open event: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// invocation is what invoke prints: the pipeline result, or the failure.
type invocation struct {
	*incident.Result
	Error      string `json:"error,omitempty"`
	ErrorClass string `json:"errorClass,omitempty"`
}

// invoke reads one event from in, runs it through svc and writes the
// outcome as JSON to out. The returned error is the invocation error.
func invoke(ctx context.Context, svc *incident.Service, in io.Reader, out io.Writer) error {
	event, err := io.ReadAll(io.LimitReader(in, maxEventBytes+1))
	if err != nil {
		return fmt.Errorf("read event: %w", err)
	}
	if len(event) > maxEventBytes {
		return fmt.Errorf("%w: event exceeds %d bytes", fault.ErrMalformedEvent, maxEventBytes)
	}

	res, rec, runErr := svc.Invoke(ctx, event)
	resp := invocation{Result: res}
	if runErr != nil {
		resp.Result = &incident.Result{IncidentID: rec.ID}
		resp.Error = runErr.Error()
		resp.ErrorClass = rec.ErrorClass
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return runErr
}
