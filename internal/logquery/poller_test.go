package logquery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/alarmhook/internal/fault"
	"github.com/linnemanlabs/go-core/log"
)

// mockBackend returns preconfigured poll statuses in sequence.
type mockBackend struct {
	mu       sync.Mutex
	queryID  string
	startErr error
	statuses []Status
	rows     Result
	pollErr  error

	starts   int
	polls    int
	lastReq  Request
	lastPoll string
}

func (m *mockBackend) StartQuery(_ context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	m.lastReq = req
	if m.startErr != nil {
		return "", m.startErr
	}
	return m.queryID, nil
}

func (m *mockBackend) Poll(_ context.Context, queryID string) (Status, Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.polls
	m.polls++
	m.lastPoll = queryID
	if m.pollErr != nil {
		return "", nil, m.pollErr
	}
	status := StatusRunning
	if idx < len(m.statuses) {
		status = m.statuses[idx]
	}
	if status == StatusComplete {
		return status, m.rows, nil
	}
	return status, nil, nil
}

func newTestPoller(b Backend) *Poller {
	p := NewPoller(b, log.Nop())
	p.Interval = time.Millisecond
	return p
}

var (
	testStart = time.Unix(1_700_000_000, 0)
	testEnd   = testStart.Add(time.Hour)
)

func TestNewPoller_Defaults(t *testing.T) {
	t.Parallel()

	p := NewPoller(&mockBackend{}, nil)
	if p.Interval != 1500*time.Millisecond {
		t.Errorf("Interval = %v, want 1.5s", p.Interval)
	}
	if p.MaxAttempts != 20 {
		t.Errorf("MaxAttempts = %d, want 20", p.MaxAttempts)
	}
	if p.logger == nil {
		t.Error("expected Nop logger for nil logger")
	}
}

func TestRun_CompleteReturnsRowsAndStops(t *testing.T) {
	t.Parallel()

	rows := Result{
		{"@timestamp": "2026-01-01 00:00:00.000", "@message": "ERROR db timeout"},
		{"@timestamp": "2026-01-01 00:00:01.000", "@message": "ERROR db timeout"},
	}
	b := &mockBackend{
		queryID:  "q-1",
		statuses: []Status{StatusScheduled, StatusRunning, StatusComplete, StatusRunning},
		rows:     rows,
	}

	run, err := newTestPoller(b).Run(context.Background(), "/app/web", "fields @message", testStart, testEnd)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Outcome != OutcomeComplete {
		t.Errorf("outcome = %q, want %q", run.Outcome, OutcomeComplete)
	}
	if len(run.Rows) != 2 || run.Rows[0]["@message"] != "ERROR db timeout" {
		t.Errorf("rows = %v, want the completed rows", run.Rows)
	}
	if b.polls != 3 {
		t.Errorf("polls = %d, want 3 (no polling after Complete)", b.polls)
	}
	if run.Polls != 3 {
		t.Errorf("run.Polls = %d, want 3", run.Polls)
	}
	if b.lastPoll != "q-1" {
		t.Errorf("polled id = %q, want q-1", b.lastPoll)
	}
}

func TestRun_RequestShape(t *testing.T) {
	t.Parallel()

	b := &mockBackend{queryID: "q-1", statuses: []Status{StatusComplete}}

	if _, err := newTestPoller(b).Run(context.Background(), "/app/web", "stats count()", testStart, testEnd); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := Request{
		LogGroup: "/app/web",
		Query:    "stats count()",
		Start:    testStart.Unix(),
		End:      testEnd.Unix(),
		Limit:    100,
	}
	if b.lastReq != want {
		t.Errorf("request = %+v, want %+v", b.lastReq, want)
	}
	if b.starts != 1 {
		t.Errorf("starts = %d, want 1", b.starts)
	}
}

func TestRun_CompleteWithNoRowsIsEmptyNotNil(t *testing.T) {
	t.Parallel()

	b := &mockBackend{queryID: "q-1", statuses: []Status{StatusComplete}}

	run, err := newTestPoller(b).Run(context.Background(), "g", "q", testStart, testEnd)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Rows == nil {
		t.Fatal("rows = nil, want empty result")
	}
	if len(run.Rows) != 0 {
		t.Errorf("rows = %v, want empty", run.Rows)
	}
	if run.Outcome != OutcomeComplete {
		t.Errorf("outcome = %q, want complete", run.Outcome)
	}
}

func TestRun_ExhaustedReturnsEmptyWithoutError(t *testing.T) {
	t.Parallel()

	b := &mockBackend{queryID: "q-slow"} // always Running

	run, err := newTestPoller(b).Run(context.Background(), "g", "q", testStart, testEnd)
	if err != nil {
		t.Fatalf("Run: %v, want nil on exhaustion", err)
	}
	if run.Outcome != OutcomeExhausted {
		t.Errorf("outcome = %q, want %q", run.Outcome, OutcomeExhausted)
	}
	if len(run.Rows) != 0 {
		t.Errorf("rows = %v, want empty", run.Rows)
	}
	if b.polls != 20 {
		t.Errorf("polls = %d, want 20", b.polls)
	}
}

func TestRun_CustomAttemptBudget(t *testing.T) {
	t.Parallel()

	b := &mockBackend{queryID: "q-slow"}
	p := newTestPoller(b)
	p.MaxAttempts = 3

	run, err := p.Run(context.Background(), "g", "q", testStart, testEnd)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if b.polls != 3 {
		t.Errorf("polls = %d, want 3", b.polls)
	}
	if run.Outcome != OutcomeExhausted {
		t.Errorf("outcome = %q, want exhausted", run.Outcome)
	}
}

func TestRun_CompleteOnLastAttempt(t *testing.T) {
	t.Parallel()

	statuses := make([]Status, 20)
	for i := range statuses {
		statuses[i] = StatusRunning
	}
	statuses[19] = StatusComplete
	b := &mockBackend{queryID: "q-1", statuses: statuses, rows: Result{{"@message": "late"}}}

	run, err := newTestPoller(b).Run(context.Background(), "g", "q", testStart, testEnd)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Outcome != OutcomeComplete {
		t.Errorf("outcome = %q, want complete", run.Outcome)
	}
	if len(run.Rows) != 1 {
		t.Errorf("rows = %v, want 1 row", run.Rows)
	}
}

func TestRun_TerminalStatusStopsEarly(t *testing.T) {
	t.Parallel()

	for _, status := range []Status{StatusFailed, StatusCancelled, StatusTimeout} {
		t.Run(string(status), func(t *testing.T) {
			t.Parallel()

			b := &mockBackend{queryID: "q-1", statuses: []Status{StatusRunning, status}}
			run, err := newTestPoller(b).Run(context.Background(), "g", "q", testStart, testEnd)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if run.Outcome != OutcomeFailed {
				t.Errorf("outcome = %q, want %q", run.Outcome, OutcomeFailed)
			}
			if len(run.Rows) != 0 {
				t.Errorf("rows = %v, want empty", run.Rows)
			}
			if b.polls != 2 {
				t.Errorf("polls = %d, want 2", b.polls)
			}
		})
	}
}

func TestRun_NoQueryIDIsProtocolError(t *testing.T) {
	t.Parallel()

	b := &mockBackend{queryID: ""}

	_, err := newTestPoller(b).Run(context.Background(), "g", "q", testStart, testEnd)
	if !errors.Is(err, fault.ErrBackendProtocol) {
		t.Fatalf("err = %v, want ErrBackendProtocol", err)
	}
	if b.polls != 0 {
		t.Errorf("polls = %d, want 0", b.polls)
	}
}

func TestRun_StartErrorPropagates(t *testing.T) {
	t.Parallel()

	b := &mockBackend{startErr: errors.New("ResourceNotFoundException")}

	_, err := newTestPoller(b).Run(context.Background(), "g", "q", testStart, testEnd)
	if err == nil {
		t.Fatal("expected error from start")
	}
	if errors.Is(err, fault.ErrBackendProtocol) {
		t.Error("start failure must not be classified as a protocol error")
	}
	if b.polls != 0 {
		t.Errorf("polls = %d, want 0", b.polls)
	}
}

func TestRun_PollErrorPropagates(t *testing.T) {
	t.Parallel()

	b := &mockBackend{queryID: "q-1", pollErr: errors.New("throttled")}

	_, err := newTestPoller(b).Run(context.Background(), "g", "q", testStart, testEnd)
	if err == nil {
		t.Fatal("expected poll error")
	}
	if b.polls != 1 {
		t.Errorf("polls = %d, want 1 (poll errors are not retried)", b.polls)
	}
}

func TestRun_SkippedWithoutGroupOrQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		group string
		query string
	}{
		{"no group", "", "fields @message"},
		{"no query", "/app/web", ""},
		{"neither", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := &mockBackend{queryID: "q-1"}
			run, err := newTestPoller(b).Run(context.Background(), tt.group, tt.query, testStart, testEnd)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if run.Outcome != OutcomeSkipped {
				t.Errorf("outcome = %q, want skipped", run.Outcome)
			}
			if run.Rows == nil || len(run.Rows) != 0 {
				t.Errorf("rows = %v, want empty", run.Rows)
			}
			if b.starts != 0 || b.polls != 0 {
				t.Errorf("backend touched: starts=%d polls=%d", b.starts, b.polls)
			}
		})
	}
}

func TestRun_ContextCanceledMidPoll(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	b := &mockBackend{queryID: "q-1"}
	p := NewPoller(b, log.Nop())
	p.Interval = time.Hour

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(ctx, "g", "q", testStart, testEnd)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ConfiguredWithoutBackend(t *testing.T) {
	t.Parallel()

	_, err := NewPoller(nil, nil).Run(context.Background(), "g", "q", testStart, testEnd)
	if !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}
