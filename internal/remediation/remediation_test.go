package remediation

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/linnemanlabs/alarmhook/internal/fault"
	"github.com/linnemanlabs/alarmhook/internal/report"
	"github.com/linnemanlabs/go-core/log"
)

type startCall struct {
	document string
	params   Parameters
}

type mockRunner struct {
	mu     sync.Mutex
	calls  []startCall
	execID string
	err    error
}

func (m *mockRunner) StartAutomation(_ context.Context, document string, params Parameters) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, startCall{document: document, params: params})
	if m.err != nil {
		return "", m.err
	}
	return m.execID, nil
}

var testKeys = report.Keys{
	JSONKey:     "reports/alarm-1700000000000.json",
	MarkdownKey: "reports/alarm-1700000000000.md",
}

func TestResolve_Derived(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		asg  string
		want Parameters
	}{
		{
			name: "without asg",
			want: Parameters{
				"IncidentId":        {"01HZX"},
				"AlarmName":         {"HighCPU"},
				"ReportBucket":      {"reports-bkt"},
				"ReportJsonKey":     {testKeys.JSONKey},
				"ReportMarkdownKey": {testKeys.MarkdownKey},
			},
		},
		{
			name: "with asg",
			asg:  "web-asg",
			want: Parameters{
				"IncidentId":        {"01HZX"},
				"AlarmName":         {"HighCPU"},
				"ReportBucket":      {"reports-bkt"},
				"ReportJsonKey":     {testKeys.JSONKey},
				"ReportMarkdownKey": {testKeys.MarkdownKey},
				"AsgName":           {"web-asg"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, err := Resolve("", DerivedInput{
				IncidentID: "01HZX",
				AlarmName:  "HighCPU",
				Bucket:     "reports-bkt",
				Keys:       testKeys,
				AsgName:    tt.asg,
			})
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if s.Kind() != KindDerived {
				t.Errorf("kind = %q, want derived", s.Kind())
			}
			if got := s.Parameters(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("params = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolve_DerivedWithoutBucketKeepsEmptyValue(t *testing.T) {
	t.Parallel()

	s, err := Resolve("", DerivedInput{IncidentID: "id", AlarmName: "unknown", Keys: testKeys})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got, ok := s.Parameters()["ReportBucket"]
	if !ok || len(got) != 1 || got[0] != "" {
		t.Errorf("ReportBucket = %v, want [\"\"]", got)
	}
}

func TestResolve_ExplicitVerbatim(t *testing.T) {
	t.Parallel()

	s, err := Resolve(`{"InstanceIds":["i-1","i-2"],"Action":["reboot"]}`, DerivedInput{
		IncidentID: "ignored",
		AlarmName:  "HighCPU",
		AsgName:    "web-asg",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Kind() != KindExplicit {
		t.Errorf("kind = %q, want explicit", s.Kind())
	}
	want := Parameters{"InstanceIds": {"i-1", "i-2"}, "Action": {"reboot"}}
	if got := s.Parameters(); !reflect.DeepEqual(got, want) {
		t.Errorf("params = %v, want %v (nothing injected)", got, want)
	}
}

func TestResolve_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{"not json", `{bad`},
		{"array", `["a"]`},
		{"null", `null`},
		{"scalar values", `{"a":"b"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Resolve(tt.in, DerivedInput{})
			if !errors.Is(err, fault.ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestFire_NoDocumentIsNoop(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{execID: "exec-1"}
	id, err := NewTrigger(runner, log.Nop()).Fire(context.Background(), "", Derived{})
	if err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if id != "" {
		t.Errorf("id = %q, want empty", id)
	}
	if len(runner.calls) != 0 {
		t.Errorf("calls = %d, want 0", len(runner.calls))
	}
}

func TestFire_StartsOneRun(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{execID: "exec-1"}
	strategy := Explicit{Params: Parameters{"Action": {"restart"}}}

	id, err := NewTrigger(runner, nil).Fire(context.Background(), "Restart-Web", strategy)
	if err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if id != "exec-1" {
		t.Errorf("id = %q, want exec-1", id)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(runner.calls))
	}
	if runner.calls[0].document != "Restart-Web" {
		t.Errorf("document = %q", runner.calls[0].document)
	}
	if !reflect.DeepEqual(runner.calls[0].params, strategy.Params) {
		t.Errorf("params = %v, want %v", runner.calls[0].params, strategy.Params)
	}
}

func TestFire_RunnerError(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{err: errors.New("InvalidDocument")}
	_, err := NewTrigger(runner, nil).Fire(context.Background(), "Missing-Doc", Derived{})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestFire_DocumentWithoutRunner(t *testing.T) {
	t.Parallel()

	_, err := NewTrigger(nil, nil).Fire(context.Background(), "Doc", Derived{})
	if !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}
