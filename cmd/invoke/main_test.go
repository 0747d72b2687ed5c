package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/alarmhook/internal/fault"
	"github.com/linnemanlabs/alarmhook/internal/incident"
	"github.com/linnemanlabs/alarmhook/internal/incident/memstore"
)

func newService() *incident.Service {
	p := incident.NewPipeline(incident.Options{}, incident.Deps{}, log.Nop())
	return incident.NewService(memstore.New(), p, log.Nop(), nil, nil)
}

func TestInvoke_PrintsResult(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := invoke(context.Background(), newService(), strings.NewReader(`{"AlarmName":"HighCPU"}`), &out)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not json: %v\n%s", err, out.String())
	}
	if got["ok"] != true {
		t.Errorf("ok = %v, want true", got["ok"])
	}
	for _, k := range []string{"reportKey", "markdownKey", "incidentId"} {
		if s, _ := got[k].(string); s == "" {
			t.Errorf("%s missing from %s", k, out.String())
		}
	}
	if _, ok := got["error"]; ok {
		t.Errorf("error present on success: %v", got["error"])
	}
}

func TestInvoke_MalformedEvent(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := invoke(context.Background(), newService(), strings.NewReader(`{"Type":"Notification","Message":"nope"}`), &out)
	if !errors.Is(err, fault.ErrMalformedEvent) {
		t.Fatalf("err = %v, want ErrMalformedEvent", err)
	}

	var got map[string]any
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not json: %v", err)
	}
	if got["ok"] != false || got["errorClass"] != "malformed_event" {
		t.Errorf("output = %v", got)
	}
	if s, _ := got["incidentId"].(string); s == "" {
		t.Error("incidentId missing on failure")
	}
}

func TestInvoke_OversizedEvent(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	big := strings.NewReader(`{"AlarmName":"` + strings.Repeat("x", maxEventBytes) + `"}`)
	if err := invoke(context.Background(), newService(), big, &out); !errors.Is(err, fault.ErrMalformedEvent) {
		t.Fatalf("err = %v, want ErrMalformedEvent", err)
	}
	if out.Len() != 0 {
		t.Errorf("output = %q, want nothing", out.String())
	}
}

func TestOpenEvent(t *testing.T) {
	t.Parallel()

	if _, _, err := openEvent(t.TempDir() + "/missing.json"); err == nil {
		t.Error("expected error for a missing file")
	}
	r, closeFn, err := openEvent("-")
	if err != nil || r == nil {
		t.Fatalf("stdin: r=%v err=%v", r, err)
	}
	closeFn()
}
