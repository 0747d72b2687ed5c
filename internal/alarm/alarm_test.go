package alarm

import (
	"errors"
	"testing"

	"github.com/linnemanlabs/alarmhook/internal/fault"
)

func TestResolve_RawAlarm(t *testing.T) {
	t.Parallel()

	src, err := Resolve([]byte(`{"AlarmName":"HighCPU","NewStateValue":"ALARM"}`))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := src.(RawAlarm); !ok {
		t.Fatalf("source = %T, want RawAlarm", src)
	}
	if src.Envelope() != EnvelopeNone {
		t.Errorf("envelope = %q, want empty", src.Envelope())
	}
	if got := src.Alarm().Name(); got != "HighCPU" {
		t.Errorf("Name() = %q, want HighCPU", got)
	}
	if got := src.Alarm().State(); got != "ALARM" {
		t.Errorf("State() = %q, want ALARM", got)
	}
}

func TestResolve_LambdaSNSEnvelope(t *testing.T) {
	t.Parallel()

	body := `{"Records":[{"EventSource":"aws:sns","Sns":{"MessageId":"m-1","TopicArn":"arn:aws:sns:us-east-1:1:alarms",` +
		`"Message":"{\"AlarmName\":\"DiskFull\",\"NewStateReason\":\"threshold crossed\"}"}}]}`

	src, err := Resolve([]byte(body))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	env, ok := src.(EnvelopedAlarm)
	if !ok {
		t.Fatalf("source = %T, want EnvelopedAlarm", src)
	}
	if env.Kind != EnvelopeSNS {
		t.Errorf("kind = %q, want %q", env.Kind, EnvelopeSNS)
	}
	if env.MessageID != "m-1" {
		t.Errorf("MessageID = %q, want m-1", env.MessageID)
	}
	if env.TopicARN != "arn:aws:sns:us-east-1:1:alarms" {
		t.Errorf("TopicARN = %q", env.TopicARN)
	}
	if got := src.Alarm().Name(); got != "DiskFull" {
		t.Errorf("Name() = %q, want DiskFull", got)
	}
	if got := src.Alarm().Reason(); got != "threshold crossed" {
		t.Errorf("Reason() = %q", got)
	}
	if _, ok := src.Alarm()["Records"]; ok {
		t.Error("effective alarm still contains the envelope")
	}
}

func TestResolve_SNSHTTPNotification(t *testing.T) {
	t.Parallel()

	body := `{"Type":"Notification","MessageId":"m-2","Message":"{\"AlarmName\":\"5xxRate\"}"}`

	src, err := Resolve([]byte(body))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if src.Envelope() != EnvelopeSNSHTTP {
		t.Errorf("envelope = %q, want %q", src.Envelope(), EnvelopeSNSHTTP)
	}
	if got := src.Alarm().Name(); got != "5xxRate" {
		t.Errorf("Name() = %q, want 5xxRate", got)
	}
}

func TestResolve_OnlyOneLevelUnwrapped(t *testing.T) {
	t.Parallel()

	// inner message is itself an envelope; it must not be unwrapped again
	body := `{"Type":"Notification","Message":"{\"Type\":\"Notification\",\"Message\":\"{}\"}"}`

	src, err := Resolve([]byte(body))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if typ, _ := src.Alarm()["Type"].(string); typ != "Notification" {
		t.Errorf("inner Type = %q, want Notification (single unwrap)", typ)
	}
}

func TestResolve_EmptyEnvelopeMessageIsRaw(t *testing.T) {
	t.Parallel()

	src, err := Resolve([]byte(`{"Records":[{"Sns":{"Message":""}}]}`))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := src.(RawAlarm); !ok {
		t.Fatalf("source = %T, want RawAlarm", src)
	}
	if got := src.Alarm().Name(); got != UnknownName {
		t.Errorf("Name() = %q, want %q", got, UnknownName)
	}
}

func TestResolve_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{bad`},
		{"array", `[1,2]`},
		{"null", `null`},
		{"envelope message not json", `{"Records":[{"Sns":{"Message":"not json"}}]}`},
		{"envelope message null", `{"Type":"Notification","Message":"null"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Resolve([]byte(tt.body))
			if !errors.Is(err, fault.ErrMalformedEvent) {
				t.Errorf("err = %v, want ErrMalformedEvent", err)
			}
		})
	}
}

func TestEvent_Name(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"present", Event{"AlarmName": "HighCPU"}, "HighCPU"},
		{"absent", Event{}, UnknownName},
		{"empty", Event{"AlarmName": ""}, UnknownName},
		{"wrong type", Event{"AlarmName": 42.0}, UnknownName},
		{"nil event", nil, UnknownName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.ev.Name(); got != tt.want {
				t.Errorf("Name() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEvent_AutoScalingGroup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{
			name: "notification dimensions",
			ev: Event{"Trigger": map[string]any{"Dimensions": []any{
				map[string]any{"name": "InstanceId", "value": "i-1"},
				map[string]any{"name": "AutoScalingGroupName", "value": "web-asg"},
			}}},
			want: "web-asg",
		},
		{
			name: "describe api casing",
			ev: Event{"Trigger": map[string]any{"Dimensions": []any{
				map[string]any{"Name": "AutoScalingGroupName", "Value": "api-asg"},
			}}},
			want: "api-asg",
		},
		{"no trigger", Event{}, ""},
		{"no dimensions", Event{"Trigger": map[string]any{}}, ""},
		{
			name: "other dimensions only",
			ev: Event{"Trigger": map[string]any{"Dimensions": []any{
				map[string]any{"name": "LoadBalancer", "value": "app/lb/1"},
			}}},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.ev.AutoScalingGroup(); got != tt.want {
				t.Errorf("AutoScalingGroup() = %q, want %q", got, tt.want)
			}
		})
	}
}
