// Package alarm resolves inbound monitoring events into the effective alarm
// record. An event is either the raw alarm payload or a single notification
// envelope around a JSON-encoded alarm; it is resolved once at pipeline entry.
package alarm

import (
	"encoding/json"
	"fmt"

	"github.com/linnemanlabs/alarmhook/internal/fault"
)

// UnknownName is used wherever an alarm carries no name.
const UnknownName = "unknown"

// Envelope kinds.
const (
	EnvelopeNone    = ""
	EnvelopeSNS     = "sns"      // Lambda-style Records[0].Sns.Message
	EnvelopeSNSHTTP = "sns-http" // SNS HTTP(S) subscription delivery
)

// Event is the opaque alarm record. Only a few attributes are read by the
// pipeline; the rest is carried into the report as-is.
type Event map[string]any

// Name returns the alarm name, or UnknownName if absent or not a string.
func (e Event) Name() string {
	if s, ok := e["AlarmName"].(string); ok && s != "" {
		return s
	}
	return UnknownName
}

// State returns the alarm's new state value (ALARM, OK, INSUFFICIENT_DATA), if any.
func (e Event) State() string {
	s, _ := e["NewStateValue"].(string)
	return s
}

// Reason returns the alarm's state change reason, if any.
func (e Event) Reason() string {
	s, _ := e["NewStateReason"].(string)
	return s
}

// AutoScalingGroup returns the AutoScalingGroupName dimension of the alarm
// trigger, or "" when the alarm is not scoped to a group.
func (e Event) AutoScalingGroup() string {
	trig, ok := e["Trigger"].(map[string]any)
	if !ok {
		return ""
	}
	dims, ok := trig["Dimensions"].([]any)
	if !ok {
		return ""
	}
	for _, d := range dims {
		dim, ok := d.(map[string]any)
		if !ok {
			continue
		}
		// alarm notifications use lower-case keys, the describe API uses upper-case
		name, _ := firstString(dim, "name", "Name")
		if name != "AutoScalingGroupName" {
			continue
		}
		if v, ok := firstString(dim, "value", "Value"); ok {
			return v
		}
	}
	return ""
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			return s, true
		}
	}
	return "", false
}

// Source is an inbound event resolved into one of its two variants.
type Source interface {
	// Alarm returns the effective alarm record.
	Alarm() Event
	// Envelope names the wrapper the alarm arrived in, EnvelopeNone for raw alarms.
	Envelope() string
}

// RawAlarm is an event that is itself the alarm.
type RawAlarm struct {
	Event Event
}

// Alarm implements Source.
func (r RawAlarm) Alarm() Event { return r.Event }

// Envelope implements Source.
func (r RawAlarm) Envelope() string { return EnvelopeNone }

// EnvelopedAlarm is an alarm unwrapped from a notification envelope.
type EnvelopedAlarm struct {
	Kind      string
	MessageID string
	TopicARN  string
	Event     Event
}

// Alarm implements Source.
func (e EnvelopedAlarm) Alarm() Event { return e.Event }

// Envelope implements Source.
func (e EnvelopedAlarm) Envelope() string { return e.Kind }

// Resolve parses body and unwraps at most one notification envelope.
func Resolve(body []byte) (Source, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: event is not a JSON object: %v", fault.ErrMalformedEvent, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: event is null", fault.ErrMalformedEvent)
	}
	return ResolveMap(raw)
}

// ResolveMap is Resolve for an already decoded event.
func ResolveMap(raw map[string]any) (Source, error) {
	if sns, ok := lambdaSNS(raw); ok {
		msg, _ := sns["Message"].(string)
		if msg != "" {
			ev, err := decodeMessage(msg)
			if err != nil {
				return nil, err
			}
			id, _ := sns["MessageId"].(string)
			topic, _ := sns["TopicArn"].(string)
			return EnvelopedAlarm{Kind: EnvelopeSNS, MessageID: id, TopicARN: topic, Event: ev}, nil
		}
	}

	if typ, _ := raw["Type"].(string); typ == "Notification" {
		if msg, _ := raw["Message"].(string); msg != "" {
			ev, err := decodeMessage(msg)
			if err != nil {
				return nil, err
			}
			id, _ := raw["MessageId"].(string)
			topic, _ := raw["TopicArn"].(string)
			return EnvelopedAlarm{Kind: EnvelopeSNSHTTP, MessageID: id, TopicARN: topic, Event: ev}, nil
		}
	}

	return RawAlarm{Event: Event(raw)}, nil
}

// lambdaSNS returns Records[0].Sns when present.
func lambdaSNS(raw map[string]any) (map[string]any, bool) {
	records, ok := raw["Records"].([]any)
	if !ok || len(records) == 0 {
		return nil, false
	}
	rec, ok := records[0].(map[string]any)
	if !ok {
		return nil, false
	}
	sns, ok := rec["Sns"].(map[string]any)
	return sns, ok
}

func decodeMessage(msg string) (Event, error) {
	var ev map[string]any
	if err := json.Unmarshal([]byte(msg), &ev); err != nil {
		return nil, fmt.Errorf("%w: envelope message is not a JSON object: %v", fault.ErrMalformedEvent, err)
	}
	if ev == nil {
		return nil, fmt.Errorf("%w: envelope message is null", fault.ErrMalformedEvent)
	}
	return Event(ev), nil
}
