// Package report assembles the incident report record, renders its markdown
// view, and persists both artifacts.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/alarmhook/internal/alarm"
	"github.com/linnemanlabs/alarmhook/internal/gather"
	"github.com/linnemanlabs/alarmhook/internal/logquery"
)

// TimestampLayout is the ISO-8601 UTC layout with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp marshals as an ISO-8601 UTC string with milliseconds.
type Timestamp time.Time

// String formats t with TimestampLayout in UTC.
func (t Timestamp) String() string {
	return time.Time(t).UTC().Format(TimestampLayout)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

// Record is the canonical incident report. It is built once per invocation
// and never modified afterwards.
type Record struct {
	GeneratedAt    Timestamp              `json:"generatedAt"`
	Alarm          alarm.Event            `json:"alarm"`
	LogsResults    logquery.Result        `json:"logsResults"`
	ConfigParam    *gather.Parameter      `json:"ssmParam"`
	SecretMetadata *gather.SecretMetadata `json:"secretMetadata"`
	Summary        string                 `json:"bedrockSummary"`
}

// Assemble merges the gathered context into a Record.
func Assemble(now time.Time, al alarm.Event, rows logquery.Result, param *gather.Parameter, secret *gather.SecretMetadata, summary string) *Record {
	if rows == nil {
		rows = logquery.Result{}
	}
	return &Record{
		GeneratedAt:    Timestamp(now),
		Alarm:          al,
		LogsResults:    rows,
		ConfigParam:    param,
		SecretMetadata: secret,
		Summary:        summary,
	}
}

// AlarmName returns the alarm name or alarm.UnknownName.
func (r *Record) AlarmName() string {
	return r.Alarm.Name()
}

// JSON renders the record with a two-space indent.
func (r *Record) JSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// RenderMarkdown renders the display-only markdown view of r. Content is
// not escaped.
func RenderMarkdown(r *Record) string {
	return strings.Join([]string{
		"# Alarm Report",
		"- Generated: " + r.GeneratedAt.String(),
		"- Alarm: " + r.AlarmName(),
		"",
		"## Summary",
		"```\n" + r.Summary + "\n```",
	}, "\n")
}

// KeyPrefix is prepended to every report object key.
const KeyPrefix = "reports/alarm-"

// Keys are the object keys of one invocation's artifacts.
type Keys struct {
	JSONKey     string `json:"reportKey"`
	MarkdownKey string `json:"markdownKey"`
}

// NewKeys derives both keys from the invocation time in milliseconds. Two
// invocations in the same millisecond share keys.
func NewKeys(now time.Time) Keys {
	base := fmt.Sprintf("%s%d", KeyPrefix, now.UnixMilli())
	return Keys{
		JSONKey:     base + ".json",
		MarkdownKey: base + ".md",
	}
}
