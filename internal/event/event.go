// Package event defines the normalized record the correlation core operates on.
package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Direction is the traffic direction of a network_connect event.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Event is an immutable, normalized observation from a collector.
//
// The typed fields cover every attribute spec.md §3 calls out by name;
// anything else arrives in Overflow and is reachable by the same dotted
// field paths the predicate evaluator understands. Once admitted an Event
// is never mutated (Invariant E1) — callers that need to adjust a field
// must construct a new Event.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`

	User          string    `json:"user,omitempty"`
	SourceIP      string    `json:"source_ip,omitempty"`
	SourcePort    int       `json:"source_port,omitempty"`
	DestIP        string    `json:"dest_ip,omitempty"`
	DestPort      int       `json:"dest_port,omitempty"`
	Protocol      string    `json:"protocol,omitempty"`
	Direction     Direction `json:"direction,omitempty"`
	ProcessName   string    `json:"process_name,omitempty"`
	CommandLine   string    `json:"command_line,omitempty"`
	ParentProcess string    `json:"parent_process,omitempty"`
	PID           int       `json:"pid,omitempty"`
	FilePath      string    `json:"file_path,omitempty"`
	Operation     string    `json:"operation,omitempty"`
	Domain        string    `json:"domain,omitempty"`
	QueryType     string    `json:"query_type,omitempty"`
	Severity      string    `json:"severity,omitempty"`
	Message       string    `json:"message,omitempty"`

	// Overflow holds any field a rule may reference that isn't one of the
	// named attributes above, keyed by the JSON field name as received.
	Overflow map[string]any `json:"-"`
}

// knownFields maps the wire field name to a getter, so Field() can resolve
// both typed attributes and overflow entries through one path.
var knownFields = map[string]func(*Event) any{
	"type":           func(e *Event) any { return e.Type },
	"timestamp":      func(e *Event) any { return e.Timestamp },
	"source":         func(e *Event) any { return e.Source },
	"user":           func(e *Event) any { return e.User },
	"source_ip":      func(e *Event) any { return e.SourceIP },
	"source_port":    func(e *Event) any { return e.SourcePort },
	"dest_ip":        func(e *Event) any { return e.DestIP },
	"dest_port":      func(e *Event) any { return e.DestPort },
	"protocol":       func(e *Event) any { return e.Protocol },
	"direction":      func(e *Event) any { return string(e.Direction) },
	"process_name":   func(e *Event) any { return e.ProcessName },
	"command_line":   func(e *Event) any { return e.CommandLine },
	"parent_process": func(e *Event) any { return e.ParentProcess },
	"pid":            func(e *Event) any { return e.PID },
	"file_path":      func(e *Event) any { return e.FilePath },
	"operation":      func(e *Event) any { return e.Operation },
	"domain":         func(e *Event) any { return e.Domain },
	"query_type":     func(e *Event) any { return e.QueryType },
	"severity":       func(e *Event) any { return e.Severity },
	"message":        func(e *Event) any { return e.Message },
}

// Field resolves a dotted field path ("dest_port", or "custom.nested" for
// Overflow["custom"]["nested"]) against the event, dispatching on the typed
// tag first and falling back to Overflow. It returns (nil, false) for anything absent rather than erroring
// — predicate evaluation treats a missing field as a silent non-match.
func (e *Event) Field(path string) (any, bool) {
	if e == nil {
		return nil, false
	}
	path = strings.TrimPrefix(path, ".")
	head, rest, hasRest := strings.Cut(path, ".")

	if get, ok := knownFields[head]; ok && !hasRest {
		v := get(e)
		if isZero(v) {
			return nil, false
		}
		return v, true
	}

	cur, ok := e.Overflow[head]
	if !ok {
		return nil, false
	}
	if !hasRest {
		return cur, true
	}
	return lookupNested(cur, rest)
}

func lookupNested(cur any, path string) (any, bool) {
	for {
		head, rest, hasRest := strings.Cut(path, ".")
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[head]
		if !ok {
			return nil, false
		}
		if !hasRest {
			return v, true
		}
		cur = v
		path = rest
	}
}

func isZero(v any) bool {
	switch t := v.(type) {
	case string:
		return t == ""
	case int:
		return t == 0
	case time.Time:
		return t.IsZero()
	default:
		return false
	}
}

// wireEvent mirrors the JSON shape accepted on ingress (§6): a
// self-describing object with `type`, `timestamp` (ISO8601 or unix
// seconds), `_source`, plus arbitrary extra fields.
type wireEvent struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
	Source    string          `json:"_source"`
}

// SchemaError reports that an admitted record failed required-field
// validation. The core drops the event, counts it in events_rejected, and
// never reaches rule evaluation over it.
type SchemaError struct {
	Field string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("event schema: missing required field %q", e.Field)
}

// ErrMissingType is returned by Parse when the event has no resolvable type.
var ErrMissingType = &SchemaError{Field: "type"}

// ErrMissingTimestamp is returned by Parse when timestamp cannot be
// interpreted and no ingest-time fallback is supplied.
var ErrMissingTimestamp = &SchemaError{Field: "timestamp"}

// Parse decodes one newline-delimited ingress record into an Event.
//
// ingestTime is substituted for a missing or non-finite timestamp, per
// §4.1's time semantics. infer, when true, applies the keyword-heuristic
// type inference matching
// event_aggregator._infer_event_type, but only at this ingress boundary —
// never inside the evaluator.
func Parse(raw []byte, ingestTime time.Time, infer bool) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}

	overflow := map[string]any{}
	if err := json.Unmarshal(raw, &overflow); err != nil {
		return nil, fmt.Errorf("parse event fields: %w", err)
	}
	delete(overflow, "type")
	delete(overflow, "timestamp")
	delete(overflow, "_source")

	e := &Event{
		Type:   w.Type,
		Source: w.Source,
	}

	if e.Type == "" && infer {
		e.Type = InferType(overflow)
	}
	if e.Type == "" {
		return nil, ErrMissingType
	}

	ts, ok := parseTimestamp(w.Timestamp)
	if !ok {
		ts = ingestTime
	}
	if ts.IsZero() {
		return nil, ErrMissingTimestamp
	}
	e.Timestamp = ts

	applyKnownFields(e, overflow)
	e.Overflow = overflow
	return e, nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromUnixSeconds(f)
		}
		return time.Time{}, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return fromUnixSeconds(f)
	}
	return time.Time{}, false
}

func fromUnixSeconds(f float64) (time.Time, bool) {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC(), true
}

// applyKnownFields copies every overflow entry that matches a typed
// attribute into the struct field and removes it from overflow, so the same
// value is never visible through two paths.
func applyKnownFields(e *Event, overflow map[string]any) {
	str := func(key string, set func(string)) {
		if v, ok := overflow[key].(string); ok {
			set(v)
			delete(overflow, key)
		}
	}
	num := func(key string, set func(int)) {
		switch v := overflow[key].(type) {
		case float64:
			set(int(v))
			delete(overflow, key)
		case int:
			set(v)
			delete(overflow, key)
		}
	}

	str("user", func(v string) { e.User = v })
	str("source_ip", func(v string) { e.SourceIP = v })
	str("dest_ip", func(v string) { e.DestIP = v })
	str("protocol", func(v string) { e.Protocol = v })
	str("direction", func(v string) { e.Direction = Direction(v) })
	str("process_name", func(v string) { e.ProcessName = v })
	str("command_line", func(v string) { e.CommandLine = v })
	str("parent_process", func(v string) { e.ParentProcess = v })
	str("file_path", func(v string) { e.FilePath = v })
	str("operation", func(v string) { e.Operation = v })
	str("domain", func(v string) { e.Domain = v })
	str("query_type", func(v string) { e.QueryType = v })
	str("severity", func(v string) { e.Severity = v })
	str("message", func(v string) { e.Message = v })
	num("source_port", func(v int) { e.SourcePort = v })
	num("dest_port", func(v int) { e.DestPort = v })
	num("pid", func(v int) { e.PID = v })
}

// InferType applies the keyword heuristic ported from the original
// implementation's _infer_event_type: a last-resort guess when a collector
// omits `type`, never used downstream of ingress.
func InferType(fields map[string]any) string {
	blob := strings.ToLower(fmt.Sprint(fields))
	switch {
	case strings.Contains(blob, "auth") && strings.Contains(blob, "fail"):
		return "auth_fail"
	case strings.Contains(blob, "auth"):
		return "auth_success"
	case strings.Contains(blob, "process"):
		return "process_start"
	case strings.Contains(blob, "network") || strings.Contains(blob, "connection"):
		return "network_connect"
	case strings.Contains(blob, "file"):
		return "file_access"
	default:
		return ""
	}
}

// MarshalJSON flattens the typed fields back over Overflow so an Event
// round-trips through the egress shape §6 specifies: one flat object, not a
// struct with a nested overflow bag.
func (e *Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Overflow)+3)
	for k, v := range e.Overflow {
		out[k] = v
	}
	out["type"] = e.Type
	out["timestamp"] = e.Timestamp.Unix()
	if e.Source != "" {
		out["_source"] = e.Source
	}
	set := func(key, v string) {
		if v != "" {
			out[key] = v
		}
	}
	setInt := func(key string, v int) {
		if v != 0 {
			out[key] = v
		}
	}
	set("user", e.User)
	set("source_ip", e.SourceIP)
	setInt("source_port", e.SourcePort)
	set("dest_ip", e.DestIP)
	setInt("dest_port", e.DestPort)
	set("protocol", e.Protocol)
	set("direction", string(e.Direction))
	set("process_name", e.ProcessName)
	set("command_line", e.CommandLine)
	set("parent_process", e.ParentProcess)
	setInt("pid", e.PID)
	set("file_path", e.FilePath)
	set("operation", e.Operation)
	set("domain", e.Domain)
	set("query_type", e.QueryType)
	set("severity", e.Severity)
	set("message", e.Message)
	return json.Marshal(out)
}

// Clone returns a deep-enough copy suitable for holding independently of the
// window store (decision graphs and alerts must not alias admitted events).
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	if e.Overflow != nil {
		c.Overflow = make(map[string]any, len(e.Overflow))
		for k, v := range e.Overflow {
			c.Overflow[k] = v
		}
	}
	return &c
}
