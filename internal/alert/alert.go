// Package alert constructs the Alert records spec.md §3/§6 describe and
// keeps the bounded in-memory ring the external read API queries.
package alert

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/logiccorrelator/internal/event"
	"github.com/telhawk-systems/logiccorrelator/internal/rule"
)

// Alert is a record derived from a matched rule (§3 "Alert").
type Alert struct {
	ID              string
	Timestamp       time.Time
	RuleID          string
	RuleName        string
	Message         string
	Severity        rule.Severity
	Confidence      float64
	MitreTechniques []string
	TriggerEvent    *event.Event
	BoundEvents     [][]*event.Event
	Tags            []string
	DecisionGraphID string
}

// New builds an Alert from a matched rule's first action, applying the
// template-default rules §4.3 step 3 specifies: message falls back to the
// rule's description then its name; severity and confidence fall back to
// the rule, then to the process-wide default_confidence.
func New(r *rule.Rule, action rule.Action, trigger *event.Event, bound [][]*event.Event, now time.Time, decisionGraphID string, defaultConfidence float64) *Alert {
	message := action.Message
	if message == "" {
		message = r.Description
	}
	if message == "" {
		message = r.Name
	}

	severity := action.Severity
	if severity == "" {
		severity = r.Severity
	}

	confidence := defaultConfidence
	if action.Confidence != nil {
		confidence = *action.Confidence
	} else if r.Confidence != nil {
		confidence = *r.Confidence
	}

	var tags []string
	if action.Tag != "" {
		tags = []string{action.Tag}
	}

	return &Alert{
		ID:              uuid.NewString(),
		Timestamp:       now,
		RuleID:          r.ID,
		RuleName:        r.Name,
		Message:         message,
		Severity:        severity,
		Confidence:      confidence,
		MitreTechniques: r.MitreTechniques,
		TriggerEvent:    trigger.Clone(),
		BoundEvents:     cloneBound(bound),
		Tags:            tags,
		DecisionGraphID: decisionGraphID,
	}
}

func cloneBound(bound [][]*event.Event) [][]*event.Event {
	out := make([][]*event.Event, len(bound))
	for i, set := range bound {
		clones := make([]*event.Event, len(set))
		for j, e := range set {
			clones[j] = e.Clone()
		}
		out[i] = clones
	}
	return out
}

// wireAlert mirrors the §6 egress JSON shape exactly: a flat object, not a
// struct with Go field names.
type wireAlert struct {
	Timestamp       int64            `json:"timestamp"`
	RuleID          string           `json:"rule_id"`
	RuleName        string           `json:"rule_name"`
	Message         string           `json:"message"`
	Severity        string           `json:"severity"`
	Confidence      float64          `json:"confidence"`
	MitreTechniques []string         `json:"mitre_techniques"`
	TriggerEvent    *event.Event     `json:"trigger_event"`
	BoundEvents     [][]*event.Event `json:"bound_events"`
	Tags            []string         `json:"tags"`
}

// MarshalJSON produces the §6 egress shape.
func (a *Alert) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireAlert{
		Timestamp:       a.Timestamp.Unix(),
		RuleID:          a.RuleID,
		RuleName:        a.RuleName,
		Message:         a.Message,
		Severity:        string(a.Severity),
		Confidence:      a.Confidence,
		MitreTechniques: a.MitreTechniques,
		TriggerEvent:    a.TriggerEvent,
		BoundEvents:     a.BoundEvents,
		Tags:            a.Tags,
	})
}
