// Package decisiongraph records the per-evaluation trace spec.md §4.4
// describes: one Graph per rule evaluation, matched or not, retained in a
// bounded ring and exportable as DOT.
package decisiongraph

import (
	"time"

	"github.com/google/uuid"
	"github.com/telhawk-systems/logiccorrelator/internal/event"
)

// ConditionResult is one entry of a Graph's conditions_evaluated list: the
// outcome of testing a single condition Cᵢ against the window.
type ConditionResult struct {
	Index         int // 1-based position of the condition in the rule
	ConditionType string
	Matched       bool
	BoundEvents   []*event.Event // independent copies, never window-store aliases
}

// Graph is the DAG-shaped trace of one rule evaluation: rule -> C1 -> C2 ->
// ... -> terminal.
type Graph struct {
	ID           string
	RuleID       string
	RuleName     string
	TriggerEvent *event.Event
	Timestamp    time.Time

	Conditions        []ConditionResult
	Matched           bool
	FailedAtCondition *int // 1-based; nil when Matched is true
}

// New builds a Graph for one evaluation pass. trigger is cloned so the
// graph stays valid after the window store expires the original.
func New(ruleID, ruleName string, trigger *event.Event, now time.Time) *Graph {
	return &Graph{
		ID:           uuid.NewString(),
		RuleID:       ruleID,
		RuleName:     ruleName,
		TriggerEvent: trigger.Clone(),
		Timestamp:    now,
	}
}

// RecordMatch appends a matching condition result, cloning its bound events.
func (g *Graph) RecordMatch(index int, conditionType string, bound []*event.Event) {
	g.Conditions = append(g.Conditions, ConditionResult{
		Index:         index,
		ConditionType: conditionType,
		Matched:       true,
		BoundEvents:   cloneAll(bound),
	})
}

// RecordFailure appends the first failing condition and finalizes the graph
// as non-matched — per Invariant R1, evaluation stops at the first
// unmatched condition, so no further conditions are recorded.
func (g *Graph) RecordFailure(index int, conditionType string) {
	g.Conditions = append(g.Conditions, ConditionResult{
		Index:         index,
		ConditionType: conditionType,
		Matched:       false,
	})
	g.Matched = false
	idx := index
	g.FailedAtCondition = &idx
}

// Finalize marks the graph as fully matched once every condition has
// recorded a RecordMatch call.
func (g *Graph) Finalize() {
	g.Matched = true
	g.FailedAtCondition = nil
}

func cloneAll(evs []*event.Event) []*event.Event {
	if evs == nil {
		return nil
	}
	out := make([]*event.Event, len(evs))
	for i, e := range evs {
		out[i] = e.Clone()
	}
	return out
}
