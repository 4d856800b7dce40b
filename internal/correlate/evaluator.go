// Package correlate implements Algorithm EVAL from spec.md §4.3: the
// left-to-right condition walk, per-condition partitioning, temporal
// gating between conditions, and the alert construction a matched rule
// triggers.
//
// Grounded on the alerting/internal/correlation evaluator family:
// evaluator_event_count.go's threshold-over-group-partitions shape and
// evaluator_temporal_ordered.go's after-previous sequencing, generalized
// into one evaluator that walks a rule's ordered conditions in place of
// dispatching on a correlation_type tag.
package correlate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/telhawk-systems/logiccorrelator/internal/alert"
	"github.com/telhawk-systems/logiccorrelator/internal/decisiongraph"
	"github.com/telhawk-systems/logiccorrelator/internal/event"
	"github.com/telhawk-systems/logiccorrelator/internal/predicate"
	"github.com/telhawk-systems/logiccorrelator/internal/rule"
	"github.com/telhawk-systems/logiccorrelator/internal/window"
)

// Evaluator tests rules against a window store, one triggering event at a
// time. It holds no per-rule state between calls — every condition's bound
// events live on the call stack for the duration of one Evaluate call, per
// Invariant R2.
type Evaluator struct {
	store             *window.Store
	defaultConfidence float64
}

// New returns an Evaluator reading from store. defaultConfidence is used
// when neither a rule nor its action template specifies one (§6
// default_confidence).
func New(store *window.Store, defaultConfidence float64) *Evaluator {
	return &Evaluator{store: store, defaultConfidence: defaultConfidence}
}

// Result is the outcome of testing one rule against one triggering event:
// always a decision graph (§4.4, "every evaluation — matched or not —
// yields one DecisionGraph"), and an Alert only when every condition
// matched.
type Result struct {
	Graph *decisiongraph.Graph
	Alert *alert.Alert
}

// EvaluateAll tests every rule in rules against trigger, in load order
// (§5, "rules are evaluated in load order"). A rule's outcome never
// depends on another rule's alert in this same pass.
func (ev *Evaluator) EvaluateAll(rules []*rule.Rule, trigger *event.Event, now time.Time) []Result {
	out := make([]Result, 0, len(rules))
	for _, r := range rules {
		out = append(out, ev.Evaluate(r, trigger, now))
	}
	return out
}

// Evaluate runs Algorithm EVAL for one rule against one triggering event at
// instant now. now is the single consistent "now" for the whole pass
// (§4.1): every window slice and temporal gate in this call uses it, never
// a fresh clock read.
func (ev *Evaluator) Evaluate(r *rule.Rule, trigger *event.Event, now time.Time) Result {
	graph := decisiongraph.New(r.ID, r.Name, trigger, now)

	var bound [][]*event.Event
	for i, c := range r.Conditions {
		partition, ok := ev.matchCondition(c, bound, now)
		if !ok {
			graph.RecordFailure(i+1, c.Type)
			return Result{Graph: graph}
		}
		bound = append(bound, partition)
		graph.RecordMatch(i+1, c.Type, partition)
	}

	graph.Finalize()
	a := alert.New(r, r.Actions[0], trigger, bound, now, graph.ID, ev.defaultConfidence)
	return Result{Graph: graph, Alert: a}
}

// matchCondition implements EVAL steps (a)-(f) for one condition Cᵢ: window
// slice, field filter, group partition, same_user/after_previous gating
// against the previous condition's bound set, count threshold, and the
// tie-break over qualifying partitions.
func (ev *Evaluator) matchCondition(c rule.Condition, bound [][]*event.Event, now time.Time) ([]*event.Event, bool) {
	candidates := ev.store.Slice(c.Type, now, c.Window.AsDuration())

	filtered := make([]*event.Event, 0, len(candidates))
	for _, e := range candidates {
		if predicate.Match(c.Filters, e) {
			filtered = append(filtered, e)
		}
	}

	partitions := partitionBy(filtered, c.GroupBy)

	if c.SameUser && len(bound) > 0 && len(bound[0]) > 0 {
		wantUser := bound[0][0].User
		for key, part := range partitions {
			partitions[key] = filterUser(part, wantUser)
		}
	}

	if c.AfterPrevious && len(bound) > 0 {
		tStar := maxTimestamp(bound[len(bound)-1])
		within := c.Within.AsDuration()
		for key, part := range partitions {
			partitions[key] = filterAfter(part, tStar, within)
		}
	}

	return selectPartition(partitions, c.Count)
}

// partitionBy groups events by the tuple of group_by field values. An
// ungrouped condition is a single partition under the empty key, so the
// rest of the pipeline never special-cases "no group_by".
func partitionBy(events []*event.Event, groupBy []string) map[string][]*event.Event {
	if len(groupBy) == 0 {
		return map[string][]*event.Event{"": events}
	}
	out := map[string][]*event.Event{}
	for _, e := range events {
		key := groupKey(e, groupBy)
		out[key] = append(out[key], e)
	}
	return out
}

// groupKey renders the tuple of field values as one string, in field order
// — not sorted — so two events agree on a key iff they agree on every
// group_by field, in the same positions. \x1f (unit separator) keeps an
// empty field from colliding with a delimiter a real field value might
// contain.
func groupKey(e *event.Event, fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		if v, ok := e.Field(f); ok {
			parts[i] = fmt.Sprint(v)
		}
	}
	return strings.Join(parts, "\x1f")
}

// filterUser restricts events to those whose User matches wantUser, per
// Cᵢ.same_user (§3).
func filterUser(events []*event.Event, wantUser string) []*event.Event {
	out := make([]*event.Event, 0, len(events))
	for _, e := range events {
		if e.User == wantUser {
			out = append(out, e)
		}
	}
	return out
}

// filterAfter restricts events to tStar < e.Timestamp <= tStar+within, per
// Cᵢ.after_previous / Cᵢ.within (§3, §4.3 step e).
func filterAfter(events []*event.Event, tStar time.Time, within time.Duration) []*event.Event {
	deadline := tStar.Add(within)
	out := make([]*event.Event, 0, len(events))
	for _, e := range events {
		if e.Timestamp.After(tStar) && !e.Timestamp.After(deadline) {
			out = append(out, e)
		}
	}
	return out
}

// maxTimestamp returns the latest Timestamp among events, or the zero
// time for an empty slice.
func maxTimestamp(events []*event.Event) time.Time {
	var max time.Time
	for _, e := range events {
		if e.Timestamp.After(max) {
			max = e.Timestamp
		}
	}
	return max
}

// selectPartition implements the §4.3 tie-break: among partitions whose
// size satisfies count, the winner is the one with the latest maximum
// timestamp, ties broken toward the lexicographically smaller group key.
// Partition keys are walked in sorted order so the first tie seen is the
// lexicographically smallest, and a strict "after" comparison keeps that
// first candidate on a tie.
func selectPartition(partitions map[string][]*event.Event, count rule.CountPredicate) ([]*event.Event, bool) {
	keys := make([]string, 0, len(partitions))
	for k := range partitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var best []*event.Event
	var bestMax time.Time
	found := false

	for _, k := range keys {
		part := partitions[k]
		if !count.Satisfied(len(part)) {
			continue
		}
		ts := maxTimestamp(part)
		if !found || ts.After(bestMax) {
			found = true
			best = part
			bestMax = ts
		}
	}
	return best, found
}
