// Package predicate implements the field-filter language of spec.md §4.2:
// scalar equality, set membership, substring containment, and arithmetic
// comparison against a field value, including size literals (KB/MB/GB).
//
// Predicates are parsed once, at rule-load time, into a Predicate value —
// never re-parsed during evaluation. This mirrors the Design Notes'
// explicit callout that a source that re-parses a count predicate string on
// every event is a pattern to re-architect away from.
package predicate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/telhawk-systems/logiccorrelator/internal/event"
)

// Kind identifies which §4.2 predicate shape a Predicate was parsed from.
type Kind int

const (
	KindEquals Kind = iota
	KindIn
	KindContains
	KindCompare
)

// CompareOp is an arithmetic comparison operator for KindCompare predicates.
type CompareOp string

const (
	OpGTE CompareOp = ">="
	OpGT  CompareOp = ">"
	OpEQ  CompareOp = "="
	OpLTE CompareOp = "<="
	OpLT  CompareOp = "<"
)

// Predicate is a single parsed field-filter test against an event.
type Predicate struct {
	Field string
	Kind  Kind

	Scalar     any      // KindEquals
	Set        []any    // KindIn
	Substrings []string // KindContains
	Op         CompareOp
	Number     float64 // KindCompare
}

var compareRe = regexp.MustCompile(`^\s*(>=|<=|>|<|=)\s*(-?[0-9]+(?:\.[0-9]+)?)\s*([KMGT]?B)?\s*$`)

const (
	kb = 1024
	mb = kb * 1024
	gb = mb * 1024
	tb = gb * 1024
)

var sizeUnits = map[string]float64{
	"B":  1,
	"KB": kb,
	"MB": mb,
	"GB": gb,
	"TB": tb,
}

// ParseFieldFilter builds a Predicate from one entry of a condition's
// field_filter map. raw is the YAML/JSON-decoded value for field.
func ParseFieldFilter(field string, raw any) (Predicate, error) {
	switch v := raw.(type) {
	case []any:
		return Predicate{Field: field, Kind: KindIn, Set: v}, nil
	case string:
		if m := compareRe.FindStringSubmatch(v); m != nil {
			return parseCompare(field, m)
		}
		return Predicate{Field: field, Kind: KindEquals, Scalar: v}, nil
	default:
		return Predicate{Field: field, Kind: KindEquals, Scalar: v}, nil
	}
}

func parseCompare(field string, m []string) (Predicate, error) {
	n, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Predicate{}, fmt.Errorf("field filter %q: invalid numeric literal %q: %w", field, m[2], err)
	}
	if unit := m[3]; unit != "" {
		mult, ok := sizeUnits[unit]
		if !ok {
			return Predicate{}, fmt.Errorf("field filter %q: unknown size unit %q", field, unit)
		}
		n *= mult
	}
	return Predicate{Field: field, Kind: KindCompare, Op: CompareOp(m[1]), Number: n}, nil
}

// ParseContains builds a field_contains predicate. raw may be a single
// string or a list of strings; the predicate matches if the field contains
// at least one of them.
func ParseContains(field string, raw any) (Predicate, error) {
	switch v := raw.(type) {
	case string:
		return Predicate{Field: field, Kind: KindContains, Substrings: []string{v}}, nil
	case []any:
		subs := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return Predicate{}, fmt.Errorf("field_contains %q: list entries must be strings", field)
			}
			subs = append(subs, s)
		}
		return Predicate{Field: field, Kind: KindContains, Substrings: subs}, nil
	default:
		return Predicate{}, fmt.Errorf("field_contains %q: expected string or list of strings", field)
	}
}

// TypeMismatchError reports that a predicate's expected value shape and the
// field's actual value disagree (PredicateTypeMismatch, §7) — e.g. a
// KindCompare predicate against a field holding a string. Match degrades
// this to a non-match rather than aborting evaluation; callers that want
// visibility into why a condition failed to match can call MatchDiagnose.
type TypeMismatchError struct {
	Field string
	Kind  Kind
	Value any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("predicate type mismatch: field %q (kind %d) holds %T, not comparable", e.Field, e.Kind, e.Value)
}

// Match reports whether e satisfies p. A missing field fails the predicate
// silently — no error, per §4.2 — and any shape mismatch between the
// predicate and the actual field value is likewise treated as non-match
// rather than aborting evaluation.
func (p Predicate) Match(e *event.Event) bool {
	ok, _ := p.MatchDiagnose(e)
	return ok
}

// MatchDiagnose is Match plus a non-nil TypeMismatchError when the match
// failed specifically because the field's value could not be compared as
// the predicate expects, rather than because the field was absent or simply
// unequal. The returned bool is always Match's answer.
func (p Predicate) MatchDiagnose(e *event.Event) (bool, error) {
	val, ok := e.Field(p.Field)
	if !ok {
		return false, nil
	}

	switch p.Kind {
	case KindEquals:
		return scalarEqual(val, p.Scalar), nil
	case KindIn:
		for _, want := range p.Set {
			if scalarEqual(val, want) {
				return true, nil
			}
		}
		return false, nil
	case KindContains:
		s, ok := val.(string)
		if !ok {
			return false, &TypeMismatchError{Field: p.Field, Kind: p.Kind, Value: val}
		}
		for _, sub := range p.Substrings {
			if strings.Contains(s, sub) {
				return true, nil
			}
		}
		return false, nil
	case KindCompare:
		n, ok := toFloat(val)
		if !ok {
			return false, &TypeMismatchError{Field: p.Field, Kind: p.Kind, Value: val}
		}
		return compare(n, p.Op, p.Number), nil
	default:
		return false, nil
	}
}

func compare(a float64, op CompareOp, b float64) bool {
	switch op {
	case OpGTE:
		return a >= b
	case OpGT:
		return a > b
	case OpEQ:
		return a == b
	case OpLTE:
		return a <= b
	case OpLT:
		return a < b
	default:
		return false
	}
}

// scalarEqual compares a field value against a literal, type-exact: numbers
// compare numerically regardless of int/float representation, strings
// compare string-wise, everything else falls back to Go equality.
func scalarEqual(a, b any) bool {
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr || bStr {
		return aStr && bStr && as == bs
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Match evaluates a set of predicates against an event, requiring all of
// them to pass (field_filter predicates are implicitly AND-ed, per §3).
func Match(filters []Predicate, e *event.Event) bool {
	for _, p := range filters {
		if !p.Match(e) {
			return false
		}
	}
	return true
}
