package rule

import (
	"fmt"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/logiccorrelator/internal/predicate"
)

// Document is the top-level rule tree the host passes to LoadRules (§6):
// `document` with top-level `rules: [Rule…]`.
type Document struct {
	Rules []rawRule `yaml:"rules"`
}

type rawRule struct {
	ID              string         `yaml:"id"`
	Name            string         `yaml:"name"`
	Description     string         `yaml:"description"`
	Enabled         *bool          `yaml:"enabled"`
	Severity        string         `yaml:"severity"`
	Confidence      *float64       `yaml:"confidence"`
	MitreTechniques []string       `yaml:"mitre_techniques"`
	Conditions      []rawCondition `yaml:"conditions"`
	Actions         []rawAction    `yaml:"actions"`
}

type rawCondition struct {
	Type          string         `yaml:"type"`
	Window        *Duration      `yaml:"window"`
	Count         string         `yaml:"count"`
	FieldFilter   map[string]any `yaml:"field_filter"`
	FieldContains map[string]any `yaml:"field_contains"`
	GroupBy       []string       `yaml:"group_by"`
	SameUser      bool           `yaml:"same_user"`
	AfterPrevious bool           `yaml:"after_previous"`
	Within        *Duration      `yaml:"within"`
}

type rawAction struct {
	Message    string   `yaml:"message"`
	Severity   string   `yaml:"severity"`
	Confidence *float64 `yaml:"confidence"`
	Tag        string   `yaml:"tag"`
}

// Defaults supplies the §6 configuration fallbacks applied when a condition
// omits `count` or `window`.
type Defaults struct {
	Count      CountPredicate
	Window     Duration
	Confidence float64
}

// DefaultDefaults returns spec.md §6's stated defaults: count >= 1,
// window 60s, confidence 0.75.
func DefaultDefaults() Defaults {
	return Defaults{
		Count:      CountPredicate{Op: predicate.OpGTE, N: 1},
		Window:     Duration(60_000_000_000), // 60s in nanoseconds
		Confidence: 0.75,
	}
}

var countRe = regexp.MustCompile(`^\s*(>=|<=|>|<|=)\s*([0-9]+)\s*$`)

// ParseCount parses a condition's `count` string ("OP N") into a
// CountPredicate. An empty string means the caller should use the
// configured default instead — callers check that before calling ParseCount.
func ParseCount(s string) (CountPredicate, error) {
	m := countRe.FindStringSubmatch(s)
	if m == nil {
		return CountPredicate{}, fmt.Errorf("invalid count predicate %q: expected \"OP N\"", s)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return CountPredicate{}, fmt.Errorf("invalid count predicate %q: %w", s, err)
	}
	return CountPredicate{Op: predicate.CompareOp(m[1]), N: n}, nil
}

// LoadRules parses document and compiles every enabled rule into a Rule,
// field predicates included. Disabled rules are dropped silently, matching
// §6 ("Rules with enabled: false are ignored"). Rules that fail validation
// are returned in errs, one ValidationError per failing rule; the host is
// expected to refuse startup if errs is non-empty for any rule it intended
// to run (§6, §7).
func LoadRules(doc []byte, defaults Defaults) ([]*Rule, []error) {
	var parsed Document
	if err := yaml.Unmarshal(doc, &parsed); err != nil {
		return nil, []error{fmt.Errorf("parse rule document: %w", err)}
	}

	var rules []*Rule
	var errs []error
	for _, rr := range parsed.Rules {
		enabled := rr.Enabled == nil || *rr.Enabled
		if !enabled {
			continue
		}
		r, err := compileRule(rr, defaults)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		rules = append(rules, r)
	}
	return rules, errs
}

func compileRule(rr rawRule, defaults Defaults) (*Rule, error) {
	r := &Rule{
		ID:              rr.ID,
		Name:            rr.Name,
		Description:     rr.Description,
		Enabled:         true,
		Severity:        Severity(rr.Severity),
		Confidence:      rr.Confidence,
		MitreTechniques: rr.MitreTechniques,
	}

	if len(rr.Conditions) == 0 {
		return nil, &ValidationError{RuleID: r.ID, Reason: "conditions must be non-empty"}
	}

	for i, rc := range rr.Conditions {
		c, err := compileCondition(rc, defaults)
		if err != nil {
			return nil, &ValidationError{RuleID: r.ID, Reason: fmt.Sprintf("condition[%d]: %v", i, err)}
		}
		r.Conditions = append(r.Conditions, c)
	}

	for i, ra := range rr.Actions {
		a := Action{Message: ra.Message, Severity: Severity(ra.Severity), Confidence: ra.Confidence, Tag: ra.Tag}
		if a.Severity != "" && !a.Severity.IsValid() {
			return nil, &ValidationError{RuleID: r.ID, Reason: fmt.Sprintf("action[%d]: invalid severity %q", i, ra.Severity)}
		}
		r.Actions = append(r.Actions, a)
	}

	return r, nil
}

func compileCondition(rc rawCondition, defaults Defaults) (Condition, error) {
	if rc.Type == "" {
		return Condition{}, fmt.Errorf("type is required")
	}

	c := Condition{
		Type:          rc.Type,
		GroupBy:       rc.GroupBy,
		SameUser:      rc.SameUser,
		AfterPrevious: rc.AfterPrevious,
	}

	if rc.Window != nil {
		c.Window = *rc.Window
	} else {
		c.Window = defaults.Window
	}

	if rc.Count == "" {
		c.Count = defaults.Count
	} else {
		count, err := ParseCount(rc.Count)
		if err != nil {
			return Condition{}, err
		}
		c.Count = count
	}

	if rc.AfterPrevious {
		if rc.Within != nil {
			c.Within = *rc.Within
		} else {
			c.Within = defaults.Window
		}
	}

	for field, raw := range rc.FieldFilter {
		p, err := predicate.ParseFieldFilter(field, raw)
		if err != nil {
			return Condition{}, fmt.Errorf("field_filter: %w", err)
		}
		c.Filters = append(c.Filters, p)
	}
	for field, raw := range rc.FieldContains {
		p, err := predicate.ParseContains(field, raw)
		if err != nil {
			return Condition{}, fmt.Errorf("field_contains: %w", err)
		}
		c.Filters = append(c.Filters, p)
	}

	return c, nil
}
