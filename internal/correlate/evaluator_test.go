package correlate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/logiccorrelator/internal/event"
	"github.com/telhawk-systems/logiccorrelator/internal/predicate"
	"github.com/telhawk-systems/logiccorrelator/internal/rule"
	"github.com/telhawk-systems/logiccorrelator/internal/window"
)

var base = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func mkEvent(typ string, ts time.Time, user string) *event.Event {
	return &event.Event{Type: typ, Timestamp: ts, User: user}
}

func credentialStuffingRule() *rule.Rule {
	return &rule.Rule{
		ID:       "cred-stuffing",
		Name:     "Credential stuffing",
		Severity: rule.SeverityHigh,
		Conditions: []rule.Condition{
			{
				Type:    "auth_fail",
				Window:  rule.Duration(120 * time.Second),
				Count:   rule.CountPredicate{Op: predicate.OpGTE, N: 5},
				GroupBy: []string{"user"},
			},
			{
				Type:          "auth_success",
				Window:        rule.Duration(120 * time.Second),
				Count:         rule.CountPredicate{Op: predicate.OpGTE, N: 1},
				SameUser:      true,
				AfterPrevious: true,
				Within:        rule.Duration(30 * time.Second),
			},
		},
		Actions: []rule.Action{{Message: "credential stuffing detected"}},
	}
}

// Scenario 1: credential stuffing, matched.
func TestEvaluate_CredentialStuffing_Matches(t *testing.T) {
	store := window.New()
	for i := 0; i < 6; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		store.Admit(mkEvent("auth_fail", ts, "alice"), ts)
	}
	trigger := mkEvent("auth_success", base.Add(15*time.Second), "alice")
	store.Admit(trigger, trigger.Timestamp)

	ev := New(store, 0.75)
	res := ev.Evaluate(credentialStuffingRule(), trigger, trigger.Timestamp)

	require.True(t, res.Graph.Matched)
	require.NotNil(t, res.Alert)
	assert.Len(t, res.Alert.BoundEvents[0], 6)
	assert.Len(t, res.Alert.BoundEvents[1], 1)
}

// Scenario 2: credential stuffing with a mismatched trailing user — no
// match, failure recorded at condition 2.
func TestEvaluate_CredentialStuffing_WrongUser_NoMatch(t *testing.T) {
	store := window.New()
	for i := 0; i < 6; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		store.Admit(mkEvent("auth_fail", ts, "alice"), ts)
	}
	trigger := mkEvent("auth_success", base.Add(15*time.Second), "bob")
	store.Admit(trigger, trigger.Timestamp)

	ev := New(store, 0.75)
	res := ev.Evaluate(credentialStuffingRule(), trigger, trigger.Timestamp)

	require.False(t, res.Graph.Matched)
	require.Nil(t, res.Alert)
	require.NotNil(t, res.Graph.FailedAtCondition)
	assert.Equal(t, 2, *res.Graph.FailedAtCondition)
}

func smbLateralMovementRule() *rule.Rule {
	return &rule.Rule{
		ID:       "smb-lateral",
		Name:     "SMB lateral movement",
		Severity: rule.SeverityCritical,
		Conditions: []rule.Condition{
			{
				Type:   "network_connect",
				Window: rule.Duration(60 * time.Second),
				Count:  rule.CountPredicate{Op: predicate.OpGTE, N: 1},
				Filters: []predicate.Predicate{
					{Field: "dest_port", Kind: predicate.KindIn, Set: []any{445, 139}},
					{Field: "direction", Kind: predicate.KindEquals, Scalar: "outbound"},
				},
			},
			{
				Type:          "process_start",
				Window:        rule.Duration(60 * time.Second),
				Count:         rule.CountPredicate{Op: predicate.OpGTE, N: 1},
				AfterPrevious: true,
				Within:        rule.Duration(30 * time.Second),
				Filters: []predicate.Predicate{
					{Field: "process_name", Kind: predicate.KindIn, Set: []any{"psexec.exe", "wmic.exe"}},
				},
			},
		},
		Actions: []rule.Action{{Message: "SMB lateral movement"}},
	}
}

// Scenario 3: SMB lateral movement, matched.
func TestEvaluate_SMBLateralMovement_Matches(t *testing.T) {
	store := window.New()
	conn := &event.Event{Type: "network_connect", Timestamp: base, DestPort: 445, Direction: event.DirectionOutbound}
	store.Admit(conn, base)
	proc := &event.Event{Type: "process_start", Timestamp: base.Add(10 * time.Second), ProcessName: "psexec.exe"}
	store.Admit(proc, proc.Timestamp)

	ev := New(store, 0.75)
	res := ev.Evaluate(smbLateralMovementRule(), proc, proc.Timestamp)

	require.True(t, res.Graph.Matched)
	require.NotNil(t, res.Alert)
	assert.Len(t, res.Alert.BoundEvents[0], 1)
	assert.Len(t, res.Alert.BoundEvents[1], 1)
}

// Scenario 4: ordering violation — process_start precedes network_connect,
// violating after_previous.
func TestEvaluate_SMBLateralMovement_OrderingViolation_NoMatch(t *testing.T) {
	store := window.New()
	conn := &event.Event{Type: "network_connect", Timestamp: base, DestPort: 445, Direction: event.DirectionOutbound}
	store.Admit(conn, base)
	proc := &event.Event{Type: "process_start", Timestamp: base.Add(-5 * time.Second), ProcessName: "psexec.exe"}
	store.Admit(proc, proc.Timestamp)

	ev := New(store, 0.75)
	res := ev.Evaluate(smbLateralMovementRule(), proc, base.Add(10*time.Second))

	require.False(t, res.Graph.Matched)
	require.Nil(t, res.Alert)
}

// Scenario 5: window expiry — only events inside the window count toward
// the threshold.
func TestEvaluate_WindowExcludesExpiredEvents(t *testing.T) {
	store := window.New()
	store.Admit(mkEvent("auth_fail", base, "alice"), base)
	store.Admit(mkEvent("auth_fail", base.Add(5*time.Second), "alice"), base.Add(5*time.Second))
	store.Admit(mkEvent("auth_fail", base.Add(10*time.Second), "alice"), base.Add(10*time.Second))

	r := &rule.Rule{
		ID:       "brute-force",
		Severity: rule.SeverityMedium,
		Conditions: []rule.Condition{
			{Type: "auth_fail", Window: rule.Duration(60 * time.Second), Count: rule.CountPredicate{Op: predicate.OpGTE, N: 3}},
		},
		Actions: []rule.Action{{Message: "brute force"}},
	}

	probe := base.Add(65 * time.Second)
	ev := New(store, 0.75)
	res := ev.Evaluate(r, mkEvent("auth_fail", probe, "alice"), probe)

	require.False(t, res.Graph.Matched)
	require.Equal(t, 1, *res.Graph.FailedAtCondition)
}

// Scenario 6: duplicate admission of the identical event is idempotent in
// the sense that re-running EVAL with the same window contents produces
// the same bound sets each time.
func TestEvaluate_IdempotentOnIdenticalRerun(t *testing.T) {
	store := window.New()
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		store.Admit(mkEvent("auth_fail", ts, "alice"), ts)
	}

	r := &rule.Rule{
		ID:       "brute-force",
		Severity: rule.SeverityMedium,
		Conditions: []rule.Condition{
			{Type: "auth_fail", Window: rule.Duration(60 * time.Second), Count: rule.CountPredicate{Op: predicate.OpGTE, N: 5}},
		},
		Actions: []rule.Action{{Message: "brute force"}},
	}

	ev := New(store, 0.75)
	now := base.Add(5 * time.Second)
	res1 := ev.Evaluate(r, mkEvent("auth_fail", now, "alice"), now)
	res2 := ev.Evaluate(r, mkEvent("auth_fail", now, "alice"), now)

	require.True(t, res1.Graph.Matched)
	require.True(t, res2.Graph.Matched)
	assert.Equal(t, len(res1.Alert.BoundEvents[0]), len(res2.Alert.BoundEvents[0]))
}

func TestSelectPartition_TieBreakLatestThenLexicographic(t *testing.T) {
	evAlice := mkEvent("auth_fail", base, "alice")
	evBob := mkEvent("auth_fail", base, "bob")
	partitions := map[string][]*event.Event{
		"alice": {evAlice},
		"bob":   {evBob},
	}
	count := rule.CountPredicate{Op: predicate.OpGTE, N: 1}

	got, ok := selectPartition(partitions, count)
	require.True(t, ok)
	assert.Equal(t, []*event.Event{evAlice}, got)
}

func TestSelectPartition_LatestTimestampWins(t *testing.T) {
	early := mkEvent("auth_fail", base, "bob")
	late := mkEvent("auth_fail", base.Add(time.Minute), "alice")
	partitions := map[string][]*event.Event{
		"alice": {late},
		"bob":   {early},
	}
	count := rule.CountPredicate{Op: predicate.OpGTE, N: 1}

	got, ok := selectPartition(partitions, count)
	require.True(t, ok)
	assert.Equal(t, []*event.Event{late}, got)
}

func TestPartitionBy_GroupsByFieldTuple(t *testing.T) {
	events := []*event.Event{
		mkEvent("auth_fail", base, "alice"),
		mkEvent("auth_fail", base, "bob"),
		mkEvent("auth_fail", base, "alice"),
	}
	partitions := partitionBy(events, []string{"user"})
	assert.Len(t, partitions["alice"], 2)
	assert.Len(t, partitions["bob"], 1)
}
