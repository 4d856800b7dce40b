package decisiongraph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/logiccorrelator/internal/event"
)

func trigger() *event.Event {
	return &event.Event{Type: "auth_fail", Timestamp: time.Unix(1000, 0)}
}

func TestRecorder_RingEviction(t *testing.T) {
	r := NewRecorder(2)
	g1 := New("r1", "Rule One", trigger(), time.Unix(1, 0))
	g2 := New("r1", "Rule One", trigger(), time.Unix(2, 0))
	g3 := New("r1", "Rule One", trigger(), time.Unix(3, 0))

	r.Record(g1)
	r.Record(g2)
	r.Record(g3)

	require.Equal(t, 2, r.Len())
	all := r.All()
	assert.Equal(t, g2.ID, all[0].ID)
	assert.Equal(t, g3.ID, all[1].ID)
}

func TestGraph_MatchAndFailure(t *testing.T) {
	g := New("r1", "Rule One", trigger(), time.Unix(100, 0))
	g.RecordMatch(1, "auth_fail", []*event.Event{trigger()})
	g.Finalize()
	assert.True(t, g.Matched)
	assert.Nil(t, g.FailedAtCondition)

	g2 := New("r1", "Rule One", trigger(), time.Unix(100, 0))
	g2.RecordFailure(1, "auth_fail")
	require.NotNil(t, g2.FailedAtCondition)
	assert.Equal(t, 1, *g2.FailedAtCondition)
	assert.False(t, g2.Matched)
}

func TestExportDOT_ContainsExpectedNodes(t *testing.T) {
	g := New("cred-stuffing-1", "Credential Stuffing", trigger(), time.Unix(100, 0))
	g.RecordMatch(1, "auth_fail", []*event.Event{trigger()})
	g.RecordMatch(2, "auth_success", []*event.Event{trigger()})
	g.Finalize()

	out := string(ExportDOT(g, false))
	assert.Contains(t, out, "digraph CorrelationGraph")
	assert.Contains(t, out, "cred-stuffing-1")
	assert.Contains(t, out, "lightgreen")
	assert.Contains(t, out, "MATCHED")
}
