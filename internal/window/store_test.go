package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/telhawk-systems/logiccorrelator/internal/event"
)

func mkEvent(typ string, ts time.Time) *event.Event {
	return &event.Event{Type: typ, Timestamp: ts}
}

func TestSlice_RespectsWindow(t *testing.T) {
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Admit(mkEvent("auth_fail", base), base)
	s.Admit(mkEvent("auth_fail", base.Add(5*time.Second)), base.Add(5*time.Second))
	s.Admit(mkEvent("auth_fail", base.Add(10*time.Second)), base.Add(10*time.Second))

	now := base.Add(65 * time.Second)
	got := s.Slice("auth_fail", now, 60*time.Second)
	assert.Len(t, got, 2)
}

func TestExpire_DropsOldEntriesByIngestTime(t *testing.T) {
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Admit(mkEvent("auth_fail", base), base)
	s.Admit(mkEvent("auth_fail", base.Add(time.Hour)), base.Add(time.Hour))

	s.Expire(base.Add(time.Hour), 30*time.Minute)

	got := s.Slice("auth_fail", base.Add(time.Hour), time.Hour*24)
	assert.Len(t, got, 1)
	assert.Equal(t, int64(1), s.Stats().EventsExpired)
}

func TestExpire_RemovesEmptyBuffer(t *testing.T) {
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Admit(mkEvent("dns_query", base), base)

	s.Expire(base.Add(time.Hour), time.Minute)

	assert.Empty(t, s.Summary())
	assert.Equal(t, 0, s.Stats().WindowsActive)
}

func TestSummary_OmitsEmptyTypes(t *testing.T) {
	s := New()
	base := time.Now()
	s.Admit(mkEvent("process_start", base), base)

	summary := s.Summary()
	assert.Equal(t, 1, summary["process_start"])
	assert.NotContains(t, summary, "network_connect")
}
