package alertstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/logiccorrelator/internal/alert"
	"github.com/telhawk-systems/logiccorrelator/internal/event"
	"github.com/telhawk-systems/logiccorrelator/internal/rule"
)

// getTestStore requires a live Postgres reachable at TEST_DATABASE_URL,
// with migrations/0001_create_alerts.up.sql already applied. Skipped
// otherwise, the same discipline alerting/internal/repository's postgres_test.go uses.
func getTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("skipping postgres integration test - requires TEST_DATABASE_URL")
	}
	s, err := New(context.Background(), url)
	require.NoError(t, err)
	return s
}

func TestNew_InvalidConnString(t *testing.T) {
	_, err := New(context.Background(), "not-a-valid-conn-string")
	require.Error(t, err)
}

func TestStore_InsertAndGet(t *testing.T) {
	s := getTestStore(t)
	defer s.Close()
	ctx := context.Background()

	a := &alert.Alert{
		ID:        "11111111-1111-1111-1111-111111111111",
		RuleID:    "cred-stuffing",
		RuleName:  "Credential stuffing",
		Message:   "test alert",
		Severity:  rule.SeverityHigh,
		Timestamp: time.Now().UTC(),
		TriggerEvent: &event.Event{
			Type:      "auth_success",
			Timestamp: time.Now().UTC(),
		},
	}
	require.NoError(t, s.Insert(ctx, a))

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a.RuleID, got.RuleID)
	require.Equal(t, a.Message, got.Message)
}

func TestStore_ListSince(t *testing.T) {
	s := getTestStore(t)
	defer s.Close()
	ctx := context.Background()

	records, err := s.ListSince(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.NotNil(t, records)
}
