package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/logiccorrelator/internal/alert"
	"github.com/telhawk-systems/logiccorrelator/internal/decisiongraph"
	"github.com/telhawk-systems/logiccorrelator/internal/engine"
	"github.com/telhawk-systems/logiccorrelator/internal/event"
	"github.com/telhawk-systems/logiccorrelator/internal/sink"
	"github.com/telhawk-systems/logiccorrelator/internal/stats"
	"github.com/telhawk-systems/logiccorrelator/internal/window"
)

func newTestRouter(t *testing.T) *http.ServeMux {
	t.Helper()
	store := window.New()
	reg := prometheus.NewRegistry()
	eng := engine.New(engine.Config{
		RetentionWindow:  time.Hour,
		ShutdownDeadline: time.Second,
		QueueSize:        16,
	}, nil, decisiongraph.NewRecorder(16), alert.NewRing(16), sink.New(time.Second, nil, nil), stats.New(store, reg), nil)
	return NewRouter(eng, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

func TestHealthz_ReturnsOK(t *testing.T) {
	mux := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStats_ReturnsJSON(t *testing.T) {
	mux := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "events_processed")
}

func TestGraphByIndex_NotFoundWhenEmpty(t *testing.T) {
	mux := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/graphs/0", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGraphByIndex_BadIndexIsBadRequest(t *testing.T) {
	mux := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/graphs/not-a-number", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGraphByIndex_DotFormat(t *testing.T) {
	g := decisiongraph.New("r1", "Rule One", &event.Event{Type: "auth_fail", Timestamp: time.Now()}, time.Now())
	g.RecordFailure(1, "auth_fail")

	rec := decisiongraph.NewRecorder(4)
	rec.Record(g)

	reg := prometheus.NewRegistry()
	store := window.New()
	eng := engine.New(engine.Config{RetentionWindow: time.Hour, ShutdownDeadline: time.Second, QueueSize: 16},
		nil, rec, alert.NewRing(16), sink.New(time.Second, nil, nil), stats.New(store, reg), nil)
	mux := NewRouter(eng, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	req := httptest.NewRequest(http.MethodGet, "/graphs/0?format=dot", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "digraph CorrelationGraph")
}
