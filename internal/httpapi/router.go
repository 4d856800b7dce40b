// Package httpapi implements §6's external read API: health, stats,
// alerts, and decision-graph export (JSON or DOT), plus a Prometheus
// scrape endpoint. Read-only over the engine's data — it never mutates
// correlator state.
//
// Grounded on the common/httputil WriteJSON/WriteError helper shape
// (reproduced locally rather than imported, since common/ is not wired
// into this module) and alerting/cmd/alerting/main.go's raw
// http.NewServeMux routing style.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/logiccorrelator/internal/decisiongraph"
	"github.com/telhawk-systems/logiccorrelator/internal/engine"
)

// NewRouter builds the §6 read API mux over eng's query surface
// (Stats/Alerts/Graphs). reg serves the same Prometheus series the
// engine's stats collector was built against.
func NewRouter(eng *engine.Engine, reg http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, eng.Stats())
	})
	mux.HandleFunc("/alerts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, eng.Alerts().All())
	})
	mux.HandleFunc("/graphs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, eng.Graphs().All())
	})
	mux.HandleFunc("/graphs/", handleGraphByIndex(eng))
	mux.Handle("/metrics", reg)

	return mux
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGraphByIndex serves /graphs/{index}, optionally exported as DOT
// via ?format=dot and ?verbose=true, matching §6's export_graph(index).
func handleGraphByIndex(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idxStr := r.URL.Path[len("/graphs/"):]
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "graph index must be an integer")
			return
		}

		g, ok := eng.Graphs().At(idx)
		if !ok {
			writeError(w, http.StatusNotFound, "no graph at that index")
			return
		}

		if r.URL.Query().Get("format") == "dot" {
			verbose := r.URL.Query().Get("verbose") == "true"
			w.Header().Set("Content-Type", "text/vnd.graphviz")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(decisiongraph.ExportDOT(g, verbose))
			return
		}

		writeJSON(w, http.StatusOK, g)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// PrometheusHandler is a thin alias so callers don't need to import
// promhttp themselves when wiring NewRouter.
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}
