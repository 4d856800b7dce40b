// Package engine drives spec.md §2's four ordered phases — admit,
// evaluate, emit, expire — as a single-writer loop over a thread-safe
// input queue (§5 "enqueue is thread-safe, dequeue is single-reader").
//
// Shaped after alerting/internal/evaluator.Run(ctx, interval)
// loop shape (select on ctx.Done against a ticker), generalized here to
// select against a channel-backed queue instead of a ticker, since the
// core is event-driven rather than poll-driven.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/telhawk-systems/logiccorrelator/internal/alert"
	"github.com/telhawk-systems/logiccorrelator/internal/alertstore"
	"github.com/telhawk-systems/logiccorrelator/internal/correlate"
	"github.com/telhawk-systems/logiccorrelator/internal/decisiongraph"
	"github.com/telhawk-systems/logiccorrelator/internal/event"
	"github.com/telhawk-systems/logiccorrelator/internal/logging"
	"github.com/telhawk-systems/logiccorrelator/internal/rule"
	"github.com/telhawk-systems/logiccorrelator/internal/sink"
	"github.com/telhawk-systems/logiccorrelator/internal/stats"
	"github.com/telhawk-systems/logiccorrelator/internal/window"
)

// Config carries the §6 process-wide options the engine itself consults.
type Config struct {
	RetentionWindow   time.Duration
	ShutdownDeadline  time.Duration
	QueueSize         int
	DefaultConfidence float64
}

// Engine owns the window store, the loaded rule set, and the recorders,
// and runs the admit/evaluate/emit/expire loop against its input queue.
type Engine struct {
	cfg Config
	log *logging.Logger

	store    *window.Store
	eval     *correlate.Evaluator
	graphs   *decisiongraph.Recorder
	alerts   *alert.Ring
	fanout   *sink.Fanout
	statsC   *stats.Collector
	auditLog *alertstore.Store // optional durable audit, nil when postgres disabled

	rulesMu sync.RWMutex
	rules   []*rule.Rule

	queue chan []byte
	done  chan struct{}
}

// New builds an Engine. auditLog may be nil — durable audit is a
// best-effort supplement, never a dependency of the core loop.
func New(cfg Config, log *logging.Logger, graphs *decisiongraph.Recorder, alerts *alert.Ring, fanout *sink.Fanout, statsC *stats.Collector, auditLog *alertstore.Store) *Engine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if cfg.ShutdownDeadline <= 0 {
		cfg.ShutdownDeadline = 5 * time.Second
	}
	if log == nil {
		log = logging.Default()
	}

	store := window.New()
	return &Engine{
		cfg:      cfg,
		log:      log,
		store:    store,
		eval:     correlate.New(store, cfg.DefaultConfidence),
		graphs:   graphs,
		alerts:   alerts,
		fanout:   fanout,
		statsC:   statsC,
		auditLog: auditLog,
		queue:    make(chan []byte, cfg.QueueSize),
		done:     make(chan struct{}),
	}
}

// ReloadRules atomically swaps the loaded rule set (§6 "load_rules").
// Safe to call concurrently with Run.
func (e *Engine) ReloadRules(rules []*rule.Rule) {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	e.rules = rules
}

func (e *Engine) loadedRules() []*rule.Rule {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	out := make([]*rule.Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Submit enqueues a raw event for admission. Returns false if the queue is
// full or the engine has already stopped; the caller should treat that as
// backpressure, not as an EventSchemaError.
func (e *Engine) Submit(raw []byte) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.queue <- raw:
		return true
	default:
		return false
	}
}

// Run drains the input queue until ctx is cancelled, running the
// admit/evaluate/emit/expire pipeline for each arrival (§2). On
// cancellation it drains whatever is already queued up to
// cfg.ShutdownDeadline (§5 "Cancellation and timeouts"), then returns.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)

	for {
		select {
		case raw := <-e.queue:
			e.processOne(raw)
		case <-ctx.Done():
			e.drain()
			return
		}
	}
}

// DrainTimeoutError reports that the shutdown deadline elapsed while events
// were still queued (ShutdownDeadlineExceeded, §7). The engine treats this
// as a logged, non-fatal condition — the remainder is discarded and the
// process still exits cleanly.
type DrainTimeoutError struct {
	Remaining int
}

func (e *DrainTimeoutError) Error() string {
	return fmt.Sprintf("shutdown deadline exceeded with %d events still queued", e.Remaining)
}

// drain processes whatever is already enqueued, up to the shutdown
// deadline, then discards the remainder (§5, §7 ShutdownDeadlineExceeded).
func (e *Engine) drain() {
	deadline := time.NewTimer(e.cfg.ShutdownDeadline)
	defer deadline.Stop()

	for {
		select {
		case raw := <-e.queue:
			e.processOne(raw)
		case <-deadline.C:
			if remaining := len(e.queue); remaining > 0 {
				e.log.Warn("shutdown deadline exceeded, discarding queued events",
					"err", &DrainTimeoutError{Remaining: remaining})
			}
			return
		default:
			return
		}
	}
}

// Wait blocks until Run has drained and returned, for callers that cancel
// Run's context and then need to know shutdown actually completed.
func (e *Engine) Wait() {
	<-e.done
}

// processOne runs one full admit/evaluate/emit/expire pass for a single
// raw event.
func (e *Engine) processOne(raw []byte) {
	now := time.Now().UTC()

	evt, ok := e.admit(raw, now)
	if !ok {
		return
	}

	e.evaluateAndEmit(evt, now)
	e.store.Expire(now, e.cfg.RetentionWindow)
}

// admit parses raw and appends it to the window store (§4.1). A parse
// failure is an EventSchemaError: dropped, counted, never evaluated.
func (e *Engine) admit(raw []byte, now time.Time) (*event.Event, bool) {
	evt, err := event.Parse(raw, now, true)
	if err != nil {
		e.statsC.IncEventsRejected()
		e.log.Warn("dropping malformed event", "err", err)
		return nil, false
	}

	e.store.Admit(evt, now)
	e.statsC.IncEventsProcessed()
	return evt, true
}

// evaluateAndEmit tests every loaded rule against evt in load order and
// fans out alerts for every match, in the same order (§5 "alerts from a
// single admission are emitted in rule-load order").
func (e *Engine) evaluateAndEmit(evt *event.Event, now time.Time) {
	rules := e.loadedRules()
	if len(rules) == 0 {
		return
	}

	results := e.eval.EvaluateAll(rules, evt, now)
	e.statsC.AddRulesEvaluated(int64(len(rules)))

	for _, res := range results {
		e.graphs.Record(res.Graph)
		if res.Alert == nil {
			continue
		}

		e.statsC.IncCorrelationsFound()
		e.statsC.IncAlertsGenerated()
		e.alerts.Push(res.Alert)
		e.fanout.Emit(context.Background(), res.Alert)

		if e.auditLog != nil {
			if err := e.auditLog.Insert(context.Background(), res.Alert); err != nil {
				e.log.Error("durable alert audit failed", "alert_id", res.Alert.ID, "err", err)
			}
		}
	}
}

// Stats exposes the process-wide counters for the host's read API.
func (e *Engine) Stats() stats.Snapshot {
	return e.statsC.Snapshot()
}

// Graphs exposes the decision graph recorder for the host's read API.
func (e *Engine) Graphs() *decisiongraph.Recorder {
	return e.graphs
}

// Alerts exposes the in-memory alert ring for the host's read API.
func (e *Engine) Alerts() *alert.Ring {
	return e.alerts
}
