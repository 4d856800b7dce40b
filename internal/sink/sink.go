// Package sink implements §4.5's fan-out: zero or more write-only alert
// destinations the host registers, emitted to synchronously, where a slow
// or failing sink is marked degraded and its alerts counted as dropped
// rather than allowed to backpressure the evaluator.
//
// Grounded on the common/messaging/nats client shape for the NATS
// sink's connection shape, and alerting/internal/correlation/state_manager.go
// for the Redis-backed degraded/health bookkeeping pattern — generalized
// here from per-rule suppression state to a per-sink health flag.
package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/telhawk-systems/logiccorrelator/internal/alert"
	"github.com/telhawk-systems/logiccorrelator/internal/logging"
)

// DeliveryError wraps a sink's Emit failure (SinkError, §7). The fanout
// marks the sink degraded and counts the alert as dropped; it never
// propagates this past Emit.
type DeliveryError struct {
	Sink string
	Err  error
}

func (e *DeliveryError) Error() string { return fmt.Sprintf("sink %q delivery failed: %v", e.Sink, e.Err) }
func (e *DeliveryError) Unwrap() error { return e.Err }

// Sink is a write-only alert destination. Emit must not block past ctx's
// deadline — a sink that cannot keep up is the fanout's problem to mark
// degraded, not the sink's problem to solve internally.
type Sink interface {
	Name() string
	Emit(ctx context.Context, a *alert.Alert) error
	Close() error
}

// Fanout emits to every registered sink synchronously and independently:
// one sink's failure is logged and never blocks delivery to the others
// (§4.5 "sink failure is logged and does not block emission to other
// sinks"). A sink is marked degraded as soon as one delivery times out or
// errors, and cleared by its next successful delivery; degraded sinks are
// still emitted to. Dropped() reports how many alert deliveries failed
// across all sinks so the host can surface it as alerts_dropped.
type Fanout struct {
	mu      sync.RWMutex
	sinks   []Sink
	timeout time.Duration
	log     *logging.Logger

	degraded map[string]bool
	dropped  int64
	onDrop   func()
	health   *HealthStore
}

// SetHealthStore attaches a Redis-backed health store so a sink's degraded
// status survives process restarts and is visible to other correlator
// instances. Optional — Emit works the same without one, tracking
// degraded status only in memory.
func (f *Fanout) SetHealthStore(h *HealthStore) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.health = h
}

// New returns a Fanout emitting to sinks with a per-sink timeout. onDrop,
// if non-nil, is called once for every dropped delivery — engine wires
// this to its stats collector's IncAlertsDropped.
func New(timeout time.Duration, log *logging.Logger, onDrop func()) *Fanout {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = logging.Default()
	}
	return &Fanout{
		timeout:  timeout,
		log:      log,
		degraded: map[string]bool{},
		onDrop:   onDrop,
	}
}

// Register adds s to the fanout. Safe to call concurrently with Emit; an
// Emit already in progress delivers only to the sinks registered when it
// started.
func (f *Fanout) Register(s Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

// Emit delivers a to every registered sink. Each delivery gets its own
// timeout-bounded context so one slow sink cannot delay another.
func (f *Fanout) Emit(ctx context.Context, a *alert.Alert) {
	f.mu.RLock()
	sinks := make([]Sink, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()

	for _, s := range sinks {
		sctx, cancel := context.WithTimeout(ctx, f.timeout)
		err := s.Emit(sctx, a)
		cancel()

		if err != nil {
			err = &DeliveryError{Sink: s.Name(), Err: err}
			f.markDegraded(s.Name())
			f.log.Error("sink delivery failed", "sink", s.Name(), "rule_id", a.RuleID, "err", err)
			f.mu.Lock()
			f.dropped++
			health := f.health
			f.mu.Unlock()
			if health != nil {
				if herr := health.RecordFailure(ctx, s.Name()); herr != nil {
					f.log.Error("sink health record failed", "sink", s.Name(), "err", herr)
				}
			}
			if f.onDrop != nil {
				f.onDrop()
			}
			continue
		}
		f.clearDegraded(s.Name())

		f.mu.RLock()
		health := f.health
		f.mu.RUnlock()
		if health != nil {
			if herr := health.RecordSuccess(ctx, s.Name()); herr != nil {
				f.log.Error("sink health record failed", "sink", s.Name(), "err", herr)
			}
		}
	}
}

func (f *Fanout) markDegraded(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.degraded[name] = true
}

func (f *Fanout) clearDegraded(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.degraded, name)
}

// Degraded returns the names of sinks whose last delivery failed.
func (f *Fanout) Degraded() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.degraded))
	for name := range f.degraded {
		out = append(out, name)
	}
	return out
}

// Dropped returns the running total of failed sink deliveries.
func (f *Fanout) Dropped() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

// Close closes every registered sink, collecting the first error.
func (f *Fanout) Close() error {
	f.mu.RLock()
	sinks := make([]Sink, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()

	var first error
	for _, s := range sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
