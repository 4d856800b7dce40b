package sink

import (
	"context"

	"github.com/telhawk-systems/logiccorrelator/internal/alert"
	"github.com/telhawk-systems/logiccorrelator/internal/logging"
)

// LogSink emits every alert as a structured log record. Always registered
// — it is the fallback the host can rely on even with redis and nats both
// disabled.
type LogSink struct {
	log *logging.Logger
}

// NewLogSink returns a LogSink writing through log.
func NewLogSink(log *logging.Logger) *LogSink {
	if log == nil {
		log = logging.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Emit(_ context.Context, a *alert.Alert) error {
	s.log.Info("alert",
		"rule_id", a.RuleID,
		"rule_name", a.RuleName,
		"severity", a.Severity,
		"confidence", a.Confidence,
		"message", a.Message,
		"decision_graph_id", a.DecisionGraphID,
	)
	return nil
}

func (s *LogSink) Close() error { return nil }
