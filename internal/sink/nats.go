package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/telhawk-systems/logiccorrelator/internal/alert"
)

// NATSConfig configures the NATS sink, mirroring the
// common/messaging/nats.Config shape trimmed to what a write-only
// publisher needs.
type NATSConfig struct {
	URL           string
	Subject       string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	ConnectWait   time.Duration
}

// DefaultNATSConfig mirrors the common client's DefaultConfig, scoped to the
// correlator's own subject.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Subject:       "correlator.alerts",
		Name:          "logiccorrelator",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		ConnectWait:   5 * time.Second,
	}
}

// NATSSink publishes each alert's §6 egress JSON shape to a NATS subject.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to cfg.URL and returns a sink publishing to
// cfg.Subject.
func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSSink{conn: conn, subject: cfg.Subject}, nil
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Emit(ctx context.Context, a *alert.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return s.conn.Publish(s.subject, data)
}

func (s *NATSSink) Close() error {
	s.conn.Close()
	return nil
}
