// Package nats wraps a nats.go connection used to relay events to other
// services on the plant network.
package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"
)

// ErrNotConnected is returned when publishing on a closed publisher.
var ErrNotConnected = errors.New("nats: not connected")

// Config holds the publisher settings.
type Config struct {
	URL           string
	Name          string
	SubjectPrefix string
	ReconnectWait time.Duration
}

// Publisher publishes JSON payloads to subjects below a fixed prefix.
type Publisher struct {
	conn   *natsgo.Conn
	prefix string
}

// Connect dials the server and returns a ready Publisher. The client keeps
// reconnecting in the background for as long as the process runs.
func Connect(cfg Config) (*Publisher, error) {
	opts := []natsgo.Option{
		natsgo.MaxReconnects(-1),
	}
	if cfg.Name != "" {
		opts = append(opts, natsgo.Name(cfg.Name))
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, natsgo.ReconnectWait(cfg.ReconnectWait))
	}

	conn, err := natsgo.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.URL, err)
	}
	return &Publisher{conn: conn, prefix: normalizePrefix(cfg.SubjectPrefix)}, nil
}

func normalizePrefix(prefix string) string {
	return strings.TrimSuffix(prefix, ".")
}

// Subject joins the configured prefix with name, e.g. "tagwatch.alarm".
func (p *Publisher) Subject(name string) string {
	if p.prefix == "" {
		return name
	}
	return p.prefix + "." + name
}

// Publish marshals payload as JSON and publishes it on Subject(name).
func (p *Publisher) Publish(name string, payload any) error {
	if p == nil || p.conn == nil || p.conn.IsClosed() {
		return ErrNotConnected
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling nats payload: %w", err)
	}
	if err := p.conn.Publish(p.Subject(name), data); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.Subject(name), err)
	}
	return nil
}

// IsConnected reports whether the underlying connection is currently up.
func (p *Publisher) IsConnected() bool {
	return p != nil && p.conn != nil && p.conn.IsConnected()
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("draining nats connection: %w", err)
	}
	return nil
}
