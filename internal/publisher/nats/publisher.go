// Package nats implements a NATS publisher for lifecycle events. The same
// connection doubles as a liveness checker so the broker shows up in the
// dependency table.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const defaultFlushTimeout = 5 * time.Second

// ErrNotConnected is returned when the connection is closed or reconnecting.
var ErrNotConnected = errors.New("nats connection not established")

// Config describes how to reach the broker.
type Config struct {
	URL            string
	Name           string
	ConnectTimeout time.Duration
}

// Attributer is implemented by payloads that carry message headers.
type Attributer interface {
	Attributes() map[string]string
}

// Publisher publishes JSON payloads to NATS subjects.
type Publisher struct {
	conn *nats.Conn
}

// New wraps an existing connection.
func New(conn *nats.Conn) *Publisher {
	return &Publisher{conn: conn}
}

// Connect dials the broker. Reconnects are handled by the client library.
func Connect(cfg Config, opts ...nats.Option) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	base := []nats.Option{nats.MaxReconnects(-1)}
	if cfg.Name != "" {
		base = append(base, nats.Name(cfg.Name))
	}
	if cfg.ConnectTimeout > 0 {
		base = append(base, nats.Timeout(cfg.ConnectTimeout))
	}
	conn, err := nats.Connect(cfg.URL, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.URL, err)
	}
	return &Publisher{conn: conn}, nil
}

// Publish sends payload as JSON on subject and waits for the server to
// acknowledge the flush. The returned ID is the message's event_id header when
// present.
func (p *Publisher) Publish(ctx context.Context, subject string, payload any) (string, error) {
	if p.conn == nil || !p.conn.IsConnected() {
		return "", ErrNotConnected
	}
	msg, err := message(subject, payload)
	if err != nil {
		return "", err
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		return "", fmt.Errorf("publish to %s: %w", subject, err)
	}
	if err := p.flush(ctx); err != nil {
		return "", fmt.Errorf("flush %s: %w", subject, err)
	}
	return msg.Header.Get(nats.MsgIdHdr), nil
}

func message(subject string, payload any) (*nats.Msg, error) {
	if subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	if a, ok := payload.(Attributer); ok {
		for k, v := range a.Attributes() {
			msg.Header.Set(k, v)
		}
		if id := msg.Header.Get("event_id"); id != "" {
			msg.Header.Set(nats.MsgIdHdr, id)
		}
	}
	return msg, nil
}

// CheckLiveness round-trips a PING to the server.
func (p *Publisher) CheckLiveness(ctx context.Context) error {
	if p.conn == nil || !p.conn.IsConnected() {
		return ErrNotConnected
	}
	if err := p.flush(ctx); err != nil {
		return fmt.Errorf("nats ping: %w", err)
	}
	return nil
}

// flush waits for the server PONG. The client library insists on a deadline.
func (p *Publisher) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultFlushTimeout)
		defer cancel()
	}
	return p.conn.FlushWithContext(ctx)
}

// Close drains in-flight messages and closes the connection.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}
