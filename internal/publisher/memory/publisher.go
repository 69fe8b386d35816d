// Package memory keeps lifecycle events in process. The server falls back to
// it when no broker is configured, so readiness announcements still show up in
// the logs and in tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Attributer is implemented by events that carry routing attributes.
type Attributer interface {
	Attributes() map[string]string
}

// Publisher records events the way a broker would receive them: JSON encoded
// with their attributes split out.
type Publisher struct {
	logger *zap.Logger

	mu     sync.RWMutex
	events []PublishedEvent
}

// PublishedEvent is one accepted publish.
type PublishedEvent struct {
	Topic      string
	ID         string
	Data       json.RawMessage
	Attributes map[string]string
}

// EventType returns the event_type attribute, if any.
func (e PublishedEvent) EventType() string {
	return e.Attributes["event_type"]
}

// New returns a Publisher that logs each event on logger. A nil logger is
// silent.
func New(logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{logger: logger}
}

// Publish encodes payload and stores it under topic. The returned ID is the
// event's event_id attribute, or a sequence number when the event has none.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode event for %s: %w", topic, err)
	}
	var attrs map[string]string
	if a, ok := payload.(Attributer); ok {
		attrs = make(map[string]string, len(a.Attributes()))
		for k, v := range a.Attributes() {
			attrs[k] = v
		}
	}

	p.mu.Lock()
	id := attrs["event_id"]
	if id == "" {
		id = fmt.Sprintf("memory-%d", len(p.events)+1)
	}
	event := PublishedEvent{Topic: topic, ID: id, Data: data, Attributes: attrs}
	p.events = append(p.events, event)
	p.mu.Unlock()

	p.logger.Info("event published in-memory",
		zap.String("topic", topic),
		zap.String("event_id", id),
		zap.String("event_type", event.EventType()),
		zap.Int("bytes", len(data)),
	)
	return id, nil
}

// Events returns the recorded events, oldest first.
func (p *Publisher) Events() []PublishedEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Topic returns the events recorded under topic.
func (p *Publisher) Topic(topic string) []PublishedEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []PublishedEvent
	for _, e := range p.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}
