package hooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Publisher sends an event to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator mints event IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// ReadyEvent describes a finished bootstrap attempt.
type ReadyEvent struct {
	EventID      string            `json:"event_id"`
	Service      string            `json:"service"`
	Version      string            `json:"version"`
	Phase        string            `json:"phase"`
	Mode         string            `json:"mode"`
	Profile      string            `json:"profile"`
	Routes       int               `json:"routes"`
	Dependencies map[string]bool   `json:"dependencies"`
	Capabilities map[string]string `json:"capabilities,omitempty"`
	ReadyAt      time.Time         `json:"ready_at"`
}

// Attributes labels the Pub/Sub message so subscribers can filter without
// decoding the body.
func (e ReadyEvent) Attributes() map[string]string {
	return map[string]string{
		"event_type": "server.ready",
		"event_id":   e.EventID,
		"phase":      e.Phase,
		"mode":       e.Mode,
	}
}

// AnnounceReady publishes event once, stamping it with a fresh ID.
func AnnounceReady(pub Publisher, topic string, ids IDGenerator, event ReadyEvent) Hook {
	return Hook{
		Name: "announce-ready",
		Run: func(ctx context.Context) error {
			if pub == nil {
				return fmt.Errorf("no publisher configured")
			}
			if ids != nil {
				id, err := ids.NewID()
				if err != nil {
					return fmt.Errorf("event id: %w", err)
				}
				event.EventID = id
			}
			if _, err := pub.Publish(ctx, topic, event); err != nil {
				return fmt.Errorf("announce ready: %w", err)
			}
			return nil
		},
	}
}

// ErrBrainUnavailable means the local model server did not answer; the
// service keeps running on cloud providers only.
var ErrBrainUnavailable = errors.New("local AI brain not available, using cloud providers only")

// BrainConnector checks that a local model server (an Ollama-compatible
// endpoint listing its models at /api/tags) is up.
func BrainConnector(baseURL string, client *http.Client) Hook {
	if client == nil {
		client = &http.Client{}
	}
	return Hook{
		Name: "brain-connector",
		Run: func(ctx context.Context) error {
			if baseURL == "" {
				return fmt.Errorf("%w: no endpoint configured", ErrBrainUnavailable)
			}
			url := strings.TrimRight(baseURL, "/") + "/api/tags"
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrBrainUnavailable, err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrBrainUnavailable, err)
			}
			_ = resp.Body.Close() //nolint:errcheck // status only
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("%w: %s answered %d", ErrBrainUnavailable, url, resp.StatusCode)
			}
			return nil
		},
	}
}
