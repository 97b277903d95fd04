// Package pubsub publishes new-match events to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/vin-monitor/internal/notify"
)

// Event is the JSON payload published for each notification.
type Event struct {
	RunID      string     `json:"run_id"`
	Identifier string     `json:"identifier"`
	DetectedAt time.Time  `json:"detected_at"`
	Count      int        `json:"count"`
	Hits       []EventHit `json:"hits"`
}

// EventHit is one new match inside an Event.
type EventHit struct {
	URL           string `json:"url"`
	Title         string `json:"title,omitempty"`
	Snippet       string `json:"snippet,omitempty"`
	Source        string `json:"source"`
	PublishedDate string `json:"published_date,omitempty"`
}

// Notifier wraps a Pub/Sub topic publisher.
type Notifier struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
}

// New creates a Notifier for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Notifier {
	return &Notifier{publisher: publisher}
}

// Open creates a client for projectID and a publisher for topic. The returned
// Notifier owns both and releases them on Close.
func Open(ctx context.Context, projectID, topic string) (*Notifier, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub: create client: %w", err)
	}
	return &Notifier{client: client, publisher: client.Publisher(topic)}, nil
}

// Name implements notify.Notifier.
func (n *Notifier) Name() string { return "pubsub" }

// Notify implements notify.Notifier.
func (n *Notifier) Notify(ctx context.Context, msg notify.Message) error {
	if n.publisher == nil {
		return fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(eventFor(msg))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	out := &pubsub.Message{Data: data}
	out.Attributes = map[string]string{
		"identifier": msg.Identifier,
		"run_id":     msg.RunID,
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: out.Attributes})

	result := n.publisher.Publish(ctx, out)
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Close flushes pending messages and releases the client when owned.
func (n *Notifier) Close() error {
	if n.publisher != nil {
		n.publisher.Stop()
	}
	if n.client == nil {
		return nil
	}
	if err := n.client.Close(); err != nil {
		return fmt.Errorf("pubsub: close client: %w", err)
	}
	return nil
}

func eventFor(msg notify.Message) Event {
	hits := make([]EventHit, 0, len(msg.Hits))
	for _, h := range msg.Hits {
		hits = append(hits, EventHit{
			URL:           h.URL,
			Title:         h.Hit.Title,
			Snippet:       h.Hit.Snippet,
			Source:        string(h.Hit.Source),
			PublishedDate: h.Hit.PublishedDate,
		})
	}
	return Event{
		RunID:      msg.RunID,
		Identifier: msg.Identifier,
		DetectedAt: msg.DetectedAt.UTC(),
		Count:      len(hits),
		Hits:       hits,
	}
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
