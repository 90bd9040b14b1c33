package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/petrijr/pathways/internal/outbox"
)

// Notification is the JSON document delivered for every pathway change.
type Notification struct {
	ID      string    `json:"id"`
	Event   string    `json:"event"`
	Pathway string    `json:"pathway"`
	Actor   string    `json:"actor,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
	Attempt int       `json:"attempt"`
}

// NotificationFromTask converts an outbox task. Attempt is 1-based.
func NotificationFromTask(t outbox.Task) Notification {
	return Notification{
		ID:      t.ID,
		Event:   string(t.Event.Type),
		Pathway: t.PathwayKey,
		Actor:   t.Event.Actor,
		Detail:  t.Event.Detail,
		At:      t.Event.At,
		Attempt: t.Attempts + 1,
	}
}

// Sink receives notifications. Deliver must be safe for concurrent use.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Deliver(ctx context.Context, n Notification) error { return f(ctx, n) }

// LogSink logs every notification at Info level.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Deliver(ctx context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "pathway_notification",
		slog.String("id", n.ID),
		slog.String("event", n.Event),
		slog.String("pathway", n.Pathway),
		slog.String("actor", n.Actor),
		slog.Int("attempt", n.Attempt),
	)
	return nil
}

// WebhookOptions configures a WebhookSink.
type WebhookOptions struct {
	// Timeout bounds a single delivery. Defaults to 10s.
	Timeout time.Duration
	// Token, when set, is sent as a bearer token.
	Token string
}

// WebhookSink POSTs notifications as JSON. Any non-2xx response is a
// failed delivery.
type WebhookSink struct {
	client *resty.Client
	url    string
}

// NewWebhookSink creates a sink posting to url.
func NewWebhookSink(url string, opts WebhookOptions) *WebhookSink {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "pathways-notify")
	if opts.Token != "" {
		client.SetAuthToken(opts.Token)
	}
	return &WebhookSink{client: client, url: url}
}

func (s *WebhookSink) Deliver(ctx context.Context, n Notification) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("X-Pathways-Event", n.Event).
		SetHeader("X-Pathways-Delivery", n.ID).
		SetBody(n).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", s.url, err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook %s: unexpected status %d", s.url, resp.StatusCode())
	}
	return nil
}
