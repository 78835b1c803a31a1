package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-doc-approvals/internal/service"
)

// Publisher sends raw messages to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NotificationPublisher publishes document notifications to NATS JetStream
// for the notification delivery service.
//
// Subject convention: notifications.docflow.<kind>
// Kinds: new_document, next_step, returned, status_change
type NotificationPublisher struct {
	pub Publisher
	log zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string                 `json:"event_type"`
	ActorID      string                 `json:"actor_id,omitempty"`
	Recipients   []string               `json:"recipients"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Title        string                 `json:"title"`
	Text         string                 `json:"text"`
	IsActionable bool                   `json:"is_actionable,omitempty"`
	Category     string                 `json:"category"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher. A nil pub turns Notify into a no-op.
func NewNotificationPublisher(pub Publisher, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{pub: pub, log: log}
}

// Subject returns the subject a notification kind is published on.
func Subject(kind service.NotificationKind) string {
	return fmt.Sprintf("notifications.docflow.%s", kind)
}

// Notify publishes n. The caller treats a returned error as non-fatal.
func (p *NotificationPublisher) Notify(ctx context.Context, n service.Notification) error {
	if p.pub == nil || n.RecipientID == "" {
		return nil
	}

	event := &NotificationEvent{
		EventType:    string(n.Kind),
		ActorID:      n.SenderID,
		Recipients:   []string{n.RecipientID},
		ResourceType: "document",
		ResourceID:   n.DocumentID,
		Title:        n.Title,
		Text:         n.Text,
		IsActionable: n.Kind == service.NotifyNewDocument || n.Kind == service.NotifyNextStep,
		Category:     "document_approval",
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notification: marshal event: %w", err)
	}

	subject := Subject(n.Kind)
	if err := p.pub.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("notification: publish to %s: %w", subject, err)
	}

	p.log.Debug().
		Str("subject", subject).
		Str("document_id", n.DocumentID).
		Str("recipient_id", n.RecipientID).
		Msg("notification: event published")
	return nil
}

var _ service.Notifier = (*NotificationPublisher)(nil)
