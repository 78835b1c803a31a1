package service

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-doc-approvals/internal/repository"
)

// NotificationKind classifies a notification for the delivery side.
type NotificationKind string

const (
	NotifyNewDocument  NotificationKind = "new_document"
	NotifyNextStep     NotificationKind = "next_step"
	NotifyReturned     NotificationKind = "returned"
	NotifyStatusChange NotificationKind = "status_change"
)

// Notification tells one user about one document. Engine operations return
// them and dispatch them after the unit of work commits.
type Notification struct {
	RecipientID string           `json:"recipient_id"`
	SenderID    string           `json:"sender_id,omitempty"`
	DocumentID  string           `json:"document_id"`
	Kind        NotificationKind `json:"kind"`
	Title       string           `json:"title"`
	Text        string           `json:"text"`
}

// Notifier is the fire-and-forget notification sink.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log. Used when no broker is configured.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs n.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.log.Info().
		Str("recipient_id", note.RecipientID).
		Str("document_id", note.DocumentID).
		Str("kind", string(note.Kind)).
		Str("title", note.Title).
		Msg("Notification")
	return nil
}

func documentText(doc *repository.Document) string {
	return fmt.Sprintf("%s: %s", doc.RegistrationNumber, doc.Title)
}

func newDocumentNotification(doc *repository.Document, recipientID, senderID string, kind NotificationKind) Notification {
	title := "Новый документ"
	if kind == NotifyNextStep {
		title = "Документ ожидает вашего решения"
	}
	return Notification{
		RecipientID: recipientID,
		SenderID:    senderID,
		DocumentID:  doc.ID,
		Kind:        kind,
		Title:       title,
		Text:        documentText(doc),
	}
}

func returnedNotification(doc *repository.Document, senderID string) Notification {
	return Notification{
		RecipientID: doc.AuthorID,
		SenderID:    senderID,
		DocumentID:  doc.ID,
		Kind:        NotifyReturned,
		Title:       "Документ возвращен на доработку",
		Text:        documentText(doc),
	}
}
