package notify

import (
	"context"

	"cherylchat/pkg/domain"
)

// EventType tags the payloads broadcast to a conversation's participants.
type EventType string

const (
	EventMessageCreated  EventType = "message_created"
	EventAssistantStatus EventType = "assistant_status"
)

// Event is the wire envelope for outbound broadcasts. Message is set for
// message_created events; UserID and Replying for assistant_status events.
type Event struct {
	Type           EventType       `json:"type"`
	ConversationID string          `json:"conversationId"`
	Message        *domain.Message `json:"message,omitempty"`
	UserID         string          `json:"userId,omitempty"`
	Replying       bool            `json:"replying,omitempty"`
}

// Notifier delivers events to every participant of a conversation. Both
// operations are room-style broadcasts; delivery is best-effort and callers
// only log failures.
type Notifier interface {
	MessageCreated(ctx context.Context, msg domain.Message) error
	AssistantStatus(ctx context.Context, conversationID, userID string, replying bool) error
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) MessageCreated(ctx context.Context, msg domain.Message) error {
	return nil
}

func (NopNotifier) AssistantStatus(ctx context.Context, conversationID, userID string, replying bool) error {
	return nil
}
