package notify

import (
	"context"
	"sync"

	"cherylchat/pkg/domain"
)

// MemoryNotifier records events in process memory. It backs tests and the
// mocked runtime mode.
type MemoryNotifier struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryNotifier initializes an empty recorder.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

func (n *MemoryNotifier) MessageCreated(ctx context.Context, msg domain.Message) error {
	n.record(Event{
		Type:           EventMessageCreated,
		ConversationID: msg.ConversationID,
		Message:        &msg,
	})
	return nil
}

func (n *MemoryNotifier) AssistantStatus(ctx context.Context, conversationID, userID string, replying bool) error {
	n.record(Event{
		Type:           EventAssistantStatus,
		ConversationID: conversationID,
		UserID:         userID,
		Replying:       replying,
	})
	return nil
}

func (n *MemoryNotifier) record(event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

// Events returns a copy of everything recorded so far.
func (n *MemoryNotifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	res := make([]Event, len(n.events))
	copy(res, n.events)
	return res
}
