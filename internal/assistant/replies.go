package assistant

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cherylchat/pkg/domain"
	"cherylchat/pkg/store"
)

// ReplyService owns the reply queue and its state machine. A reply moves
// pending -> ready -> published through appended versions; the admission
// gate in Enqueue keeps at most one reply per conversation in a non-terminal
// state.
type ReplyService struct {
	store           store.Store
	conversationID  string
	assistantUserID string
}

// NewReplyService constructs the service bound to the designated
// conversation and assistant identity.
func NewReplyService(s store.Store, conversationID, assistantUserID string) *ReplyService {
	return &ReplyService{
		store:           s,
		conversationID:  conversationID,
		assistantUserID: assistantUserID,
	}
}

// ConversationID returns the designated conversation.
func (r *ReplyService) ConversationID() string {
	return r.conversationID
}

// AssistantUserID returns the assistant's author identity.
func (r *ReplyService) AssistantUserID() string {
	return r.assistantUserID
}

// CreateUserMessage persists an inbound user message.
func (r *ReplyService) CreateUserMessage(userID, content string, at time.Time) (domain.Message, error) {
	msg := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: r.conversationID,
		UserID:         userID,
		Role:           domain.RoleUser,
		Content:        content,
		CreatedAt:      at,
	}
	if err := r.store.CreateMessage(msg); err != nil {
		return domain.Message{}, fmt.Errorf("create user message: %w", err)
	}
	return msg, nil
}

// CreateAssistantMessage persists an outbound assistant message.
func (r *ReplyService) CreateAssistantMessage(content string, at time.Time) (domain.Message, error) {
	msg := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: r.conversationID,
		UserID:         r.assistantUserID,
		Role:           domain.RoleAssistant,
		Content:        content,
		CreatedAt:      at,
	}
	if err := r.store.CreateMessage(msg); err != nil {
		return domain.Message{}, fmt.Errorf("create assistant message: %w", err)
	}
	return msg, nil
}

// Enqueue requests a reply for a message. It admits the request only when
// the conversation has no reply already pending or ready; the store makes
// the check-then-insert atomic. Returns false when the assistant is busy.
func (r *ReplyService) Enqueue(messageID string, at time.Time) (domain.Reply, bool, error) {
	reply := domain.Reply{
		ID:             uuid.NewString(),
		MessageID:      messageID,
		ConversationID: r.conversationID,
		Status:         domain.ReplyPending,
		CreatedAt:      at,
	}
	admitted, err := r.store.EnqueueReply(reply)
	if err != nil {
		return domain.Reply{}, false, fmt.Errorf("enqueue reply: %w", err)
	}
	if !admitted {
		slog.Info("reply not enqueued, assistant busy", "messageId", messageID)
		return domain.Reply{}, false, nil
	}
	slog.Info("reply enqueued", "replyId", reply.ID, "messageId", messageID)
	return reply, true, nil
}

// Busy reports whether the conversation has a reply in flight.
func (r *ReplyService) Busy() (bool, error) {
	count, err := r.store.CountNonTerminalReplies(r.conversationID)
	if err != nil {
		return false, fmt.Errorf("count in-flight replies: %w", err)
	}
	return count > 0, nil
}

// NextPending returns the oldest pending reply for the worker to claim.
func (r *ReplyService) NextPending() (domain.Reply, bool, error) {
	return r.store.NextPendingReply()
}

// NextReady returns the oldest ready reply for the publisher to claim. A
// ready reply without a body is an invariant violation and surfaces as
// ErrReplyWithoutBody.
func (r *ReplyService) NextReady() (domain.Reply, bool, error) {
	reply, ok, err := r.store.NextReadyReply()
	if err != nil || !ok {
		return domain.Reply{}, false, err
	}
	if reply.Content == "" {
		return domain.Reply{}, false, fmt.Errorf("reply %s: %w", reply.ID, ErrReplyWithoutBody)
	}
	return reply, true, nil
}

// Complete appends a ready version carrying the generated content.
func (r *ReplyService) Complete(reply domain.Reply, content string, at time.Time) (domain.Reply, error) {
	if content == "" {
		return domain.Reply{}, fmt.Errorf("complete reply %s: %w", reply.ID, ErrReplyWithoutBody)
	}
	next, err := r.advance(reply, domain.ReplyReady, at)
	if err != nil {
		return domain.Reply{}, err
	}
	next.Content = content
	if err := r.store.AppendReplyVersion(next); err != nil {
		return domain.Reply{}, fmt.Errorf("append ready version: %w", err)
	}
	return next, nil
}

// Publish appends a published version, content unchanged.
func (r *ReplyService) Publish(reply domain.Reply, at time.Time) (domain.Reply, error) {
	next, err := r.advance(reply, domain.ReplyPublished, at)
	if err != nil {
		return domain.Reply{}, err
	}
	if next.Content == "" {
		return domain.Reply{}, fmt.Errorf("publish reply %s: %w", reply.ID, ErrReplyWithoutBody)
	}
	if err := r.store.AppendReplyVersion(next); err != nil {
		return domain.Reply{}, fmt.Errorf("append published version: %w", err)
	}
	return next, nil
}

// advance validates the transition against the reply's current stored state
// and returns the next version to append.
func (r *ReplyService) advance(reply domain.Reply, status domain.ReplyStatus, at time.Time) (domain.Reply, error) {
	current, ok, err := r.store.LatestReply(reply.ID)
	if err != nil {
		return domain.Reply{}, fmt.Errorf("load reply %s: %w", reply.ID, err)
	}
	if !ok {
		return domain.Reply{}, fmt.Errorf("reply %s: %w", reply.ID, ErrInvalidTransition)
	}
	if !current.Status.CanAdvanceTo(status) {
		return domain.Reply{}, fmt.Errorf("reply %s is %s, cannot become %s: %w", reply.ID, current.Status, status, ErrInvalidTransition)
	}
	next := current
	next.Status = status
	next.CreatedAt = at
	return next, nil
}
