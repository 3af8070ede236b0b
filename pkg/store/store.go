package store

import (
	"cherylchat/pkg/domain"
)

// Store defines persistence for messages, reply versions, concept versions,
// and system prompt versions. All writes are append-only inserts; state
// changes are expressed as new versions, never as updates to existing rows.
type Store interface {
	// messages
	CreateMessage(msg domain.Message) error
	GetMessage(id string) (domain.Message, bool, error)
	// ListConversationMessages returns messages of a conversation in
	// timestamp order, optionally excluding system rows, capped at limit.
	ListConversationMessages(conversationID string, limit int, excludeSystem bool) ([]domain.Message, error)

	// replies
	//
	// EnqueueReply inserts a pending reply version iff the conversation has
	// no reply currently pending or ready. The check and the insert are
	// atomic with respect to concurrent callers. Returns false when the
	// conversation is busy.
	EnqueueReply(reply domain.Reply) (bool, error)
	AppendReplyVersion(reply domain.Reply) error
	// LatestReply returns the newest version for the given reply ID.
	LatestReply(id string) (domain.Reply, bool, error)
	// NextPendingReply returns the oldest reply whose latest version is
	// pending, across all conversations.
	NextPendingReply() (domain.Reply, bool, error)
	// NextReadyReply returns the oldest reply whose latest version is ready.
	NextReadyReply() (domain.Reply, bool, error)
	// CountNonTerminalReplies counts replies of a conversation whose latest
	// version is pending or ready.
	CountNonTerminalReplies(conversationID string) (int, error)

	// concepts
	//
	// ActiveConcepts returns the newest non-deleted version per concept ID,
	// ordered by each concept's first insertion.
	ActiveConcepts() ([]domain.Concept, error)
	AppendConceptVersions(concepts []domain.Concept) error

	// system prompts
	LatestSystemPrompt(key domain.SystemPromptKey) (domain.SystemPrompt, bool, error)
	AppendSystemPromptVersion(prompt domain.SystemPrompt) error
}
