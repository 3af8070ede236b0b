package domain

import "time"

// Role identifies the author kind of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ReplyStatus is the lifecycle state of a generation job.
// Legal transitions move strictly forward: pending -> ready -> published.
type ReplyStatus string

const (
	ReplyPending   ReplyStatus = "pending"
	ReplyReady     ReplyStatus = "ready"
	ReplyPublished ReplyStatus = "published"
)

// Terminal reports whether no further transitions are allowed from s.
func (s ReplyStatus) Terminal() bool {
	return s == ReplyPublished
}

// CanAdvanceTo reports whether a transition from s to next is legal.
func (s ReplyStatus) CanAdvanceTo(next ReplyStatus) bool {
	switch s {
	case ReplyPending:
		return next == ReplyReady
	case ReplyReady:
		return next == ReplyPublished
	default:
		return false
	}
}

// Message is an immutable chat event, ordered by CreatedAt within a
// conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Reply tracks one assistant-generation job. State changes are modeled as
// appended versions sharing the same ID; the newest version per ID is
// authoritative. An empty Content means the reply has no body yet, which is
// only legal while pending.
type Reply struct {
	ID             string      `json:"id"`
	MessageID      string      `json:"messageId"`
	ConversationID string      `json:"conversationId"`
	Status         ReplyStatus `json:"status"`
	Content        string      `json:"content,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// Concept is one curated term/meaning pair from the knowledge base. Versions
// are appended like replies; the newest non-deleted version per ID is the
// active snapshot. Embedding is filled at sync time when an embedder is
// configured; readers must tolerate its absence.
type Concept struct {
	ID        string            `json:"id"`
	Term      string            `json:"term"`
	Meaning   string            `json:"meaning"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Deleted   bool              `json:"deleted,omitempty"`
	Embedding []float32         `json:"-"`
	CreatedAt time.Time         `json:"createdAt"`
}

// SystemPromptKey enumerates the stored prompt purposes.
type SystemPromptKey string

const (
	PromptBase            SystemPromptKey = "base"
	PromptRelatedConcepts SystemPromptKey = "related_concepts"
)

// SystemPrompt is a versioned prompt block, keyed by purpose.
type SystemPrompt struct {
	Key       SystemPromptKey `json:"key"`
	Text      string          `json:"text"`
	CreatedAt time.Time       `json:"createdAt"`
}
