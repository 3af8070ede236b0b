package store

import (
	"sort"
	"sync"

	"cherylchat/pkg/domain"
)

// MemoryStore keeps the same append-only version log in process memory. It
// backs tests and the mocked runtime mode. The mutex is held across the
// admission check and insert, mirroring the advisory lock in GormStore.
type MemoryStore struct {
	mu            sync.RWMutex
	messages      []domain.Message
	replyVersions []domain.Reply
	conceptLog    []domain.Concept
	promptLog     []domain.SystemPrompt
	conceptOrder  []string // concept IDs by first insertion
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// CreateMessage appends a message.
func (m *MemoryStore) CreateMessage(msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// GetMessage returns a message by ID.
func (m *MemoryStore) GetMessage(id string) (domain.Message, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, msg := range m.messages {
		if msg.ID == id {
			return msg, true, nil
		}
	}
	return domain.Message{}, false, nil
}

// ListConversationMessages returns conversation messages in timestamp order.
func (m *MemoryStore) ListConversationMessages(conversationID string, limit int, excludeSystem bool) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Message, 0)
	for _, msg := range m.messages {
		if msg.ConversationID != conversationID {
			continue
		}
		if excludeSystem && msg.Role == domain.RoleSystem {
			continue
		}
		res = append(res, msg)
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	// The cap keeps the most recent messages.
	if len(res) > limit {
		res = res[len(res)-limit:]
	}
	return res, nil
}

// EnqueueReply inserts a pending reply iff the conversation has no reply in
// a non-terminal state.
func (m *MemoryStore) EnqueueReply(reply domain.Reply) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, latest := range m.latestRepliesLocked() {
		if latest.ConversationID == reply.ConversationID && !latest.Status.Terminal() {
			return false, nil
		}
	}
	m.replyVersions = append(m.replyVersions, reply)
	return true, nil
}

// AppendReplyVersion appends a new version for an existing reply.
func (m *MemoryStore) AppendReplyVersion(reply domain.Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replyVersions = append(m.replyVersions, reply)
	return nil
}

// LatestReply returns the newest version of a reply.
func (m *MemoryStore) LatestReply(id string) (domain.Reply, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found bool
	var latest domain.Reply
	for _, r := range m.replyVersions {
		if r.ID != id {
			continue
		}
		if !found || !r.CreatedAt.Before(latest.CreatedAt) {
			latest = r
			found = true
		}
	}
	return latest, found, nil
}

// NextPendingReply returns the oldest reply whose latest version is pending.
func (m *MemoryStore) NextPendingReply() (domain.Reply, bool, error) {
	return m.nextReplyInStatus(domain.ReplyPending)
}

// NextReadyReply returns the oldest reply whose latest version is ready.
func (m *MemoryStore) NextReadyReply() (domain.Reply, bool, error) {
	return m.nextReplyInStatus(domain.ReplyReady)
}

func (m *MemoryStore) nextReplyInStatus(status domain.ReplyStatus) (domain.Reply, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found bool
	var oldest domain.Reply
	for _, latest := range m.latestRepliesLocked() {
		if latest.Status != status {
			continue
		}
		if !found || latest.CreatedAt.Before(oldest.CreatedAt) {
			oldest = latest
			found = true
		}
	}
	return oldest, found, nil
}

// CountNonTerminalReplies counts pending/ready replies of a conversation.
func (m *MemoryStore) CountNonTerminalReplies(conversationID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, latest := range m.latestRepliesLocked() {
		if latest.ConversationID == conversationID && !latest.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) latestRepliesLocked() []domain.Reply {
	latest := map[string]domain.Reply{}
	order := []string{}
	for _, r := range m.replyVersions {
		current, seen := r, false
		if prev, ok := latest[r.ID]; ok {
			seen = true
			if r.CreatedAt.Before(prev.CreatedAt) {
				current = prev
			}
		}
		if !seen {
			order = append(order, r.ID)
		}
		latest[r.ID] = current
	}
	res := make([]domain.Reply, 0, len(order))
	for _, id := range order {
		res = append(res, latest[id])
	}
	return res
}

// ActiveConcepts returns the newest non-deleted version per concept in first
// insertion order.
func (m *MemoryStore) ActiveConcepts() ([]domain.Concept, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	latest := map[string]domain.Concept{}
	for _, c := range m.conceptLog {
		if prev, ok := latest[c.ID]; ok && c.CreatedAt.Before(prev.CreatedAt) {
			continue
		}
		latest[c.ID] = c
	}
	res := make([]domain.Concept, 0, len(latest))
	for _, id := range m.conceptOrder {
		if c, ok := latest[id]; ok && !c.Deleted {
			res = append(res, c)
		}
	}
	return res, nil
}

// AppendConceptVersions appends new concept version rows.
func (m *MemoryStore) AppendConceptVersions(concepts []domain.Concept) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range concepts {
		if !m.conceptSeenLocked(c.ID) {
			m.conceptOrder = append(m.conceptOrder, c.ID)
		}
		m.conceptLog = append(m.conceptLog, c)
	}
	return nil
}

func (m *MemoryStore) conceptSeenLocked(id string) bool {
	for _, seen := range m.conceptOrder {
		if seen == id {
			return true
		}
	}
	return false
}

// LatestSystemPrompt returns the newest prompt version for a key.
func (m *MemoryStore) LatestSystemPrompt(key domain.SystemPromptKey) (domain.SystemPrompt, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found bool
	var latest domain.SystemPrompt
	for _, p := range m.promptLog {
		if p.Key != key {
			continue
		}
		if !found || !p.CreatedAt.Before(latest.CreatedAt) {
			latest = p
			found = true
		}
	}
	return latest, found, nil
}

// AppendSystemPromptVersion appends a prompt version row.
func (m *MemoryStore) AppendSystemPromptVersion(prompt domain.SystemPrompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptLog = append(m.promptLog, prompt)
	return nil
}
