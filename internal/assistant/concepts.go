package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cherylchat/pkg/ai"
	"cherylchat/pkg/domain"
	"cherylchat/pkg/store"
)

// ConceptInput is one entry of the desired concept set handed to
// SyncConcepts.
type ConceptInput struct {
	ID       string
	Term     string
	Meaning  string
	Metadata map[string]string
}

// ConceptService maintains the versioned knowledge base. Synchronization
// compares a desired concept set against the active snapshot and appends
// only what changed, so repeated syncs of the same set write nothing.
type ConceptService struct {
	store    store.Store
	embedder ai.Embedder
}

// NewConceptService constructs the service. The embedder is optional; when
// present, new or changed meanings are embedded at sync time so retrieval
// starts warm.
func NewConceptService(s store.Store, embedder ai.Embedder) *ConceptService {
	return &ConceptService{store: s, embedder: embedder}
}

// SyncConcepts reconciles the stored snapshot with the desired set:
// unchanged entries stay, removed entries get a deleted version, new or
// changed entries get a fresh active version. Returns the resulting active
// snapshot.
func (c *ConceptService) SyncConcepts(ctx context.Context, desired []ConceptInput, at time.Time) ([]domain.Concept, error) {
	active, err := c.store.ActiveConcepts()
	if err != nil {
		return nil, fmt.Errorf("load active concepts: %w", err)
	}
	activeByID := make(map[string]domain.Concept, len(active))
	for _, concept := range active {
		activeByID[concept.ID] = concept
	}
	desiredIDs := make(map[string]struct{}, len(desired))
	for _, input := range desired {
		desiredIDs[input.ID] = struct{}{}
	}

	var toAppend []domain.Concept
	for _, existing := range active {
		if _, keep := desiredIDs[existing.ID]; keep {
			continue
		}
		tombstone := existing
		tombstone.Deleted = true
		tombstone.Embedding = nil
		tombstone.CreatedAt = at
		toAppend = append(toAppend, tombstone)
	}

	for _, input := range desired {
		existing, known := activeByID[input.ID]
		if known && existing.Term == input.Term && existing.Meaning == input.Meaning && equalMetadata(existing.Metadata, input.Metadata) {
			continue
		}
		concept := domain.Concept{
			ID:        input.ID,
			Term:      input.Term,
			Meaning:   input.Meaning,
			Metadata:  input.Metadata,
			CreatedAt: at,
		}
		if known && existing.Meaning == input.Meaning && len(existing.Embedding) > 0 {
			concept.Embedding = existing.Embedding
		} else if c.embedder != nil {
			vector, err := c.embedder.EmbedText(ctx, input.Meaning)
			if err != nil {
				slog.Warn("embed concept at sync failed", "conceptId", input.ID, "err", err)
			} else {
				concept.Embedding = vector
			}
		}
		toAppend = append(toAppend, concept)
	}

	if len(toAppend) > 0 {
		if err := c.store.AppendConceptVersions(toAppend); err != nil {
			return nil, fmt.Errorf("append concept versions: %w", err)
		}
		slog.Info("concepts synchronized", "appended", len(toAppend))
	}
	return c.store.ActiveConcepts()
}

// UpdateSystemPrompts appends new versions for prompts whose text changed.
func (c *ConceptService) UpdateSystemPrompts(prompts []domain.SystemPrompt, at time.Time) error {
	for _, prompt := range prompts {
		current, ok, err := c.store.LatestSystemPrompt(prompt.Key)
		if err != nil {
			return fmt.Errorf("load system prompt %s: %w", prompt.Key, err)
		}
		if ok && current.Text == prompt.Text {
			continue
		}
		prompt.CreatedAt = at
		if err := c.store.AppendSystemPromptVersion(prompt); err != nil {
			return fmt.Errorf("append system prompt %s: %w", prompt.Key, err)
		}
		slog.Info("system prompt updated", "key", prompt.Key)
	}
	return nil
}

func equalMetadata(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
