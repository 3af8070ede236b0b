package assistant

import (
	"context"
	"strings"
	"testing"
	"time"

	"cherylchat/pkg/domain"
	"cherylchat/pkg/store"
)

func seedConcepts(t *testing.T, st *store.MemoryStore, concepts ...domain.Concept) {
	t.Helper()
	now := time.Now().UTC()
	for i := range concepts {
		concepts[i].CreatedAt = now
	}
	if err := st.AppendConceptVersions(concepts); err != nil {
		t.Fatalf("seed concepts: %v", err)
	}
}

func TestSystemPromptBaseOnlyWhenNoConcepts(t *testing.T) {
	st := store.NewMemoryStore()
	c := NewLiveContextualizer(st, newKeywordEmbedder("paint"), 3)

	prompt, err := c.SystemPrompt(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("SystemPrompt error: %v", err)
	}
	if prompt != defaultBasePrompt {
		t.Fatalf("expected base prompt only, got %q", prompt)
	}
}

func TestSystemPromptUsesStoredPromptBlocks(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	if err := st.AppendSystemPromptVersion(domain.SystemPrompt{Key: domain.PromptBase, Text: "Custom base.", CreatedAt: now}); err != nil {
		t.Fatalf("seed base prompt: %v", err)
	}
	if err := st.AppendSystemPromptVersion(domain.SystemPrompt{Key: domain.PromptRelatedConcepts, Text: "Custom related:", CreatedAt: now}); err != nil {
		t.Fatalf("seed related prompt: %v", err)
	}
	seedConcepts(t, st, domain.Concept{ID: "paint", Term: "paint", Meaning: "about paint"})

	c := NewLiveContextualizer(st, newKeywordEmbedder("paint"), 3)
	prompt, err := c.SystemPrompt(context.Background(), "tell me about paint")
	if err != nil {
		t.Fatalf("SystemPrompt error: %v", err)
	}
	if !strings.HasPrefix(prompt, "Custom base.") {
		t.Fatalf("expected stored base prompt, got %q", prompt)
	}
	if !strings.Contains(prompt, "Custom related:") {
		t.Fatalf("expected stored related block, got %q", prompt)
	}
	if !strings.Contains(prompt, "paint: about paint") {
		t.Fatalf("expected concept line, got %q", prompt)
	}
}

func TestRelatedConceptsRanksAndLimits(t *testing.T) {
	st := store.NewMemoryStore()
	seedConcepts(t, st,
		domain.Concept{ID: "c1", Term: "sculpture", Meaning: "about sculpture"},
		domain.Concept{ID: "c2", Term: "paint", Meaning: "about paint and color"},
		domain.Concept{ID: "c3", Term: "color", Meaning: "about color"},
		domain.Concept{ID: "c4", Term: "clay", Meaning: "about clay"},
		domain.Concept{ID: "c5", Term: "canvas", Meaning: "about paint on canvas"},
	)
	c := NewLiveContextualizer(st, newKeywordEmbedder("sculpture", "paint", "color", "clay", "canvas"), 0)

	related, err := c.RelatedConcepts(context.Background(), "what paint and color should I put on canvas", 3)
	if err != nil {
		t.Fatalf("RelatedConcepts error: %v", err)
	}
	if len(related) != 3 {
		t.Fatalf("expected top 3, got %d", len(related))
	}
	for _, s := range related {
		if s.Concept.ID == "c1" || s.Concept.ID == "c4" {
			t.Fatalf("unrelated concept %s made the cut: %+v", s.Concept.ID, related)
		}
	}
	if related[0].Score < related[1].Score || related[1].Score < related[2].Score {
		t.Fatalf("expected descending scores, got %+v", related)
	}
}

func TestRelatedConceptsDeterministicOnTies(t *testing.T) {
	st := store.NewMemoryStore()
	seedConcepts(t, st,
		domain.Concept{ID: "a", Term: "alpha", Meaning: "about paint"},
		domain.Concept{ID: "b", Term: "beta", Meaning: "about paint"},
		domain.Concept{ID: "c", Term: "gamma", Meaning: "about paint"},
	)
	c := NewLiveContextualizer(st, newKeywordEmbedder("paint"), 2)

	for i := 0; i < 5; i++ {
		related, err := c.RelatedConcepts(context.Background(), "paint", 2)
		if err != nil {
			t.Fatalf("RelatedConcepts error: %v", err)
		}
		if len(related) != 2 || related[0].Concept.ID != "a" || related[1].Concept.ID != "b" {
			t.Fatalf("tie-break should keep snapshot order, got %+v", related)
		}
	}
}

func TestRelatedConceptsPrefersStoredEmbeddings(t *testing.T) {
	st := store.NewMemoryStore()
	embedder := newKeywordEmbedder("paint")
	seedConcepts(t, st, domain.Concept{ID: "c1", Term: "paint", Meaning: "about paint", Embedding: []float32{1}})

	c := NewLiveContextualizer(st, embedder, 3)
	if _, err := c.RelatedConcepts(context.Background(), "paint", 3); err != nil {
		t.Fatalf("RelatedConcepts error: %v", err)
	}
	// Only the probe message needed embedding.
	if embedder.Calls() != 1 {
		t.Fatalf("expected 1 embed call, got %d", embedder.Calls())
	}
}

func TestRelatedConceptsCachesOnDemandEmbeddings(t *testing.T) {
	st := store.NewMemoryStore()
	embedder := newKeywordEmbedder("paint")
	seedConcepts(t, st, domain.Concept{ID: "c1", Term: "paint", Meaning: "about paint"})

	c := NewLiveContextualizer(st, embedder, 3)
	for i := 0; i < 3; i++ {
		if _, err := c.RelatedConcepts(context.Background(), "paint", 3); err != nil {
			t.Fatalf("RelatedConcepts error: %v", err)
		}
	}
	// 3 probe embeds plus a single concept embed on first use.
	if embedder.Calls() != 4 {
		t.Fatalf("expected 4 embed calls, got %d", embedder.Calls())
	}
}

func TestSystemPromptPropagatesEmbedderFailure(t *testing.T) {
	st := store.NewMemoryStore()
	seedConcepts(t, st, domain.Concept{ID: "c1", Term: "paint", Meaning: "about paint"})

	c := NewLiveContextualizer(st, failingEmbedder{}, 3)
	if _, err := c.SystemPrompt(context.Background(), "paint"); err == nil {
		t.Fatalf("expected error from failing embedder")
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Fatalf("identical vectors should score 1, got %f", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("orthogonal vectors should score 0, got %f", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{1}); got != 0 {
		t.Fatalf("mismatched lengths should score 0, got %f", got)
	}
	if got := cosineSimilarity([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Fatalf("zero vector should score 0, got %f", got)
	}
}
