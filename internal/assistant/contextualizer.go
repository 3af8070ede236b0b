package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"cherylchat/pkg/ai"
	"cherylchat/pkg/domain"
	"cherylchat/pkg/store"
)

const defaultTopConcepts = 3

// Fallbacks used until UpdateSystemPrompts has seeded the store.
const (
	defaultBasePrompt = "You are Cheryl, professor of aesthetics at Konstfack, University of Arts, Crafts and Design. " +
		"You are not an AI assistant but a passionate human teacher. You are smart, quirky and a little bit " +
		"insensitive although you always have good intentions. Keep responses brief and fun."

	defaultRelatedConceptsPrompt = "Here are some key terms and phrases that are part of my unique vocabulary " +
		"and way of thinking. When responding, please consider using these terms where appropriate, ensuring " +
		"you use them in a way that reflects the specific meaning I assign to them below:"
)

// Contextualizer turns an inbound message into the system prompt that
// steers generation.
type Contextualizer interface {
	SystemPrompt(ctx context.Context, message string) (string, error)
}

// MockedContextualizer returns the base block without any retrieval.
type MockedContextualizer struct {
	Base string
}

// SystemPrompt implements Contextualizer with a fixed base block.
func (c *MockedContextualizer) SystemPrompt(ctx context.Context, message string) (string, error) {
	if c.Base == "" {
		return defaultBasePrompt, nil
	}
	return c.Base, nil
}

// ScoredConcept pairs a concept with its similarity to the probe message.
type ScoredConcept struct {
	Concept domain.Concept
	Score   float64
}

type conceptEmbedding struct {
	meaning string
	vector  []float32
}

// LiveContextualizer ranks the active concept snapshot by cosine similarity
// to the inbound message and renders the system prompt from stored prompt
// blocks. Embeddings persisted at sync time are used as-is; anything missing
// is embedded on demand and kept in a process-local cache that is safe to
// lose at any time.
type LiveContextualizer struct {
	store    store.Store
	embedder ai.Embedder
	topN     int

	mu    sync.Mutex
	cache map[string]conceptEmbedding
}

// NewLiveContextualizer builds the live variant. topN <= 0 selects the
// default of 3.
func NewLiveContextualizer(s store.Store, embedder ai.Embedder, topN int) *LiveContextualizer {
	if topN <= 0 {
		topN = defaultTopConcepts
	}
	return &LiveContextualizer{
		store:    s,
		embedder: embedder,
		topN:     topN,
		cache:    make(map[string]conceptEmbedding),
	}
}

// RelatedConcepts returns the n concepts most similar to message, sorted by
// descending score. Ties keep snapshot order, so results are deterministic
// for a fixed concept set and message.
func (c *LiveContextualizer) RelatedConcepts(ctx context.Context, message string, n int) ([]ScoredConcept, error) {
	concepts, err := c.store.ActiveConcepts()
	if err != nil {
		return nil, fmt.Errorf("load concepts: %w", err)
	}
	if len(concepts) == 0 {
		return nil, nil
	}

	probe, err := c.embedder.EmbedText(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("embed message: %w", err)
	}

	scored := make([]ScoredConcept, 0, len(concepts))
	for _, concept := range concepts {
		vector := concept.Embedding
		if len(vector) == 0 {
			vector, err = c.embeddingFor(ctx, concept)
			if err != nil {
				return nil, err
			}
		}
		scored = append(scored, ScoredConcept{
			Concept: concept,
			Score:   cosineSimilarity(probe, vector),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if n > 0 && len(scored) > n {
		scored = scored[:n]
	}
	for _, s := range scored {
		slog.Debug("related concept", "term", s.Concept.Term, "score", s.Score)
	}
	return scored, nil
}

// SystemPrompt renders the base block plus, when anything was retrieved, the
// related-concepts block and one line per selected concept.
func (c *LiveContextualizer) SystemPrompt(ctx context.Context, message string) (string, error) {
	base := c.promptOrDefault(domain.PromptBase, defaultBasePrompt)

	related, err := c.RelatedConcepts(ctx, message, c.topN)
	if err != nil {
		return "", err
	}
	if len(related) == 0 {
		return base, nil
	}

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\n")
	sb.WriteString(c.promptOrDefault(domain.PromptRelatedConcepts, defaultRelatedConceptsPrompt))
	sb.WriteString("\n")
	for _, s := range related {
		sb.WriteString(fmt.Sprintf("%s: %s\n", s.Concept.Term, s.Concept.Meaning))
	}
	return sb.String(), nil
}

func (c *LiveContextualizer) promptOrDefault(key domain.SystemPromptKey, fallback string) string {
	prompt, ok, err := c.store.LatestSystemPrompt(key)
	if err != nil {
		slog.Warn("load system prompt failed", "key", key, "err", err)
		return fallback
	}
	if !ok || strings.TrimSpace(prompt.Text) == "" {
		return fallback
	}
	return prompt.Text
}

func (c *LiveContextualizer) embeddingFor(ctx context.Context, concept domain.Concept) ([]float32, error) {
	c.mu.Lock()
	cached, ok := c.cache[concept.ID]
	c.mu.Unlock()
	if ok && cached.meaning == concept.Meaning {
		return cached.vector, nil
	}

	vector, err := c.embedder.EmbedText(ctx, concept.Meaning)
	if err != nil {
		return nil, fmt.Errorf("embed concept %s: %w", concept.ID, err)
	}
	c.mu.Lock()
	c.cache[concept.ID] = conceptEmbedding{meaning: concept.Meaning, vector: vector}
	c.mu.Unlock()
	return vector, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
