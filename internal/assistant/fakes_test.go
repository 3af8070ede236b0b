package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"

	"cherylchat/pkg/ai"
)

// keywordEmbedder maps each known keyword to its own axis, so similarity is
// driven by word overlap and stays easy to reason about in tests.
type keywordEmbedder struct {
	keywords []string

	mu    sync.Mutex
	calls int
}

func newKeywordEmbedder(keywords ...string) *keywordEmbedder {
	return &keywordEmbedder{keywords: keywords}
}

func (e *keywordEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	vector := make([]float32, len(e.keywords))
	lower := strings.ToLower(text)
	for i, kw := range e.keywords {
		if strings.Contains(lower, kw) {
			vector[i] = 1
		}
	}
	return vector, nil
}

func (e *keywordEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedder down")
}

// recordingGenerator captures the history it was handed and answers with a
// canned reply or error.
type recordingGenerator struct {
	reply string
	err   error

	mu      sync.Mutex
	history [][]ai.ChatMessage
}

func (g *recordingGenerator) GenerateChat(_ context.Context, history []ai.ChatMessage) (string, error) {
	g.mu.Lock()
	g.history = append(g.history, history)
	g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

// blockingGenerator waits for cancellation, standing in for a stuck model.
type blockingGenerator struct{}

func (blockingGenerator) GenerateChat(ctx context.Context, _ []ai.ChatMessage) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (g *recordingGenerator) lastHistory() []ai.ChatMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.history) == 0 {
		return nil
	}
	return g.history[len(g.history)-1]
}
