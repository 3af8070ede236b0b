package ai

import "context"

// ChatMessage is one entry of the ordered history handed to a generator.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator produces assistant text from an ordered chat history. Callers
// invoke it serially; implementations are not required to be safe for
// concurrent use.
type Generator interface {
	GenerateChat(ctx context.Context, history []ChatMessage) (string, error)
}
