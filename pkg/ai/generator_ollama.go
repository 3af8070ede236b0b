package ai

import (
	"context"
	"fmt"
	"strings"
)

// OllamaGenerator wraps OllamaClient with a fixed model, mapping an ordered
// chat history onto the Ollama /api/chat endpoint.
type OllamaGenerator struct {
	client *OllamaClient
	model  string
}

// NewOllamaGenerator builds an Ollama-based Generator.
func NewOllamaGenerator(client *OllamaClient, model string) *OllamaGenerator {
	return &OllamaGenerator{client: client, model: model}
}

// GenerateChat implements Generator using Ollama /api/chat.
func (g *OllamaGenerator) GenerateChat(ctx context.Context, history []ChatMessage) (string, error) {
	messages := make([]ollamaChatMessage, 0, len(history))
	for _, msg := range history {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		messages = append(messages, ollamaChatMessage{Role: msg.Role, Content: msg.Content})
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("chat history required")
	}
	return g.client.Chat(ctx, g.model, messages)
}
