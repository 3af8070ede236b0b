package ai

import "context"

const defaultMockReply = "mocked"

// MockGenerator returns a fixed reply without touching any model server.
// Selected at startup when the service runs with a mocked assistant.
type MockGenerator struct {
	Reply string
}

// GenerateChat implements Generator with a canned response.
func (g *MockGenerator) GenerateChat(ctx context.Context, history []ChatMessage) (string, error) {
	if g.Reply == "" {
		return defaultMockReply, nil
	}
	return g.Reply, nil
}
