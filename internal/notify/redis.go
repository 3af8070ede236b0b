package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"cherylchat/pkg/domain"
)

const defaultChannelPrefix = "cheryl:conversation"

// RedisNotifier broadcasts events by publishing JSON envelopes on a
// per-conversation pub/sub channel. Web frontends subscribe to the channel
// of their conversation and fan the events out to connected clients.
type RedisNotifier struct {
	client        *redis.Client
	channelPrefix string
}

// NewRedisNotifier builds a redis-backed notifier.
func NewRedisNotifier(addr, password, channelPrefix string) (*RedisNotifier, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	channelPrefix = strings.TrimSpace(channelPrefix)
	if channelPrefix == "" {
		channelPrefix = defaultChannelPrefix
	}
	return &RedisNotifier{
		client:        redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		channelPrefix: channelPrefix,
	}, nil
}

// MessageCreated publishes a message_created event.
func (n *RedisNotifier) MessageCreated(ctx context.Context, msg domain.Message) error {
	return n.publish(ctx, Event{
		Type:           EventMessageCreated,
		ConversationID: msg.ConversationID,
		Message:        &msg,
	})
}

// AssistantStatus publishes an assistant_status event.
func (n *RedisNotifier) AssistantStatus(ctx context.Context, conversationID, userID string, replying bool) error {
	return n.publish(ctx, Event{
		Type:           EventAssistantStatus,
		ConversationID: conversationID,
		UserID:         userID,
		Replying:       replying,
	})
}

func (n *RedisNotifier) publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	channel := n.Channel(event.ConversationID)
	if err := n.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// Channel returns the pub/sub channel for a conversation.
func (n *RedisNotifier) Channel(conversationID string) string {
	return fmt.Sprintf("%s:%s", n.channelPrefix, conversationID)
}
