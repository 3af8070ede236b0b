package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"cherylchat/pkg/domain"
)

const defaultExchange = "cheryl.events"

// AMQPNotifier broadcasts events through a topic exchange, one routing key
// per conversation. Useful when the frontends already sit behind a broker.
type AMQPNotifier struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewAMQPNotifier dials the broker and declares the exchange.
func NewAMQPNotifier(url, exchange string) (*AMQPNotifier, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("amqp url required")
	}
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = defaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPNotifier{conn: conn, channel: channel, exchange: exchange}, nil
}

// MessageCreated publishes a message_created event.
func (n *AMQPNotifier) MessageCreated(ctx context.Context, msg domain.Message) error {
	return n.publish(ctx, Event{
		Type:           EventMessageCreated,
		ConversationID: msg.ConversationID,
		Message:        &msg,
	})
}

// AssistantStatus publishes an assistant_status event.
func (n *AMQPNotifier) AssistantStatus(ctx context.Context, conversationID, userID string, replying bool) error {
	return n.publish(ctx, Event{
		Type:           EventAssistantStatus,
		ConversationID: conversationID,
		UserID:         userID,
		Replying:       replying,
	})
}

func (n *AMQPNotifier) publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	routingKey := "conversation." + event.ConversationID
	if err := n.channel.PublishWithContext(ctx, n.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        payload,
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", n.exchange, err)
	}
	return nil
}

// Close releases the channel and connection.
func (n *AMQPNotifier) Close() error {
	if err := n.channel.Close(); err != nil {
		_ = n.conn.Close()
		return err
	}
	return n.conn.Close()
}
