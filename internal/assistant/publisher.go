package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cherylchat/internal/notify"
)

// PublisherConfig wires the publisher's collaborators.
type PublisherConfig struct {
	Replies  *ReplyService
	Notifier notify.Notifier
	Interval time.Duration
}

// Publisher is the single poller that turns ready replies into assistant
// messages, broadcasts them, and marks the reply published.
type Publisher struct {
	replies  *ReplyService
	notifier notify.Notifier
	interval time.Duration
}

// NewPublisher builds a publisher with a defaulted poll interval.
func NewPublisher(cfg PublisherConfig) *Publisher {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Publisher{
		replies:  cfg.Replies,
		notifier: notifier,
		interval: interval,
	}
}

// Run polls until the context is canceled. A failed cycle, including an
// invariant violation on a ready reply, is logged and abandoned; the loop
// keeps going.
func (p *Publisher) Run(ctx context.Context) error {
	slog.Info("publisher loop started", "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("publisher loop stopped")
			return nil
		case <-ticker.C:
		}
		if err := p.tick(ctx); err != nil {
			slog.Error("publisher tick failed", "err", err)
		}
	}
}

func (p *Publisher) tick(ctx context.Context) error {
	reply, ok, err := p.replies.NextReady()
	if err != nil {
		return fmt.Errorf("next ready reply: %w", err)
	}
	if !ok {
		return nil
	}

	now := time.Now().UTC()
	msg, err := p.replies.CreateAssistantMessage(reply.Content, now)
	if err != nil {
		return err
	}
	if err := p.notifier.MessageCreated(ctx, msg); err != nil {
		slog.Warn("broadcast assistant message failed", "messageId", msg.ID, "err", err)
	}

	if _, err := p.replies.Publish(reply, time.Now().UTC()); err != nil {
		return err
	}
	if err := p.notifier.AssistantStatus(ctx, p.replies.ConversationID(), p.replies.AssistantUserID(), false); err != nil {
		slog.Warn("broadcast assistant idle failed", "err", err)
	}
	slog.Info("reply published", "replyId", reply.ID, "messageId", msg.ID)
	return nil
}
