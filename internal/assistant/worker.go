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

// ApologyReply is what the assistant says when generation fails or times
// out. Failed replies are completed with it instead of being left pending,
// so the pipeline never wedges on a broken model server.
const ApologyReply = "I'm sorry, I had a little trouble thinking of a reply."

const (
	defaultPollInterval    = 2 * time.Second
	defaultGenerateTimeout = 120 * time.Second
	defaultHistoryLimit    = 100
)

// WorkerConfig wires the worker's collaborators.
type WorkerConfig struct {
	Replies        *ReplyService
	Store          store.Store
	Contextualizer Contextualizer
	Generator      ai.Generator
	Interval       time.Duration
	Timeout        time.Duration
	HistoryLimit   int
}

// Worker is the single poller that claims pending replies, builds the chat
// context, invokes the generator, and completes the reply. It never runs
// generations concurrently with itself.
type Worker struct {
	replies        *ReplyService
	store          store.Store
	contextualizer Contextualizer
	generator      ai.Generator
	interval       time.Duration
	timeout        time.Duration
	historyLimit   int
}

// NewWorker builds a worker with defaulted interval, timeout, and history
// limit.
func NewWorker(cfg WorkerConfig) *Worker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGenerateTimeout
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Worker{
		replies:        cfg.Replies,
		store:          cfg.Store,
		contextualizer: cfg.Contextualizer,
		generator:      cfg.Generator,
		interval:       interval,
		timeout:        timeout,
		historyLimit:   historyLimit,
	}
}

// Run polls until the context is canceled. A failed cycle is logged and the
// loop keeps going.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("worker loop started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker loop stopped")
			return nil
		case <-ticker.C:
		}
		if err := w.tick(ctx); err != nil {
			slog.Error("worker tick failed", "err", err)
		}
	}
}

func (w *Worker) tick(ctx context.Context) error {
	reply, ok, err := w.replies.NextPending()
	if err != nil {
		return fmt.Errorf("next pending reply: %w", err)
	}
	if !ok {
		return nil
	}

	content := ApologyReply
	msg, found, err := w.store.GetMessage(reply.MessageID)
	if err != nil {
		return fmt.Errorf("load message %s: %w", reply.MessageID, err)
	}
	if !found {
		slog.Warn("message for reply missing, replying with apology", "replyId", reply.ID, "messageId", reply.MessageID)
	} else {
		generated, err := w.formulate(ctx, msg)
		if err != nil {
			slog.Warn("generation failed, replying with apology", "replyId", reply.ID, "err", err)
		} else {
			content = generated
		}
	}

	if _, err := w.replies.Complete(reply, content, time.Now().UTC()); err != nil {
		return fmt.Errorf("complete reply %s: %w", reply.ID, err)
	}
	slog.Info("reply completed", "replyId", reply.ID, "messageId", reply.MessageID)
	return nil
}

// formulate builds the contextualized chat history and invokes the
// generator under the configured timeout.
func (w *Worker) formulate(ctx context.Context, msg domain.Message) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	systemPrompt, err := w.contextualizer.SystemPrompt(genCtx, msg.Content)
	if err != nil {
		return "", fmt.Errorf("build system prompt: %w", err)
	}

	history := []ai.ChatMessage{{Role: string(domain.RoleSystem), Content: systemPrompt}}
	msgs, err := w.store.ListConversationMessages(msg.ConversationID, w.historyLimit, true)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	for _, m := range msgs {
		history = append(history, ai.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	if len(msgs) == 0 {
		history = append(history, ai.ChatMessage{Role: string(domain.RoleUser), Content: msg.Content})
	}

	return w.generator.GenerateChat(genCtx, history)
}
