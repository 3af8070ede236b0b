package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"cherylchat/pkg/ai"
	"cherylchat/pkg/domain"
	"cherylchat/pkg/store"
)

func newWorkerFixture(gen ai.Generator) (*Worker, *ReplyService, *store.MemoryStore) {
	st := store.NewMemoryStore()
	replies := NewReplyService(st, "conv-main", "cheryl")
	w := NewWorker(WorkerConfig{
		Replies:        replies,
		Store:          st,
		Contextualizer: &MockedContextualizer{Base: "You are Cheryl."},
		Generator:      gen,
	})
	return w, replies, st
}

func TestWorkerCompletesPendingReply(t *testing.T) {
	gen := &recordingGenerator{reply: "hi there!"}
	w, replies, _ := newWorkerFixture(gen)
	now := time.Now().UTC()

	msg, err := replies.CreateUserMessage("user-1", "hello cheryl", now)
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	reply, _, err := replies.Enqueue(msg.ID, now)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := w.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	got, ok, err := replies.NextReady()
	if err != nil || !ok {
		t.Fatalf("next ready: ok=%v err=%v", ok, err)
	}
	if got.ID != reply.ID || got.Content != "hi there!" {
		t.Fatalf("unexpected ready reply %+v", got)
	}

	history := gen.lastHistory()
	if len(history) != 2 {
		t.Fatalf("expected system + user history, got %d entries", len(history))
	}
	if history[0].Role != string(domain.RoleSystem) || history[0].Content != "You are Cheryl." {
		t.Fatalf("expected system prompt first, got %+v", history[0])
	}
	if history[1].Role != string(domain.RoleUser) || history[1].Content != "hello cheryl" {
		t.Fatalf("expected user message, got %+v", history[1])
	}
}

func TestWorkerSendsFullHistory(t *testing.T) {
	gen := &recordingGenerator{reply: "reply"}
	w, replies, _ := newWorkerFixture(gen)
	now := time.Now().UTC()

	if _, err := replies.CreateUserMessage("user-1", "first", now); err != nil {
		t.Fatalf("create message: %v", err)
	}
	if _, err := replies.CreateAssistantMessage("earlier answer", now.Add(time.Second)); err != nil {
		t.Fatalf("create assistant message: %v", err)
	}
	msg, err := replies.CreateUserMessage("user-1", "second", now.Add(2*time.Second))
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if _, _, err := replies.Enqueue(msg.ID, now.Add(2*time.Second)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := w.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	history := gen.lastHistory()
	if len(history) != 4 {
		t.Fatalf("expected system + 3 history entries, got %d", len(history))
	}
	if history[2].Role != string(domain.RoleAssistant) || history[2].Content != "earlier answer" {
		t.Fatalf("expected assistant turn in history, got %+v", history[2])
	}
}

func TestWorkerGenerationFailureYieldsApology(t *testing.T) {
	gen := &recordingGenerator{err: errors.New("model offline")}
	w, replies, _ := newWorkerFixture(gen)
	now := time.Now().UTC()

	msg, err := replies.CreateUserMessage("user-1", "hello", now)
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if _, _, err := replies.Enqueue(msg.ID, now); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := w.tick(context.Background()); err != nil {
		t.Fatalf("tick should absorb generation failure: %v", err)
	}
	got, ok, err := replies.NextReady()
	if err != nil || !ok {
		t.Fatalf("next ready: ok=%v err=%v", ok, err)
	}
	if got.Content != ApologyReply {
		t.Fatalf("expected apology reply, got %q", got.Content)
	}
}

func TestWorkerMissingMessageYieldsApology(t *testing.T) {
	gen := &recordingGenerator{reply: "unused"}
	w, replies, _ := newWorkerFixture(gen)
	now := time.Now().UTC()

	if _, _, err := replies.Enqueue("no-such-message", now); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := w.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	got, ok, err := replies.NextReady()
	if err != nil || !ok {
		t.Fatalf("next ready: ok=%v err=%v", ok, err)
	}
	if got.Content != ApologyReply {
		t.Fatalf("expected apology reply, got %q", got.Content)
	}
	if len(gen.lastHistory()) != 0 {
		t.Fatalf("generator should not run for a missing message")
	}
}

func TestWorkerGenerationTimeoutYieldsApology(t *testing.T) {
	gen := &blockingGenerator{}
	st := store.NewMemoryStore()
	replies := NewReplyService(st, "conv-main", "cheryl")
	w := NewWorker(WorkerConfig{
		Replies:        replies,
		Store:          st,
		Contextualizer: &MockedContextualizer{Base: "base"},
		Generator:      gen,
		Timeout:        50 * time.Millisecond,
	})
	now := time.Now().UTC()

	msg, err := replies.CreateUserMessage("user-1", "hello", now)
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if _, _, err := replies.Enqueue(msg.ID, now); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := w.tick(context.Background()); err != nil {
		t.Fatalf("tick should absorb the timeout: %v", err)
	}
	got, ok, err := replies.NextReady()
	if err != nil || !ok {
		t.Fatalf("next ready: ok=%v err=%v", ok, err)
	}
	if got.Content != ApologyReply {
		t.Fatalf("expected apology after timeout, got %q", got.Content)
	}
}

func TestWorkerIdleTickIsNoop(t *testing.T) {
	w, _, st := newWorkerFixture(&recordingGenerator{reply: "x"})
	if err := w.tick(context.Background()); err != nil {
		t.Fatalf("idle tick: %v", err)
	}
	if _, ok, _ := st.NextReadyReply(); ok {
		t.Fatalf("idle tick should not produce replies")
	}
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	w, _, _ := newWorkerFixture(&recordingGenerator{reply: "x"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run should return nil on cancel, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}
