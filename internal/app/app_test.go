package app

import (
	"context"
	"testing"

	"cherylchat/internal/config"
	"cherylchat/internal/notify"
	"cherylchat/pkg/domain"
	"cherylchat/pkg/storage"
	"cherylchat/pkg/store"
)

type staticCorpus struct {
	corpus storage.Corpus
}

func (s staticCorpus) Fetch(context.Context) (storage.Corpus, error) {
	return s.corpus, nil
}

func testConfig() config.FileConfig {
	return config.FileConfig{
		Port:            "0",
		ConversationID:  "conv-test",
		AssistantUserID: "cheryl",
		MockAssistant:   true,
		Notifier:        config.NotifierNone,
	}
}

func TestSeedCorpusPopulatesConceptsAndPrompts(t *testing.T) {
	st := store.NewMemoryStore()
	corpus := staticCorpus{corpus: storage.Corpus{
		Prompts: storage.CorpusPrompts{Base: "You are Cheryl.", RelatedConcepts: "Related:"},
		Concepts: []storage.CorpusConcept{
			{ID: "crit", Term: "crit", Meaning: "A group critique session."},
			{ID: "vernissage", Term: "vernissage", Meaning: "A private pre-opening viewing."},
		},
	}}
	core, err := New(testConfig(), Options{
		Store:    st,
		Notifier: notify.NewMemoryNotifier(),
		Corpus:   corpus,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if err := core.SeedCorpus(context.Background()); err != nil {
		t.Fatalf("SeedCorpus error: %v", err)
	}

	active, err := st.ActiveConcepts()
	if err != nil {
		t.Fatalf("ActiveConcepts error: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active concepts, got %d", len(active))
	}
	prompt, ok, err := st.LatestSystemPrompt(domain.PromptBase)
	if err != nil || !ok {
		t.Fatalf("expected base prompt: ok=%v err=%v", ok, err)
	}
	if prompt.Text != "You are Cheryl." {
		t.Fatalf("unexpected base prompt %q", prompt.Text)
	}
}

func TestSeedCorpusWithoutSourceIsNoop(t *testing.T) {
	st := store.NewMemoryStore()
	core, err := New(testConfig(), Options{Store: st, Notifier: notify.NopNotifier{}})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := core.SeedCorpus(context.Background()); err != nil {
		t.Fatalf("SeedCorpus error: %v", err)
	}
	active, err := st.ActiveConcepts()
	if err != nil {
		t.Fatalf("ActiveConcepts error: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no concepts, got %d", len(active))
	}
}
