package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const sampleCorpus = `
prompts:
  base: "You are Cheryl."
  relatedConcepts: "Some related concepts:"
concepts:
  - id: vernissage
    term: vernissage
    meaning: "A private viewing before an exhibition opens."
    tags:
      topic: exhibitions
  - id: crit
    term: crit
    meaning: "A group critique session."
`

func TestParseCorpus(t *testing.T) {
	corpus, err := ParseCorpus([]byte(sampleCorpus))
	if err != nil {
		t.Fatalf("ParseCorpus error: %v", err)
	}
	if corpus.Prompts.Base != "You are Cheryl." {
		t.Fatalf("unexpected base prompt %q", corpus.Prompts.Base)
	}
	if len(corpus.Concepts) != 2 {
		t.Fatalf("expected 2 concepts, got %d", len(corpus.Concepts))
	}
	if corpus.Concepts[0].Tags["topic"] != "exhibitions" {
		t.Fatalf("expected tags to parse, got %v", corpus.Concepts[0].Tags)
	}
}

func TestParseCorpusRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"missing id":      "concepts:\n  - term: x\n    meaning: y\n",
		"missing term":    "concepts:\n  - id: a\n    meaning: y\n",
		"missing meaning": "concepts:\n  - id: a\n    term: x\n",
		"duplicate id":    "concepts:\n  - id: a\n    term: x\n    meaning: y\n  - id: a\n    term: z\n    meaning: w\n",
		"invalid yaml":    "concepts: [",
	}
	for name, doc := range cases {
		if _, err := ParseCorpus([]byte(doc)); err == nil {
			t.Fatalf("%s: expected parse error", name)
		}
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concepts.yaml")
	if err := os.WriteFile(path, []byte(sampleCorpus), 0o600); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	corpus, err := FileSource{Path: path}.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(corpus.Concepts) != 2 {
		t.Fatalf("expected 2 concepts, got %d", len(corpus.Concepts))
	}

	if _, err := (FileSource{}).Fetch(context.Background()); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := (FileSource{Path: filepath.Join(t.TempDir(), "missing.yaml")}).Fetch(context.Background()); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
