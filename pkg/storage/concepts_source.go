package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"gopkg.in/yaml.v3"
)

// CorpusConcept is one glossary entry in the concept corpus file.
type CorpusConcept struct {
	ID      string            `yaml:"id"`
	Term    string            `yaml:"term"`
	Meaning string            `yaml:"meaning"`
	Tags    map[string]string `yaml:"tags"`
}

// CorpusPrompts carries the system prompt templates shipped with the corpus.
type CorpusPrompts struct {
	Base            string `yaml:"base"`
	RelatedConcepts string `yaml:"relatedConcepts"`
}

// Corpus is the YAML document that seeds concepts and prompts at startup.
type Corpus struct {
	Prompts  CorpusPrompts   `yaml:"prompts"`
	Concepts []CorpusConcept `yaml:"concepts"`
}

// ParseCorpus decodes and validates a corpus document.
func ParseCorpus(data []byte) (Corpus, error) {
	var corpus Corpus
	if err := yaml.Unmarshal(data, &corpus); err != nil {
		return Corpus{}, fmt.Errorf("parse corpus: %w", err)
	}
	seen := make(map[string]struct{}, len(corpus.Concepts))
	for i, concept := range corpus.Concepts {
		id := strings.TrimSpace(concept.ID)
		if id == "" {
			return Corpus{}, fmt.Errorf("corpus concept %d: id is required", i)
		}
		if _, dup := seen[id]; dup {
			return Corpus{}, fmt.Errorf("corpus concept %q: duplicate id", id)
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(concept.Term) == "" {
			return Corpus{}, fmt.Errorf("corpus concept %q: term is required", id)
		}
		if strings.TrimSpace(concept.Meaning) == "" {
			return Corpus{}, fmt.Errorf("corpus concept %q: meaning is required", id)
		}
	}
	return corpus, nil
}

// CorpusSource fetches the concept corpus from wherever it is hosted.
type CorpusSource interface {
	Fetch(ctx context.Context) (Corpus, error)
}

// FileSource reads the corpus from the local filesystem.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(_ context.Context) (Corpus, error) {
	if strings.TrimSpace(s.Path) == "" {
		return Corpus{}, errors.New("corpus file path is required")
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return Corpus{}, fmt.Errorf("read corpus file: %w", err)
	}
	return ParseCorpus(data)
}

// MinioSource reads the corpus from MinIO/S3 compatible storage, so corpus
// updates deploy without shipping a new binary.
type MinioSource struct {
	client *minio.Client
	bucket string
	object string
}

// NewMinioSource connects to MinIO and verifies the bucket exists.
func NewMinioSource(endpoint, accessKey, secretKey, bucket, object string, useSSL bool) (*MinioSource, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("corpus bucket %q does not exist", bucket)
	}
	return &MinioSource{client: client, bucket: bucket, object: object}, nil
}

func (s *MinioSource) Fetch(ctx context.Context) (Corpus, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.object, minio.GetObjectOptions{})
	if err != nil {
		return Corpus{}, fmt.Errorf("get corpus object: %w", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return Corpus{}, fmt.Errorf("read corpus object: %w", err)
	}
	return ParseCorpus(data)
}
