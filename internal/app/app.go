package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"cherylchat/internal/assistant"
	"cherylchat/internal/config"
	"cherylchat/internal/notify"
	"cherylchat/internal/ratelimit"
	"cherylchat/internal/server"
	"cherylchat/internal/servicetoken"
	"cherylchat/pkg/ai"
	"cherylchat/pkg/domain"
	"cherylchat/pkg/storage"
	"cherylchat/pkg/store"
)

// Options allows tests to inject fakes in place of external systems.
type Options struct {
	Store    store.Store
	Notifier notify.Notifier
	Corpus   storage.CorpusSource
}

// App owns the long-running pieces of the chat service: the HTTP ingest
// server, the reply worker, and the publisher.
type App struct {
	cfg       config.FileConfig
	store     store.Store
	replies   *assistant.ReplyService
	concepts  *assistant.ConceptService
	corpus    storage.CorpusSource
	worker    *assistant.Worker
	publisher *assistant.Publisher
	notifier  notify.Notifier
	limiter   *ratelimit.SenderLimiter
	srv       *http.Server
}

// New wires the application from config.
func New(cfg config.FileConfig, opts Options) (*App, error) {
	dataStore := opts.Store
	if dataStore == nil {
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL, store.WithEmbeddingDim(cfg.EmbeddingDim))
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	var (
		generator      ai.Generator
		embedder       ai.Embedder
		contextualizer assistant.Contextualizer
	)
	if cfg.MockAssistant {
		generator = &ai.MockGenerator{}
		contextualizer = &assistant.MockedContextualizer{}
	} else {
		ollama := ai.NewOllamaClient(cfg.OllamaBaseURL)
		generator = ai.NewOllamaGenerator(ollama, cfg.GenerationModel)
		embedder = ai.NewOllamaEmbedder(ollama, cfg.EmbeddingModel, cfg.EmbeddingDim)
		contextualizer = assistant.NewLiveContextualizer(dataStore, embedder, cfg.TopConcepts)
	}

	notifier := opts.Notifier
	if notifier == nil {
		var err error
		notifier, err = newNotifier(cfg)
		if err != nil {
			return nil, err
		}
	}

	var limiter *ratelimit.SenderLimiter
	if cfg.RedisAddr != "" {
		var err error
		limiter, err = ratelimit.NewSenderLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "",
			cfg.MessageLimit, time.Duration(cfg.MessageWindowSeconds)*time.Second,
		)
		if err != nil {
			return nil, fmt.Errorf("init rate limiter: %w", err)
		}
	}

	var verifier *servicetoken.Verifier
	if cfg.InternalTokenSecret != "" {
		var err error
		verifier, err = servicetoken.NewVerifier(cfg.InternalTokenSecret, "cheryl-chat", cfg.InternalTokenIssuers, 0)
		if err != nil {
			return nil, fmt.Errorf("init token verifier: %w", err)
		}
	}

	corpus := opts.Corpus
	if corpus == nil {
		var err error
		corpus, err = newCorpusSource(cfg)
		if err != nil {
			return nil, err
		}
	}

	replies := assistant.NewReplyService(dataStore, cfg.ConversationID, cfg.AssistantUserID)
	pollInterval := time.Duration(cfg.PollIntervalSeconds) * time.Second

	a := &App{
		cfg:      cfg,
		store:    dataStore,
		replies:  replies,
		concepts: assistant.NewConceptService(dataStore, embedder),
		corpus:   corpus,
		worker: assistant.NewWorker(assistant.WorkerConfig{
			Replies:        replies,
			Store:          dataStore,
			Contextualizer: contextualizer,
			Generator:      generator,
			Interval:       pollInterval,
			Timeout:        time.Duration(cfg.GenerateTimeoutSeconds) * time.Second,
		}),
		publisher: assistant.NewPublisher(assistant.PublisherConfig{
			Replies:  replies,
			Notifier: notifier,
			Interval: pollInterval,
		}),
		notifier: notifier,
		limiter:  limiter,
	}

	httpServer := server.New(server.Config{
		Replies:       replies,
		Notifier:      notifier,
		TokenVerifier: verifier,
		Limiter:       limiter,
	})
	a.srv = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return a, nil
}

func newNotifier(cfg config.FileConfig) (notify.Notifier, error) {
	switch cfg.Notifier {
	case config.NotifierRedis:
		notifier, err := notify.NewRedisNotifier(cfg.RedisAddr, cfg.RedisPassword, "")
		if err != nil {
			return nil, fmt.Errorf("init redis notifier: %w", err)
		}
		return notifier, nil
	case config.NotifierAMQP:
		notifier, err := notify.NewAMQPNotifier(cfg.AMQPURL, "")
		if err != nil {
			return nil, fmt.Errorf("init amqp notifier: %w", err)
		}
		return notifier, nil
	default:
		return notify.NopNotifier{}, nil
	}
}

func newCorpusSource(cfg config.FileConfig) (storage.CorpusSource, error) {
	if cfg.Minio.Enabled() {
		src, err := storage.NewMinioSource(
			cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey,
			cfg.Minio.Bucket, cfg.Minio.Object, cfg.Minio.UseSSL,
		)
		if err != nil {
			return nil, fmt.Errorf("init corpus source: %w", err)
		}
		return src, nil
	}
	if cfg.ConceptsPath != "" {
		return storage.FileSource{Path: cfg.ConceptsPath}, nil
	}
	return nil, nil
}

// SeedCorpus fetches the concept corpus and reconciles the stored concept and
// prompt versions against it. A nil corpus source is a no-op.
func (a *App) SeedCorpus(ctx context.Context) error {
	if a.corpus == nil {
		return nil
	}
	corpus, err := a.corpus.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch corpus: %w", err)
	}
	now := time.Now().UTC()

	var prompts []domain.SystemPrompt
	if corpus.Prompts.Base != "" {
		prompts = append(prompts, domain.SystemPrompt{Key: domain.PromptBase, Text: corpus.Prompts.Base, CreatedAt: now})
	}
	if corpus.Prompts.RelatedConcepts != "" {
		prompts = append(prompts, domain.SystemPrompt{Key: domain.PromptRelatedConcepts, Text: corpus.Prompts.RelatedConcepts, CreatedAt: now})
	}
	if len(prompts) > 0 {
		if err := a.concepts.UpdateSystemPrompts(prompts, now); err != nil {
			return fmt.Errorf("seed prompts: %w", err)
		}
	}

	desired := make([]assistant.ConceptInput, 0, len(corpus.Concepts))
	for _, concept := range corpus.Concepts {
		desired = append(desired, assistant.ConceptInput{
			ID:       concept.ID,
			Term:     concept.Term,
			Meaning:  concept.Meaning,
			Metadata: concept.Tags,
		})
	}
	active, err := a.concepts.SyncConcepts(ctx, desired, now)
	if err != nil {
		return fmt.Errorf("sync concepts: %w", err)
	}
	slog.Info("concept corpus synced", "active", len(active))
	return nil
}

// Run starts the HTTP server and the background loops, blocking until the
// context is canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.SeedCorpus(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.worker.Run(ctx) })
	g.Go(func() error { return a.publisher.Run(ctx) })
	g.Go(func() error {
		slog.Info("chat server listening", "addr", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	if a.limiter != nil {
		if closeErr := a.limiter.Close(); closeErr != nil {
			slog.Warn("close rate limiter", "error", closeErr)
		}
	}
	if closer, ok := a.notifier.(interface{ Close() error }); ok {
		if closeErr := closer.Close(); closeErr != nil {
			slog.Warn("close notifier", "error", closeErr)
		}
	}
	return err
}
