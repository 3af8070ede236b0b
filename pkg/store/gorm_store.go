package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"os"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"cherylchat/pkg/domain"
)

const migrateLockID int64 = 48120733

const defaultEmbeddingDim = 384

const (
	latestReplySQL = `
		SELECT r.* FROM reply_version_models r
		JOIN (
			SELECT id, MAX(created_at) AS created_at
			FROM reply_version_models
			GROUP BY id
		) latest ON r.id = latest.id AND r.created_at = latest.created_at`

	latestConceptSQL = `
		SELECT c.* FROM concept_version_models c
		JOIN (
			SELECT id, MAX(created_at) AS created_at, MIN(created_at) AS first_seen
			FROM concept_version_models
			GROUP BY id
		) latest ON c.id = latest.id AND c.created_at = latest.created_at`
)

type GormStoreOptions struct {
	EmbeddingDim int
}

type GormStoreOption func(*GormStoreOptions)

// WithEmbeddingDim sets the concept embedding dimension used by storage.
func WithEmbeddingDim(dim int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.EmbeddingDim = dim
	}
}

// GormStore implements Store using GORM + Postgres. Reply admission relies
// on a per-conversation advisory transaction lock, so the check-then-insert
// is atomic even across processes.
type GormStore struct {
	db           *gorm.DB
	embeddingDim int
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	embeddingDim := opts.EmbeddingDim
	if embeddingDim <= 0 {
		embeddingDim = defaultEmbeddingDim
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.AutoMigrate(&MessageModel{}, &ReplyVersionModel{}, &ConceptVersionModel{}, &SystemPromptVersionModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(fmt.Sprintf(`
			DO $$
			BEGIN
			IF EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'concept_version_models' AND column_name = 'embedding'
			) THEN
				ALTER TABLE concept_version_models ALTER COLUMN embedding TYPE vector(%d);
			END IF;
			END $$;
		`, embeddingDim)).Error; err != nil {
			return fmt.Errorf("alter concept embedding type: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, embeddingDim: embeddingDim}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateMessage appends a message row.
func (s *GormStore) CreateMessage(msg domain.Message) error {
	model := messageToModel(msg)
	return s.db.Create(&model).Error
}

// GetMessage returns a message by ID.
func (s *GormStore) GetMessage(id string) (domain.Message, bool, error) {
	var model MessageModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Message{}, false, nil
		}
		return domain.Message{}, false, err
	}
	return messageFromModel(model), true, nil
}

// ListConversationMessages returns messages in timestamp order.
func (s *GormStore) ListConversationMessages(conversationID string, limit int, excludeSystem bool) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	tx := s.db.Where("conversation_id = ?", conversationID)
	if excludeSystem {
		tx = tx.Where("role <> ?", string(domain.RoleSystem))
	}
	// Take the newest rows, then restore chronological order.
	var models []MessageModel
	if err := tx.Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Message, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		res = append(res, messageFromModel(models[i]))
	}
	return res, nil
}

// EnqueueReply inserts a pending reply version iff the conversation has no
// reply currently pending or ready.
func (s *GormStore) EnqueueReply(reply domain.Reply) (bool, error) {
	admitted := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", conversationLockID(reply.ConversationID)).Error; err != nil {
			return fmt.Errorf("acquire conversation lock: %w", err)
		}
		var count int64
		if err := tx.Raw(`SELECT COUNT(*) FROM (`+latestReplySQL+`
			WHERE r.conversation_id = ? AND r.status IN (?, ?)) in_flight`,
			reply.ConversationID, string(domain.ReplyPending), string(domain.ReplyReady),
		).Scan(&count).Error; err != nil {
			return fmt.Errorf("count in-flight replies: %w", err)
		}
		if count > 0 {
			return nil
		}
		model := replyToModel(reply)
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("insert reply version: %w", err)
		}
		admitted = true
		return nil
	})
	return admitted, err
}

// AppendReplyVersion inserts a new version row for an existing reply.
func (s *GormStore) AppendReplyVersion(reply domain.Reply) error {
	model := replyToModel(reply)
	return s.db.Create(&model).Error
}

// LatestReply returns the newest version for the given reply ID.
func (s *GormStore) LatestReply(id string) (domain.Reply, bool, error) {
	var model ReplyVersionModel
	err := s.db.Where("id = ?", id).Order("created_at DESC").First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Reply{}, false, nil
		}
		return domain.Reply{}, false, err
	}
	return replyFromModel(model), true, nil
}

// NextPendingReply returns the oldest reply whose latest version is pending.
func (s *GormStore) NextPendingReply() (domain.Reply, bool, error) {
	return s.nextReplyInStatus(domain.ReplyPending)
}

// NextReadyReply returns the oldest reply whose latest version is ready.
func (s *GormStore) NextReadyReply() (domain.Reply, bool, error) {
	return s.nextReplyInStatus(domain.ReplyReady)
}

func (s *GormStore) nextReplyInStatus(status domain.ReplyStatus) (domain.Reply, bool, error) {
	var models []ReplyVersionModel
	if err := s.db.Raw(latestReplySQL+`
		WHERE r.status = ?
		ORDER BY r.created_at ASC
		LIMIT 1`, string(status),
	).Scan(&models).Error; err != nil {
		return domain.Reply{}, false, err
	}
	if len(models) == 0 {
		return domain.Reply{}, false, nil
	}
	return replyFromModel(models[0]), true, nil
}

// CountNonTerminalReplies counts replies whose latest version is pending or
// ready within a conversation.
func (s *GormStore) CountNonTerminalReplies(conversationID string) (int, error) {
	var count int64
	if err := s.db.Raw(`SELECT COUNT(*) FROM (`+latestReplySQL+`
		WHERE r.conversation_id = ? AND r.status IN (?, ?)) in_flight`,
		conversationID, string(domain.ReplyPending), string(domain.ReplyReady),
	).Scan(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// ActiveConcepts returns the newest non-deleted version per concept ID,
// ordered by first insertion so retrieval tie-breaks stay stable.
func (s *GormStore) ActiveConcepts() ([]domain.Concept, error) {
	var models []ConceptVersionModel
	if err := s.db.Raw(latestConceptSQL + `
		WHERE c.deleted = FALSE
		ORDER BY latest.first_seen ASC, c.id ASC`,
	).Scan(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Concept, 0, len(models))
	for _, m := range models {
		concept, err := conceptFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, concept)
	}
	return res, nil
}

// AppendConceptVersions inserts new version rows for the given concepts.
func (s *GormStore) AppendConceptVersions(concepts []domain.Concept) error {
	if len(concepts) == 0 {
		return nil
	}
	models := make([]ConceptVersionModel, 0, len(concepts))
	for _, c := range concepts {
		model, err := conceptToModel(c, s.embeddingDim)
		if err != nil {
			return err
		}
		models = append(models, model)
	}
	return s.db.Create(&models).Error
}

// LatestSystemPrompt returns the newest version for a prompt key.
func (s *GormStore) LatestSystemPrompt(key domain.SystemPromptKey) (domain.SystemPrompt, bool, error) {
	var model SystemPromptVersionModel
	err := s.db.Where("key = ?", string(key)).Order("created_at DESC").First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.SystemPrompt{}, false, nil
		}
		return domain.SystemPrompt{}, false, err
	}
	return systemPromptFromModel(model), true, nil
}

// AppendSystemPromptVersion inserts a new prompt version row.
func (s *GormStore) AppendSystemPromptVersion(prompt domain.SystemPrompt) error {
	model := systemPromptToModel(prompt)
	return s.db.Create(&model).Error
}

func conversationLockID(conversationID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(conversationID))
	return int64(h.Sum64())
}

func messageToModel(m domain.Message) MessageModel {
	return MessageModel{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Role:           string(m.Role),
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Role:           domain.Role(m.Role),
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}

func replyToModel(r domain.Reply) ReplyVersionModel {
	return ReplyVersionModel{
		ID:             r.ID,
		CreatedAt:      r.CreatedAt,
		MessageID:      r.MessageID,
		ConversationID: r.ConversationID,
		Status:         string(r.Status),
		Content:        r.Content,
	}
}

func replyFromModel(m ReplyVersionModel) domain.Reply {
	return domain.Reply{
		ID:             m.ID,
		CreatedAt:      m.CreatedAt,
		MessageID:      m.MessageID,
		ConversationID: m.ConversationID,
		Status:         domain.ReplyStatus(m.Status),
		Content:        m.Content,
	}
}

func conceptToModel(c domain.Concept, embeddingDim int) (ConceptVersionModel, error) {
	model := ConceptVersionModel{
		ID:        c.ID,
		CreatedAt: c.CreatedAt,
		Term:      c.Term,
		Meaning:   c.Meaning,
		Deleted:   c.Deleted,
	}
	if len(c.Metadata) > 0 {
		raw, err := json.Marshal(c.Metadata)
		if err != nil {
			return ConceptVersionModel{}, fmt.Errorf("marshal concept metadata: %w", err)
		}
		model.Metadata = datatypes.JSON(raw)
	}
	if len(c.Embedding) > 0 {
		if embeddingDim > 0 && len(c.Embedding) != embeddingDim {
			return ConceptVersionModel{}, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(c.Embedding), embeddingDim)
		}
		vec := pgvector.NewVector(c.Embedding)
		model.Embedding = &vec
	}
	return model, nil
}

func conceptFromModel(m ConceptVersionModel) (domain.Concept, error) {
	concept := domain.Concept{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		Term:      m.Term,
		Meaning:   m.Meaning,
		Deleted:   m.Deleted,
	}
	if len(m.Metadata) > 0 {
		meta := map[string]string{}
		if err := json.Unmarshal(m.Metadata, &meta); err != nil {
			return domain.Concept{}, fmt.Errorf("unmarshal concept metadata: %w", err)
		}
		concept.Metadata = meta
	}
	if m.Embedding != nil {
		concept.Embedding = m.Embedding.Slice()
	}
	return concept, nil
}

func systemPromptToModel(p domain.SystemPrompt) SystemPromptVersionModel {
	return SystemPromptVersionModel{
		Key:       string(p.Key),
		CreatedAt: p.CreatedAt,
		Text:      p.Text,
	}
}

func systemPromptFromModel(m SystemPromptVersionModel) domain.SystemPrompt {
	return domain.SystemPrompt{
		Key:       domain.SystemPromptKey(m.Key),
		CreatedAt: m.CreatedAt,
		Text:      m.Text,
	}
}
