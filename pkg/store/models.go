package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// GORM models used for persistence. Version tables use a composite primary
// key of (id, created_at) so a state change is a new row, never an update.
type MessageModel struct {
	ID             string    `gorm:"primaryKey"`
	ConversationID string    `gorm:"not null;index"`
	UserID         string    `gorm:"not null"`
	Role           string    `gorm:"not null"`
	Content        string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"not null;index"`
}

type ReplyVersionModel struct {
	ID             string    `gorm:"primaryKey"`
	CreatedAt      time.Time `gorm:"primaryKey"`
	MessageID      string    `gorm:"not null;index"`
	ConversationID string    `gorm:"not null;index"`
	Status         string    `gorm:"not null;index"`
	Content        string    `gorm:"type:text"`
}

type ConceptVersionModel struct {
	ID        string           `gorm:"primaryKey"`
	CreatedAt time.Time        `gorm:"primaryKey"`
	Term      string           `gorm:"not null"`
	Meaning   string           `gorm:"type:text;not null"`
	Deleted   bool             `gorm:"not null"`
	Metadata  datatypes.JSON   `gorm:"type:jsonb"`
	Embedding *pgvector.Vector `gorm:"type:vector(384)"`
}

type SystemPromptVersionModel struct {
	Key       string    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"primaryKey"`
	Text      string    `gorm:"type:text;not null"`
}
