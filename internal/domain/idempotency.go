package domain

import "time"

// Idempotency records the reply produced for a send-message request, keyed by
// (chat_id, key). A retried request carrying the same Idempotency-Key gets the
// recorded reply back instead of appending a second pair of turns.
type Idempotency struct {
	ID     string `gorm:"type:TEXT NOT NULL;primaryKey"`
	ChatID string `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_chat_key,priority:1"`
	Key    string `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_chat_key,priority:2"`
	// PromptHash is the hex SHA-256 of the prompt the key was first used with.
	PromptHash string    `gorm:"type:TEXT NOT NULL;default:''"`
	Reply      string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
