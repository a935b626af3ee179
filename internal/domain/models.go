// Package domain defines the data model of the assistant backend: chat
// records and their message logs (persisted as one JSON document per chat),
// plus the GORM-mapped rows for uploaded assets and idempotency records.
package domain

import (
	"strings"
	"time"
)

// Message roles. The system instruction is synthesized per request from
// ChatRecord.SystemPrompt and never stored as a message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
//
// Fields:
//   - Role: RoleUser or RoleAssistant.
//   - Content: plain text, or a markup fragment referencing an uploaded
//     asset (an <img> tag for images, an <a> tag for other files).
//   - Timestamp: creation instant; non-decreasing within a record.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
}

// ChatRecord is the persisted unit for one conversation: its settings and
// the ordered message log. ID doubles as the storage key.
type ChatRecord struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	SystemPrompt string    `json:"system_prompt"`
	Model        string    `json:"model"`
	Messages     []Message `json:"messages"`
}

// LastMessage returns the newest message, or nil for an empty log.
func (c *ChatRecord) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// ChatSummary is the list-view projection of a ChatRecord. LastMessage and
// Timestamp are empty strings when the chat has no messages.
type ChatSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	LastMessage string `json:"lastMessage"`
	Timestamp   string `json:"timestamp"`
}

// ChatDefaults are the settings applied to a freshly created record.
type ChatDefaults struct {
	Title        string
	SystemPrompt string
	Model        string
}

// SettingsPatch is a partial settings update. Nil or blank fields mean
// "leave unchanged", never "clear".
type SettingsPatch struct {
	Title        *string `json:"title,omitempty"`
	SystemPrompt *string `json:"system_prompt,omitempty"`
	Model        *string `json:"model,omitempty"`
}

// Apply overwrites the record's settings with the provided fields.
func (p SettingsPatch) Apply(c *ChatRecord) {
	if v, ok := provided(p.Title); ok {
		c.Title = v
	}
	if v, ok := provided(p.SystemPrompt); ok {
		c.SystemPrompt = v
	}
	if v, ok := provided(p.Model); ok {
		c.Model = v
	}
}

func provided(v *string) (string, bool) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "", false
	}
	return *v, true
}

// StoredAsset indexes an uploaded file kept under the asset directory.
//
// Fields:
//   - StoredName: generated on-disk name, also the public reference (PK).
//   - OriginalName: sanitized client filename.
//   - ChatID: chat the upload was appended to (indexed for cleanup).
//   - ContentType: client-declared MIME type.
//   - Size: byte length written.
type StoredAsset struct {
	StoredName   string    `json:"stored_name"   gorm:"type:varchar(128);primaryKey"`
	OriginalName string    `json:"original_name" gorm:"type:varchar(255);not null"`
	ChatID       string    `json:"chat_id"       gorm:"type:char(36);not null;index:idx_assets_chat"`
	ContentType  string    `json:"content_type"  gorm:"type:varchar(128);not null"`
	Size         int64     `json:"size"          gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for StoredAsset.
func (StoredAsset) TableName() string { return "assets" }

// URL is the stable download path embedded in message content.
func (a StoredAsset) URL() string { return "/uploads/" + a.StoredName }
