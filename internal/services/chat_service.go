// Package services – ChatService
//
// This file implements the ChatService, which manages the lifecycle of chat
// records: creation with configured defaults, listing, partial settings
// updates, clearing and deletion. Mutations take the same per-chat lock as
// the message log so they never interleave with an in-flight send or upload.
//
// When asset collection is enabled, deleting a chat also removes the files
// uploaded to it, using the asset index to find them.
package services

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/chat-assistant-backend/internal/domain"
	"github.com/tbourn/chat-assistant-backend/internal/repo"
)

// AssetFiles is the file side of the asset store. repo.AssetFiles
// implements it.
type AssetFiles interface {
	Write(ctx context.Context, name string, b []byte) error
	Remove(name string) error
}

// ChatService provides chat-level operations.
type ChatService struct {
	Log *MessageLog

	// Defaults are applied to new records.
	Defaults domain.ChatDefaults

	// DB holds the asset index; Files the uploaded bytes. Both are only used
	// when GCAssets is set.
	DB       *gorm.DB
	Files    AssetFiles
	GCAssets bool

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
}

// NewChatService constructs a ChatService with sane defaults for title handling.
func NewChatService(log *MessageLog, defaults domain.ChatDefaults) *ChatService {
	return &ChatService{
		Log:         log,
		Defaults:    defaults,
		TitleMaxLen: 120,
	}
}

func (s *ChatService) store() ChatStore { return s.Log.Store }

// Create persists a new record with the configured defaults. A non-blank
// title overrides the default title.
func (s *ChatService) Create(ctx context.Context, title string) (*domain.ChatRecord, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Create")
	defer span.End()

	d := s.Defaults
	if t := normalizeTitle(title); t != "" {
		d.Title = s.clip(t)
	}
	rec, err := s.store().Create(ctx, d)
	if err != nil {
		return nil, storeErr(err)
	}
	span.SetAttributes(attribute.String("chat.id", rec.ID))
	return rec, nil
}

// Get returns the full record.
func (s *ChatService) Get(ctx context.Context, id string) (*domain.ChatRecord, error) {
	rec, err := s.store().Get(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return rec, nil
}

// List returns every chat summary, most recently active first. Chats without
// messages sort last, by id.
func (s *ChatService) List(ctx context.Context) ([]domain.ChatSummary, error) {
	items, err := s.store().List(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Timestamp != items[j].Timestamp {
			return newerTimestamp(items[i].Timestamp, items[j].Timestamp)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// newerTimestamp orders RFC 3339 strings newest first; empty sorts last.
func newerTimestamp(a, b string) bool {
	ta, ea := domain.ParseTimestamp(a)
	tb, eb := domain.ParseTimestamp(b)
	switch {
	case ea != nil || ta.IsZero():
		return false
	case eb != nil || tb.IsZero():
		return true
	}
	return ta.After(tb.Time)
}

// UpdateSettings applies a partial settings update. Nil or blank fields are
// left unchanged.
func (s *ChatService) UpdateSettings(ctx context.Context, id string, patch domain.SettingsPatch) (*domain.ChatRecord, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "UpdateSettings", trace.WithAttributes(attribute.String("chat.id", id)))
	defer span.End()

	if patch.Title != nil {
		t := s.clip(normalizeTitle(*patch.Title))
		patch.Title = &t
	}

	unlock, err := s.Log.Locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.store().UpdateSettings(ctx, id, patch)
	if err != nil {
		return nil, storeErr(err)
	}
	return rec, nil
}

// ClearMessages empties the log and keeps title, model and system prompt.
func (s *ChatService) ClearMessages(ctx context.Context, id string) error {
	unlock, err := s.Log.Locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	return storeErr(s.store().ClearMessages(ctx, id))
}

// Delete removes the record. Deleting an absent chat succeeds. With
// GCAssets set, the chat's uploaded files and index rows are removed too;
// collection failures are logged and do not fail the delete.
func (s *ChatService) Delete(ctx context.Context, id string) error {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Delete", trace.WithAttributes(attribute.String("chat.id", id)))
	defer span.End()

	unlock, err := s.Log.Locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.store().Delete(ctx, id); err != nil {
		return storeErr(err)
	}
	if s.GCAssets && s.DB != nil && s.Files != nil {
		s.collectAssets(ctx, id)
	}
	return nil
}

func (s *ChatService) collectAssets(ctx context.Context, chatID string) {
	lg := zerolog.Ctx(ctx)
	assets, err := repo.ListAssetsByChat(ctx, s.DB, chatID)
	if err != nil {
		lg.Warn().Err(err).Str("chat_id", chatID).Msg("asset gc: list failed")
		return
	}
	for _, a := range assets {
		if err := s.Files.Remove(a.StoredName); err != nil {
			lg.Warn().Err(err).Str("asset", a.StoredName).Msg("asset gc: remove failed")
			continue
		}
		if err := repo.DeleteAsset(ctx, s.DB, a.StoredName); err != nil {
			lg.Warn().Err(err).Str("asset", a.StoredName).Msg("asset gc: index delete failed")
		}
	}
}

// clip truncates a chat title to the configured maximum rune length.
func (s *ChatService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
