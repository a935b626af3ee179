// Package repo: this file provides the file-backed chat record store.
//
// Every chat is one JSON document named "<id>.json" inside the store
// directory:
//
//	{"id": "...", "title": "...", "system_prompt": "...", "model": "...",
//	 "messages": [{"role": "user", "content": "...", "timestamp": "..."}]}
//
// Ids are canonical UUID strings. Anything else is treated as absent and never
// reaches the filesystem, which keeps client-supplied ids from escaping the
// directory.
//
// Writes are atomic from a reader's point of view: the new document is
// written to a temp file in the same directory, synced, then renamed over the
// old one. The store performs no locking of its own; read-modify-write
// sequences (UpdateSettings, ClearMessages, appends) must be serialized per id
// by the caller.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tbourn/chat-assistant-backend/internal/domain"
)

// ErrNotFound is returned when no record exists for the requested id.
var ErrNotFound = errors.New("record not found")

// ErrInvalidID is returned by Save for records whose id is not a UUID.
var ErrInvalidID = errors.New("invalid record id")

const recordExt = ".json"

// FileChatStore persists chat records as JSON files in a single directory.
type FileChatStore struct {
	dir string
}

// NewChatStore returns a store rooted at dir, creating the directory if
// needed.
func NewChatStore(dir string) (*FileChatStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("chat store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("chat store: %w", err)
	}
	return &FileChatStore{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *FileChatStore) Dir() string { return s.dir }

// path maps a canonical UUID id to its record file.
func (s *FileChatStore) path(id string) (string, bool) {
	u, err := uuid.Parse(id)
	if err != nil || u.String() != id {
		return "", false
	}
	return filepath.Join(s.dir, id+recordExt), true
}

// Create allocates a fresh id, applies the defaults and persists an empty
// record.
func (s *FileChatStore) Create(ctx context.Context, d domain.ChatDefaults) (*domain.ChatRecord, error) {
	rec := &domain.ChatRecord{
		ID:           uuid.NewString(),
		Title:        d.Title,
		SystemPrompt: d.SystemPrompt,
		Model:        d.Model,
		Messages:     []domain.Message{},
	}
	if err := s.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get loads the record for id, or returns ErrNotFound.
func (s *FileChatStore) Get(ctx context.Context, id string) (*domain.ChatRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := s.path(id)
	if !ok {
		return nil, ErrNotFound
	}
	return readRecord(p)
}

func readRecord(p string) (*domain.ChatRecord, error) {
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec domain.ChatRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(p), err)
	}
	if rec.Messages == nil {
		rec.Messages = []domain.Message{}
	}
	return &rec, nil
}

// Save overwrites the full persisted form of rec atomically.
func (s *FileChatStore) Save(ctx context.Context, rec *domain.ChatRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, ok := s.path(rec.ID)
	if !ok {
		return ErrInvalidID
	}
	if rec.Messages == nil {
		rec.Messages = []domain.Message{}
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.dir, p, b)
}

// writeFileAtomic writes b to a temp file in dir, syncs it and renames it to
// dst. The temp file is removed on any failure.
func writeFileAtomic(dir, dst string, b []byte) (err error) {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(b); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// Delete removes the record for id. Deleting an absent record succeeds.
func (s *FileChatStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, ok := s.path(id)
	if !ok {
		return nil
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List returns a summary of every readable record. Order is unspecified.
// Files that cannot be read or decoded are logged and skipped.
func (s *FileChatStore) List(ctx context.Context) ([]domain.ChatSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ChatSummary, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		p, ok := s.path(strings.TrimSuffix(name, recordExt))
		if !ok {
			continue
		}
		rec, err := readRecord(p)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("file", name).Msg("skipping unreadable chat record")
			continue
		}
		out = append(out, summarize(rec))
	}
	return out, nil
}

func summarize(rec *domain.ChatRecord) domain.ChatSummary {
	sum := domain.ChatSummary{ID: rec.ID, Title: rec.Title}
	if last := rec.LastMessage(); last != nil {
		sum.LastMessage = last.Content
		sum.Timestamp = last.Timestamp.String()
	}
	return sum
}

// UpdateSettings applies patch to the stored record and persists it.
func (s *FileChatStore) UpdateSettings(ctx context.Context, id string, patch domain.SettingsPatch) (*domain.ChatRecord, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(rec)
	if err := s.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ClearMessages empties the message log and keeps the settings.
func (s *FileChatStore) ClearMessages(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	rec.Messages = []domain.Message{}
	return s.Save(ctx, rec)
}
