package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/chat-assistant-backend/internal/completion"
	"github.com/tbourn/chat-assistant-backend/internal/domain"
	"github.com/tbourn/chat-assistant-backend/internal/repo"
)

// ---------- test helpers ----------

var testDefaults = domain.ChatDefaults{Title: "New Chat", SystemPrompt: "You are helpful.", Model: "gpt-4o-mini"}

func newTestLog(t *testing.T) *MessageLog {
	t.Helper()
	st, err := repo.NewChatStore(filepath.Join(t.TempDir(), "chats"))
	if err != nil {
		t.Fatalf("NewChatStore: %v", err)
	}
	return NewMessageLog(st)
}

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newAssetFiles(t *testing.T) *repo.AssetFiles {
	t.Helper()
	a, err := repo.NewAssetFiles(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("NewAssetFiles: %v", err)
	}
	return a
}

func mustCreate(t *testing.T, l *MessageLog) *domain.ChatRecord {
	t.Helper()
	rec, err := l.Store.Create(context.Background(), testDefaults)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return rec
}

func mustGet(t *testing.T, l *MessageLog, id string) *domain.ChatRecord {
	t.Helper()
	rec, err := l.Store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return rec
}

// recordingGateway captures requests and answers with reply(req).
type recordingGateway struct {
	mu    sync.Mutex
	reqs  []completion.Request
	reply func(req completion.Request) (string, error)
}

func (g *recordingGateway) Complete(ctx context.Context, req completion.Request) (string, error) {
	g.mu.Lock()
	g.reqs = append(g.reqs, req)
	g.mu.Unlock()
	if g.reply == nil {
		return "ok", nil
	}
	return g.reply(req)
}

func (g *recordingGateway) requests() []completion.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]completion.Request(nil), g.reqs...)
}

var errUpstream = fmt.Errorf("%w: fake: upstream 500", completion.ErrCompletion)

// flakyStore fails Save once armed.
type flakyStore struct {
	ChatStore
	mu       sync.Mutex
	failSave bool
}

var errDisk = errors.New("disk full")

func (f *flakyStore) Save(ctx context.Context, rec *domain.ChatRecord) error {
	f.mu.Lock()
	fail := f.failSave
	f.mu.Unlock()
	if fail {
		return errDisk
	}
	return f.ChatStore.Save(ctx, rec)
}

func (f *flakyStore) arm() {
	f.mu.Lock()
	f.failSave = true
	f.mu.Unlock()
}

// failingFiles is an AssetFiles whose writes always fail.
type failingFiles struct{ removed []string }

func (f *failingFiles) Write(ctx context.Context, name string, b []byte) error {
	return errDisk
}

func (f *failingFiles) Remove(name string) error {
	f.removed = append(f.removed, name)
	return nil
}
