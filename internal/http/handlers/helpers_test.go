package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/chat-assistant-backend/internal/completion"
	"github.com/tbourn/chat-assistant-backend/internal/domain"
	"github.com/tbourn/chat-assistant-backend/internal/http/middleware"
	"github.com/tbourn/chat-assistant-backend/internal/repo"
	"github.com/tbourn/chat-assistant-backend/internal/services"
)

// ---------- fake gateway ----------

type fakeGateway struct {
	mu    sync.Mutex
	calls []completion.Request
	reply func(completion.Request) (string, error)
}

func (g *fakeGateway) Complete(ctx context.Context, req completion.Request) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()
	if g.reply != nil {
		return g.reply(req)
	}
	return "Paris.", nil
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// ---------- test API ----------

type testAPI struct {
	r      *gin.Engine
	log    *services.MessageLog
	assets *repo.AssetFiles
	db     *gorm.DB
	gw     *fakeGateway
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// newTestAPI wires real services over temporary storage and registers the
// routes the way the production router does.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	store, err := repo.NewChatStore(filepath.Join(dir, "chats"))
	if err != nil {
		t.Fatalf("NewChatStore: %v", err)
	}
	assets, err := repo.NewAssetFiles(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatalf("NewAssetFiles: %v", err)
	}
	db := newTestDB(t)
	gw := &fakeGateway{}

	log := services.NewMessageLog(store)
	chatSvc := services.NewChatService(log, domain.ChatDefaults{Title: "New Chat", SystemPrompt: "You are helpful.", Model: "gpt-4o-mini"})
	chatSvc.DB = db
	chatSvc.Files = assets
	chatSvc.GCAssets = true
	msgSvc := &services.MessageService{Log: log, Gateway: gw, DB: db, MaxPromptRunes: 50}
	upSvc := &services.UploadService{
		Log:                log,
		Gateway:            gw,
		Files:              assets,
		DB:                 db,
		VisionSystemPrompt: "Describe images.",
		VisionUserPrompt:   "What is in this image?",
	}

	h := New(chatSvc, msgSvc, upSvc, assets)
	h.MaxPromptRunes = 50

	r := gin.New()
	r.Use(middleware.RequestID())
	api := r.Group("/api/v1")
	api.POST("/chats", h.CreateChat)
	api.GET("/chats", h.ListChats)
	api.GET("/chats/:id", h.GetChat)
	api.PUT("/chats/:id/settings", h.UpdateSettings)
	api.POST("/chats/:id/clear", h.ClearChat)
	api.DELETE("/chats/:id", h.DeleteChat)
	api.POST("/chats/:id/messages", middleware.IdempotencyValidator(middleware.IdempotencyOptions{}), h.PostMessage)
	api.GET("/chats/:id/messages", h.ListMessages)
	api.PUT("/chats/:id/messages/:index", h.EditMessage)
	api.POST("/chats/:id/upload", h.UploadToChat)
	api.POST("/upload", h.Upload)
	r.GET("/uploads/:name", h.GetAsset)

	return &testAPI{r: r, log: log, assets: assets, db: db, gw: gw}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func (a *testAPI) createChat(t *testing.T) *domain.ChatRecord {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/chats", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body.String())
	}
	var rec domain.ChatRecord
	decode(t, w, &rec)
	return &rec
}

func (a *testAPI) record(t *testing.T, id string) *domain.ChatRecord {
	t.Helper()
	rec, err := a.log.Store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return rec
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("json: %v (body=%s)", err, w.Body.String())
	}
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	decode(t, w, &er)
	return er.Code
}
