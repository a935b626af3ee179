package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/chat-assistant-backend/internal/domain"
	"github.com/tbourn/chat-assistant-backend/internal/services"
)

func TestCreateChat_DefaultsAndTitle(t *testing.T) {
	a := newTestAPI(t)

	rec := a.createChat(t)
	if rec.ID == "" || rec.Title != "New Chat" || rec.Model != "gpt-4o-mini" || rec.SystemPrompt != "You are helpful." {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(rec.Messages) != 0 {
		t.Fatalf("new chat has messages: %+v", rec.Messages)
	}

	w := a.do(t, http.MethodPost, "/api/v1/chats", map[string]string{"title": "  Trip   planning "})
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var titled domain.ChatRecord
	decode(t, w, &titled)
	if titled.Title != "Trip planning" {
		t.Fatalf("title = %q", titled.Title)
	}
}

func TestCreateChat_BadJSON(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(t, http.MethodPost, "/api/v1/chats", "{not json")
	if w.Code != http.StatusBadRequest || errCode(t, w) != ErrCodeBadRequest {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestListChats_EmptyAndPopulated(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodGet, "/api/v1/chats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if got := w.Body.String(); got != `{"chats":[]}` {
		t.Fatalf("empty list body = %s", got)
	}

	first := a.createChat(t)
	if w := a.do(t, http.MethodPost, "/api/v1/chats/"+first.ID+"/messages", map[string]string{"content": "hello"}); w.Code != http.StatusOK {
		t.Fatalf("send status=%d body=%s", w.Code, w.Body.String())
	}

	w = a.do(t, http.MethodGet, "/api/v1/chats", nil)
	var resp ListChatsResponse
	decode(t, w, &resp)
	if len(resp.Chats) != 1 {
		t.Fatalf("chats = %+v", resp.Chats)
	}
	if s := resp.Chats[0]; s.ID != first.ID || s.LastMessage != "Paris." || s.Timestamp == "" {
		t.Fatalf("summary = %+v", s)
	}
}

func TestGetChat_FoundAndMissing(t *testing.T) {
	a := newTestAPI(t)
	rec := a.createChat(t)

	w := a.do(t, http.MethodGet, "/api/v1/chats/"+rec.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var got domain.ChatRecord
	decode(t, w, &got)
	if got.ID != rec.ID {
		t.Fatalf("id = %q", got.ID)
	}

	for _, id := range []string{"6f1c1f7e-0b8a-4a57-9f55-3c1de4f1a0aa", "not-a-uuid"} {
		w := a.do(t, http.MethodGet, "/api/v1/chats/"+id, nil)
		if w.Code != http.StatusNotFound || errCode(t, w) != ErrCodeNotFound {
			t.Fatalf("%s: status=%d body=%s", id, w.Code, w.Body.String())
		}
	}
}

func TestUpdateSettings_PartialPatch(t *testing.T) {
	a := newTestAPI(t)
	rec := a.createChat(t)

	w := a.do(t, http.MethodPut, "/api/v1/chats/"+rec.ID+"/settings", map[string]string{"model": "gemini-1.5-flash", "title": "  "})
	if w.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	got := a.record(t, rec.ID)
	if got.Model != "gemini-1.5-flash" || got.Title != "New Chat" || got.SystemPrompt != "You are helpful." {
		t.Fatalf("record after patch: %+v", got)
	}

	w = a.do(t, http.MethodPut, "/api/v1/chats/"+rec.ID+"/settings", "[1,2]")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad body status=%d", w.Code)
	}

	w = a.do(t, http.MethodPut, "/api/v1/chats/6f1c1f7e-0b8a-4a57-9f55-3c1de4f1a0aa/settings", map[string]string{"model": "x"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing chat status=%d", w.Code)
	}
}

func TestClearChat(t *testing.T) {
	a := newTestAPI(t)
	rec := a.createChat(t)
	a.do(t, http.MethodPost, "/api/v1/chats/"+rec.ID+"/messages", map[string]string{"content": "hello"})

	w := a.do(t, http.MethodPost, "/api/v1/chats/"+rec.ID+"/clear", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status=%d", w.Code)
	}
	if got := a.record(t, rec.ID); len(got.Messages) != 0 || got.Model != "gpt-4o-mini" {
		t.Fatalf("record after clear: %+v", got)
	}

	w = a.do(t, http.MethodPost, "/api/v1/chats/nope/clear", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing chat status=%d", w.Code)
	}
}

func TestDeleteChat_Idempotent(t *testing.T) {
	a := newTestAPI(t)
	rec := a.createChat(t)

	for i := 0; i < 2; i++ {
		w := a.do(t, http.MethodDelete, "/api/v1/chats/"+rec.ID, nil)
		if w.Code != http.StatusNoContent {
			t.Fatalf("delete #%d status=%d", i+1, w.Code)
		}
	}
	if w := a.do(t, http.MethodGet, "/api/v1/chats/"+rec.ID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status=%d", w.Code)
	}
}

// ---------- stubbed failure paths ----------

type failingChatSvc struct {
	ChatService
	err error
}

func (s failingChatSvc) List(context.Context) ([]domain.ChatSummary, error) { return nil, s.err }
func (s failingChatSvc) Delete(context.Context, string) error               { return s.err }

func TestChatHandlers_StorageFailureIs500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New(failingChatSvc{err: errors.Join(services.ErrIOFailure, errors.New("read-only fs"))}, nil, nil, nil)
	r := gin.New()
	r.GET("/chats", h.ListChats)
	r.DELETE("/chats/:id", h.DeleteChat)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/chats", nil),
		httptest.NewRequest(http.MethodDelete, "/chats/x", nil),
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusInternalServerError || errCode(t, w) != ErrCodeIOFailure {
			t.Fatalf("%s %s: status=%d body=%s", req.Method, req.URL.Path, w.Code, w.Body.String())
		}
	}
}
