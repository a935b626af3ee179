// Chat HTTP handlers.
//
// This file exposes REST endpoints for chat records:
//   - POST   /chats                (create)
//   - GET    /chats                (list summaries)
//   - GET    /chats/{id}           (full record)
//   - PUT    /chats/{id}/settings  (partial settings update)
//   - POST   /chats/{id}/clear     (empty the message log)
//   - DELETE /chats/{id}           (delete, idempotent)
//
// Handlers are transport-thin: they bind input, call the services, and map
// service errors to the ErrorResponse envelope.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/chat-assistant-backend/internal/domain"
	"github.com/tbourn/chat-assistant-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// ChatService defines chat lifecycle operations consumed by HTTP handlers.
type ChatService interface {
	Create(ctx context.Context, title string) (*domain.ChatRecord, error)
	Get(ctx context.Context, id string) (*domain.ChatRecord, error)
	List(ctx context.Context) ([]domain.ChatSummary, error)
	UpdateSettings(ctx context.Context, id string, patch domain.SettingsPatch) (*domain.ChatRecord, error)
	ClearMessages(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// MessageService defines the send, list and edit operations.
type MessageService interface {
	// SendIdempotent appends a user turn and the assistant reply; with a
	// non-empty key a recorded reply is replayed instead.
	SendIdempotent(ctx context.Context, chatID, key, prompt string) (reply string, replayed bool, err error)
	ListPage(ctx context.Context, chatID string, page, pageSize int) ([]domain.Message, int, error)
	EditUserMessage(ctx context.Context, chatID string, index int, content string) error
}

// UploadService runs the upload pipeline.
type UploadService interface {
	Upload(ctx context.Context, chatID string, files []services.UploadFile, mode services.UploadMode) (*services.UploadResult, error)
}

// AssetStore resolves stored upload names to files on disk.
type AssetStore interface {
	Path(name string) (string, error)
	Exists(name string) bool
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for chats, messages, uploads and assets.
type Handlers struct {
	chatSvc   ChatService
	msgSvc    MessageService
	uploadSvc UploadService
	assets    AssetStore

	// MaxPromptRunes rejects oversized prompts before they reach the
	// service; 0 leaves the check to the service.
	MaxPromptRunes int
}

// New constructs a Handlers instance bound to the given services.
func New(chatSvc ChatService, msgSvc MessageService, uploadSvc UploadService, assets AssetStore) *Handlers {
	return &Handlers{chatSvc: chatSvc, msgSvc: msgSvc, uploadSvc: uploadSvc, assets: assets}
}

//
// DTOs
//

// CreateChatRequest is the optional JSON payload for creating a chat.
type CreateChatRequest struct {
	// Title overrides the configured default title when non-blank.
	Title string `json:"title" example:"Trip planning"`
}

// ListChatsResponse wraps the chat summaries.
type ListChatsResponse struct {
	Chats []domain.ChatSummary `json:"chats"`
}

// bindOptionalJSON binds a JSON body into dst; an empty body is allowed.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

//
// Handlers
//

// CreateChat godoc
// @ID          createChat
// @Summary     Create a new chat
// @Description Creates a chat with the configured default title, model and system prompt.
// @Tags        Chats
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CreateChatRequest  false  "Optional title"
// @Success     201   {object}  domain.ChatRecord
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500   {object}  handlers.ErrorResponse  "Storage failure"
// @Router      /chats [post]
func (h *Handlers) CreateChat(c *gin.Context) {
	var req CreateChatRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	rec, err := h.chatSvc.Create(c.Request.Context(), req.Title)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, rec)
}

// ListChats godoc
// @ID          listChats
// @Summary     List chats
// @Description Returns a summary of every chat, most recently active first.
// @Tags        Chats
// @Produce     json
// @Success     200  {object}  handlers.ListChatsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Storage failure"
// @Router      /chats [get]
func (h *Handlers) ListChats(c *gin.Context) {
	items, err := h.chatSvc.List(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	if items == nil {
		items = []domain.ChatSummary{}
	}
	ok(c, http.StatusOK, ListChatsResponse{Chats: items})
}

// GetChat godoc
// @ID          getChat
// @Summary     Get a chat
// @Description Returns the full chat record including its messages.
// @Tags        Chats
// @Produce     json
// @Param       id   path      string  true  "Chat ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.ChatRecord
// @Failure     404  {object}  handlers.ErrorResponse  "Chat not found"
// @Router      /chats/{id} [get]
func (h *Handlers) GetChat(c *gin.Context) {
	rec, err := h.chatSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rec)
}

// UpdateSettings godoc
// @ID          updateChatSettings
// @Summary     Update chat settings
// @Description Partially updates title, system prompt and model. Missing or blank fields are left unchanged.
// @Tags        Chats
// @Accept      json
// @Param       id    path  string                true  "Chat ID (UUID)"  format(uuid)
// @Param       body  body  domain.SettingsPatch  true  "Settings to change"
// @Success     204   {string}  string  "No Content"
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404   {object}  handlers.ErrorResponse  "Chat not found"
// @Router      /chats/{id}/settings [put]
func (h *Handlers) UpdateSettings(c *gin.Context) {
	var patch domain.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if _, err := h.chatSvc.UpdateSettings(c.Request.Context(), c.Param("id"), patch); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ClearChat godoc
// @ID          clearChat
// @Summary     Clear chat messages
// @Description Removes every message and keeps the chat settings.
// @Tags        Chats
// @Param       id   path  string  true  "Chat ID (UUID)"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Chat not found"
// @Router      /chats/{id}/clear [post]
func (h *Handlers) ClearChat(c *gin.Context) {
	if err := h.chatSvc.ClearMessages(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// DeleteChat godoc
// @ID          deleteChat
// @Summary     Delete a chat
// @Description Deletes the chat record. Deleting an unknown chat also succeeds.
// @Tags        Chats
// @Param       id   path  string  true  "Chat ID (UUID)"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     500  {object}  handlers.ErrorResponse  "Storage failure"
// @Router      /chats/{id} [delete]
func (h *Handlers) DeleteChat(c *gin.Context) {
	if err := h.chatSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
