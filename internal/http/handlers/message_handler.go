// Message HTTP handlers.
//
// This file exposes REST endpoints for chat messages:
//   - POST /chats/{id}/messages          (append a user message and the assistant reply)
//   - GET  /chats/{id}/messages          (list paginated messages for a chat)
//   - PUT  /chats/{id}/messages/{index}  (edit a user message and truncate after it)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (including newline and length constraints)
//   - delegate to application services (MessageService)
//   - implement conditional responses (ETag) and idempotency semantics
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// reply exists for (chat, key), the service returns that recorded reply and
// the handler sets `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/chat-assistant-backend/internal/domain"
	"github.com/tbourn/chat-assistant-backend/internal/http/middleware"
	"github.com/tbourn/chat-assistant-backend/internal/utils"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a user message.
//
// Content is normalized by the handler (line endings and excessive blank lines)
// before being passed to the service layer.
type PostMessageRequest struct {
	// Content is the user prompt. It must be non-empty.
	Content string `json:"content" binding:"required,min=1" example:"What is the capital of France?"`
}

// PostMessageResponse is the JSON envelope for the assistant reply.
type PostMessageResponse struct {
	// Message is the assistant reply text, formatted when reply formatting is on.
	Message string `json:"message" example:"The capital of France is Paris."`
}

// EditMessageRequest is the JSON payload for editing a user message.
type EditMessageRequest struct {
	Content string `json:"content" binding:"required,min=1" example:"What is the capital of Italy?"`
}

// Pagination describes the page returned by a list endpoint.
type Pagination struct {
	Page       int  `json:"page" example:"1"`
	PageSize   int  `json:"page_size" example:"20"`
	Total      int  `json:"total" example:"42"`
	TotalPages int  `json:"total_pages" example:"3"`
	HasNext    bool `json:"has_next" example:"true"`
}

// ListMessagesResponse contains a page of chat messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// clampMsgPagination parses page/page_size from query parameters, applies sane
// defaults and caps, and returns the validated (page, pageSize).
func clampMsgPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), utils.DefaultPageSize),
	)
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// checkContent rejects empty and oversized content at the edge.
func (h *Handlers) checkContent(c *gin.Context, content string) bool {
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return false
	}
	if h.MaxPromptRunes > 0 && utf8.RuneCountInString(content) > h.MaxPromptRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", h.MaxPromptRunes))
		return false
	}
	return true
}

// messagesETag derives a weak validator from the page position and content,
// so edits that keep the message count still change the tag.
func messagesETag(chatID string, page, pageSize, total int, items []domain.Message) string {
	h := fnv.New64a()
	for _, m := range items {
		fmt.Fprintf(h, "%s\x00%s\x00%d\x00", m.Role, m.Content, m.Timestamp.UnixNano())
	}
	return fmt.Sprintf(`W/"messages:%s:%d:%d:%d:%x"`, chatID, total, page, pageSize, h.Sum64())
}

//
// Handlers
//

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message and get the assistant reply
// @Description Appends a user message to the chat, requests a completion with the chat's full history and appends the reply.
// @Description Supports idempotency via the Idempotency-Key header (same key → same reply).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       id               path    string  true  "Chat ID (UUID)"              format(uuid)
// @Param       body             body    handlers.PostMessageRequest  true  "User message payload"
//
// @Success     200  {object}  handlers.PostMessageResponse  "Assistant reply"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse        "Chat not found"
// @Failure     409  {object}  handlers.ErrorResponse        "Idempotency key reused for a different message"
// @Failure     502  {object}  handlers.ErrorResponse        "Completion service failure"
// @Failure     500  {object}  handlers.ErrorResponse        "Internal error"
// @Router      /chats/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	content := sanitizeContent(req.Content)
	if !h.checkContent(c, content) {
		return
	}

	idemKey, _ := middleware.GetIdempotencyKey(c)
	reply, replayed, err := h.msgSvc.SendIdempotent(c.Request.Context(), c.Param("id"), idemKey, content)
	if err != nil {
		failErr(c, err)
		return
	}
	if replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
	}
	ok(c, http.StatusOK, PostMessageResponse{Message: reply})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a chat
// @Description Returns a paginated list of messages for the given chat, oldest first.
// @Tags        Messages
// @Produce     json
//
// @Param       id         path   string  true  "Chat ID (UUID)"  format(uuid)
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Success     304  {string} string "Not Modified"
// @Failure     404  {object} handlers.ErrorResponse "Chat not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chats/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	chatID := c.Param("id")
	page, pageSize := clampMsgPagination(c)

	items, total, err := h.msgSvc.ListPage(c.Request.Context(), chatID, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	if items == nil {
		items = []domain.Message{}
	}

	etag := messagesETag(chatID, page, pageSize, total, items)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// EditMessage godoc
// @ID          editMessage
// @Summary     Edit a user message
// @Description Replaces the content of the user message at index and removes every later message.
// @Tags        Messages
// @Accept      json
//
// @Param       id     path  string                        true  "Chat ID (UUID)"  format(uuid)
// @Param       index  path  int                           true  "Zero-based message index"  minimum(0)
// @Param       body   body  handlers.EditMessageRequest   true  "New content"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request or invalid edit"
// @Failure     404  {object} handlers.ErrorResponse "Chat not found"
// @Router      /chats/{id}/messages/{index} [put]
func (h *Handlers) EditMessage(c *gin.Context) {
	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	content := sanitizeContent(req.Content)
	if !h.checkContent(c, content) {
		return
	}

	// A malformed index falls through as -1 and is rejected by the service.
	index := utils.AtoiDefault(c.Param("index"), -1)
	if err := h.msgSvc.EditUserMessage(c.Request.Context(), c.Param("id"), index, content); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
