// Upload HTTP handlers.
//
// This file exposes the upload endpoints and the asset download route:
//   - POST /chats/{id}/upload  (chat-scoped upload, multipart "files")
//   - POST /upload             (chat-agnostic upload, multipart "files" + "chatId")
//   - GET  /uploads/{name}     (stored asset download)
//
// Uploads are best-effort per file: the response lists processed files and
// skipped files with a reason. Only batch-level failures produce an error.
package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/chat-assistant-backend/internal/services"
)

// uploadField is the multipart field carrying the files.
const uploadField = "files"

// readUploads collects every file under the "files" field of a multipart
// request.
func readUploads(form *multipart.Form) ([]services.UploadFile, error) {
	headers := form.File[uploadField]
	out := make([]services.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		b, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, services.UploadFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        b,
		})
	}
	return out, nil
}

// upload parses the multipart body and runs the pipeline for chatID.
func (h *Handlers) upload(c *gin.Context, chatID string, form *multipart.Form, mode services.UploadMode) {
	files, err := readUploads(form)
	if err != nil {
		failErr(c, err)
		return
	}
	res, err := h.uploadSvc.Upload(c.Request.Context(), chatID, files, mode)
	if err != nil {
		failErr(c, err)
		return
	}
	if res.Succeeded == nil {
		res.Succeeded = []services.UploadedFile{}
	}
	if res.Skipped == nil {
		res.Skipped = []services.SkippedFile{}
	}
	ok(c, http.StatusOK, res)
}

// multipartForm parses the request body, translating oversize bodies into
// 413 and malformed ones into 400. It reports whether the caller may go on.
func multipartForm(c *gin.Context) (*multipart.Form, bool) {
	form, err := c.MultipartForm()
	if err == nil {
		return form, true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		failErr(c, err)
		return nil, false
	}
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart form with files required")
	return nil, false
}

// UploadToChat godoc
// @ID          uploadToChat
// @Summary     Upload files to a chat
// @Description Stores png/jpg/jpeg/gif files, analyzes images with the chat's system prompt and appends the results to the chat.
// @Tags        Uploads
// @Accept      multipart/form-data
// @Produce     json
// @Param       id     path      string  true  "Chat ID (UUID)"  format(uuid)
// @Param       files  formData  file    true  "Files to upload (repeatable)"
// @Success     200    {object}  services.UploadResult
// @Failure     400    {object}  handlers.ErrorResponse  "No files"
// @Failure     404    {object}  handlers.ErrorResponse  "Chat not found"
// @Failure     413    {object}  handlers.ErrorResponse  "Body too large"
// @Router      /chats/{id}/upload [post]
func (h *Handlers) UploadToChat(c *gin.Context) {
	form, cont := multipartForm(c)
	if !cont {
		return
	}
	h.upload(c, c.Param("id"), form, services.UploadChatScoped)
}

// Upload godoc
// @ID          upload
// @Summary     Upload files
// @Description Same as the chat-scoped upload, but the chat is named by the chatId form field and images are analyzed with the configured vision instruction.
// @Tags        Uploads
// @Accept      multipart/form-data
// @Produce     json
// @Param       chatId  formData  string  true  "Chat ID (UUID)"
// @Param       files   formData  file    true  "Files to upload (repeatable)"
// @Success     200     {object}  services.UploadResult
// @Failure     400     {object}  handlers.ErrorResponse  "Missing chatId or files"
// @Failure     404     {object}  handlers.ErrorResponse  "Chat not found"
// @Failure     413     {object}  handlers.ErrorResponse  "Body too large"
// @Router      /upload [post]
func (h *Handlers) Upload(c *gin.Context) {
	form, cont := multipartForm(c)
	if !cont {
		return
	}
	var chatID string
	if v := form.Value["chatId"]; len(v) > 0 {
		chatID = strings.TrimSpace(v[0])
	}
	if chatID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chatId required")
		return
	}
	h.upload(c, chatID, form, services.UploadChatAgnostic)
}

// GetAsset godoc
// @ID          getAsset
// @Summary     Download an uploaded file
// @Tags        Uploads
// @Produce     octet-stream
// @Param       name  path  string  true  "Stored file name"
// @Success     200   {file}    binary
// @Failure     404   {object}  handlers.ErrorResponse  "Asset not found"
// @Router      /uploads/{name} [get]
func (h *Handlers) GetAsset(c *gin.Context) {
	name := c.Param("name")
	if !h.assets.Exists(name) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "asset not found")
		return
	}
	p, err := h.assets.Path(name)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "asset not found")
		return
	}
	c.File(p)
}
