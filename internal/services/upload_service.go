// Package services – UploadService
//
// UploadService turns a batch of uploaded files into stored assets, optional
// image analyses and chat messages. Each file is handled best-effort: a file
// that is rejected or fails is reported in UploadResult.Skipped with a
// reason, its stored bytes are removed, and the batch carries on.
//
// Work happens in two phases. Validation, storage and image analysis run
// concurrently (bounded by Concurrency). The resulting messages are then
// appended in input order under a single hold of the chat lock, so a file's
// image reference and its analysis are always adjacent.
package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"mime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/chat-assistant-backend/internal/completion"
	"github.com/tbourn/chat-assistant-backend/internal/domain"
	"github.com/tbourn/chat-assistant-backend/internal/repo"
	"github.com/tbourn/chat-assistant-backend/internal/utils"
)

// PlaceholderAnalysis is reported for files that were stored but not
// analyzed.
const PlaceholderAnalysis = "File uploaded"

// Skip reasons.
const (
	ReasonUnsupportedType = "unsupported file type"
	ReasonEmpty           = "empty file"
	ReasonTooLarge        = "file too large"
	ReasonStoreFailed     = "could not store file"
	ReasonAnalysisFailed  = "image analysis failed"
	ReasonAppendFailed    = "could not update chat"
)

// allowedExts lists the accepted upload extensions (lowercase, with dot).
var allowedExts = map[string]struct{}{".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}}

// UploadMode selects the system instruction used for image analysis.
type UploadMode int

const (
	// UploadChatScoped analyzes with the chat's own system prompt.
	UploadChatScoped UploadMode = iota
	// UploadChatAgnostic analyzes with the configured vision instruction.
	UploadChatAgnostic
)

// UploadFile is one incoming file.
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadedFile describes a successfully processed file.
type UploadedFile struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Type     string `json:"type"`
	Analysis string `json:"analysis"`
}

// SkippedFile describes a file that was not processed.
type SkippedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// UploadResult is the partial outcome of a batch.
type UploadResult struct {
	Succeeded []UploadedFile `json:"files"`
	Skipped   []SkippedFile  `json:"skipped"`
}

// UploadService runs the upload pipeline.
type UploadService struct {
	Log     *MessageLog
	Gateway completion.Gateway
	Files   AssetFiles
	// DB holds the asset index; nil disables indexing.
	DB *gorm.DB

	VisionSystemPrompt string
	VisionUserPrompt   string
	VisionMaxTokens    int

	// Concurrency bounds parallel file processing; <= 0 means 4.
	Concurrency int
	// MaxFileBytes rejects larger files; <= 0 disables the check.
	MaxFileBytes int64

	// Now is used for stored names; nil means time.Now.
	Now func() time.Time
}

// prepared is the phase-one outcome for one file.
type prepared struct {
	file     UploadedFile
	asset    string
	messages []domain.Message
	skip     string
}

// Upload processes files for chatID. It fails as a whole only when the chat
// does not exist, the batch is empty, or ctx ends.
func (s *UploadService) Upload(ctx context.Context, chatID string, files []UploadFile, mode UploadMode) (*UploadResult, error) {
	tr := otel.Tracer("services/UploadService")
	ctx, span := tr.Start(ctx, "Upload",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.Int("files", len(files)),
		),
	)
	defer span.End()

	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	rec, err := s.Log.Store.Get(ctx, chatID)
	if err != nil {
		return nil, storeErr(err)
	}
	sys := s.VisionSystemPrompt
	if mode == UploadChatScoped && strings.TrimSpace(rec.SystemPrompt) != "" {
		sys = rec.SystemPrompt
	}

	// Phase one: validate, store, analyze.
	out := make([]prepared, len(files))
	limit := s.Concurrency
	if limit <= 0 {
		limit = 4
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i := range files {
		i := i
		g.Go(func() error {
			out[i] = s.prepare(ctx, chatID, rec.Model, sys, files[i])
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		s.discard(ctx, out)
		return nil, err
	}

	// Phase two: append in input order under one lock.
	err = s.Log.Update(ctx, chatID, func(tx *LogTx) error {
		for i := range out {
			p := &out[i]
			if p.skip != "" {
				continue
			}
			if err := tx.Append(ctx, p.messages...); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("chat_id", chatID).Str("file", p.file.Name).Msg("upload append failed")
				s.removeAsset(ctx, p.asset)
				p.skip = ReasonAppendFailed
			}
		}
		return nil
	})
	if err != nil {
		s.discard(ctx, out)
		return nil, err
	}

	res := &UploadResult{Succeeded: []UploadedFile{}, Skipped: []SkippedFile{}}
	for i, p := range out {
		if p.skip != "" {
			name := p.file.Name
			if name == "" {
				name = utils.BaseName(files[i].Name)
			}
			res.Skipped = append(res.Skipped, SkippedFile{Name: name, Reason: p.skip})
			continue
		}
		res.Succeeded = append(res.Succeeded, p.file)
	}
	span.SetAttributes(
		attribute.Int("files.succeeded", len(res.Succeeded)),
		attribute.Int("files.skipped", len(res.Skipped)),
	)
	return res, nil
}

// prepare validates and stores one file and, for images, obtains the
// analysis. Failures are reported through prepared.skip.
func (s *UploadService) prepare(ctx context.Context, chatID, model, sys string, f UploadFile) prepared {
	lg := zerolog.Ctx(ctx)
	name := utils.SecureFilename(f.Name)
	p := prepared{file: UploadedFile{Name: name}}

	ext := utils.FileExt(f.Name)
	if _, ok := allowedExts[ext]; !ok {
		p.skip = ReasonUnsupportedType
		return p
	}
	if len(f.Data) == 0 {
		p.skip = ReasonEmpty
		return p
	}
	if s.MaxFileBytes > 0 && int64(len(f.Data)) > s.MaxFileBytes {
		p.skip = ReasonTooLarge
		return p
	}

	ct := strings.TrimSpace(f.ContentType)
	if ct == "" || ct == "application/octet-stream" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			ct = byExt
		}
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	stored := utils.StoredFilename(name, now())
	if err := s.Files.Write(ctx, stored, f.Data); err != nil {
		lg.Warn().Err(err).Str("file", name).Msg("upload store failed")
		p.skip = ReasonStoreFailed
		return p
	}
	p.asset = stored
	if s.DB != nil {
		a := &domain.StoredAsset{
			StoredName:   stored,
			OriginalName: name,
			ChatID:       chatID,
			ContentType:  ct,
			Size:         int64(len(f.Data)),
		}
		if err := repo.CreateAsset(ctx, s.DB, a); err != nil {
			lg.Warn().Err(err).Str("file", name).Msg("upload index failed")
			s.removeAsset(ctx, stored)
			p.skip = ReasonStoreFailed
			return p
		}
	}

	url := domain.StoredAsset{StoredName: stored}.URL()
	p.file.URL = url
	p.file.Type = ct

	if !strings.HasPrefix(ct, "image/") {
		p.file.Analysis = PlaceholderAnalysis
		p.messages = []domain.Message{{Role: domain.RoleUser, Content: linkMarkup(url, name)}}
		return p
	}

	analysis, err := s.Gateway.Complete(ctx, completion.Request{
		Model:        model,
		SystemPrompt: sys,
		History: []completion.Turn{{
			Role:  completion.RoleUser,
			Text:  s.VisionUserPrompt,
			Image: &completion.InlineImage{ContentType: ct, Data: f.Data},
		}},
		MaxOutputTokens: s.VisionMaxTokens,
	})
	if err != nil {
		lg.Warn().Err(err).Str("file", name).Str("model", model).Msg("image analysis failed")
		s.removeAsset(ctx, stored)
		p.skip = ReasonAnalysisFailed
		return p
	}
	p.file.Analysis = analysis
	p.messages = []domain.Message{
		{Role: domain.RoleUser, Content: imageMarkup(url, name)},
		{Role: domain.RoleAssistant, Content: analysis},
	}
	return p
}

// discard removes every asset stored during phase one.
func (s *UploadService) discard(ctx context.Context, out []prepared) {
	for _, p := range out {
		if p.asset != "" && p.skip == "" {
			s.removeAsset(ctx, p.asset)
		}
	}
}

// removeAsset deletes a stored file and its index row. The context may
// already be done, so the index delete runs detached from cancellation.
func (s *UploadService) removeAsset(ctx context.Context, stored string) {
	if stored == "" {
		return
	}
	if err := s.Files.Remove(stored); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("asset", stored).Msg("asset cleanup failed")
	}
	if s.DB != nil {
		if err := repo.DeleteAsset(context.WithoutCancel(ctx), s.DB, stored); err != nil && !errors.Is(err, repo.ErrNotFound) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("asset", stored).Msg("asset index cleanup failed")
		}
	}
}

func imageMarkup(url, name string) string {
	return fmt.Sprintf(`<img src="%s" alt="%s">`, url, html.EscapeString(name))
}

func linkMarkup(url, name string) string {
	return fmt.Sprintf(`<a href="%s" target="_blank">%s</a>`, url, html.EscapeString(name))
}
