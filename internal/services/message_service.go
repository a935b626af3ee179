// Package services – MessageService
//
// This file implements MessageService, which owns the send path: it validates
// the prompt, appends the user turn, asks the completion gateway for a reply
// using the chat's model and system prompt plus the full history, and appends
// the assistant turn. The chat lock is held across the whole sequence so a
// user turn and its reply are always adjacent.
//
// If the completion call fails, the user turn stays in the record and the
// error (wrapping ErrCompletion) is returned.
//
// Optional behavior:
//   - reply formatting with textfmt.Wrap before the reply is persisted
//   - auto-titling a chat from its first prompt while it still carries the
//     default title
//   - idempotent replay of replies keyed by (chat, Idempotency-Key); the
//     key is bound to a digest of the prompt it was first used with
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/chat-assistant-backend/internal/completion"
	"github.com/tbourn/chat-assistant-backend/internal/domain"
	"github.com/tbourn/chat-assistant-backend/internal/repo"
	"github.com/tbourn/chat-assistant-backend/internal/textfmt"
	"github.com/tbourn/chat-assistant-backend/internal/utils"
)

// MessageService coordinates user turns and assistant replies.
type MessageService struct {
	Log     *MessageLog
	Gateway completion.Gateway

	// DB stores idempotency records; nil disables replay.
	DB             *gorm.DB
	IdempotencyTTL time.Duration

	// Optional guards
	MaxPromptRunes int

	// FormatReplies wraps replies to textfmt.Width before they are stored.
	FormatReplies bool

	// Title generation: a chat whose title equals DefaultTitle is renamed
	// after its first prompt.
	AutoTitle    bool
	DefaultTitle string
	TitleLocale  language.Tag
	TitleMaxLen  int
}

// Send appends prompt as a user turn, obtains the assistant reply and appends
// it. It returns the reply text as stored.
func (s *MessageService) Send(ctx context.Context, chatID, prompt string) (string, error) {
	reply, _, err := s.send(ctx, chatID, "", prompt)
	return reply, err
}

// SendIdempotent is Send with replay. When key is non-empty and a live
// record exists for (chatID, key), the stored reply is returned with
// replayed=true and nothing is appended. A key reused with a different
// prompt fails with ErrIdempotencyConflict. The lookup and the record write
// happen under the chat lock, so a retry racing the original waits for it
// and then replays.
func (s *MessageService) SendIdempotent(ctx context.Context, chatID, key, prompt string) (reply string, replayed bool, err error) {
	if s.DB == nil {
		key = ""
	}
	return s.send(ctx, chatID, key, prompt)
}

func (s *MessageService) send(ctx context.Context, chatID, key, prompt string) (string, bool, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send", trace.WithAttributes(
		attribute.String("chat.id", chatID),
		attribute.Bool("idempotent", key != ""),
	))
	defer span.End()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", false, ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(prompt) > s.MaxPromptRunes {
		return "", false, ErrTooLong
	}
	digest := PromptDigest(prompt)

	var (
		reply    string
		replayed bool
	)
	err := s.Log.Update(ctx, chatID, func(tx *LogTx) error {
		if key != "" {
			prev, err := repo.GetIdempotency(ctx, s.DB, chatID, key, time.Now().UTC())
			switch {
			case err == nil:
				if prev.PromptHash != digest {
					return ErrIdempotencyConflict
				}
				reply, replayed = prev.Reply, true
				return nil
			case !errors.Is(err, repo.ErrNotFound):
				return fmt.Errorf("%w: %w", ErrIOFailure, err)
			}
		}

		if err := tx.Append(ctx, domain.Message{Role: domain.RoleUser, Content: prompt}); err != nil {
			return err
		}
		rec := tx.Record()
		span.SetAttributes(attribute.String("chat.model", rec.Model))

		out, err := s.Gateway.Complete(ctx, completion.Request{
			Model:        rec.Model,
			SystemPrompt: rec.SystemPrompt,
			History:      historyOf(rec.Messages),
		})
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("chat_id", chatID).Str("model", rec.Model).Msg("completion failed")
			if !errors.Is(err, ErrCompletion) {
				err = errors.Join(ErrCompletion, err)
			}
			return err
		}
		if s.FormatReplies {
			out = textfmt.Wrap(out)
		}
		if err := tx.Append(ctx, domain.Message{Role: domain.RoleAssistant, Content: out}); err != nil {
			return err
		}
		reply = out

		if s.AutoTitle && s.shouldAutoTitle(rec.Title) {
			s.autoTitle(ctx, rec, prompt)
		}
		if key != "" {
			s.remember(ctx, chatID, key, digest, out)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", false, err
	}
	span.SetAttributes(attribute.Bool("replayed", replayed))
	return reply, replayed, nil
}

// remember stores the reply for (chatID, key). The turns are already
// persisted, so a failure here is logged rather than returned.
func (s *MessageService) remember(ctx context.Context, chatID, key, digest, reply string) {
	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	_, err := repo.CreateIdempotency(ctx, s.DB, repo.IdempotencyEntry{
		ChatID:     chatID,
		Key:        key,
		PromptHash: digest,
		Reply:      reply,
		Status:     http.StatusOK,
	}, ttl)
	if err != nil && !errors.Is(err, repo.ErrDuplicate) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("chat_id", chatID).Msg("idempotency record not stored")
	}
}

// PromptDigest is the hex SHA-256 of a trimmed prompt, stored with an
// idempotency key to detect key reuse for a different message.
func PromptDigest(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// historyOf converts stored turns into gateway turns. Asset markup is sent
// as plain text.
func historyOf(msgs []domain.Message) []completion.Turn {
	out := make([]completion.Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, completion.Turn{Role: m.Role, Text: m.Content})
	}
	return out
}

// autoTitle renames rec after prompt. Failures are logged and ignored.
func (s *MessageService) autoTitle(ctx context.Context, rec *domain.ChatRecord, prompt string) {
	gen := s.clipTitle(s.generateTitleFromPrompt(prompt))
	if gen == "" {
		return
	}
	prev := rec.Title
	rec.Title = gen
	if err := s.Log.Store.Save(ctx, rec); err != nil {
		rec.Title = prev
		zerolog.Ctx(ctx).Warn().Err(err).Str("chat_id", rec.ID).Msg("auto-title failed")
	}
}

// ListPage returns one page of a chat's messages and the total count.
func (s *MessageService) ListPage(ctx context.Context, chatID string, page, pageSize int) ([]domain.Message, int, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	page, pageSize = utils.ClampPage(page, pageSize)
	rec, err := s.Log.Store.Get(ctx, chatID)
	if err != nil {
		return nil, 0, storeErr(err)
	}
	total := len(rec.Messages)
	start, end := utils.PageWindow(total, page, pageSize)
	return rec.Messages[start:end], total, nil
}

// EditUserMessage delegates to the message log.
func (s *MessageService) EditUserMessage(ctx context.Context, chatID string, index int, content string) error {
	return s.Log.EditUserMessage(ctx, chatID, index, content)
}

// shouldAutoTitle reports whether the current title is a placeholder.
func (s *MessageService) shouldAutoTitle(current string) bool {
	t := strings.ToLower(strings.TrimSpace(current))
	return t == "" || t == strings.ToLower(strings.TrimSpace(s.DefaultTitle))
}

// generateTitleFromPrompt derives a concise title from the prompt.
func (s *MessageService) generateTitleFromPrompt(prompt string) string {
	toks := titleWordRE.FindAllString(strings.ToLower(strings.TrimSpace(prompt)), -1)
	if len(toks) == 0 {
		return ""
	}
	titleCaser := cases.Title(s.titleLocale())
	out := make([]string, 0, 8)
	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, titleCaser.String(w))
		if len(out) >= 8 {
			break
		}
	}
	return strings.Join(out, " ")
}

// clipTitle truncates a generated title to the configured maximum rune length.
func (s *MessageService) clipTitle(title string) string {
	max := s.TitleMaxLen
	if max <= 0 {
		max = 60
	}
	if utf8.RuneCountInString(title) > max {
		return string([]rune(title)[:max])
	}
	return title
}

func (s *MessageService) titleLocale() language.Tag {
	if s.TitleLocale == language.Und {
		return language.English
	}
	return s.TitleLocale
}

// Extract Unicode letters with optional trailing numbers (e.g., "gpt4").
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// Minimal English stop-words set for compact titles.
var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
	"i": {}, "me": {}, "my": {}, "you": {}, "can": {}, "please": {}, "what": {}, "how": {},
}
