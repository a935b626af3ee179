// Package services – MessageLog
//
// MessageLog layers the ordered turn log of a chat on top of the record
// store. Every read-modify-write runs under a per-chat lock, so concurrent
// appends to the same chat never lose updates. Timestamps are assigned on
// append and clamped so they never decrease within a record.
package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/chat-assistant-backend/internal/domain"
)

// ChatStore is the persistence contract for chat records.
// repo.FileChatStore implements it.
type ChatStore interface {
	Create(ctx context.Context, d domain.ChatDefaults) (*domain.ChatRecord, error)
	Get(ctx context.Context, id string) (*domain.ChatRecord, error)
	Save(ctx context.Context, rec *domain.ChatRecord) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]domain.ChatSummary, error)
	UpdateSettings(ctx context.Context, id string, patch domain.SettingsPatch) (*domain.ChatRecord, error)
	ClearMessages(ctx context.Context, id string) error
}

// MessageLog serializes mutations of a chat's message log.
type MessageLog struct {
	Store ChatStore
	Locks *KeyedLocker

	// Now is the clock used for timestamps; nil means time.Now.
	Now func() time.Time
}

// NewMessageLog returns a MessageLog over store with its own lock table.
func NewMessageLog(store ChatStore) *MessageLog {
	return &MessageLog{Store: store, Locks: &KeyedLocker{}}
}

// LogTx is a locked view of one chat record, valid only inside the callback
// passed to MessageLog.Update.
type LogTx struct {
	log *MessageLog
	rec *domain.ChatRecord
}

// Record returns the current state of the locked record. Callers must not
// mutate it directly.
func (tx *LogTx) Record() *domain.ChatRecord { return tx.rec }

// Append stamps msgs, appends them in order and persists the record. On a
// failed save the in-memory record is rolled back.
func (tx *LogTx) Append(ctx context.Context, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	prev := len(tx.rec.Messages)
	for _, m := range msgs {
		m.Timestamp = tx.log.stamp(tx.rec)
		tx.rec.Messages = append(tx.rec.Messages, m)
	}
	if err := tx.log.Store.Save(ctx, tx.rec); err != nil {
		tx.rec.Messages = tx.rec.Messages[:prev]
		return storeErr(err)
	}
	return nil
}

// stamp returns the timestamp for the next message of rec: now, or the last
// message's timestamp if the clock stepped backwards.
func (l *MessageLog) stamp(rec *domain.ChatRecord) domain.Timestamp {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	ts := domain.NewTimestamp(now())
	if last := rec.LastMessage(); last != nil && ts.Before(last.Timestamp.Time) {
		return last.Timestamp
	}
	return ts
}

// Update locks chat id, loads its record and runs fn. The lock is held until
// fn returns, so several appends made by fn stay adjacent in the log.
func (l *MessageLog) Update(ctx context.Context, id string, fn func(tx *LogTx) error) error {
	unlock, err := l.Locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := l.Store.Get(ctx, id)
	if err != nil {
		return storeErr(err)
	}
	return fn(&LogTx{log: l, rec: rec})
}

// Append adds msgs to the end of chat id's log and returns the updated
// record.
func (l *MessageLog) Append(ctx context.Context, id string, msgs ...domain.Message) (*domain.ChatRecord, error) {
	var out *domain.ChatRecord
	err := l.Update(ctx, id, func(tx *LogTx) error {
		if err := tx.Append(ctx, msgs...); err != nil {
			return err
		}
		out = tx.Record()
		return nil
	})
	return out, err
}

// EditUserMessage replaces the content of the user message at index and
// discards every later message. It fails with ErrInvalidEdit, leaving the
// record untouched, unless 0 <= index < len(messages) and the target is a
// user turn.
func (l *MessageLog) EditUserMessage(ctx context.Context, id string, index int, content string) error {
	tr := otel.Tracer("services/MessageLog")
	ctx, span := tr.Start(ctx, "EditUserMessage",
		trace.WithAttributes(
			attribute.String("chat.id", id),
			attribute.Int("message.index", index),
		),
	)
	defer span.End()

	return l.Update(ctx, id, func(tx *LogTx) error {
		rec := tx.Record()
		if index < 0 || index >= len(rec.Messages) || rec.Messages[index].Role != domain.RoleUser {
			return ErrInvalidEdit
		}
		edited := make([]domain.Message, index+1)
		copy(edited, rec.Messages[:index+1])
		edited[index].Content = content

		next := *rec
		next.Messages = edited
		if err := l.Store.Save(ctx, &next); err != nil {
			return storeErr(err)
		}
		*rec = next
		return nil
	})
}
