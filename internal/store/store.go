// Package store persists each subject's conversation record as one document.
package store

import (
	"context"
	"errors"

	"github.com/capitalize-ai/ragchat/internal/model"
)

// ErrVersionConflict is returned by Put when the stored record changed since it was read.
var ErrVersionConflict = errors.New("conversation record was modified concurrently")

// ConversationStore reads and writes whole per-subject records.
type ConversationStore interface {
	// Get returns the subject's record. A missing record is returned empty
	// with Version 0, not as an error.
	Get(ctx context.Context, userID string) (*model.ChatRecord, error)
	// Put writes rec if the stored version still equals rec.Version, then
	// advances rec.Version.
	Put(ctx context.Context, rec *model.ChatRecord) error
	Ping(ctx context.Context) error
}

func emptyRecord(userID string) *model.ChatRecord {
	return &model.ChatRecord{UserID: userID, Chats: []model.Conversation{}}
}
