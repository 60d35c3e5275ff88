package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ragchat/internal/model"
	"github.com/capitalize-ai/ragchat/internal/store"
	"github.com/capitalize-ai/ragchat/pkg/logger"
)

// ConversationService answers chat list, history and delete requests.
type ConversationService struct {
	store      store.ConversationStore
	maxRetries int
	logger     *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(st store.ConversationStore, maxRetries int, log *logger.Logger) *ConversationService {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ConversationService{
		store:      st,
		maxRetries: maxRetries,
		logger:     log.Named("conversations"),
	}
}

// List returns the subject's conversations, newest first.
func (s *ConversationService) List(ctx context.Context, userID string) ([]model.ChatListItem, error) {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chats: %w", err)
	}
	return rec.Summaries(), nil
}

// Get returns one conversation with all its turns.
func (s *ConversationService) Get(ctx context.Context, userID, chatID string) (*model.Conversation, error) {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chats: %w", err)
	}
	conv := rec.Conversation(chatID)
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if conv.Messages == nil {
		conv.Messages = []model.Turn{}
	}
	return conv, nil
}

// Delete removes a conversation. Attachments stay in object storage.
func (s *ConversationService) Delete(ctx context.Context, userID, chatID string) error {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		rec, err := s.store.Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load chats: %w", err)
		}
		if !rec.Remove(chatID) {
			return ErrConversationNotFound
		}

		err = s.store.Put(ctx, rec)
		if err == nil {
			s.logger.Info("conversation deleted", zap.String("user_id", userID), zap.String("chat_id", chatID))
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return fmt.Errorf("failed to delete chat: %w", err)
		}
	}
	return fmt.Errorf("failed to delete chat: %w", store.ErrVersionConflict)
}
