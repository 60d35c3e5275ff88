package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ragchat/internal/model"
	"github.com/capitalize-ai/ragchat/internal/store"
	"github.com/capitalize-ai/ragchat/pkg/logger"
	"github.com/capitalize-ai/ragchat/pkg/metrics"
)

const persistWarning = "Failed to save chat history, but you can continue the conversation."

// appendResult describes what applyTurns did to a record.
type appendResult struct {
	changed bool
	created *model.Conversation
	chatID  string
	// missing is set when the caller named a conversation that is not stored.
	missing bool
}

// applyTurns adds the turn pair to rec. Nothing changes when either turn id
// is already stored, or when chatID names a conversation rec does not hold.
// A new conversation is only created when chatID is empty; it takes the user
// turn id and is placed first. at stamps the conversation's update time.
func applyTurns(rec *model.ChatRecord, chatID string, user, assistant model.Turn, title string, at int64) appendResult {
	if chatID != "" {
		conv := rec.Conversation(chatID)
		if conv == nil {
			return appendResult{chatID: chatID, missing: true}
		}
		if conv.HasTurn(user.ID) || conv.HasTurn(assistant.ID) {
			return appendResult{chatID: chatID}
		}
		conv.Messages = append(conv.Messages, user, assistant)
		conv.UpdatedAt = at
		return appendResult{changed: true, chatID: chatID}
	}

	// a retried first request already created the chat under the user turn id
	if existing := rec.Conversation(user.ID); existing != nil {
		if existing.HasTurn(user.ID) || existing.HasTurn(assistant.ID) {
			return appendResult{chatID: user.ID}
		}
		existing.Messages = append(existing.Messages, user, assistant)
		existing.UpdatedAt = at
		return appendResult{changed: true, chatID: user.ID}
	}

	conv := model.Conversation{
		ID:        user.ID,
		Title:     title,
		Messages:  []model.Turn{user, assistant},
		CreatedAt: at,
		UpdatedAt: at,
	}
	rec.Chats = append([]model.Conversation{conv}, rec.Chats...)
	return appendResult{changed: true, created: &conv, chatID: user.ID}
}

// persist stores the turn pair on a context detached from the client, then
// reports newChat or warning through sink.
func (s *ChatService) persist(ctx context.Context, plan *turnPlan, reply string, sink EventSink, log *logger.Logger) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.PersistTimeout)
	defer cancel()

	pctx, span := tracer.Start(pctx, "chat.persist")
	defer span.End()

	user := model.Turn{
		ID:      plan.req.UserMessageID,
		Role:    model.RoleUser,
		Content: plan.text,
	}
	if plan.attachment != nil {
		user.Attachment = plan.attachment.record()
	}
	assistant := model.Turn{
		ID:      plan.req.AssistantMessageID,
		Role:    model.RoleAssistant,
		Content: reply,
		Mode:    plan.mode,
		Model:   plan.route.Key,
	}
	var fileName string
	if user.Attachment != nil {
		fileName = user.Attachment.FileName
	}
	title := ChatTitle(strings.TrimSpace(plan.req.UserPrompt), fileName)

	res, err := s.saveTurns(pctx, plan.userID, plan.req.ChatID, user, assistant, title)
	if err != nil {
		span.RecordError(err)
		metrics.PersistenceTotal.WithLabelValues("error").Inc()
		log.Error("failed to persist turn pair", zap.Error(err))
		_ = sink.Warning(persistWarning)
		return
	}
	if res.missing {
		metrics.PersistenceTotal.WithLabelValues("skipped").Inc()
		log.Warn("conversation not found, turn pair not stored", zap.String("chat_id", res.chatID))
		return
	}
	if !res.changed {
		metrics.PersistenceTotal.WithLabelValues("skipped").Inc()
		log.Info("turn pair already stored, skipping write",
			zap.String("user_turn_id", user.ID), zap.String("assistant_turn_id", assistant.ID))
		return
	}
	metrics.PersistenceTotal.WithLabelValues("written").Inc()

	if res.created != nil {
		_ = sink.NewChat(res.created)
	}
	s.publishTurn(pctx, plan, res, len(reply), log)
}

// saveTurns does the read-modify-write, retrying on version conflicts.
func (s *ChatService) saveTurns(ctx context.Context, userID, chatID string, user, assistant model.Turn, title string) (appendResult, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.PersistMaxRetries; attempt++ {
		rec, err := s.store.Get(ctx, userID)
		if err != nil {
			return appendResult{}, fmt.Errorf("load chat record: %w", err)
		}

		res := applyTurns(rec, chatID, user, assistant, title, s.now().UnixMilli())
		if !res.changed {
			return res, nil
		}

		err = s.store.Put(ctx, rec)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return appendResult{}, fmt.Errorf("store chat record: %w", err)
		}
		metrics.PersistenceTotal.WithLabelValues("conflict").Inc()
		lastErr = err
	}
	return appendResult{}, fmt.Errorf("store chat record after %d attempts: %w", s.opts.PersistMaxRetries, lastErr)
}

func (s *ChatService) publishTurn(ctx context.Context, plan *turnPlan, res appendResult, chars int, log *logger.Logger) {
	if s.publisher == nil {
		return
	}
	event := &model.TurnCompletedEvent{
		UserID:          plan.userID,
		ChatID:          res.chatID,
		UserTurnID:      plan.req.UserMessageID,
		AssistantTurnID: plan.req.AssistantMessageID,
		Mode:            plan.mode,
		Model:           plan.route.Key,
		NewChat:         res.created != nil,
		ResponseChars:   chars,
		CreatedAt:       s.now().UnixMilli(),
	}
	if err := s.publisher.PublishTurn(ctx, event); err != nil {
		metrics.TurnEventsPublished.WithLabelValues("error").Inc()
		log.Warn("failed to publish turn event", zap.Error(err))
		return
	}
	metrics.TurnEventsPublished.WithLabelValues("success").Inc()
}
