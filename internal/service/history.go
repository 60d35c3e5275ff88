package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ragchat/internal/llm"
	"github.com/capitalize-ai/ragchat/internal/model"
	"github.com/capitalize-ai/ragchat/pkg/logger"
)

// WindowTurns keeps the last n turns. When the window would open on an
// assistant turn, the preceding user turn is pulled in as well; an assistant
// turn left at the front with no user turn before it is dropped.
func WindowTurns(turns []model.Turn, n int) []model.Turn {
	if n <= 0 || len(turns) <= n {
		return dropLeadingAssistant(turns)
	}

	start := len(turns) - n
	if turns[start].Role == model.RoleAssistant && turns[start-1].Role == model.RoleUser {
		start--
	}
	return dropLeadingAssistant(turns[start:])
}

func dropLeadingAssistant(turns []model.Turn) []model.Turn {
	for len(turns) > 0 && turns[0].Role == model.RoleAssistant {
		turns = turns[1:]
	}
	return turns
}

// loadHistory returns the windowed history of chatID as model messages.
// Any failure degrades to an empty history.
func (s *ChatService) loadHistory(ctx context.Context, userID, chatID string, log *logger.Logger) []llm.ChatMessage {
	if chatID == "" {
		return nil
	}

	ctx, span := tracer.Start(ctx, "chat.history")
	defer span.End()

	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		log.Warn("history load failed, continuing without history", zap.Error(err))
		return nil
	}
	conv := rec.Conversation(chatID)
	if conv == nil {
		log.Debug("conversation not found, no history", zap.String("chat_id", chatID))
		return nil
	}

	window := WindowTurns(conv.Messages, s.opts.HistoryWindow)
	out := make([]llm.ChatMessage, 0, len(window))
	for _, turn := range window {
		msg := s.turnToMessage(ctx, userID, turn, log)
		if len(msg.Content) == 0 {
			// an empty answer leaves its question unpaired
			if turn.Role == model.RoleAssistant {
				out = dropTrailingUser(out)
			}
			continue
		}
		if msg.Role == string(model.RoleUser) {
			out = dropTrailingUser(out)
		}
		out = append(out, msg)
	}
	// the new prompt is a user turn, so history must end on an answer
	out = dropTrailingUser(out)
	log.Debug("history loaded", zap.Int("turns", len(conv.Messages)), zap.Int("window", len(out)))
	return out
}

func dropTrailingUser(msgs []llm.ChatMessage) []llm.ChatMessage {
	if n := len(msgs); n > 0 && msgs[n-1].Role == string(model.RoleUser) {
		return msgs[:n-1]
	}
	return msgs
}

// turnToMessage converts a stored turn into content blocks, refetching
// replayable attachments.
func (s *ChatService) turnToMessage(ctx context.Context, userID string, turn model.Turn, log *logger.Logger) llm.ChatMessage {
	msg := llm.ChatMessage{Role: string(turn.Role)}
	att := turn.Attachment

	if turn.Role == model.RoleUser && att != nil && (att.IsImage() || att.IsPDF()) {
		if block, err := s.replayAttachment(ctx, userID, att); err == nil {
			msg.Content = append(msg.Content, block)
		} else {
			if !errors.Is(err, errNotReplayable) {
				log.Warn("history attachment replay failed",
					zap.String("s3_key", att.S3Key), zap.Error(err))
			}
			msg.Content = append(msg.Content, llm.TextBlock(unavailableNote(att)))
		}
	}
	if turn.Content != "" {
		msg.Content = append(msg.Content, llm.TextBlock(turn.Content))
	}
	return msg
}

var (
	errNotReplayable = errors.New("attachment has no storage key")
	errForeignObject = errors.New("attachment key outside the user's uploads")
)

func (s *ChatService) replayAttachment(ctx context.Context, userID string, att *model.Attachment) (llm.ContentBlock, error) {
	if !att.Replayable() || s.objects == nil {
		return llm.ContentBlock{}, errNotReplayable
	}
	if !OwnsObjectKey(userID, att.S3Key) {
		return llm.ContentBlock{}, fmt.Errorf("%w: %s", errForeignObject, att.S3Key)
	}
	data, err := s.objects.Fetch(ctx, att.S3Key, s.opts.MaxAttachmentBytes)
	if err != nil {
		return llm.ContentBlock{}, err
	}
	if att.IsImage() {
		return llm.ImageBlock(att.FileType, data), nil
	}
	return llm.DocumentBlock(att.FileName, data), nil
}

func unavailableNote(att *model.Attachment) string {
	return fmt.Sprintf("[Attached file %q is not available]", att.FileName)
}
