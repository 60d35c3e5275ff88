package service

import (
	"unicode/utf8"

	"github.com/capitalize-ai/ragchat/internal/llm"
)

// DefaultAttachmentPrompt replaces an empty prompt sent with an attachment.
const DefaultAttachmentPrompt = "Please describe the attached file."

const titleRunes = 30

// AssemblePrompt appends the new user turn to the history. Attachment blocks
// come before the text block.
func AssemblePrompt(history []llm.ChatMessage, attachment *llm.ContentBlock, text string) []llm.ChatMessage {
	user := llm.ChatMessage{Role: "user"}
	if attachment != nil {
		user.Content = append(user.Content, *attachment)
	}
	if text != "" {
		user.Content = append(user.Content, llm.TextBlock(text))
	}

	out := make([]llm.ChatMessage, 0, len(history)+1)
	out = append(out, history...)
	return append(out, user)
}

// ChatTitle derives a conversation title from the user's text, falling back
// to the attachment's file name.
func ChatTitle(text, fileName string) string {
	if text == "" {
		if fileName != "" {
			return fileName
		}
		return DefaultAttachmentPrompt
	}
	if utf8.RuneCountInString(text) <= titleRunes {
		return text
	}
	return string([]rune(text)[:titleRunes]) + "…"
}
