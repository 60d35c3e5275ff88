package model

import "strings"

// Role represents the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Mode is the retrieval mode a turn was answered in.
type Mode string

const (
	ModeKnowledgeBase Mode = "knowledge_base"
	ModeGeneral       Mode = "general"
)

// Turn is one message within a conversation.
type Turn struct {
	ID         string      `json:"id" dynamodbav:"id"`
	Role       Role        `json:"role" dynamodbav:"role"`
	Content    string      `json:"content" dynamodbav:"content"`
	Mode       Mode        `json:"mode,omitempty" dynamodbav:"mode,omitempty"`
	Model      string      `json:"model,omitempty" dynamodbav:"model,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty" dynamodbav:"attachment,omitempty"`
}

// Attachment describes a file attached to a user turn. Only turns with an
// S3 key can have their file replayed into later prompts.
type Attachment struct {
	FileName   string `json:"fileName" dynamodbav:"fileName"`
	FileType   string `json:"fileType,omitempty" dynamodbav:"fileType,omitempty"`
	Size       int64  `json:"size" dynamodbav:"size"`
	S3Key      string `json:"s3Key,omitempty" dynamodbav:"s3Key,omitempty"`
	IsS3Upload bool   `json:"isS3Upload" dynamodbav:"isS3Upload"`
	Note       string `json:"note,omitempty" dynamodbav:"note,omitempty"`
}

// NonReplayableNote marks inline attachments that history cannot reproduce.
const NonReplayableNote = "file is not available in history (no storage key)"

// Replayable reports whether the attachment's bytes can be fetched again.
func (a *Attachment) Replayable() bool {
	return a != nil && a.S3Key != ""
}

// IsImage reports whether the attachment is an image.
func (a *Attachment) IsImage() bool {
	return a != nil && strings.HasPrefix(a.FileType, "image/")
}

// IsPDF reports whether the attachment is a PDF document.
func (a *Attachment) IsPDF() bool {
	return a != nil && a.FileType == "application/pdf"
}
