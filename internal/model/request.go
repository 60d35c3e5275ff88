package model

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ChatRequest is the body of a streaming chat request.
type ChatRequest struct {
	UserPrompt         string             `json:"user_prompt" validate:"max=100000"`
	ChatID             string             `json:"chat_id,omitempty" validate:"max=128"`
	Mode               Mode               `json:"mode,omitempty" validate:"omitempty,oneof=knowledge_base general"`
	Model              string             `json:"model,omitempty" validate:"max=64"`
	Attachment         *AttachmentPayload `json:"attachment,omitempty"`
	UserMessageID      string             `json:"user_message_id" validate:"required,max=128"`
	AssistantMessageID string             `json:"assistant_message_id" validate:"required,max=128,nefield=UserMessageID"`
}

// AttachmentPayload is the attachment as sent by the client: either an S3 key
// or inline base64 data in Source.Data.
type AttachmentPayload struct {
	S3Key    string           `json:"s3Key,omitempty" validate:"max=1024"`
	FileName string           `json:"fileName,omitempty" validate:"max=512"`
	Size     int64            `json:"size,omitempty" validate:"gte=0"`
	Source   AttachmentSource `json:"source"`
}

// AttachmentSource carries the type tag and optional inline data.
type AttachmentSource struct {
	Type      string `json:"type" validate:"omitempty,oneof=image document"`
	MediaType string `json:"media_type" validate:"max=128"`
	Data      string `json:"data,omitempty"`
}

// Validate checks field constraints.
func (r *ChatRequest) Validate() error {
	return validate.Struct(r)
}

// UploadRequest asks for a presigned upload URL.
type UploadRequest struct {
	FileName string `json:"fileName" validate:"required,max=512"`
	FileType string `json:"fileType" validate:"required,oneof=image/jpeg image/jpg image/png image/gif image/webp application/pdf"`
	FileSize int64  `json:"fileSize" validate:"gte=0"`
}

// Validate checks field constraints.
func (r *UploadRequest) Validate() error {
	return validate.Struct(r)
}

// UploadResponse describes how the client should upload the file.
type UploadResponse struct {
	UploadURL string            `json:"uploadUrl"`
	S3Key     string            `json:"s3Key"`
	ExpiresIn int64             `json:"expiresIn"`
	ExpiresAt int64             `json:"expiresAt"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
}

// DownloadRequest asks for a presigned GET URL for a stored attachment.
type DownloadRequest struct {
	S3Key string `json:"s3Key" validate:"required,max=1024"`
}

// Validate checks field constraints.
func (r *DownloadRequest) Validate() error {
	return validate.Struct(r)
}

// DownloadResponse carries a short-lived URL for reading an attachment.
type DownloadResponse struct {
	Method       string `json:"method"`
	PresignedURL string `json:"presignedUrl"`
	ExpiresIn    int64  `json:"expiresIn"`
	ExpiresAt    int64  `json:"expiresAt"`
	S3Key        string `json:"s3Key"`
}
