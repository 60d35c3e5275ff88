package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ragchat/internal/llm"
	"github.com/capitalize-ai/ragchat/internal/model"
	"github.com/capitalize-ai/ragchat/internal/storage"
	"github.com/capitalize-ai/ragchat/pkg/metrics"
)

// attachmentRef is either a StoredAttachment or an InlineAttachment.
type attachmentRef interface {
	record() *model.Attachment
}

// StoredAttachment references an object uploaded to storage.
type StoredAttachment struct {
	Key       string
	MediaType string
	FileName  string
	Size      int64
}

// InlineAttachment carries base64 data in the request body.
type InlineAttachment struct {
	Kind      string // "image" or "document"
	MediaType string
	Data      string
	FileName  string
	Size      int64
}

func (a StoredAttachment) record() *model.Attachment {
	return &model.Attachment{
		FileName:   a.FileName,
		FileType:   a.MediaType,
		Size:       a.Size,
		S3Key:      a.Key,
		IsS3Upload: true,
	}
}

func (a InlineAttachment) record() *model.Attachment {
	return &model.Attachment{
		FileName:   a.FileName,
		FileType:   a.MediaType,
		Size:       a.Size,
		IsS3Upload: false,
		Note:       model.NonReplayableNote,
	}
}

// parseAttachment picks the attachment variant. It makes no external calls.
// Stored attachments must live under the caller's own upload prefix.
func parseAttachment(userID string, p *model.AttachmentPayload) (attachmentRef, error) {
	if p == nil {
		return nil, nil
	}
	name := p.FileName
	if name == "" {
		name = "unknown_file"
	}
	mediaType := strings.ToLower(strings.TrimSpace(p.Source.MediaType))

	switch {
	case p.S3Key != "":
		if !OwnsObjectKey(userID, p.S3Key) {
			return nil, fmt.Errorf("%w: %s does not belong to this user", ErrAttachmentUnavailable, name)
		}
		if !isImageType(mediaType) && mediaType != "application/pdf" {
			return nil, fmt.Errorf("%w: unsupported file type %q", ErrAttachmentUnavailable, p.Source.MediaType)
		}
		return StoredAttachment{Key: p.S3Key, MediaType: mediaType, FileName: name, Size: p.Size}, nil
	case p.Source.Data != "":
		kind := p.Source.Type
		if kind == "" {
			kind = "image"
			if mediaType == "application/pdf" {
				kind = "document"
			}
		}
		if kind == "document" && mediaType == "" {
			mediaType = "application/pdf"
		}
		if kind == "image" && !isImageType(mediaType) {
			return nil, fmt.Errorf("%w: unsupported image type %q", ErrAttachmentUnavailable, p.Source.MediaType)
		}
		return InlineAttachment{Kind: kind, MediaType: mediaType, Data: p.Source.Data, FileName: name, Size: p.Size}, nil
	default:
		return nil, fmt.Errorf("%w: attachment needs an s3Key or inline data", ErrAttachmentUnavailable)
	}
}

func isImageType(mediaType string) bool {
	return strings.HasPrefix(mediaType, "image/")
}

// resolveAttachment loads the attachment bytes and wraps them as a content block.
func (s *ChatService) resolveAttachment(ctx context.Context, ref attachmentRef) (llm.ContentBlock, error) {
	ctx, span := tracer.Start(ctx, "chat.attachment")
	defer span.End()

	switch a := ref.(type) {
	case StoredAttachment:
		if s.objects == nil {
			return llm.ContentBlock{}, fmt.Errorf("%w: object storage is not configured", ErrAttachmentUnavailable)
		}
		data, err := s.objects.Fetch(ctx, a.Key, s.opts.MaxAttachmentBytes)
		if err != nil {
			var tooLarge *storage.TooLargeError
			if errors.As(err, &tooLarge) {
				return llm.ContentBlock{}, s.tooLarge(tooLarge.Size)
			}
			s.logger.Warn("attachment fetch failed", zap.String("s3_key", a.Key), zap.Error(err))
			return llm.ContentBlock{}, fmt.Errorf("%w: could not load %s", ErrAttachmentUnavailable, a.FileName)
		}
		metrics.AttachmentBytes.WithLabelValues("stored").Observe(float64(len(data)))
		if isImageType(a.MediaType) {
			return llm.ImageBlock(a.MediaType, data), nil
		}
		return llm.DocumentBlock(a.FileName, data), nil

	case InlineAttachment:
		data, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			return llm.ContentBlock{}, fmt.Errorf("%w: attachment data is not valid base64", ErrAttachmentUnavailable)
		}
		if s.opts.MaxAttachmentBytes > 0 && int64(len(data)) > s.opts.MaxAttachmentBytes {
			return llm.ContentBlock{}, s.tooLarge(int64(len(data)))
		}
		metrics.AttachmentBytes.WithLabelValues("inline").Observe(float64(len(data)))
		if a.Kind == "document" {
			return llm.DocumentBlock(a.FileName, data), nil
		}
		return llm.ImageBlock(a.MediaType, data), nil
	}
	return llm.ContentBlock{}, fmt.Errorf("%w: unknown attachment kind", ErrAttachmentUnavailable)
}

func (s *ChatService) tooLarge(size int64) error {
	const mb = 1024 * 1024
	return fmt.Errorf("%w: file is %.2f MB (%d bytes), limit is %.2f MB",
		ErrAttachmentTooLarge, float64(size)/mb, size, float64(s.opts.MaxAttachmentBytes)/mb)
}
