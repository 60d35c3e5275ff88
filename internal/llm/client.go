// Package llm provides the model provider abstraction, the registry of
// supported model keys, and provider backends.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedContent is returned when a backend cannot express a content block.
var ErrUnsupportedContent = errors.New("content block not supported by provider")

// StreamCallback is called for each text delta, in generation order.
// Returning an error aborts the stream.
type StreamCallback func(token string, index int) error

// BlockType is the kind of a content block.
type BlockType string

const (
	BlockText     BlockType = "text"
	BlockImage    BlockType = "image"
	BlockDocument BlockType = "document"
)

// ContentBlock is one typed unit of a message. Text uses Text; image and
// document blocks carry raw bytes in Data.
type ContentBlock struct {
	Type      BlockType
	Text      string
	MediaType string
	Name      string
	Data      []byte
}

// TextBlock creates a text block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ImageBlock creates an image block from raw bytes.
func ImageBlock(mediaType string, data []byte) ContentBlock {
	return ContentBlock{Type: BlockImage, MediaType: mediaType, Data: data}
}

// DocumentBlock creates a PDF document block from raw bytes.
func DocumentBlock(name string, data []byte) ContentBlock {
	return ContentBlock{Type: BlockDocument, MediaType: "application/pdf", Name: name, Data: data}
}

// UnavailableDocumentText stands in for a document on providers that cannot
// read PDFs.
func UnavailableDocumentText(b ContentBlock) string {
	name := b.Name
	if name == "" {
		name = "document"
	}
	return fmt.Sprintf("[Attached file %q is not available to this model]", name)
}

// ImageFormat returns the short format name for an image media type
// ("image/jpeg" -> "jpeg"). "jpg" is normalized to "jpeg".
func ImageFormat(mediaType string) string {
	format := strings.ToLower(strings.TrimPrefix(mediaType, "image/"))
	if format == "jpg" {
		return "jpeg"
	}
	return format
}

// ChatMessage is one turn of the prompt sent to a model.
type ChatMessage struct {
	Role    string
	Content []ContentBlock
}

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// CompletionResponse represents a finished completion.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for streaming model providers.
type Client interface {
	// CompleteStream streams a completion, invoking callback per text delta.
	CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}
