// Package service implements the chat pipeline and conversation queries.
package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/capitalize-ai/ragchat/internal/llm"
)

var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrEmptyRequest          = errors.New("user_prompt or attachment is required")
	ErrAttachmentUnavailable = errors.New("attachment unavailable")
	ErrAttachmentTooLarge    = errors.New("attachment too large")
	ErrProviderStream        = errors.New("model streaming failed")
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrClientGone            = errors.New("client disconnected")
	ErrObjectForbidden       = errors.New("file does not belong to this user")
	ErrObjectNotFound        = errors.New("file not found")
)

// ErrUnsupportedModel is returned for unknown model keys.
var ErrUnsupportedModel = llm.ErrUnsupportedModel

// ErrorMessage returns the text sent to the client for a pipeline error.
// Provider and unknown errors are not echoed verbatim.
func ErrorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrProviderStream):
		return "Model streaming failed"
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrEmptyRequest),
		errors.Is(err, ErrAttachmentUnavailable),
		errors.Is(err, ErrAttachmentTooLarge),
		errors.Is(err, ErrUnsupportedModel),
		errors.Is(err, ErrConversationNotFound):
		return err.Error()
	default:
		return "Internal server error"
	}
}

// describeValidation turns validator errors into one readable line.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(parts, ", "))
}
