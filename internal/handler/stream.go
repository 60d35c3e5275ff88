// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ragchat/internal/middleware"
	"github.com/capitalize-ai/ragchat/internal/model"
	"github.com/capitalize-ai/ragchat/internal/service"
	"github.com/capitalize-ai/ragchat/pkg/logger"
	"github.com/capitalize-ai/ragchat/pkg/metrics"
)

// MaxChatBodyBytes bounds the chat request body, inline attachments included.
const MaxChatBodyBytes = 8 << 20

var (
	errInvalidJSON  = errors.New("Invalid JSON in request body")
	errBodyTooLarge = errors.New("Request body too large")
)

// ChatHandler serves the streaming chat endpoint.
type ChatHandler struct {
	chat      *service.ChatService
	extractor *middleware.IdentityExtractor
	logger    *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chat *service.ChatService, extractor *middleware.IdentityExtractor, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chat:      chat,
		extractor: extractor,
		logger:    log.Named("stream"),
	}
}

// Health handles GET on the chat endpoint.
func (h *ChatHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ragchat streaming endpoint is working")
}

// Stream handles POST /api/v1/chat/stream. The response is always a 200
// event stream; failures are reported as an error event followed by end.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	stream := newEventStream(ctx, w)
	log := h.logger.With(zap.String("correlation_id", middleware.GetCorrelationID(ctx)))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic in chat pipeline", zap.Any("panic", rec), zap.Stack("stack"))
			metrics.ChatOutcomesTotal.WithLabelValues("error").Inc()
			stream.fail("Internal server error")
		}
	}()

	err := h.run(w, r, stream, log)
	switch {
	case err == nil:
		metrics.ChatOutcomesTotal.WithLabelValues("success").Inc()
		_ = stream.end("Stream ended")
	case service.IsCanceled(err) || ctx.Err() != nil:
		metrics.ChatOutcomesTotal.WithLabelValues("canceled").Inc()
		log.Info("chat stream abandoned by client")
	default:
		metrics.ChatOutcomesTotal.WithLabelValues("error").Inc()
		log.Info("chat request failed", zap.Error(err))
		stream.fail(errorMessage(err))
	}
}

func (h *ChatHandler) run(w http.ResponseWriter, r *http.Request, stream *eventStream, log *logger.Logger) error {
	userID, err := h.extractor.Subject(r.Header.Get("Authorization"))
	if err != nil {
		return err
	}

	var req model.ChatRequest
	body := http.MaxBytesReader(w, r.Body, MaxChatBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return errBodyTooLarge
		}
		return errInvalidJSON
	}
	if req.ChatID != "" {
		if err := middleware.ValidateChatID(req.ChatID); err != nil {
			return fmt.Errorf("%w: %v", service.ErrInvalidRequest, err)
		}
	}

	ctx := middleware.WithUserID(r.Context(), userID)
	log.Debug("chat request accepted",
		zap.String("user_id", userID),
		zap.String("chat_id", req.ChatID),
		zap.Bool("attachment", req.Attachment != nil),
	)
	return h.chat.Stream(ctx, userID, &req, stream)
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, middleware.ErrUnauthenticated):
		return "Unauthorized"
	case errors.Is(err, errInvalidJSON), errors.Is(err, errBodyTooLarge):
		return err.Error()
	}
	return service.ErrorMessage(err)
}
