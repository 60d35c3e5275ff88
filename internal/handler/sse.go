package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/capitalize-ai/ragchat/internal/model"
	"github.com/capitalize-ai/ragchat/internal/service"
	"github.com/capitalize-ai/ragchat/pkg/metrics"
)

var errStreamEnded = errors.New("event stream already ended")

// eventStream frames chat events as server-sent events. After end, or once
// the request context is done, every write is refused.
type eventStream struct {
	mu      sync.Mutex
	ctx     context.Context
	w       io.Writer
	flusher http.Flusher
	ended   bool
}

func newEventStream(ctx context.Context, w http.ResponseWriter) *eventStream {
	flusher, _ := w.(http.Flusher)
	return &eventStream{ctx: ctx, w: w, flusher: flusher}
}

// formatEvent renders one frame. Message deltas use the default event type
// and wrap the text in a typed JSON object.
func formatEvent(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if event == model.EventMessage {
		return []byte(fmt.Sprintf("data: %s\n\n", data)), nil
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)), nil
}

func (s *eventStream) send(event string, payload interface{}, last bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return errStreamEnded
	}
	if err := s.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", service.ErrClientGone, err)
	}

	frame, err := formatEvent(event, payload)
	if err != nil {
		return err
	}
	if last {
		s.ended = true
	}
	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("%w: %v", service.ErrClientGone, err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	metrics.ChatEventsTotal.WithLabelValues(event).Inc()
	return nil
}

func (s *eventStream) Message(delta string) error {
	return s.send(model.EventMessage, model.MessageFrame{Type: model.EventMessage, Data: delta}, false)
}

func (s *eventStream) Info(msg string) error {
	return s.send(model.EventInfo, msg, false)
}

func (s *eventStream) NewChat(conv *model.Conversation) error {
	return s.send(model.EventNewChat, conv, false)
}

func (s *eventStream) Warning(msg string) error {
	return s.send(model.EventWarning, msg, false)
}

// fail sends error followed by end.
func (s *eventStream) fail(msg string) {
	if s.send(model.EventError, msg, false) == nil {
		_ = s.end("Stream ended due to error")
	}
}

func (s *eventStream) end(msg string) error {
	return s.send(model.EventEnd, msg, true)
}
