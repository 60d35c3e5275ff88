package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/ragchat/internal/llm"
	"github.com/capitalize-ai/ragchat/internal/model"
	"github.com/capitalize-ai/ragchat/internal/retrieval"
	"github.com/capitalize-ai/ragchat/internal/storage"
	"github.com/capitalize-ai/ragchat/internal/store"
	"github.com/capitalize-ai/ragchat/pkg/logger"
	"github.com/capitalize-ai/ragchat/pkg/metrics"
)

var tracer = otel.Tracer("github.com/capitalize-ai/ragchat/internal/service")

const retrievalUnavailableInfo = "Knowledge base unavailable, switching to general mode."

// EventSink receives the events of one chat stream. Implementations drop
// writes once the client is gone and report that through the returned error.
type EventSink interface {
	Message(delta string) error
	Info(msg string) error
	NewChat(conv *model.Conversation) error
	Warning(msg string) error
}

// TurnPublisher announces stored turn pairs.
type TurnPublisher interface {
	PublishTurn(ctx context.Context, event *model.TurnCompletedEvent) error
}

// ChatDeps are the collaborators of ChatService. KnowledgeBase, Objects and
// Publisher may be nil.
type ChatDeps struct {
	Registry      *llm.Registry
	KnowledgeBase retrieval.KnowledgeBase
	Store         store.ConversationStore
	Objects       storage.ObjectStore
	Publisher     TurnPublisher
}

// ChatOptions tunes the pipeline.
type ChatOptions struct {
	KnowledgeBaseID    string
	HistoryWindow      int
	MaxAttachmentBytes int64
	MaxTokens          int
	Temperature        float64
	PersistTimeout     time.Duration
	PersistMaxRetries  int
}

// ChatService runs the streaming chat pipeline.
type ChatService struct {
	registry  *llm.Registry
	kb        retrieval.KnowledgeBase
	store     store.ConversationStore
	objects   storage.ObjectStore
	publisher TurnPublisher
	opts      ChatOptions
	logger    *logger.Logger
	now       func() time.Time
}

// NewChatService creates a chat service.
func NewChatService(deps ChatDeps, opts ChatOptions, log *logger.Logger) *ChatService {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 10
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 10 * time.Second
	}
	if opts.PersistMaxRetries <= 0 {
		opts.PersistMaxRetries = 3
	}
	return &ChatService{
		registry:  deps.Registry,
		kb:        deps.KnowledgeBase,
		store:     deps.Store,
		objects:   deps.Objects,
		publisher: deps.Publisher,
		opts:      opts,
		logger:    log.Named("chat"),
		now:       time.Now,
	}
}

// turnPlan is everything known about a request after validation.
type turnPlan struct {
	userID     string
	req        *model.ChatRequest
	route      llm.Route
	mode       model.Mode
	text       string // prompt sent to the model and persisted
	attachment attachmentRef
}

// Stream runs one chat request, pushing deltas and side events to sink. A
// nil return means the stream completed; the caller then sends the terminal
// event. Errors are classified with the package's sentinel errors.
func (s *ChatService) Stream(ctx context.Context, userID string, req *model.ChatRequest, sink EventSink) (err error) {
	ctx, span := tracer.Start(ctx, "chat.stream")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	plan, err := s.plan(userID, req)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String("chat.model", plan.route.Key),
		attribute.String("chat.mode", string(plan.mode)),
		attribute.Bool("chat.new", req.ChatID == ""),
	)

	log := s.logger.With(
		zap.String("user_id", userID),
		zap.String("chat_id", req.ChatID),
		zap.String("model", plan.route.Key),
		zap.String("mode", string(plan.mode)),
	)

	var history []llm.ChatMessage
	var attBlock *llm.ContentBlock

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		history = s.loadHistory(gctx, userID, req.ChatID, log)
		return nil
	})
	if plan.attachment != nil {
		g.Go(func() error {
			block, err := s.resolveAttachment(gctx, plan.attachment)
			if err != nil {
				return err
			}
			attBlock = &block
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Info("attachment rejected", zap.Error(err))
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var system string
	if plan.mode == model.ModeKnowledgeBase {
		var ok bool
		system, ok = s.ground(ctx, plan.text, log)
		if !ok {
			plan.mode = model.ModeGeneral
			_ = sink.Info(retrievalUnavailableInfo)
		}
	}

	messages := AssemblePrompt(history, attBlock, plan.text)

	reply, err := s.invoke(ctx, plan.route, system, messages, sink, log)
	if err != nil {
		return err
	}

	// A client that left during the stream gets no stored turn.
	if err := ctx.Err(); err != nil {
		return err
	}

	s.persist(ctx, plan, reply, sink, log)
	return nil
}

// plan validates the request. It runs before any collaborator is called.
func (s *ChatService) plan(userID string, req *model.ChatRequest) (*turnPlan, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: missing body", ErrInvalidRequest)
	}
	if req.UserMessageID == "" || req.AssistantMessageID == "" {
		return nil, fmt.Errorf("%w: user_message_id and assistant_message_id are required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.UserPrompt) == "" && req.Attachment == nil {
		return nil, ErrEmptyRequest
	}
	if err := req.Validate(); err != nil {
		return nil, describeValidation(err)
	}

	route, err := s.registry.Resolve(req.Model)
	if err != nil {
		return nil, err
	}

	att, err := parseAttachment(userID, req.Attachment)
	if err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = model.ModeKnowledgeBase
	}
	// an attached file is answered directly, never from the knowledge base
	if att != nil {
		mode = model.ModeGeneral
	}

	text := req.UserPrompt
	if strings.TrimSpace(text) == "" {
		text = DefaultAttachmentPrompt
	}

	return &turnPlan{
		userID:     userID,
		req:        req,
		route:      route,
		mode:       mode,
		text:       text,
		attachment: att,
	}, nil
}

// ground runs retrieval and returns the grounding instruction. ok is false
// when the knowledge base failed and the caller should fall back to general mode.
func (s *ChatService) ground(ctx context.Context, query string, log *logger.Logger) (instruction string, ok bool) {
	if s.kb == nil {
		log.Warn("knowledge base mode requested but no knowledge base is configured")
		metrics.RecordRetrieval("error", 0)
		return "", false
	}

	ctx, span := tracer.Start(ctx, "chat.retrieval")
	defer span.End()

	passages, err := s.kb.Retrieve(ctx, s.opts.KnowledgeBaseID, query)
	if err != nil {
		span.RecordError(err)
		log.Warn("knowledge base retrieval failed, falling back to general mode",
			zap.String("backend", s.kb.Name()), zap.Error(err))
		metrics.RecordRetrieval("error", 0)
		return "", false
	}

	span.SetAttributes(attribute.Int("retrieval.passages", len(passages)))
	if len(passages) == 0 {
		metrics.RecordRetrieval("empty", 0)
		return "", true
	}
	metrics.RecordRetrieval("hit", len(passages))
	log.Debug("knowledge base passages retrieved", zap.Int("passages", len(passages)))
	return retrieval.BuildGroundingInstruction(passages), true
}

// invoke streams the model reply, forwarding each delta to sink as it arrives.
func (s *ChatService) invoke(ctx context.Context, route llm.Route, system string, messages []llm.ChatMessage, sink EventSink, log *logger.Logger) (string, error) {
	ctx, span := tracer.Start(ctx, "chat.invoke")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model_id", route.ModelID), attribute.String("llm.backend", route.Backend.Name()))

	var sinkErr error
	start := s.now()
	resp, err := route.Backend.CompleteStream(ctx, &llm.CompletionRequest{
		Model:       route.ModelID,
		System:      system,
		Messages:    messages,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	}, func(token string, _ int) error {
		if err := sink.Message(token); err != nil {
			sinkErr = err
			return err
		}
		return nil
	})
	elapsed := s.now().Sub(start).Seconds()

	if err != nil {
		span.RecordError(err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.RecordLLMStream(route.Key, "canceled", elapsed, 0, 0)
			log.Info("model stream canceled by client")
			return "", ctxErr
		}
		if sinkErr != nil {
			metrics.RecordLLMStream(route.Key, "canceled", elapsed, 0, 0)
			log.Info("client stopped reading, model stream aborted", zap.Error(sinkErr))
			return "", sinkErr
		}
		metrics.RecordLLMStream(route.Key, "error", elapsed, 0, 0)
		log.Error("model stream failed", zap.String("backend", route.Backend.Name()), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrProviderStream, err)
	}

	metrics.RecordLLMStream(route.Key, "success", elapsed, resp.TokensIn, resp.TokensOut)
	log.Info("model stream completed",
		zap.String("stop_reason", resp.StopReason),
		zap.Int("tokens_in", resp.TokensIn),
		zap.Int("tokens_out", resp.TokensOut),
		zap.Int("chars", len(resp.Content)),
	)
	return resp.Content, nil
}

// IsCanceled reports whether err comes from the client going away.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrClientGone) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
