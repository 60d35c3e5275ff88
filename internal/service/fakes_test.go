package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/capitalize-ai/ragchat/internal/llm"
	"github.com/capitalize-ai/ragchat/internal/model"
	"github.com/capitalize-ai/ragchat/internal/retrieval"
	"github.com/capitalize-ai/ragchat/internal/storage"
	"github.com/capitalize-ai/ragchat/internal/store"
	"github.com/capitalize-ai/ragchat/pkg/logger"
)

type fakeLLM struct {
	mu      sync.Mutex
	tokens  []string
	err     error
	calls   int
	lastReq *llm.CompletionRequest
}

func (f *fakeLLM) Name() string { return "bedrock" }

func (f *fakeLLM) CompleteStream(ctx context.Context, req *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	f.mu.Unlock()

	var sb strings.Builder
	for i, tok := range f.tokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sb.WriteString(tok)
		if err := cb(tok, i); err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: sb.String(), Model: req.Model, StopReason: "end_turn"}, nil
}

func (f *fakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeKB struct {
	passages []retrieval.Passage
	err      error
	calls    int
	lastID   string
}

func (f *fakeKB) Name() string { return "fake" }

func (f *fakeKB) Retrieve(ctx context.Context, knowledgeBaseID, query string) ([]retrieval.Passage, error) {
	f.calls++
	f.lastID = knowledgeBaseID
	return f.passages, f.err
}

type fakeObjects struct {
	mu        sync.Mutex
	objects   map[string][]byte
	fetches   int
	downloads int
}

func (f *fakeObjects) Fetch(ctx context.Context, key string, maxBytes int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	data, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, &storage.TooLargeError{Size: int64(len(data)), Limit: maxBytes}
	}
	return data, nil
}

func (f *fakeObjects) PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (*storage.PresignedRequest, error) {
	return &storage.PresignedRequest{
		URL:     "https://bucket.example/" + key,
		Method:  "PUT",
		Headers: map[string]string{"Content-Type": contentType},
	}, nil
}

func (f *fakeObjects) PresignDownload(ctx context.Context, key string, ttl time.Duration) (*storage.PresignedRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
	if _, ok := f.objects[key]; !ok {
		return nil, storage.ErrObjectNotFound
	}
	return &storage.PresignedRequest{URL: "https://bucket.example/" + key + "?sig=get", Method: "GET"}, nil
}

// countingStore wraps a MemoryStore, counting calls and injecting failures.
type countingStore struct {
	*store.MemoryStore
	mu        sync.Mutex
	gets      int
	putCalls  int
	conflicts int
	putErr    error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: store.NewMemoryStore()}
}

func (s *countingStore) Get(ctx context.Context, userID string) (*model.ChatRecord, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.MemoryStore.Get(ctx, userID)
}

func (s *countingStore) Put(ctx context.Context, rec *model.ChatRecord) error {
	s.mu.Lock()
	s.putCalls++
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return store.ErrVersionConflict
	}
	putErr := s.putErr
	s.mu.Unlock()
	if putErr != nil {
		return putErr
	}
	return s.MemoryStore.Put(ctx, rec)
}

func (s *countingStore) calls() (gets, puts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, s.putCalls
}

type sentEvent struct {
	name string
	data string
	conv *model.Conversation
}

// recordingSink records events; cancel fires after cancelAfter messages.
type recordingSink struct {
	mu          sync.Mutex
	events      []sentEvent
	cancelAfter int
	cancel      context.CancelFunc
	messages    int
}

func (s *recordingSink) Message(delta string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sentEvent{name: model.EventMessage, data: delta})
	s.messages++
	if s.cancel != nil && s.messages == s.cancelAfter {
		s.cancel()
	}
	return nil
}

func (s *recordingSink) Info(msg string) error {
	return s.add(sentEvent{name: model.EventInfo, data: msg})
}

func (s *recordingSink) NewChat(conv *model.Conversation) error {
	return s.add(sentEvent{name: model.EventNewChat, conv: conv})
}

func (s *recordingSink) Warning(msg string) error {
	return s.add(sentEvent{name: model.EventWarning, data: msg})
}

func (s *recordingSink) add(e sentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.name
	}
	return out
}

func (s *recordingSink) find(name string) *sentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].name == name {
			return &s.events[i]
		}
	}
	return nil
}

type fakePublisher struct {
	events []*model.TurnCompletedEvent
	err    error
}

func (p *fakePublisher) PublishTurn(ctx context.Context, event *model.TurnCompletedEvent) error {
	p.events = append(p.events, event)
	return p.err
}

type harness struct {
	svc       *ChatService
	llm       *fakeLLM
	kb        *fakeKB
	objects   *fakeObjects
	store     *countingStore
	publisher *fakePublisher
}

func newHarness() *harness {
	h := &harness{
		llm:       &fakeLLM{tokens: []string{"Hello", ", ", "world"}},
		kb:        &fakeKB{},
		objects:   &fakeObjects{objects: map[string][]byte{}},
		store:     newCountingStore(),
		publisher: &fakePublisher{},
	}
	reg := llm.NewRegistry("nova-lite")
	reg.RegisterBedrock(h.llm)

	h.svc = NewChatService(ChatDeps{
		Registry:      reg,
		KnowledgeBase: h.kb,
		Store:         h.store,
		Objects:       h.objects,
		Publisher:     h.publisher,
	}, ChatOptions{
		KnowledgeBaseID:    "KB1",
		HistoryWindow:      10,
		MaxAttachmentBytes: 3932160,
		MaxTokens:          4096,
		Temperature:        0.7,
		PersistTimeout:     time.Second,
		PersistMaxRetries:  3,
	}, logger.NewNop())
	return h
}

// seed stores one conversation for u1.
func (h *harness) seed(conv model.Conversation) {
	rec, _ := h.store.MemoryStore.Get(context.Background(), "u1")
	rec.Chats = append(rec.Chats, conv)
	if err := h.store.MemoryStore.Put(context.Background(), rec); err != nil {
		panic(err)
	}
}

func (h *harness) record() *model.ChatRecord {
	rec, _ := h.store.MemoryStore.Get(context.Background(), "u1")
	return rec
}

func alternatingTurns(n int) []model.Turn {
	turns := make([]model.Turn, n)
	for i := range turns {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		turns[i] = model.Turn{ID: "t" + string(rune('a'+i)), Role: role, Content: "turn " + string(rune('a'+i))}
	}
	return turns
}

var errBoom = errors.New("boom")
