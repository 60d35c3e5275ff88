package llm

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnsupportedModel is returned for a model key with no registered route.
var ErrUnsupportedModel = errors.New("unsupported model")

// BedrockModels maps short model keys to Bedrock model ids.
var BedrockModels = map[string]string{
	"nova-lite":         "us.amazon.nova-lite-v1:0",
	"nova-pro":          "us.amazon.nova-pro-v1:0",
	"claude-3-7-sonnet": "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
	"claude-sonnet-4":   "us.anthropic.claude-sonnet-4-20250514-v1:0",
	"gpt-oss-20b":       "openai.gpt-oss-20b-1:0",
	"gpt-oss-120b":      "openai.gpt-oss-120b-1:0",
}

// Direct provider keys, registered only when the provider is configured.
const (
	AnthropicHaikuKey = "claude-3-5-haiku"
	OpenAIMiniKey     = "gpt-4o-mini"
)

// Route is the backend and provider model id behind a model key.
type Route struct {
	Key     string
	ModelID string
	Backend Client
}

// Registry resolves short model keys to routes.
type Registry struct {
	mu         sync.RWMutex
	routes     map[string]Route
	defaultKey string
}

// NewRegistry creates an empty registry; empty keys resolve to defaultKey.
func NewRegistry(defaultKey string) *Registry {
	return &Registry{
		routes:     make(map[string]Route),
		defaultKey: defaultKey,
	}
}

// Register maps key to modelID on backend.
func (r *Registry) Register(key string, backend Client, modelID string) {
	key = strings.TrimSpace(key)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[key] = Route{Key: key, ModelID: modelID, Backend: backend}
}

// RegisterBedrock registers every Bedrock model key on the given backend.
func (r *Registry) RegisterBedrock(backend Client) {
	for key, id := range BedrockModels {
		r.Register(key, backend, id)
	}
}

// Resolve looks up a key. No network call is made.
func (r *Registry) Resolve(key string) (Route, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = r.defaultKey
	}
	r.mu.RLock()
	route, ok := r.routes[key]
	r.mu.RUnlock()
	if !ok || route.Backend == nil {
		return Route{}, fmt.Errorf("%w: %s", ErrUnsupportedModel, key)
	}
	return route, nil
}

// DefaultKey returns the key used when a request names no model.
func (r *Registry) DefaultKey() string {
	return r.defaultKey
}

// Keys lists registered model keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.routes))
	for k := range r.routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
