package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

// WeaviateKnowledgeBase retrieves passages from a Weaviate class using hybrid
// search. The knowledge base id is the class name.
type WeaviateKnowledgeBase struct {
	client       *weaviate.Client
	textProperty string
	limit        int
}

// NewWeaviateKnowledgeBase connects to a Weaviate instance at rawURL.
func NewWeaviateKnowledgeBase(rawURL, textProperty string, limit int) (*WeaviateKnowledgeBase, error) {
	cfg := weaviate.Config{Host: rawURL, Scheme: "http"}
	switch {
	case strings.HasPrefix(rawURL, "https://"):
		cfg.Scheme = "https"
		cfg.Host = strings.TrimPrefix(rawURL, "https://")
	case strings.HasPrefix(rawURL, "http://"):
		cfg.Host = strings.TrimPrefix(rawURL, "http://")
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	if textProperty == "" {
		textProperty = "text"
	}
	if limit <= 0 {
		limit = 10
	}
	return &WeaviateKnowledgeBase{client: client, textProperty: textProperty, limit: limit}, nil
}

// Name returns the backend name.
func (kb *WeaviateKnowledgeBase) Name() string {
	return "weaviate"
}

// Retrieve runs one hybrid query against the class named by knowledgeBaseID.
func (kb *WeaviateKnowledgeBase) Retrieve(ctx context.Context, knowledgeBaseID, query string) ([]Passage, error) {
	hybrid := kb.client.GraphQL().HybridArgumentBuilder().WithQuery(query)

	result, err := kb.client.GraphQL().Get().
		WithClassName(knowledgeBaseID).
		WithFields(
			graphql.Field{Name: kb.textProperty},
			graphql.Field{Name: "_additional { score }"},
		).
		WithHybrid(hybrid).
		WithLimit(kb.limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search: %s", result.Errors[0].Message)
	}

	return parseWeaviatePassages(result.Data["Get"], knowledgeBaseID, kb.textProperty), nil
}

// parseWeaviatePassages extracts passages from the "Get" section of a
// GraphQL response.
func parseWeaviatePassages(get interface{}, class, textProperty string) []Passage {
	section, ok := get.(map[string]interface{})
	if !ok {
		return nil
	}
	items, ok := section[class].([]interface{})
	if !ok {
		return nil
	}

	passages := make([]Passage, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		text, _ := obj[textProperty].(string)
		if text == "" {
			continue
		}
		p := Passage{Text: text, Source: class}
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			switch score := additional["score"].(type) {
			case string:
				p.Score, _ = strconv.ParseFloat(score, 64)
			case float64:
				p.Score = score
			}
		}
		passages = append(passages, p)
	}
	return passages
}
