package retrieval

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
)

// RetrieveAPI is the subset of the Bedrock agent runtime client we use.
type RetrieveAPI interface {
	Retrieve(ctx context.Context, params *bedrockagentruntime.RetrieveInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveOutput, error)
}

// BedrockKnowledgeBase retrieves passages from a Bedrock knowledge base with
// hybrid (semantic + keyword) search.
type BedrockKnowledgeBase struct {
	api     RetrieveAPI
	results int32
}

// NewBedrockKnowledgeBase creates a knowledge base client from an AWS config.
func NewBedrockKnowledgeBase(cfg aws.Config, results int) *BedrockKnowledgeBase {
	return NewBedrockKnowledgeBaseWithAPI(bedrockagentruntime.NewFromConfig(cfg), results)
}

// NewBedrockKnowledgeBaseWithAPI wraps an existing Retrieve implementation.
func NewBedrockKnowledgeBaseWithAPI(api RetrieveAPI, results int) *BedrockKnowledgeBase {
	if results <= 0 {
		results = 10
	}
	return &BedrockKnowledgeBase{api: api, results: int32(results)}
}

// Name returns the backend name.
func (kb *BedrockKnowledgeBase) Name() string {
	return "bedrock"
}

// Retrieve runs one hybrid search.
func (kb *BedrockKnowledgeBase) Retrieve(ctx context.Context, knowledgeBaseID, query string) ([]Passage, error) {
	if knowledgeBaseID == "" {
		return nil, fmt.Errorf("knowledge base id is not configured")
	}

	out, err := kb.api.Retrieve(ctx, &bedrockagentruntime.RetrieveInput{
		KnowledgeBaseId: aws.String(knowledgeBaseID),
		RetrievalQuery:  &types.KnowledgeBaseQuery{Text: aws.String(query)},
		RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
			VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
				NumberOfResults:    aws.Int32(kb.results),
				OverrideSearchType: types.SearchTypeHybrid,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock retrieve: %w", err)
	}

	passages := make([]Passage, 0, len(out.RetrievalResults))
	for _, r := range out.RetrievalResults {
		if r.Content == nil || aws.ToString(r.Content.Text) == "" {
			continue
		}
		p := Passage{
			Text:  aws.ToString(r.Content.Text),
			Score: aws.ToFloat64(r.Score),
		}
		if r.Location != nil && r.Location.S3Location != nil {
			p.Source = aws.ToString(r.Location.S3Location.Uri)
		}
		passages = append(passages, p)
	}
	return passages, nil
}
