package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// ConverseStreamAPI is the subset of the Bedrock runtime client we use.
type ConverseStreamAPI interface {
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// BedrockClient streams completions through the Bedrock Converse API.
type BedrockClient struct {
	api ConverseStreamAPI
}

// NewBedrockClient creates a Bedrock client from an AWS config.
func NewBedrockClient(cfg aws.Config) *BedrockClient {
	return &BedrockClient{api: bedrockruntime.NewFromConfig(cfg)}
}

// NewBedrockClientWithAPI wraps an existing Converse API implementation.
func NewBedrockClientWithAPI(api ConverseStreamAPI) *BedrockClient {
	return &BedrockClient{api: api}
}

// Name returns the provider name.
func (c *BedrockClient) Name() string {
	return "bedrock"
}

// CompleteStream sends a streaming completion request.
func (c *BedrockClient) CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error) {
	start := time.Now()

	messages, err := toBedrockMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(req.Model),
		Messages: messages,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(req.MaxTokens)),
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}

	out, err := c.api.ConverseStream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("converse stream: %w", err)
	}

	stream := out.GetStream()
	defer stream.Close()

	var content strings.Builder
	var tokensIn, tokensOut int
	var stopReason string
	index := 0
	events := stream.Events()

loop:
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case event, ok := <-events:
			if !ok {
				break loop
			}
			switch v := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				if delta, ok := v.Value.Delta.(*types.ContentBlockDeltaMemberText); ok && delta.Value != "" {
					content.WriteString(delta.Value)
					if err := callback(delta.Value, index); err != nil {
						return nil, err
					}
					index++
				}
			case *types.ConverseStreamOutputMemberMessageStop:
				stopReason = string(v.Value.StopReason)
			case *types.ConverseStreamOutputMemberMetadata:
				if v.Value.Usage != nil {
					tokensIn = int(aws.ToInt32(v.Value.Usage.InputTokens))
					tokensOut = int(aws.ToInt32(v.Value.Usage.OutputTokens))
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("converse stream: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &CompletionResponse{
		Content:    content.String(),
		Model:      req.Model,
		TokensIn:   tokensIn,
		TokensOut:  tokensOut,
		StopReason: stopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

func toBedrockMessages(msgs []ChatMessage) ([]types.Message, error) {
	out := make([]types.Message, 0, len(msgs))
	docs := 0
	for _, msg := range msgs {
		blocks := make([]types.ContentBlock, 0, len(msg.Content))
		for _, b := range msg.Content {
			switch b.Type {
			case BlockText:
				if b.Text == "" {
					continue
				}
				blocks = append(blocks, &types.ContentBlockMemberText{Value: b.Text})
			case BlockImage:
				blocks = append(blocks, &types.ContentBlockMemberImage{Value: types.ImageBlock{
					Format: types.ImageFormat(ImageFormat(b.MediaType)),
					Source: &types.ImageSourceMemberBytes{Value: b.Data},
				}})
			case BlockDocument:
				// document names must be unique within one request
				docs++
				blocks = append(blocks, &types.ContentBlockMemberDocument{Value: types.DocumentBlock{
					Format: types.DocumentFormatPdf,
					Name:   aws.String(fmt.Sprintf("doc-%d", docs)),
					Source: &types.DocumentSourceMemberBytes{Value: b.Data},
				}})
			default:
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedContent, b.Type)
			}
		}
		if len(blocks) == 0 {
			continue
		}
		out = append(out, types.Message{
			Role:    bedrockRole(msg.Role),
			Content: blocks,
		})
	}
	return out, nil
}

func bedrockRole(role string) types.ConversationRole {
	if role == "assistant" {
		return types.ConversationRoleAssistant
	}
	return types.ConversationRoleUser
}
