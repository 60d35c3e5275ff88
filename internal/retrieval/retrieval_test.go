package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGroundingInstruction(t *testing.T) {
	out := BuildGroundingInstruction([]Passage{
		{Text: "Vacation  policy:\n\t20 days"},
		{Text: "   "},
		{Text: "Remote work allowed"},
	})

	assert.Contains(t, out, "<reference_material>\n<document1>\nVacation policy: 20 days\n</document1>\n")
	assert.Contains(t, out, "<document2>\nRemote work allowed\n</document2>\n</reference_material>")
	assert.NotContains(t, out, "<document3>")
	assert.True(t, strings.Index(out, "Answer rules") < strings.Index(out, "<reference_material>"))
}

func TestBuildGroundingInstruction_Empty(t *testing.T) {
	assert.Empty(t, BuildGroundingInstruction(nil))
	assert.Empty(t, BuildGroundingInstruction([]Passage{{Text: "\n \t"}}))
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeWhitespace("  a\n\nb\t\tc "))
}

type fakeRetrieve struct {
	input *bedrockagentruntime.RetrieveInput
	out   *bedrockagentruntime.RetrieveOutput
	err   error
}

func (f *fakeRetrieve) Retrieve(ctx context.Context, in *bedrockagentruntime.RetrieveInput, _ ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestBedrockKnowledgeBase_Retrieve(t *testing.T) {
	api := &fakeRetrieve{out: &bedrockagentruntime.RetrieveOutput{
		RetrievalResults: []types.KnowledgeBaseRetrievalResult{
			{
				Content: &types.RetrievalResultContent{Text: aws.String("first passage")},
				Score:   aws.Float64(0.9),
				Location: &types.RetrievalResultLocation{
					S3Location: &types.RetrievalResultS3Location{Uri: aws.String("s3://kb/a.txt")},
				},
			},
			{Content: &types.RetrievalResultContent{Text: aws.String("")}},
			{Content: &types.RetrievalResultContent{Text: aws.String("second passage")}, Score: aws.Float64(0.5)},
		},
	}}
	kb := NewBedrockKnowledgeBaseWithAPI(api, 5)

	passages, err := kb.Retrieve(context.Background(), "KB123", "what is the policy")
	require.NoError(t, err)
	require.Len(t, passages, 2)
	assert.Equal(t, "first passage", passages[0].Text)
	assert.Equal(t, "s3://kb/a.txt", passages[0].Source)
	assert.InDelta(t, 0.5, passages[1].Score, 1e-9)

	require.NotNil(t, api.input)
	assert.Equal(t, "KB123", aws.ToString(api.input.KnowledgeBaseId))
	assert.Equal(t, "what is the policy", aws.ToString(api.input.RetrievalQuery.Text))
	vs := api.input.RetrievalConfiguration.VectorSearchConfiguration
	assert.Equal(t, int32(5), aws.ToInt32(vs.NumberOfResults))
	assert.Equal(t, types.SearchTypeHybrid, vs.OverrideSearchType)
}

func TestBedrockKnowledgeBase_Errors(t *testing.T) {
	kb := NewBedrockKnowledgeBaseWithAPI(&fakeRetrieve{err: errors.New("access denied")}, 0)

	_, err := kb.Retrieve(context.Background(), "KB123", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	_, err = kb.Retrieve(context.Background(), "", "q")
	assert.Error(t, err)
	assert.Equal(t, "bedrock", kb.Name())
}

func TestParseWeaviatePassages(t *testing.T) {
	get := map[string]interface{}{
		"Passage": []interface{}{
			map[string]interface{}{
				"text":        "alpha",
				"_additional": map[string]interface{}{"score": "0.75"},
			},
			map[string]interface{}{"text": ""},
			map[string]interface{}{
				"text":        "beta",
				"_additional": map[string]interface{}{"score": 0.25},
			},
			"garbage",
		},
	}

	passages := parseWeaviatePassages(get, "Passage", "text")
	require.Len(t, passages, 2)
	assert.Equal(t, "alpha", passages[0].Text)
	assert.InDelta(t, 0.75, passages[0].Score, 1e-9)
	assert.Equal(t, "Passage", passages[0].Source)
	assert.InDelta(t, 0.25, passages[1].Score, 1e-9)

	assert.Nil(t, parseWeaviatePassages(nil, "Passage", "text"))
	assert.Nil(t, parseWeaviatePassages(get, "Other", "text"))
}
