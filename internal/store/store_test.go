package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/ragchat/internal/model"
)

func sampleConversation(id string) model.Conversation {
	return model.Conversation{
		ID:    id,
		Title: "hello",
		Messages: []model.Turn{
			{ID: id, Role: model.RoleUser, Content: "hello"},
			{ID: id + "-a", Role: model.RoleAssistant, Content: "hi", Mode: model.ModeGeneral, Model: "nova-lite"},
		},
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.Version)
	assert.Empty(t, rec.Chats)

	rec.Chats = append(rec.Chats, sampleConversation("c1"))
	require.NoError(t, s.Put(ctx, rec))
	assert.Equal(t, int64(1), rec.Version)

	// mutating the caller's copy does not touch the store
	rec.Chats[0].Title = "changed"
	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Chats[0].Title)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, 1, s.Puts())
}

func TestMemoryStore_VersionConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a, _ := s.Get(ctx, "u1")
	b, _ := s.Get(ctx, "u1")

	a.Chats = append(a.Chats, sampleConversation("c1"))
	require.NoError(t, s.Put(ctx, a))

	b.Chats = append(b.Chats, sampleConversation("c2"))
	assert.ErrorIs(t, s.Put(ctx, b), ErrVersionConflict)
	assert.Equal(t, 1, s.Puts())
}

// fakeDynamo evaluates the version condition the way the real table would.
type fakeDynamo struct {
	items  map[string]map[string]types.AttributeValue
	putErr error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	key := in.Key["userId"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[key]}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	key := in.Item["userId"].(*types.AttributeValueMemberS).Value
	want := in.ExpressionAttributeValues[":v"].(*types.AttributeValueMemberN).Value

	if existing, ok := f.items[key]; ok {
		v, has := existing["version"]
		switch {
		case !has && want == "0":
		case has && v.(*types.AttributeValueMemberN).Value == want:
		default:
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}
	f.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, nil
}

func TestDynamoStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	api := newFakeDynamo()
	s := NewDynamoStoreWithAPI(api, "chats")

	rec, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, rec.Chats)

	conv := sampleConversation("c1")
	conv.Messages[0].Attachment = &model.Attachment{
		FileName: "a.png", FileType: "image/png", Size: 10, S3Key: "uploads/u1/a.png", IsS3Upload: true,
	}
	rec.Chats = []model.Conversation{conv}
	require.NoError(t, s.Put(ctx, rec))
	assert.Equal(t, int64(1), rec.Version)

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got.Chats, 1)
	assert.Equal(t, "uploads/u1/a.png", got.Chats[0].Messages[0].Attachment.S3Key)
	assert.Equal(t, model.ModeGeneral, got.Chats[0].Messages[1].Mode)
	assert.Equal(t, int64(1), got.Version)
}

func TestDynamoStore_VersionConflict(t *testing.T) {
	ctx := context.Background()
	api := newFakeDynamo()
	s := NewDynamoStoreWithAPI(api, "chats")

	stale, _ := s.Get(ctx, "u1")
	fresh, _ := s.Get(ctx, "u1")
	require.NoError(t, s.Put(ctx, fresh))

	assert.ErrorIs(t, s.Put(ctx, stale), ErrVersionConflict)
	assert.Equal(t, int64(0), stale.Version)
}

func TestDynamoStore_LegacyItemWithoutVersion(t *testing.T) {
	ctx := context.Background()
	api := newFakeDynamo()
	legacy, err := attributevalue.MarshalMap(map[string]interface{}{
		"userId": "u1",
		"chats":  []model.Conversation{sampleConversation("old")},
	})
	require.NoError(t, err)
	api.items["u1"] = legacy

	s := NewDynamoStoreWithAPI(api, "chats")
	rec, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rec.Chats, 1)
	assert.Equal(t, int64(0), rec.Version)

	require.NoError(t, s.Put(ctx, rec))
	assert.Equal(t, int64(1), rec.Version)
}

func TestDynamoStore_PutError(t *testing.T) {
	api := newFakeDynamo()
	api.putErr = errors.New("throttled")
	s := NewDynamoStoreWithAPI(api, "chats")

	err := s.Put(context.Background(), &model.ChatRecord{UserID: "u1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrVersionConflict)
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "ragchat:chats:abc", redisKey("abc"))
}

func TestRedisStore_Integration(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(url)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))

	userID := "integration-" + t.Name()
	defer s.client.Del(ctx, redisKey(userID))

	a, err := s.Get(ctx, userID)
	require.NoError(t, err)
	b, err := s.Get(ctx, userID)
	require.NoError(t, err)

	a.Chats = append(a.Chats, sampleConversation("c1"))
	require.NoError(t, s.Put(ctx, a))
	assert.ErrorIs(t, s.Put(ctx, b), ErrVersionConflict)

	got, err := s.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Len(t, got.Chats, 1)
}
