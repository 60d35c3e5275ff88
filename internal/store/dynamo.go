package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/capitalize-ai/ragchat/internal/model"
)

// DynamoAPI is the subset of the DynamoDB client we use.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoStore keeps one item per subject, keyed by userId.
type DynamoStore struct {
	api   DynamoAPI
	table string
}

// NewDynamoStore creates a store from an AWS config.
func NewDynamoStore(cfg aws.Config, table string) *DynamoStore {
	return NewDynamoStoreWithAPI(dynamodb.NewFromConfig(cfg), table)
}

// NewDynamoStoreWithAPI wraps an existing DynamoDB client.
func NewDynamoStoreWithAPI(api DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{api: api, table: table}
}

// Get loads the subject's item.
func (s *DynamoStore) Get(ctx context.Context, userID string) (*model.ChatRecord, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            map[string]types.AttributeValue{"userId": &types.AttributeValueMemberS{Value: userID}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get chat record: %w", err)
	}
	if len(out.Item) == 0 {
		return emptyRecord(userID), nil
	}

	var rec model.ChatRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("decode chat record: %w", err)
	}
	rec.UserID = userID
	if rec.Chats == nil {
		rec.Chats = []model.Conversation{}
	}
	return &rec, nil
}

// Put writes the whole item, conditional on the version read. Items written
// before versioning have no version attribute and count as version 0.
func (s *DynamoStore) Put(ctx context.Context, rec *model.ChatRecord) error {
	next := *rec
	next.Version = rec.Version + 1
	item, err := attributevalue.MarshalMap(&next)
	if err != nil {
		return fmt.Errorf("encode chat record: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:                aws.String(s.table),
		Item:                     item,
		ExpressionAttributeNames: map[string]string{"#v": "version"},
	}
	if rec.Version == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(#v) OR #v = :v")
	} else {
		input.ConditionExpression = aws.String("#v = :v")
	}
	input.ExpressionAttributeValues = map[string]types.AttributeValue{
		":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.Version, 10)},
	}

	if _, err := s.api.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrVersionConflict
		}
		return fmt.Errorf("put chat record: %w", err)
	}
	rec.Version = next.Version
	return nil
}

// Ping checks that the table exists.
func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	return err
}
