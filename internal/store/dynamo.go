package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pipewatch/pipewatch/internal/models"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoStore keeps execution records in a DynamoDB table with executionId as
// the partition key.
type DynamoStore struct {
	client DynamoAPI
	table  string
}

func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

func (s *DynamoStore) key(executionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"executionId": &types.AttributeValueMemberS{Value: executionID},
	}
}

func (s *DynamoStore) Get(ctx context.Context, executionID string) (models.ExecutionRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(executionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return models.ExecutionRecord{}, fmt.Errorf("get execution %s: %w", executionID, err)
	}
	if len(out.Item) == 0 {
		return models.ExecutionRecord{}, ErrNotFound
	}
	var rec models.ExecutionRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return models.ExecutionRecord{}, fmt.Errorf("unmarshal execution %s: %w", executionID, err)
	}
	return rec, nil
}

func (s *DynamoStore) Put(ctx context.Context, rec models.ExecutionRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal execution %s: %w", rec.ExecutionID, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put execution %s: %w", rec.ExecutionID, err)
	}
	return nil
}

func (s *DynamoStore) MarkNotified(ctx context.Context, executionID string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 s.key(executionID),
		UpdateExpression:    aws.String("SET isNotified = :t"),
		ConditionExpression: aws.String("attribute_exists(executionId) AND isNotified = :f"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
			":f": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		var conditional *types.ConditionalCheckFailedException
		if errors.As(err, &conditional) {
			// Either the record is gone or another invocation flipped the
			// flag first; disambiguate with a read.
			if _, getErr := s.Get(ctx, executionID); errors.Is(getErr, ErrNotFound) {
				return ErrNotFound
			}
			return ErrAlreadyNotified
		}
		return fmt.Errorf("mark notified %s: %w", executionID, err)
	}
	return nil
}

func (s *DynamoStore) Ping(ctx context.Context) error {
	if _, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	}); err != nil {
		return fmt.Errorf("describe table %s: %w", s.table, err)
	}
	return nil
}
