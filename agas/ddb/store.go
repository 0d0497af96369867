package ddb

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/gidref/agas"
	"github.com/hupe1980/gidref/gid"
)

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// ErrConcurrentModification is returned when an entry changed between the
// count reaching zero and its deletion.
var ErrConcurrentModification = errors.New("concurrent modification detected")

const (
	keyAttr    = "gid"
	creditAttr = "credit"
)

// CreditStore implements agas.CreditStore on a DynamoDB table.
type CreditStore struct {
	client    DDBClient
	tableName string
}

// NewCreditStore creates a store on tableName.
func NewCreditStore(client DDBClient, tableName string) *CreditStore {
	return &CreditStore{client: client, tableName: tableName}
}

// NewCreditStoreFromDefaultConfig creates a store using the default AWS
// credential chain.
func NewCreditStoreFromDefaultConfig(ctx context.Context, tableName string, optFns ...func(*config.LoadOptions) error) (*CreditStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewCreditStore(dynamodb.NewFromConfig(cfg), tableName), nil
}

func key(id gid.GID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		keyAttr: &types.AttributeValueMemberS{Value: id.Hex()},
	}
}

// Add implements agas.CreditStore.
func (s *CreditStore) Add(ctx context.Context, id gid.GID, delta, seed int64) (int64, error) {
	resp, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              key(id),
		UpdateExpression: aws.String("SET #c = if_not_exists(#c, :seed) + :delta"),
		ExpressionAttributeNames: map[string]string{
			"#c": creditAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":seed":  &types.AttributeValueMemberN{Value: strconv.FormatInt(seed, 10)},
			":delta": &types.AttributeValueMemberN{Value: strconv.FormatInt(delta, 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update credit in DynamoDB: %w", err)
	}

	n, err := parseCredit(resp.Attributes)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Get implements agas.CreditStore.
func (s *CreditStore) Get(ctx context.Context, id gid.GID) (int64, bool, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to read credit from DynamoDB: %w", err)
	}
	if len(resp.Item) == 0 {
		return 0, false, nil
	}

	n, err := parseCredit(resp.Item)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// Delete implements agas.CreditStore. The entry is only removed while its
// count is zero.
func (s *CreditStore) Delete(ctx context.Context, id gid.GID) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 key(id),
		ConditionExpression: aws.String("attribute_not_exists(#c) OR #c = :zero"),
		ExpressionAttributeNames: map[string]string{
			"#c": creditAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("failed to delete credit from DynamoDB: %w", err)
	}
	return nil
}

func parseCredit(item map[string]types.AttributeValue) (int64, error) {
	attr, ok := item[creditAttr].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("invalid credit attribute in DynamoDB")
	}
	n, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse credit: %w", err)
	}
	return n, nil
}

var _ agas.CreditStore = (*CreditStore)(nil)
