package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// dynamoItem is one key path in the table. "path" is the partition key.
type dynamoItem struct {
	Path      string `dynamodbav:"path"`
	Value     bool   `dynamodbav:"value"`
	UpdatedAt int64  `dynamodbav:"updated_at"`
}

// DynamoStore keeps key paths as items of a DynamoDB table.
type DynamoStore struct {
	api   DynamoAPI
	table string
	now   func() time.Time
}

// NewDynamoStore wraps an existing client.
func NewDynamoStore(api DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{api: api, table: table, now: time.Now}
}

// NewDynamoStoreFromEnv builds a client from the default AWS credential chain
// (environment, shared config, instance role).
func NewDynamoStoreFromEnv(ctx context.Context, table string) (*DynamoStore, error) {
	if table == "" {
		return nil, fmt.Errorf("dynamodb table name is not set")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewDynamoStore(dynamodb.NewFromConfig(cfg), table), nil
}

// SetBool writes v at path.
func (d *DynamoStore) SetBool(ctx context.Context, path string, v bool) error {
	item, err := attributevalue.MarshalMap(dynamoItem{
		Path:      cleanPath(path),
		Value:     v,
		UpdatedAt: d.now().Unix(),
	})
	if err != nil {
		return writeErr(path, fmt.Errorf("marshal item: %w", err))
	}

	_, err = d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return writeErr(path, fmt.Errorf("put item: %w", err))
	}
	return nil
}

// GetBool reads path with a strongly consistent read.
func (d *DynamoStore) GetBool(ctx context.Context, path string) (bool, error) {
	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key: map[string]types.AttributeValue{
			"path": &types.AttributeValueMemberS{Value: cleanPath(path)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, readErr(path, fmt.Errorf("get item: %w", err))
	}
	if out == nil || len(out.Item) == 0 {
		return false, readErr(path, ErrNoValue)
	}

	v, err := attributeBool(out.Item["value"])
	if err != nil {
		return false, readErr(path, err)
	}
	return v, nil
}

// attributeBool accepts the same loose forms as DecodeBool for items written by other tools.
func attributeBool(av types.AttributeValue) (bool, error) {
	switch x := av.(type) {
	case nil:
		return false, ErrNoValue
	case *types.AttributeValueMemberNULL:
		return false, ErrNoValue
	case *types.AttributeValueMemberBOOL:
		return x.Value, nil
	case *types.AttributeValueMemberN:
		return DecodeBool([]byte(x.Value))
	case *types.AttributeValueMemberS:
		return parseBoolString(x.Value)
	default:
		return false, fmt.Errorf("%w: attribute type %T", ErrMalformed, av)
	}
}
