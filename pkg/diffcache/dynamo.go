package diffcache

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client the cache uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Dynamo stores diffs in a DynamoDB table keyed by the pair string, with
// the table's native TTL attribute handling physical removal. TTL
// deletion lags expiry by up to 48 hours, so reads also check expires_at
// and treat stale items as absent.
type Dynamo struct {
	api   DynamoAPI
	table string
	ttl   time.Duration
	now   func() time.Time
}

// NewDynamo creates a DynamoDB-backed cache on the named table
// (DefaultTTL if ttl <= 0). The table's TTL attribute must be
// "expires_at".
func NewDynamo(api DynamoAPI, table string, ttl time.Duration) *Dynamo {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Dynamo{api: api, table: table, ttl: ttl, now: time.Now}
}

type dynamoDiffItem struct {
	Pair         string  `dynamodbav:"pair"`
	BlockIndexes []int32 `dynamodbav:"block_indexes,omitempty"`
	ComputedAt   int64   `dynamodbav:"computed_at"`
	ExpiresAt    int64   `dynamodbav:"expires_at"`
}

// Get returns the diff for key if present and unexpired.
func (d *Dynamo) Get(ctx context.Context, key Key) (Diff, bool, error) {
	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &d.table,
		Key: map[string]types.AttributeValue{
			"pair": &types.AttributeValueMemberS{Value: key.String()},
		},
	})
	if err != nil {
		return Diff{}, false, fmt.Errorf("get diff %s: %w", key, err)
	}
	if out.Item == nil {
		return Diff{}, false, nil
	}

	var item dynamoDiffItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return Diff{}, false, fmt.Errorf("unmarshal diff %s: %w", key, err)
	}
	if item.ExpiresAt <= d.now().Unix() {
		return Diff{}, false, nil
	}

	return Diff{
		BlockIndexes: item.BlockIndexes,
		ComputedAt:   time.Unix(item.ComputedAt, 0).UTC(),
	}, true, nil
}

// Put stores the diff for key, last writer wins.
func (d *Dynamo) Put(ctx context.Context, key Key, diff Diff) error {
	item, err := attributevalue.MarshalMap(dynamoDiffItem{
		Pair:         key.String(),
		BlockIndexes: diff.BlockIndexes,
		ComputedAt:   diff.ComputedAt.Unix(),
		ExpiresAt:    diff.ComputedAt.Add(d.ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal diff %s: %w", key, err)
	}

	if _, err := d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &d.table,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put diff %s: %w", key, err)
	}
	return nil
}
