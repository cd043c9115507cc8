package repository

import (
	"context"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TestClient is an in-memory implementation of the DynamoDB client interface.
// It understands the raw condition expressions the repositories use on writes
// (attribute_not_exists, version and ownership equality) and simulates the
// PK-equals / SK-begins_with queries everything in this package issues.
type TestClient struct {
	items         map[string]map[string]types.AttributeValue
	transactCalls int
}

// NewTestClient creates a new test client with an empty items map
func NewTestClient() *TestClient {
	return &TestClient{
		items: make(map[string]map[string]types.AttributeValue),
	}
}

func itemKey(item map[string]types.AttributeValue) string {
	pk := item["PK"].(*types.AttributeValueMemberS).Value
	sk := item["SK"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

// checkCondition evaluates the raw condition expressions used by the
// repositories. Unknown expressions pass.
func (c *TestClient) checkCondition(key string, cond *string, values map[string]types.AttributeValue) bool {
	if cond == nil {
		return true
	}
	existing, exists := c.items[key]

	switch *cond {
	case "attribute_not_exists(PK)":
		return !exists
	case "Version = :expected":
		if !exists {
			return false
		}
		stored, ok := existing["Version"].(*types.AttributeValueMemberN)
		expected, ok2 := values[":expected"].(*types.AttributeValueMemberN)
		return ok && ok2 && stored.Value == expected.Value
	case "ReconciliationID = :rid":
		if !exists {
			return false
		}
		stored, ok := existing["ReconciliationID"].(*types.AttributeValueMemberS)
		rid, ok2 := values[":rid"].(*types.AttributeValueMemberS)
		return ok && ok2 && stored.Value == rid.Value
	}
	return true
}

// GetItem retrieves an item from the in-memory store
func (c *TestClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if item, exists := c.items[itemKey(params.Key)]; exists {
		return &dynamodb.GetItemOutput{Item: item}, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

// PutItem adds or replaces an item, honoring the condition expression
func (c *TestClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	key := itemKey(params.Item)
	if !c.checkCondition(key, params.ConditionExpression, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	c.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (c *TestClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return &dynamodb.UpdateItemOutput{}, nil
}

func (c *TestClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	key := itemKey(params.Key)
	if !c.checkCondition(key, params.ConditionExpression, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	delete(c.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

// Query simulates the PK-equality plus SK-begins_with key condition every
// repository query is built from. The expression builder numbers its value
// placeholders in build order, so :0 is the partition key and :1 the prefix.
func (c *TestClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	pk := params.ExpressionAttributeValues[":0"].(*types.AttributeValueMemberS).Value
	prefix := params.ExpressionAttributeValues[":1"].(*types.AttributeValueMemberS).Value

	var matches []map[string]types.AttributeValue
	for _, item := range c.items {
		itemPK := item["PK"].(*types.AttributeValueMemberS).Value
		itemSK := item["SK"].(*types.AttributeValueMemberS).Value
		if itemPK == pk && strings.HasPrefix(itemSK, prefix) {
			matches = append(matches, item)
		}
	}

	descending := params.ScanIndexForward != nil && !*params.ScanIndexForward
	sort.Slice(matches, func(i, j int) bool {
		a := matches[i]["SK"].(*types.AttributeValueMemberS).Value
		b := matches[j]["SK"].(*types.AttributeValueMemberS).Value
		if descending {
			return a > b
		}
		return a < b
	})

	return &dynamodb.QueryOutput{Items: matches}, nil
}

// TransactWriteItems validates every item's condition first and applies the
// whole batch only when all pass, mirroring DynamoDB's all-or-nothing
// semantics and its per-index cancellation reasons.
func (c *TestClient) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	c.transactCalls++

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, item := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		switch {
		case item.Put != nil:
			if !c.checkCondition(itemKey(item.Put.Item), item.Put.ConditionExpression, item.Put.ExpressionAttributeValues) {
				reasons[i].Code = aws.String("ConditionalCheckFailed")
				failed = true
			}
		case item.Delete != nil:
			if !c.checkCondition(itemKey(item.Delete.Key), item.Delete.ConditionExpression, item.Delete.ExpressionAttributeValues) {
				reasons[i].Code = aws.String("ConditionalCheckFailed")
				failed = true
			}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, item := range params.TransactItems {
		switch {
		case item.Put != nil:
			c.items[itemKey(item.Put.Item)] = item.Put.Item
		case item.Delete != nil:
			delete(c.items, itemKey(item.Delete.Key))
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}
