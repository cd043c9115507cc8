package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/traf3li/trustledger/internal/domain/account"
	commonErrors "github.com/traf3li/trustledger/internal/domain/errors"
	"github.com/traf3li/trustledger/internal/platform/dynamodb/client"
)

// DynamoDBTrustAccountRepository implements the account.Repository interface
type DynamoDBTrustAccountRepository struct {
	client client.Client
	table  string
	logger *slog.Logger
}

// NewDynamoDBTrustAccountRepository creates a new DynamoDBTrustAccountRepository
func NewDynamoDBTrustAccountRepository(client client.Client, table string, logger *slog.Logger) *DynamoDBTrustAccountRepository {
	return &DynamoDBTrustAccountRepository{
		client: client,
		table:  table,
		logger: logger,
	}
}

// CreateAccount persists a new trust account
func (r *DynamoDBTrustAccountRepository) CreateAccount(ctx context.Context, acct *account.TrustAccount) (*account.TrustAccount, error) {
	item, err := attributevalue.MarshalMap(acct)
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to marshal trust account", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: firmPK(acct.FirmID)}
	item["SK"] = &types.AttributeValueMemberS{Value: accountSK(acct.AccountID)}
	item["Type"] = &types.AttributeValueMemberS{Value: "trust_account"}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var condCheckErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckErr) {
			return nil, commonErrors.NewConflictError("trust account already exists")
		}
		return nil, commonErrors.NewStorageError("failed to create trust account", err)
	}

	return acct, nil
}

// GetAccount retrieves a trust account by ID
func (r *DynamoDBTrustAccountRepository) GetAccount(ctx context.Context, firmID, accountID string) (*account.TrustAccount, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: firmPK(firmID)},
			"SK": &types.AttributeValueMemberS{Value: accountSK(accountID)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, commonErrors.NewStorageError("failed to get trust account", err)
	}
	if result.Item == nil {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("trust account %s not found", accountID))
	}

	var acct account.TrustAccount
	if err := attributevalue.UnmarshalMap(result.Item, &acct); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal trust account", err)
	}
	return &acct, nil
}

// ListAccounts retrieves every trust account belonging to a firm
func (r *DynamoDBTrustAccountRepository) ListAccounts(ctx context.Context, firmID string) ([]*account.TrustAccount, error) {
	keyCondition := expression.Key("PK").Equal(expression.Value(firmPK(firmID))).
		And(expression.Key("SK").BeginsWith("TRUSTACCT#"))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build expression", err)
	}

	accounts := []*account.TrustAccount{}
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.table),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, commonErrors.NewStorageError("failed to query trust accounts", err)
		}
		for _, item := range result.Items {
			var acct account.TrustAccount
			if err := attributevalue.UnmarshalMap(item, &acct); err != nil {
				return nil, commonErrors.NewInternalError("failed to unmarshal trust account", err)
			}
			accounts = append(accounts, &acct)
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}
	return accounts, nil
}

// CloseAccount soft-closes an account. The condition expression is the
// authoritative guard: it only fires while the account is active, its balance
// is zero, and nobody else has written it since we read it.
func (r *DynamoDBTrustAccountRepository) CloseAccount(ctx context.Context, firmID, accountID, reason string) (*account.TrustAccount, error) {
	current, err := r.GetAccount(ctx, firmID, accountID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	update := expression.Set(expression.Name("Status"), expression.Value(account.Closed)).
		Set(expression.Name("ClosedReason"), expression.Value(reason)).
		Set(expression.Name("ClosedAt"), expression.Value(now.Format(time.RFC3339Nano))).
		Set(expression.Name("UpdatedAt"), expression.Value(now.Format(time.RFC3339Nano))).
		Set(expression.Name("Version"), expression.Value(current.Version+1))
	condition := expression.Name("Status").Equal(expression.Value(account.Active)).
		And(expression.Name("Balance").Equal(expression.Value(0))).
		And(expression.Name("Version").Equal(expression.Value(current.Version)))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(condition).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build expression", err)
	}

	result, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: firmPK(firmID)},
			"SK": &types.AttributeValueMemberS{Value: accountSK(accountID)},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var condCheckErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckErr) {
			return nil, commonErrors.NewConflictError(fmt.Sprintf(
				"trust account %s changed concurrently or no longer satisfies close conditions", accountID))
		}
		return nil, commonErrors.NewStorageError("failed to close trust account", err)
	}

	var acct account.TrustAccount
	if err := attributevalue.UnmarshalMap(result.Attributes, &acct); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal trust account", err)
	}
	r.logger.Info("trust account closed", "accountId", accountID, "reason", reason)
	return &acct, nil
}
