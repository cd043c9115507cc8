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

	commonErrors "github.com/traf3li/trustledger/internal/domain/errors"
	"github.com/traf3li/trustledger/internal/domain/reconciliation"
	"github.com/traf3li/trustledger/internal/platform/dynamodb/client"
)

// DynamoDBReconciliationRepository implements the reconciliation.Repository
// interface. Session exclusivity rests on a RECONLOCK marker item in the
// account partition: creating a session puts the marker with
// attribute_not_exists, so two concurrent sessions cannot both start.
type DynamoDBReconciliationRepository struct {
	client client.Client
	table  string
	logger *slog.Logger
}

// NewDynamoDBReconciliationRepository creates a new DynamoDBReconciliationRepository
func NewDynamoDBReconciliationRepository(client client.Client, table string, logger *slog.Logger) *DynamoDBReconciliationRepository {
	return &DynamoDBReconciliationRepository{
		client: client,
		table:  table,
		logger: logger,
	}
}

// CreateReconciliation persists a new session and acquires the per-account
// session lock in the same transaction
func (r *DynamoDBReconciliationRepository) CreateReconciliation(ctx context.Context, recon *reconciliation.BankReconciliation) (*reconciliation.BankReconciliation, error) {
	item, err := r.marshalReconciliation(recon)
	if err != nil {
		return nil, err
	}

	lockItem := map[string]types.AttributeValue{
		"PK":               &types.AttributeValueMemberS{Value: accountPK(recon.FirmID, recon.AccountID)},
		"SK":               &types.AttributeValueMemberS{Value: reconLockSK},
		"Type":             &types.AttributeValueMemberS{Value: "reconciliation_lock"},
		"ReconciliationID": &types.AttributeValueMemberS{Value: recon.ReconciliationID},
		"CreatedAt":        &types.AttributeValueMemberS{Value: recon.CreatedAt.Format(time.RFC3339Nano)},
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(r.table),
					Item:                lockItem,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(r.table),
					Item:                item,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
		},
	})
	if err != nil {
		if idx := conditionalFailureIndex(err); idx == 0 {
			return nil, commonErrors.NewReconciliationInProgressError(fmt.Sprintf(
				"a reconciliation is already in progress for account %s", recon.AccountID))
		} else if idx == 1 {
			return nil, commonErrors.NewConflictError("reconciliation already exists")
		}
		return nil, commonErrors.NewStorageError("failed to create reconciliation", err)
	}

	r.logger.Info("reconciliation started",
		"accountId", recon.AccountID, "reconciliationId", recon.ReconciliationID)
	return recon, nil
}

// GetReconciliation retrieves a session by ID
func (r *DynamoDBReconciliationRepository) GetReconciliation(ctx context.Context, firmID, accountID, reconciliationID string) (*reconciliation.BankReconciliation, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: accountPK(firmID, accountID)},
			"SK": &types.AttributeValueMemberS{Value: reconSK(reconciliationID)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, commonErrors.NewStorageError("failed to get reconciliation", err)
	}
	if result.Item == nil {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("reconciliation %s not found", reconciliationID))
	}

	var recon reconciliation.BankReconciliation
	if err := attributevalue.UnmarshalMap(result.Item, &recon); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal reconciliation", err)
	}
	return &recon, nil
}

// ListReconciliations retrieves an account's sessions, newest first
func (r *DynamoDBReconciliationRepository) ListReconciliations(ctx context.Context, firmID, accountID string) ([]*reconciliation.BankReconciliation, error) {
	recons := []*reconciliation.BankReconciliation{}
	err := r.queryReconciliations(ctx, firmID, accountID, func(recon *reconciliation.BankReconciliation) bool {
		recons = append(recons, recon)
		return true
	})
	if err != nil {
		return nil, err
	}
	return recons, nil
}

// UpdateReconciliation persists in-session mutations under an optimistic
// version check
func (r *DynamoDBReconciliationRepository) UpdateReconciliation(ctx context.Context, recon *reconciliation.BankReconciliation) (*reconciliation.BankReconciliation, error) {
	return r.putVersioned(ctx, recon)
}

// CompleteReconciliation marks a session completed and releases the account's
// session lock in the same transaction
func (r *DynamoDBReconciliationRepository) CompleteReconciliation(ctx context.Context, recon *reconciliation.BankReconciliation) (*reconciliation.BankReconciliation, error) {
	return r.finalize(ctx, recon)
}

// CancelReconciliation marks a session as an exception and releases the
// account's session lock; nothing gets frozen
func (r *DynamoDBReconciliationRepository) CancelReconciliation(ctx context.Context, recon *reconciliation.BankReconciliation) (*reconciliation.BankReconciliation, error) {
	return r.finalize(ctx, recon)
}

// LatestCompleted returns the most recent completed session, nil when none
// exists yet
func (r *DynamoDBReconciliationRepository) LatestCompleted(ctx context.Context, firmID, accountID string) (*reconciliation.BankReconciliation, error) {
	var latest *reconciliation.BankReconciliation
	err := r.queryReconciliations(ctx, firmID, accountID, func(recon *reconciliation.BankReconciliation) bool {
		if recon.Status == reconciliation.Completed {
			latest = recon
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

// PutThreeWayRun persists a three-way run; runs are immutable history
func (r *DynamoDBReconciliationRepository) PutThreeWayRun(ctx context.Context, run *reconciliation.ThreeWayRun) (*reconciliation.ThreeWayRun, error) {
	item, err := attributevalue.MarshalMap(run)
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to marshal three-way run", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: accountPK(run.FirmID, run.AccountID)}
	item["SK"] = &types.AttributeValueMemberS{Value: threeWaySK(run.RunID)}
	item["Type"] = &types.AttributeValueMemberS{Value: "three_way_run"}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var condCheckErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckErr) {
			return nil, commonErrors.NewConflictError("three-way run already exists")
		}
		return nil, commonErrors.NewStorageError("failed to persist three-way run", err)
	}
	return run, nil
}

// ListThreeWayRuns retrieves an account's three-way run history, newest first
func (r *DynamoDBReconciliationRepository) ListThreeWayRuns(ctx context.Context, firmID, accountID string, limit int) ([]*reconciliation.ThreeWayRun, error) {
	keyCondition := expression.Key("PK").Equal(expression.Value(accountPK(firmID, accountID))).
		And(expression.Key("SK").BeginsWith(threeWayPrefix))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build expression", err)
	}

	runs := []*reconciliation.ThreeWayRun{}
	var startKey map[string]types.AttributeValue
	for {
		input := &dynamodb.QueryInput{
			TableName:                 aws.String(r.table),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ScanIndexForward:          aws.Bool(false),
			ExclusiveStartKey:         startKey,
		}
		result, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, commonErrors.NewStorageError("failed to query three-way runs", err)
		}
		for _, item := range result.Items {
			var run reconciliation.ThreeWayRun
			if err := attributevalue.UnmarshalMap(item, &run); err != nil {
				return nil, commonErrors.NewInternalError("failed to unmarshal three-way run", err)
			}
			runs = append(runs, &run)
			if limit > 0 && len(runs) == limit {
				return runs, nil
			}
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}
	return runs, nil
}

// queryReconciliations walks the account's sessions newest first, calling fn
// for each until it returns false
func (r *DynamoDBReconciliationRepository) queryReconciliations(ctx context.Context, firmID, accountID string, fn func(*reconciliation.BankReconciliation) bool) error {
	keyCondition := expression.Key("PK").Equal(expression.Value(accountPK(firmID, accountID))).
		And(expression.Key("SK").BeginsWith(reconPrefix))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return commonErrors.NewInternalError("failed to build expression", err)
	}

	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.table),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ScanIndexForward:          aws.Bool(false),
			ExclusiveStartKey:         startKey,
			ConsistentRead:            aws.Bool(true),
		})
		if err != nil {
			return commonErrors.NewStorageError("failed to query reconciliations", err)
		}
		for _, item := range result.Items {
			var recon reconciliation.BankReconciliation
			if err := attributevalue.UnmarshalMap(item, &recon); err != nil {
				return commonErrors.NewInternalError("failed to unmarshal reconciliation", err)
			}
			if !fn(&recon) {
				return nil
			}
		}
		if result.LastEvaluatedKey == nil {
			return nil
		}
		startKey = result.LastEvaluatedKey
	}
}

// putVersioned replaces the session item, guarded by the version the caller
// read. The stored version is bumped; the caller's copy is returned updated.
func (r *DynamoDBReconciliationRepository) putVersioned(ctx context.Context, recon *reconciliation.BankReconciliation) (*reconciliation.BankReconciliation, error) {
	expected := recon.Version
	recon.Version = expected + 1

	item, err := r.marshalReconciliation(recon)
	if err != nil {
		recon.Version = expected
		return nil, err
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.table),
		Item:                      item,
		ConditionExpression:       aws.String("Version = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expected)}},
	})
	if err != nil {
		recon.Version = expected
		var condCheckErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckErr) {
			return nil, commonErrors.NewConflictError("reconciliation was modified concurrently")
		}
		return nil, commonErrors.NewStorageError("failed to update reconciliation", err)
	}
	return recon, nil
}

// finalize writes the terminal session state and deletes the account's
// session lock in one transaction. The lock delete is conditioned on the lock
// still belonging to this session.
func (r *DynamoDBReconciliationRepository) finalize(ctx context.Context, recon *reconciliation.BankReconciliation) (*reconciliation.BankReconciliation, error) {
	expected := recon.Version
	recon.Version = expected + 1

	item, err := r.marshalReconciliation(recon)
	if err != nil {
		recon.Version = expected
		return nil, err
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:                 aws.String(r.table),
					Item:                      item,
					ConditionExpression:       aws.String("Version = :expected"),
					ExpressionAttributeValues: map[string]types.AttributeValue{":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expected)}},
				},
			},
			{
				Delete: &types.Delete{
					TableName: aws.String(r.table),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: accountPK(recon.FirmID, recon.AccountID)},
						"SK": &types.AttributeValueMemberS{Value: reconLockSK},
					},
					ConditionExpression:       aws.String("ReconciliationID = :rid"),
					ExpressionAttributeValues: map[string]types.AttributeValue{":rid": &types.AttributeValueMemberS{Value: recon.ReconciliationID}},
				},
			},
		},
	})
	if err != nil {
		recon.Version = expected
		if conditionalFailureIndex(err) >= 0 {
			return nil, commonErrors.NewConflictError("reconciliation was modified concurrently")
		}
		return nil, commonErrors.NewStorageError("failed to finalize reconciliation", err)
	}

	r.logger.Info("reconciliation finalized",
		"accountId", recon.AccountID, "reconciliationId", recon.ReconciliationID, "status", recon.Status)
	return recon, nil
}

func (r *DynamoDBReconciliationRepository) marshalReconciliation(recon *reconciliation.BankReconciliation) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(recon)
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to marshal reconciliation", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: accountPK(recon.FirmID, recon.AccountID)}
	item["SK"] = &types.AttributeValueMemberS{Value: reconSK(recon.ReconciliationID)}
	item["Type"] = &types.AttributeValueMemberS{Value: "bank_reconciliation"}
	return item, nil
}
