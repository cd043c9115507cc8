package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	commonErrors "github.com/traf3li/trustledger/internal/domain/errors"
	"github.com/traf3li/trustledger/internal/domain/ledger"
	"github.com/traf3li/trustledger/internal/platform/dynamodb/client"
)

// maxMovementRetries bounds the optimistic-versioning retry loop on account
// contention before giving up with a conflict.
const maxMovementRetries = 3

// lockBatchSize is the number of transactions stamped per TransactWriteItems
// call when a completed reconciliation freezes its cleared set.
const lockBatchSize = 25

// DynamoDBLedgerRepository implements the ledger.Store interface. Every
// movement is a single TransactWriteItems call, so balances, transactions,
// and idempotency records change together or not at all.
type DynamoDBLedgerRepository struct {
	client client.Client
	table  string
	logger *slog.Logger
}

// NewDynamoDBLedgerRepository creates a new DynamoDBLedgerRepository
func NewDynamoDBLedgerRepository(client client.Client, table string, logger *slog.Logger) *DynamoDBLedgerRepository {
	return &DynamoDBLedgerRepository{
		client: client,
		table:  table,
		logger: logger,
	}
}

// idempotencyRecord is written in the same transaction as the movement it
// records, so a key either maps to a fully applied movement or to nothing.
type idempotencyRecord struct {
	IdempotencyKey string    `json:"idempotencyKey"`
	AccountIDs     []string  `json:"accountIds"`
	TransactionIDs []string  `json:"transactionIds"`
	CreatedAt      time.Time `json:"createdAt"`
}

// itemKind tags each transact item so a cancellation reason at index i can be
// mapped back to a typed domain error.
type itemKind int

const (
	kindAccount itemKind = iota
	kindClientBalance
	kindTransactionPut
	kindStatusChange
	kindIdempotency
)

type itemTag struct {
	kind      itemKind
	accountID string
	clientID  string
	txnID     string
}

// ApplyMovement applies a movement atomically. Account updates carry an
// optimistic version check and are retried on contention; client balance
// debits carry a Balance >= amount condition, which makes a negative client
// balance structurally impossible rather than merely checked.
func (r *DynamoDBLedgerRepository) ApplyMovement(ctx context.Context, mv *ledger.Movement) (*ledger.MovementResult, error) {
	if len(mv.Entries) == 0 && len(mv.StatusChanges) == 0 {
		return nil, commonErrors.NewValidationError("movement is empty")
	}

	if mv.IdempotencyKey != "" {
		if result, ok, err := r.replay(ctx, mv); err != nil {
			return nil, err
		} else if ok {
			return result, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxMovementRetries; attempt++ {
		items, tags, err := r.buildMovementItems(ctx, mv)
		if err != nil {
			return nil, err
		}

		_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items,
		})
		if err == nil {
			txns := make([]*ledger.TrustTransaction, 0, len(mv.Entries))
			for _, e := range mv.Entries {
				txns = append(txns, e.Transaction)
			}
			return &ledger.MovementResult{Transactions: txns}, nil
		}

		replayed, retry, mappedErr := r.mapMovementError(ctx, mv, tags, err)
		if replayed != nil {
			return replayed, nil
		}
		if !retry {
			return nil, mappedErr
		}
		lastErr = mappedErr
	}
	return nil, lastErr
}

// buildMovementItems assembles the transact items for one attempt. Account
// and client balance deltas are coalesced per item first: DynamoDB rejects a
// transaction that touches the same item twice, and a same-account transfer
// legitimately produces two deltas for one account.
func (r *DynamoDBLedgerRepository) buildMovementItems(ctx context.Context, mv *ledger.Movement) ([]types.TransactWriteItem, []itemTag, error) {
	type accountDelta struct {
		balance   int64
		pending   int64
		available int64
	}
	type clientDelta struct {
		accountID string
		clientID  string
		caseID    string
		currency  string
		delta     int64
	}

	accountOrder := []string{}
	accountDeltas := map[string]*accountDelta{}
	clientOrder := []string{}
	clientDeltas := map[string]*clientDelta{}

	for _, e := range mv.Entries {
		t := e.Transaction
		ad, ok := accountDeltas[t.AccountID]
		if !ok {
			ad = &accountDelta{}
			accountDeltas[t.AccountID] = ad
			accountOrder = append(accountOrder, t.AccountID)
		}
		ad.balance += e.BalanceDelta
		ad.pending += e.PendingDelta
		ad.available += e.AvailableDelta

		ck := t.AccountID + "|" + t.ClientID + "|" + t.CaseID
		cd, ok := clientDeltas[ck]
		if !ok {
			cd = &clientDelta{
				accountID: t.AccountID,
				clientID:  t.ClientID,
				caseID:    t.CaseID,
				currency:  t.Currency,
			}
			clientDeltas[ck] = cd
			clientOrder = append(clientOrder, ck)
		}
		cd.delta += e.ClientDelta
	}
	for _, sc := range mv.StatusChanges {
		if _, ok := accountDeltas[sc.AccountID]; !ok {
			accountDeltas[sc.AccountID] = &accountDelta{}
			accountOrder = append(accountOrder, sc.AccountID)
		}
	}

	// Ascending account order keeps cross-account transfers writing items in
	// the same sequence regardless of which leg came first.
	sort.Strings(accountOrder)
	sort.Strings(clientOrder)

	now := time.Now().UTC().Format(time.RFC3339Nano)
	var items []types.TransactWriteItem
	var tags []itemTag

	for _, accountID := range accountOrder {
		ad := accountDeltas[accountID]
		acct, err := r.readAccount(ctx, mv.FirmID, accountID)
		if err != nil {
			return nil, nil, err
		}
		if acct.status != "active" {
			return nil, nil, commonErrors.NewAccountClosedError(fmt.Sprintf("account %s is closed", accountID))
		}

		update := expression.Set(expression.Name("Balance"), expression.Value(acct.balance+ad.balance)).
			Set(expression.Name("PendingBalance"), expression.Value(acct.pending+ad.pending)).
			Set(expression.Name("AvailableBalance"), expression.Value(acct.available+ad.available)).
			Set(expression.Name("Version"), expression.Value(acct.version+1)).
			Set(expression.Name("UpdatedAt"), expression.Value(now))
		condition := expression.Name("Version").Equal(expression.Value(acct.version)).
			And(expression.Name("Status").Equal(expression.Value("active")))

		expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(condition).Build()
		if err != nil {
			return nil, nil, commonErrors.NewInternalError("failed to build expression", err)
		}

		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName: aws.String(r.table),
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: firmPK(mv.FirmID)},
					"SK": &types.AttributeValueMemberS{Value: accountSK(accountID)},
				},
				UpdateExpression:          expr.Update(),
				ConditionExpression:       expr.Condition(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
			},
		})
		tags = append(tags, itemTag{kind: kindAccount, accountID: accountID})
	}

	for _, ck := range clientOrder {
		cd := clientDeltas[ck]
		item, err := r.clientBalanceItem(mv.FirmID, cd.accountID, cd.clientID, cd.caseID, cd.currency, cd.delta, now)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, *item)
		tags = append(tags, itemTag{kind: kindClientBalance, accountID: cd.accountID, clientID: cd.clientID})
	}

	for _, e := range mv.Entries {
		t := e.Transaction
		item, err := attributevalue.MarshalMap(t)
		if err != nil {
			return nil, nil, commonErrors.NewInternalError("failed to marshal transaction", err)
		}
		item["PK"] = &types.AttributeValueMemberS{Value: accountPK(mv.FirmID, t.AccountID)}
		item["SK"] = &types.AttributeValueMemberS{Value: txnSK(t.TransactionID)}
		item["Type"] = &types.AttributeValueMemberS{Value: "trust_transaction"}

		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(r.table),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			},
		})
		tags = append(tags, itemTag{kind: kindTransactionPut, accountID: t.AccountID, txnID: t.TransactionID})
	}

	for _, sc := range mv.StatusChanges {
		update := expression.Set(expression.Name("Status"), expression.Value(sc.To)).
			Set(expression.Name("UpdatedAt"), expression.Value(now))
		if sc.VoidedBy != "" {
			update = update.Set(expression.Name("VoidedBy"), expression.Value(sc.VoidedBy)).
				Set(expression.Name("VoidReason"), expression.Value(sc.VoidReason))
		}
		// Re-checked inside the transaction: the status read by the service
		// may be stale, and a reconciliation may have locked the entry since.
		condition := expression.Name("Status").Equal(expression.Value(sc.From)).
			And(expression.Name("ReconciliationID").AttributeNotExists())

		expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(condition).Build()
		if err != nil {
			return nil, nil, commonErrors.NewInternalError("failed to build expression", err)
		}

		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName: aws.String(r.table),
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: accountPK(mv.FirmID, sc.AccountID)},
					"SK": &types.AttributeValueMemberS{Value: txnSK(sc.TransactionID)},
				},
				UpdateExpression:          expr.Update(),
				ConditionExpression:       expr.Condition(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
			},
		})
		tags = append(tags, itemTag{kind: kindStatusChange, accountID: sc.AccountID, txnID: sc.TransactionID})
	}

	if mv.IdempotencyKey != "" {
		record := idempotencyRecord{
			IdempotencyKey: mv.IdempotencyKey,
			CreatedAt:      time.Now().UTC(),
		}
		for _, e := range mv.Entries {
			record.AccountIDs = append(record.AccountIDs, e.Transaction.AccountID)
			record.TransactionIDs = append(record.TransactionIDs, e.Transaction.TransactionID)
		}
		item, err := attributevalue.MarshalMap(record)
		if err != nil {
			return nil, nil, commonErrors.NewInternalError("failed to marshal idempotency record", err)
		}
		item["PK"] = &types.AttributeValueMemberS{Value: accountPK(mv.FirmID, mv.KeyAccountID)}
		item["SK"] = &types.AttributeValueMemberS{Value: idemSK(mv.IdempotencyKey)}
		item["Type"] = &types.AttributeValueMemberS{Value: "idempotency_record"}

		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(r.table),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			},
		})
		tags = append(tags, itemTag{kind: kindIdempotency})
	}

	return items, tags, nil
}

// clientBalanceItem builds the client balance update for a coalesced delta.
// Credits upsert the row; debits require the existing balance to cover the
// amount, so a debit against a missing or short row cancels the transaction.
func (r *DynamoDBLedgerRepository) clientBalanceItem(firmID, accountID, clientID, caseID, currency string, delta int64, now string) (*types.TransactWriteItem, error) {
	update := expression.Set(expression.Name("Balance"),
		expression.Plus(
			expression.IfNotExists(expression.Name("Balance"), expression.Value(0)),
			expression.Value(delta))).
		Set(expression.Name("FirmID"), expression.Value(firmID)).
		Set(expression.Name("AccountID"), expression.Value(accountID)).
		Set(expression.Name("ClientID"), expression.Value(clientID)).
		Set(expression.Name("Currency"), expression.IfNotExists(expression.Name("Currency"), expression.Value(currency))).
		Set(expression.Name("CreatedAt"), expression.IfNotExists(expression.Name("CreatedAt"), expression.Value(now))).
		Set(expression.Name("UpdatedAt"), expression.Value(now))
	if caseID != "" {
		update = update.Set(expression.Name("CaseID"), expression.Value(caseID))
	}

	builder := expression.NewBuilder().WithUpdate(update)
	if delta < 0 {
		builder = builder.WithCondition(
			expression.Name("Balance").GreaterThanEqual(expression.Value(-delta)))
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build expression", err)
	}

	return &types.TransactWriteItem{
		Update: &types.Update{
			TableName: aws.String(r.table),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: accountPK(firmID, accountID)},
				"SK": &types.AttributeValueMemberS{Value: clientBalSK(clientID, caseID)},
			},
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	}, nil
}

// mapMovementError translates a TransactWriteItems failure into either a
// replayed result (the idempotency record was the item that collided and a
// prior application exists) or a typed domain error. The bool reports whether
// the caller should retry.
func (r *DynamoDBLedgerRepository) mapMovementError(ctx context.Context, mv *ledger.Movement, tags []itemTag, err error) (*ledger.MovementResult, bool, error) {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return nil, false, commonErrors.NewStorageError("movement transaction failed", err)
	}

	for i, reason := range canceled.CancellationReasons {
		if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" || i >= len(tags) {
			continue
		}
		tag := tags[i]
		switch tag.kind {
		case kindIdempotency:
			result, ok, replayErr := r.replay(ctx, mv)
			if replayErr != nil {
				return nil, false, replayErr
			}
			if ok {
				return result, false, nil
			}
			return nil, false, commonErrors.NewConflictError("idempotency key collision")

		case kindClientBalance:
			return nil, false, commonErrors.NewInsufficientFundsError(fmt.Sprintf(
				"client %s has insufficient trust funds in account %s", tag.clientID, tag.accountID))

		case kindAccount:
			// Version conflict or a concurrent close; the next attempt
			// re-reads the account and fails typed if it is closed.
			return nil, true, commonErrors.NewConflictError(fmt.Sprintf(
				"account %s was modified concurrently", tag.accountID))

		case kindTransactionPut:
			return nil, false, commonErrors.NewConflictError(fmt.Sprintf(
				"transaction %s already exists", tag.txnID))

		case kindStatusChange:
			txn, getErr := r.GetTransaction(ctx, mv.FirmID, tag.accountID, tag.txnID)
			if getErr != nil {
				return nil, false, getErr
			}
			if txn.ReconciliationID != "" {
				return nil, false, commonErrors.NewReconciliationLockError(fmt.Sprintf(
					"transaction %s was cleared in completed reconciliation %s and cannot be voided",
					tag.txnID, txn.ReconciliationID))
			}
			return nil, false, commonErrors.NewInvalidStateTransitionError(fmt.Sprintf(
				"transaction %s is %s", tag.txnID, txn.Status))
		}
	}
	return nil, false, commonErrors.NewStorageError("movement transaction canceled", err)
}

// replay looks up a prior application of the idempotency key and, when found,
// returns the original transactions without touching any balance.
func (r *DynamoDBLedgerRepository) replay(ctx context.Context, mv *ledger.Movement) (*ledger.MovementResult, bool, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: accountPK(mv.FirmID, mv.KeyAccountID)},
			"SK": &types.AttributeValueMemberS{Value: idemSK(mv.IdempotencyKey)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, commonErrors.NewStorageError("failed to read idempotency record", err)
	}
	if result.Item == nil {
		return nil, false, nil
	}

	var record idempotencyRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return nil, false, commonErrors.NewInternalError("failed to unmarshal idempotency record", err)
	}

	out := &ledger.MovementResult{Replayed: true}
	for i, txnID := range record.TransactionIDs {
		txn, err := r.GetTransaction(ctx, mv.FirmID, record.AccountIDs[i], txnID)
		if err != nil {
			return nil, false, err
		}
		out.Transactions = append(out.Transactions, txn)
	}
	r.logger.Info("movement replayed from idempotency record",
		"idempotencyKey", mv.IdempotencyKey, "transactionIds", record.TransactionIDs)
	return out, true, nil
}

// GetTransaction retrieves a single ledger entry
func (r *DynamoDBLedgerRepository) GetTransaction(ctx context.Context, firmID, accountID, transactionID string) (*ledger.TrustTransaction, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: accountPK(firmID, accountID)},
			"SK": &types.AttributeValueMemberS{Value: txnSK(transactionID)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, commonErrors.NewStorageError("failed to get transaction", err)
	}
	if result.Item == nil {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("transaction %s not found", transactionID))
	}

	var txn ledger.TrustTransaction
	if err := attributevalue.UnmarshalMap(result.Item, &txn); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal transaction", err)
	}
	return &txn, nil
}

// ListTransactions queries an account's ledger entries. ULID sort keys make
// the natural key order chronological; filtering beyond the key is applied to
// the page stream.
func (r *DynamoDBLedgerRepository) ListTransactions(ctx context.Context, firmID, accountID string, filter *ledger.TransactionFilter) ([]*ledger.TrustTransaction, error) {
	keyCondition := expression.Key("PK").Equal(expression.Value(accountPK(firmID, accountID))).
		And(expression.Key("SK").BeginsWith(txnPrefix))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build expression", err)
	}

	txns := []*ledger.TrustTransaction{}
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.table),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
			ConsistentRead:            aws.Bool(true),
		})
		if err != nil {
			return nil, commonErrors.NewStorageError("failed to query transactions", err)
		}
		for _, item := range result.Items {
			var txn ledger.TrustTransaction
			if err := attributevalue.UnmarshalMap(item, &txn); err != nil {
				return nil, commonErrors.NewInternalError("failed to unmarshal transaction", err)
			}
			if !filter.Matches(&txn) {
				continue
			}
			txns = append(txns, &txn)
			if filter != nil && filter.Limit > 0 && len(txns) == filter.Limit {
				return txns, nil
			}
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}
	return txns, nil
}

// MarkCleared flips a pending transaction to cleared and, for credits, moves
// its amount from the pending to the available split of the account balance.
// The account balance itself never changes here.
func (r *DynamoDBLedgerRepository) MarkCleared(ctx context.Context, firmID string, change *ledger.ClearedChange) (*ledger.TrustTransaction, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	txnUpdate := expression.Set(expression.Name("Status"), expression.Value(ledger.Cleared)).
		Set(expression.Name("ClearedDate"), expression.Value(change.ClearedDate)).
		Set(expression.Name("UpdatedAt"), expression.Value(now))
	txnCondition := expression.Name("Status").Equal(expression.Value(ledger.Pending))

	txnExpr, err := expression.NewBuilder().WithUpdate(txnUpdate).WithCondition(txnCondition).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build expression", err)
	}
	txnItem := types.TransactWriteItem{
		Update: &types.Update{
			TableName: aws.String(r.table),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: accountPK(firmID, change.AccountID)},
				"SK": &types.AttributeValueMemberS{Value: txnSK(change.TransactionID)},
			},
			UpdateExpression:          txnExpr.Update(),
			ConditionExpression:       txnExpr.Condition(),
			ExpressionAttributeNames:  txnExpr.Names(),
			ExpressionAttributeValues: txnExpr.Values(),
		},
	}

	if change.PendingDelta == 0 && change.AvailableDelta == 0 {
		_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []types.TransactWriteItem{txnItem},
		})
	} else {
		var acctItem *types.TransactWriteItem
		for attempt := 0; ; attempt++ {
			acct, readErr := r.readAccount(ctx, firmID, change.AccountID)
			if readErr != nil {
				return nil, readErr
			}

			update := expression.Set(expression.Name("PendingBalance"), expression.Value(acct.pending+change.PendingDelta)).
				Set(expression.Name("AvailableBalance"), expression.Value(acct.available+change.AvailableDelta)).
				Set(expression.Name("Version"), expression.Value(acct.version+1)).
				Set(expression.Name("UpdatedAt"), expression.Value(now))
			condition := expression.Name("Version").Equal(expression.Value(acct.version))

			expr, buildErr := expression.NewBuilder().WithUpdate(update).WithCondition(condition).Build()
			if buildErr != nil {
				return nil, commonErrors.NewInternalError("failed to build expression", buildErr)
			}
			acctItem = &types.TransactWriteItem{
				Update: &types.Update{
					TableName: aws.String(r.table),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: firmPK(firmID)},
						"SK": &types.AttributeValueMemberS{Value: accountSK(change.AccountID)},
					},
					UpdateExpression:          expr.Update(),
					ConditionExpression:       expr.Condition(),
					ExpressionAttributeNames:  expr.Names(),
					ExpressionAttributeValues: expr.Values(),
				},
			}

			_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
				TransactItems: []types.TransactWriteItem{txnItem, *acctItem},
			})
			if err == nil {
				break
			}
			if idx := conditionalFailureIndex(err); idx == 1 && attempt < maxMovementRetries-1 {
				continue
			}
			break
		}
	}

	if err != nil {
		if idx := conditionalFailureIndex(err); idx == 0 {
			txn, getErr := r.GetTransaction(ctx, firmID, change.AccountID, change.TransactionID)
			if getErr != nil {
				return nil, getErr
			}
			return nil, commonErrors.NewInvalidStateTransitionError(fmt.Sprintf(
				"transaction %s is %s and cannot be marked cleared", change.TransactionID, txn.Status))
		} else if idx == 1 {
			return nil, commonErrors.NewConflictError(fmt.Sprintf(
				"account %s was modified concurrently", change.AccountID))
		}
		return nil, commonErrors.NewStorageError("failed to mark transaction cleared", err)
	}

	return r.GetTransaction(ctx, firmID, change.AccountID, change.TransactionID)
}

// LockTransactions stamps a completed reconciliation's id onto its cleared
// transactions in batches. The condition tolerates re-stamping with the same
// id so an interrupted completion can be retried safely.
func (r *DynamoDBLedgerRepository) LockTransactions(ctx context.Context, firmID, accountID string, transactionIDs []string, reconciliationID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	for start := 0; start < len(transactionIDs); start += lockBatchSize {
		end := start + lockBatchSize
		if end > len(transactionIDs) {
			end = len(transactionIDs)
		}

		var items []types.TransactWriteItem
		for _, txnID := range transactionIDs[start:end] {
			update := expression.Set(expression.Name("ReconciliationID"), expression.Value(reconciliationID)).
				Set(expression.Name("UpdatedAt"), expression.Value(now))
			condition := expression.Name("ReconciliationID").AttributeNotExists().
				Or(expression.Name("ReconciliationID").Equal(expression.Value(reconciliationID)))

			expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(condition).Build()
			if err != nil {
				return commonErrors.NewInternalError("failed to build expression", err)
			}
			items = append(items, types.TransactWriteItem{
				Update: &types.Update{
					TableName: aws.String(r.table),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: accountPK(firmID, accountID)},
						"SK": &types.AttributeValueMemberS{Value: txnSK(txnID)},
					},
					UpdateExpression:          expr.Update(),
					ConditionExpression:       expr.Condition(),
					ExpressionAttributeNames:  expr.Names(),
					ExpressionAttributeValues: expr.Values(),
				},
			})
		}

		if _, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items,
		}); err != nil {
			if conditionalFailureIndex(err) >= 0 {
				return commonErrors.NewConflictError(
					"a transaction in this reconciliation is already locked by another reconciliation")
			}
			return commonErrors.NewStorageError("failed to lock reconciled transactions", err)
		}
	}
	return nil
}

// GetClientBalance retrieves one client's balance row
func (r *DynamoDBLedgerRepository) GetClientBalance(ctx context.Context, firmID, accountID, clientID, caseID string) (*ledger.ClientTrustBalance, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: accountPK(firmID, accountID)},
			"SK": &types.AttributeValueMemberS{Value: clientBalSK(clientID, caseID)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, commonErrors.NewStorageError("failed to get client balance", err)
	}
	if result.Item == nil {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf(
			"client %s has no trust balance in account %s", clientID, accountID))
	}

	var bal ledger.ClientTrustBalance
	if err := attributevalue.UnmarshalMap(result.Item, &bal); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal client balance", err)
	}
	return &bal, nil
}

// ListClientBalances retrieves every client balance row for an account,
// zero balances included
func (r *DynamoDBLedgerRepository) ListClientBalances(ctx context.Context, firmID, accountID string) ([]*ledger.ClientTrustBalance, error) {
	keyCondition := expression.Key("PK").Equal(expression.Value(accountPK(firmID, accountID))).
		And(expression.Key("SK").BeginsWith(clientBalPrefix))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build expression", err)
	}

	balances := []*ledger.ClientTrustBalance{}
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.table),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
			ConsistentRead:            aws.Bool(true),
		})
		if err != nil {
			return nil, commonErrors.NewStorageError("failed to query client balances", err)
		}
		for _, item := range result.Items {
			var bal ledger.ClientTrustBalance
			if err := attributevalue.UnmarshalMap(item, &bal); err != nil {
				return nil, commonErrors.NewInternalError("failed to unmarshal client balance", err)
			}
			balances = append(balances, &bal)
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}
	return balances, nil
}

// accountSnapshot is the slice of the account item the movement path needs
type accountSnapshot struct {
	balance   int64
	pending   int64
	available int64
	version   int64
	status    string
}

func (r *DynamoDBLedgerRepository) readAccount(ctx context.Context, firmID, accountID string) (*accountSnapshot, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: firmPK(firmID)},
			"SK": &types.AttributeValueMemberS{Value: accountSK(accountID)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, commonErrors.NewStorageError("failed to read account", err)
	}
	if result.Item == nil {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("trust account %s not found", accountID))
	}

	var raw struct {
		Balance          int64
		PendingBalance   int64
		AvailableBalance int64
		Version          int64
		Status           string
	}
	if err := attributevalue.UnmarshalMap(result.Item, &raw); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal account", err)
	}
	return &accountSnapshot{
		balance:   raw.Balance,
		pending:   raw.PendingBalance,
		available: raw.AvailableBalance,
		version:   raw.Version,
		status:    raw.Status,
	}, nil
}

// conditionalFailureIndex returns the index of the first transact item whose
// condition failed, or -1 when the error is not a conditional cancellation.
func conditionalFailureIndex(err error) int {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return -1
	}
	for i, reason := range canceled.CancellationReasons {
		if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
			return i
		}
	}
	return -1
}
