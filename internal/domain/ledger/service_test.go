package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traf3li/trustledger/internal/domain/account"
	"github.com/traf3li/trustledger/internal/domain/errors"
	"github.com/traf3li/trustledger/pkg/validator"
)

// fakeAccounts is an in-memory account repository
type fakeAccounts struct {
	accounts map[string]*account.TrustAccount
}

func (f *fakeAccounts) CreateAccount(ctx context.Context, acct *account.TrustAccount) (*account.TrustAccount, error) {
	f.accounts[acct.AccountID] = acct
	return acct, nil
}

func (f *fakeAccounts) GetAccount(ctx context.Context, firmID, accountID string) (*account.TrustAccount, error) {
	acct, ok := f.accounts[accountID]
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("trust account %s not found", accountID))
	}
	return acct, nil
}

func (f *fakeAccounts) ListAccounts(ctx context.Context, firmID string) ([]*account.TrustAccount, error) {
	var out []*account.TrustAccount
	for _, acct := range f.accounts {
		out = append(out, acct)
	}
	return out, nil
}

func (f *fakeAccounts) CloseAccount(ctx context.Context, firmID, accountID, reason string) (*account.TrustAccount, error) {
	acct, ok := f.accounts[accountID]
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("trust account %s not found", accountID))
	}
	acct.Status = account.Closed
	acct.ClosedReason = reason
	return acct, nil
}

// fakeStore is an in-memory ledger store with the same observable semantics
// as the DynamoDB implementation: movements apply atomically, client balances
// never go negative, and idempotent movements replay without state change.
type fakeStore struct {
	accounts *fakeAccounts
	txns     map[string]*TrustTransaction
	order    []string
	clients  map[string]*ClientTrustBalance
	idem     map[string][]string
}

func newFakeStore(accounts *fakeAccounts) *fakeStore {
	return &fakeStore{
		accounts: accounts,
		txns:     make(map[string]*TrustTransaction),
		clients:  make(map[string]*ClientTrustBalance),
		idem:     make(map[string][]string),
	}
}

func txnKey(accountID, transactionID string) string {
	return accountID + "/" + transactionID
}

func clientKey(accountID, clientID, caseID string) string {
	return accountID + "/" + clientID + "/" + caseID
}

func (f *fakeStore) ApplyMovement(ctx context.Context, mv *Movement) (*MovementResult, error) {
	if len(mv.Entries) == 0 && len(mv.StatusChanges) == 0 {
		return nil, errors.NewValidationError("movement is empty")
	}

	if mv.IdempotencyKey != "" {
		if keys, ok := f.idem[mv.IdempotencyKey]; ok {
			out := &MovementResult{Replayed: true}
			for _, k := range keys {
				out.Transactions = append(out.Transactions, f.txns[k])
			}
			return out, nil
		}
	}

	// Validate everything before touching any state
	for _, e := range mv.Entries {
		acct, ok := f.accounts.accounts[e.Transaction.AccountID]
		if !ok {
			return nil, errors.NewNotFoundError("trust account not found")
		}
		if acct.Status != account.Active {
			return nil, errors.NewAccountClosedError(fmt.Sprintf("account %s is closed", acct.AccountID))
		}
	}
	clientDeltas := map[string]int64{}
	for _, e := range mv.Entries {
		t := e.Transaction
		clientDeltas[clientKey(t.AccountID, t.ClientID, t.CaseID)] += e.ClientDelta
	}
	for key, delta := range clientDeltas {
		var current int64
		if bal, ok := f.clients[key]; ok {
			current = bal.Balance
		}
		if current+delta < 0 {
			return nil, errors.NewInsufficientFundsError("client has insufficient trust funds")
		}
	}
	for _, sc := range mv.StatusChanges {
		txn, ok := f.txns[txnKey(sc.AccountID, sc.TransactionID)]
		if !ok {
			return nil, errors.NewNotFoundError("transaction not found")
		}
		if txn.ReconciliationID != "" {
			return nil, errors.NewReconciliationLockError(fmt.Sprintf(
				"transaction %s was cleared in completed reconciliation %s and cannot be voided",
				sc.TransactionID, txn.ReconciliationID))
		}
		if txn.Status != sc.From {
			return nil, errors.NewInvalidStateTransitionError(fmt.Sprintf(
				"transaction %s is %s", sc.TransactionID, txn.Status))
		}
	}

	// Apply
	now := time.Now().UTC()
	result := &MovementResult{}
	var keys []string
	for _, e := range mv.Entries {
		t := e.Transaction
		acct := f.accounts.accounts[t.AccountID]
		acct.Balance += e.BalanceDelta
		acct.PendingBalance += e.PendingDelta
		acct.AvailableBalance += e.AvailableDelta

		ck := clientKey(t.AccountID, t.ClientID, t.CaseID)
		bal, ok := f.clients[ck]
		if !ok {
			bal = &ClientTrustBalance{
				FirmID:    t.FirmID,
				AccountID: t.AccountID,
				ClientID:  t.ClientID,
				CaseID:    t.CaseID,
				Currency:  t.Currency,
				CreatedAt: now,
			}
			f.clients[ck] = bal
		}
		bal.Balance += e.ClientDelta
		bal.UpdatedAt = now

		k := txnKey(t.AccountID, t.TransactionID)
		f.txns[k] = t
		f.order = append(f.order, k)
		keys = append(keys, k)
		result.Transactions = append(result.Transactions, t)
	}
	for _, sc := range mv.StatusChanges {
		txn := f.txns[txnKey(sc.AccountID, sc.TransactionID)]
		txn.Status = sc.To
		txn.VoidedBy = sc.VoidedBy
		txn.VoidReason = sc.VoidReason
		txn.UpdatedAt = now
	}
	if mv.IdempotencyKey != "" {
		f.idem[mv.IdempotencyKey] = keys
	}
	return result, nil
}

func (f *fakeStore) GetTransaction(ctx context.Context, firmID, accountID, transactionID string) (*TrustTransaction, error) {
	txn, ok := f.txns[txnKey(accountID, transactionID)]
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("transaction %s not found", transactionID))
	}
	return txn, nil
}

func (f *fakeStore) ListTransactions(ctx context.Context, firmID, accountID string, filter *TransactionFilter) ([]*TrustTransaction, error) {
	txns := []*TrustTransaction{}
	for _, k := range f.order {
		txn := f.txns[k]
		if txn.AccountID != accountID || !filter.Matches(txn) {
			continue
		}
		txns = append(txns, txn)
		if filter != nil && filter.Limit > 0 && len(txns) == filter.Limit {
			break
		}
	}
	return txns, nil
}

func (f *fakeStore) MarkCleared(ctx context.Context, firmID string, change *ClearedChange) (*TrustTransaction, error) {
	txn, ok := f.txns[txnKey(change.AccountID, change.TransactionID)]
	if !ok {
		return nil, errors.NewNotFoundError("transaction not found")
	}
	if txn.Status != Pending {
		return nil, errors.NewInvalidStateTransitionError(fmt.Sprintf(
			"transaction %s is %s and cannot be marked cleared", change.TransactionID, txn.Status))
	}
	txn.Status = Cleared
	txn.ClearedDate = change.ClearedDate
	acct := f.accounts.accounts[change.AccountID]
	acct.PendingBalance += change.PendingDelta
	acct.AvailableBalance += change.AvailableDelta
	return txn, nil
}

func (f *fakeStore) LockTransactions(ctx context.Context, firmID, accountID string, transactionIDs []string, reconciliationID string) error {
	for _, id := range transactionIDs {
		txn := f.txns[txnKey(accountID, id)]
		if txn.ReconciliationID != "" && txn.ReconciliationID != reconciliationID {
			return errors.NewConflictError("transaction already locked by another reconciliation")
		}
		txn.ReconciliationID = reconciliationID
	}
	return nil
}

func (f *fakeStore) GetClientBalance(ctx context.Context, firmID, accountID, clientID, caseID string) (*ClientTrustBalance, error) {
	bal, ok := f.clients[clientKey(accountID, clientID, caseID)]
	if !ok {
		return nil, errors.NewNotFoundError("client has no trust balance")
	}
	return bal, nil
}

func (f *fakeStore) ListClientBalances(ctx context.Context, firmID, accountID string) ([]*ClientTrustBalance, error) {
	balances := []*ClientTrustBalance{}
	for _, bal := range f.clients {
		if bal.AccountID == accountID {
			balances = append(balances, bal)
		}
	}
	return balances, nil
}

func newTestService() (*Service, *fakeStore, *fakeAccounts) {
	accounts := &fakeAccounts{accounts: map[string]*account.TrustAccount{
		"acct1": {FirmID: "firm1", AccountID: "acct1", Name: "General Trust", AccountType: account.Pooled, Currency: "USD", Status: account.Active, Version: 1},
		"acct2": {FirmID: "firm1", AccountID: "acct2", Name: "Litigation Trust", AccountType: account.Pooled, Currency: "USD", Status: account.Active, Version: 1},
		"acct3": {FirmID: "firm1", AccountID: "acct3", Name: "EUR Trust", AccountType: account.Separate, Currency: "EUR", Status: account.Active, Version: 1},
	}}
	store := newFakeStore(accounts)
	return NewService(store, accounts, validator.New()), store, accounts
}

// assertClientSum checks the pooled-account invariant: the account balance
// always equals the sum of its client balances.
func assertClientSum(t *testing.T, store *fakeStore, accountID string) {
	t.Helper()
	var sum int64
	for _, bal := range store.clients {
		if bal.AccountID == accountID {
			sum += bal.Balance
		}
	}
	assert.Equal(t, store.accounts.accounts[accountID].Balance, sum,
		"account balance must equal the sum of client balances")
}

func deposit(t *testing.T, svc *Service, accountID, clientID, amount string) *TrustTransaction {
	t.Helper()
	result, err := svc.Deposit(context.Background(), "firm1", accountID, &DepositRequest{
		ClientID:  clientID,
		Amount:    amount,
		Payor:     "Acme Corp",
		Reference: "check 1042",
	})
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	return result.Transactions[0]
}

func TestDeposit(t *testing.T) {
	t.Run("records pending deposit", func(t *testing.T) {
		svc, store, accounts := newTestService()

		txn := deposit(t, svc, "acct1", "client1", "150.00")
		assert.Equal(t, Deposit, txn.TransactionType)
		assert.Equal(t, int64(15000), txn.Amount)
		assert.Equal(t, Pending, txn.Status)
		assert.NotEmpty(t, txn.TransactionID)

		acct := accounts.accounts["acct1"]
		assert.Equal(t, int64(15000), acct.Balance)
		assert.Equal(t, int64(15000), acct.PendingBalance)
		assert.Equal(t, int64(0), acct.AvailableBalance)
		assertClientSum(t, store, "acct1")
	})

	t.Run("rejects bad amounts", func(t *testing.T) {
		svc, _, _ := newTestService()
		for _, amount := range []string{"abc", "-5.00", "0", "10.005"} {
			_, err := svc.Deposit(context.Background(), "firm1", "acct1", &DepositRequest{
				ClientID: "client1", Amount: amount, Payor: "Acme Corp", Reference: "r1",
			})
			assert.Error(t, err, "amount %q must be rejected", amount)
			assert.Contains(t, err.Error(), "VALIDATION_ERROR")
		}
	})

	t.Run("rejects missing payor", func(t *testing.T) {
		svc, _, _ := newTestService()
		_, err := svc.Deposit(context.Background(), "firm1", "acct1", &DepositRequest{
			ClientID: "client1", Amount: "150.00", Reference: "r1",
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "VALIDATION_ERROR")
	})

	t.Run("rejects closed account", func(t *testing.T) {
		svc, _, accounts := newTestService()
		accounts.accounts["acct1"].Status = account.Closed

		_, err := svc.Deposit(context.Background(), "firm1", "acct1", &DepositRequest{
			ClientID: "client1", Amount: "150.00", Payor: "Acme Corp", Reference: "r1",
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "ACCOUNT_CLOSED")
	})
}

func TestWithdraw(t *testing.T) {
	t.Run("overdraft attempt leaves state untouched", func(t *testing.T) {
		svc, store, accounts := newTestService()
		deposit(t, svc, "acct1", "client1", "150.00")

		_, err := svc.Withdraw(context.Background(), "firm1", "acct1", &WithdrawRequest{
			ClientID: "client1", Amount: "200.00", Payee: "County Clerk", Reference: "filing fee",
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "INSUFFICIENT_FUNDS")
		assert.Equal(t, int64(15000), accounts.accounts["acct1"].Balance)

		result, err := svc.Withdraw(context.Background(), "firm1", "acct1", &WithdrawRequest{
			ClientID: "client1", Amount: "50.00", Payee: "County Clerk", Reference: "filing fee",
		})
		require.NoError(t, err)
		assert.Equal(t, Withdrawal, result.Transactions[0].TransactionType)
		assert.Equal(t, int64(10000), accounts.accounts["acct1"].Balance)
		assertClientSum(t, store, "acct1")
	})

	t.Run("cannot draw on another client's share", func(t *testing.T) {
		svc, _, _ := newTestService()
		deposit(t, svc, "acct1", "client1", "150.00")
		deposit(t, svc, "acct1", "client2", "100.00")

		// The account holds 250.00 but client2 only owns 100.00 of it
		_, err := svc.Withdraw(context.Background(), "firm1", "acct1", &WithdrawRequest{
			ClientID: "client2", Amount: "150.00", Payee: "County Clerk", Reference: "filing fee",
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "INSUFFICIENT_FUNDS")
	})

	t.Run("carries audit links", func(t *testing.T) {
		svc, _, _ := newTestService()
		deposit(t, svc, "acct1", "client1", "150.00")

		result, err := svc.Withdraw(context.Background(), "firm1", "acct1", &WithdrawRequest{
			ClientID: "client1", Amount: "50.00", Payee: "Firm Operating", Reference: "inv-901",
			LinkedInvoiceID: "inv-901",
		})
		require.NoError(t, err)
		assert.Equal(t, "inv-901", result.Transactions[0].LinkedInvoiceID)
	})
}

func TestDepositIdempotency(t *testing.T) {
	svc, store, accounts := newTestService()

	req := &DepositRequest{
		ClientID: "client1", Amount: "150.00", Payor: "Acme Corp", Reference: "check 1042",
		IdempotencyKey: "dep-2026-01-15-1042",
	}
	first, err := svc.Deposit(context.Background(), "firm1", "acct1", req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := svc.Deposit(context.Background(), "firm1", "acct1", req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transactions[0].TransactionID, second.Transactions[0].TransactionID)

	// The retry must not have moved any money
	assert.Equal(t, int64(15000), accounts.accounts["acct1"].Balance)
	assertClientSum(t, store, "acct1")
}

func TestTransfer(t *testing.T) {
	t.Run("between clients in one account", func(t *testing.T) {
		svc, store, accounts := newTestService()
		deposit(t, svc, "acct1", "client1", "150.00")

		result, err := svc.Transfer(context.Background(), "firm1", &TransferRequest{
			FromAccountID: "acct1", ToAccountID: "acct1",
			FromClientID: "client1", ToClientID: "client2",
			Amount: "50.00", Reference: "settlement split",
		})
		require.NoError(t, err)
		require.Len(t, result.Transactions, 2)

		var out, in *TrustTransaction
		for _, txn := range result.Transactions {
			if txn.TransactionType == TransferOut {
				out = txn
			} else {
				in = txn
			}
		}
		require.NotNil(t, out)
		require.NotNil(t, in)
		assert.NotEmpty(t, out.TransferID)
		assert.Equal(t, out.TransferID, in.TransferID)
		assert.Equal(t, in.TransactionID, out.CounterpartTransactionID)
		assert.Equal(t, out.TransactionID, in.CounterpartTransactionID)

		assert.Equal(t, int64(15000), accounts.accounts["acct1"].Balance, "account total is unchanged")
		c1, err := store.GetClientBalance(context.Background(), "firm1", "acct1", "client1", "")
		require.NoError(t, err)
		c2, err := store.GetClientBalance(context.Background(), "firm1", "acct1", "client2", "")
		require.NoError(t, err)
		assert.Equal(t, int64(10000), c1.Balance)
		assert.Equal(t, int64(5000), c2.Balance)
		assertClientSum(t, store, "acct1")
	})

	t.Run("across accounts", func(t *testing.T) {
		svc, store, accounts := newTestService()
		deposit(t, svc, "acct1", "client1", "150.00")

		_, err := svc.Transfer(context.Background(), "firm1", &TransferRequest{
			FromAccountID: "acct1", ToAccountID: "acct2",
			FromClientID: "client1", ToClientID: "client1",
			Amount: "40.00", Reference: "matter moved",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(11000), accounts.accounts["acct1"].Balance)
		assert.Equal(t, int64(4000), accounts.accounts["acct2"].Balance)
		assertClientSum(t, store, "acct1")
		assertClientSum(t, store, "acct2")
	})

	t.Run("rejects currency mismatch", func(t *testing.T) {
		svc, _, _ := newTestService()
		deposit(t, svc, "acct1", "client1", "150.00")

		_, err := svc.Transfer(context.Background(), "firm1", &TransferRequest{
			FromAccountID: "acct1", ToAccountID: "acct3",
			FromClientID: "client1", ToClientID: "client1",
			Amount: "40.00", Reference: "matter moved",
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "VALIDATION_ERROR")
	})

	t.Run("rejects same source and destination", func(t *testing.T) {
		svc, _, _ := newTestService()
		_, err := svc.Transfer(context.Background(), "firm1", &TransferRequest{
			FromAccountID: "acct1", ToAccountID: "acct1",
			FromClientID: "client1", ToClientID: "client1",
			Amount: "40.00", Reference: "noop",
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "VALIDATION_ERROR")
	})

	t.Run("rejects uncovered source", func(t *testing.T) {
		svc, _, _ := newTestService()
		deposit(t, svc, "acct1", "client1", "30.00")

		_, err := svc.Transfer(context.Background(), "firm1", &TransferRequest{
			FromAccountID: "acct1", ToAccountID: "acct1",
			FromClientID: "client1", ToClientID: "client2",
			Amount: "50.00", Reference: "too much",
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "INSUFFICIENT_FUNDS")
	})
}

func TestVoid(t *testing.T) {
	t.Run("appends reversal and marks original", func(t *testing.T) {
		svc, store, accounts := newTestService()
		txn := deposit(t, svc, "acct1", "client1", "150.00")

		result, err := svc.Void(context.Background(), "firm1", "acct1", txn.TransactionID, &VoidRequest{
			Reason: "deposited to wrong client",
		})
		require.NoError(t, err)
		require.Len(t, result.Transactions, 1)

		reversal := result.Transactions[0]
		assert.Equal(t, Withdrawal, reversal.TransactionType)
		assert.Equal(t, Cleared, reversal.Status)
		assert.Equal(t, txn.TransactionID, reversal.Voids)
		assert.Contains(t, reversal.Description, "deposited to wrong client")

		original, err := store.GetTransaction(context.Background(), "firm1", "acct1", txn.TransactionID)
		require.NoError(t, err)
		assert.Equal(t, Voided, original.Status)
		assert.Equal(t, reversal.TransactionID, original.VoidedBy)

		acct := accounts.accounts["acct1"]
		assert.Equal(t, int64(0), acct.Balance)
		assert.Equal(t, int64(0), acct.PendingBalance)
		assert.Equal(t, int64(0), acct.AvailableBalance)
		assertClientSum(t, store, "acct1")
	})

	t.Run("voiding twice fails", func(t *testing.T) {
		svc, _, _ := newTestService()
		txn := deposit(t, svc, "acct1", "client1", "150.00")

		_, err := svc.Void(context.Background(), "firm1", "acct1", txn.TransactionID, &VoidRequest{Reason: "mistake"})
		require.NoError(t, err)

		_, err = svc.Void(context.Background(), "firm1", "acct1", txn.TransactionID, &VoidRequest{Reason: "again"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "INVALID_STATE_TRANSITION")
	})

	t.Run("reconciled transactions are frozen", func(t *testing.T) {
		svc, store, _ := newTestService()
		txn := deposit(t, svc, "acct1", "client1", "150.00")
		require.NoError(t, store.LockTransactions(context.Background(), "firm1", "acct1", []string{txn.TransactionID}, "recon1"))

		_, err := svc.Void(context.Background(), "firm1", "acct1", txn.TransactionID, &VoidRequest{Reason: "too late"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "RECONCILIATION_LOCKED")
	})

	t.Run("voiding a transfer leg voids both legs", func(t *testing.T) {
		svc, store, accounts := newTestService()
		deposit(t, svc, "acct1", "client1", "150.00")
		transfer, err := svc.Transfer(context.Background(), "firm1", &TransferRequest{
			FromAccountID: "acct1", ToAccountID: "acct2",
			FromClientID: "client1", ToClientID: "client1",
			Amount: "40.00", Reference: "matter moved",
		})
		require.NoError(t, err)

		leg := transfer.Transactions[0]
		result, err := svc.Void(context.Background(), "firm1", leg.AccountID, leg.TransactionID, &VoidRequest{
			Reason: "transfer was premature",
		})
		require.NoError(t, err)
		assert.Len(t, result.Transactions, 2, "one reversal per leg")

		for _, original := range transfer.Transactions {
			got, err := store.GetTransaction(context.Background(), "firm1", original.AccountID, original.TransactionID)
			require.NoError(t, err)
			assert.Equal(t, Voided, got.Status)
		}
		assert.Equal(t, int64(15000), accounts.accounts["acct1"].Balance)
		assert.Equal(t, int64(0), accounts.accounts["acct2"].Balance)
		assertClientSum(t, store, "acct1")
		assertClientSum(t, store, "acct2")
	})
}

func TestMarkCleared(t *testing.T) {
	t.Run("shifts a deposit from pending to available", func(t *testing.T) {
		svc, _, accounts := newTestService()
		txn := deposit(t, svc, "acct1", "client1", "150.00")

		cleared, err := svc.MarkCleared(context.Background(), "firm1", "acct1", txn.TransactionID,
			&MarkClearedRequest{ClearedDate: "2026-01-20"})
		require.NoError(t, err)
		assert.Equal(t, Cleared, cleared.Status)
		assert.Equal(t, "2026-01-20", cleared.ClearedDate)

		acct := accounts.accounts["acct1"]
		assert.Equal(t, int64(15000), acct.Balance, "clearing never moves the balance")
		assert.Equal(t, int64(0), acct.PendingBalance)
		assert.Equal(t, int64(15000), acct.AvailableBalance)
	})

	t.Run("leaves the split alone for withdrawals", func(t *testing.T) {
		svc, _, accounts := newTestService()
		deposit(t, svc, "acct1", "client1", "150.00")
		result, err := svc.Withdraw(context.Background(), "firm1", "acct1", &WithdrawRequest{
			ClientID: "client1", Amount: "50.00", Payee: "County Clerk", Reference: "filing fee",
		})
		require.NoError(t, err)

		pendingBefore := accounts.accounts["acct1"].PendingBalance
		_, err = svc.MarkCleared(context.Background(), "firm1", "acct1", result.Transactions[0].TransactionID,
			&MarkClearedRequest{ClearedDate: "2026-01-22"})
		require.NoError(t, err)
		assert.Equal(t, pendingBefore, accounts.accounts["acct1"].PendingBalance)
	})

	t.Run("only pending transactions clear", func(t *testing.T) {
		svc, _, _ := newTestService()
		txn := deposit(t, svc, "acct1", "client1", "150.00")

		_, err := svc.MarkCleared(context.Background(), "firm1", "acct1", txn.TransactionID,
			&MarkClearedRequest{ClearedDate: "2026-01-20"})
		require.NoError(t, err)

		_, err = svc.MarkCleared(context.Background(), "firm1", "acct1", txn.TransactionID,
			&MarkClearedRequest{ClearedDate: "2026-01-21"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "INVALID_STATE_TRANSITION")
	})
}
