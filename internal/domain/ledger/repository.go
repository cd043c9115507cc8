package ledger

import (
	"context"
)

// MovementEntry is one new ledger entry plus the balance deltas it causes.
// BalanceDelta applies to the account balance, PendingDelta/AvailableDelta to
// its split, and ClientDelta to the client's balance row. A negative
// ClientDelta may only be applied when the client's balance covers it; the
// store rejects the whole movement otherwise.
type MovementEntry struct {
	Transaction    *TrustTransaction
	BalanceDelta   int64
	PendingDelta   int64
	AvailableDelta int64
	ClientDelta    int64
}

// StatusChange flips an existing transaction's status as part of a movement,
// used by voids to mark the original while appending its reversal.
type StatusChange struct {
	AccountID     string
	TransactionID string
	From          TransactionStatus
	To            TransactionStatus
	VoidedBy      string
	VoidReason    string
}

// Movement is the atomic unit of ledger change: every entry, balance delta,
// and status change commits together or not at all.
type Movement struct {
	FirmID         string
	IdempotencyKey string
	// KeyAccountID scopes the idempotency record; movements spanning two
	// accounts use the first (lowest) account id
	KeyAccountID string
	Entries       []MovementEntry
	StatusChanges []StatusChange
}

// MovementResult reports the transactions a movement produced. Replayed is
// true when the idempotency key matched a prior application and the original
// result was returned without any state change.
type MovementResult struct {
	Transactions []*TrustTransaction
	Replayed     bool
}

// ClearedChange marks a transaction bank-cleared. The deltas shift uncleared
// deposit amounts from the pending to the available split of the account
// balance; the balance itself is untouched.
type ClearedChange struct {
	AccountID      string
	TransactionID  string
	ClearedDate    string
	PendingDelta   int64
	AvailableDelta int64
}

// Store is the ledger store: durable, strictly consistent storage for
// transactions and balances. Implementations must make partial application
// structurally impossible and must serialize writes per account so that two
// concurrent withdrawals cannot both succeed and overdraw a client.
type Store interface {
	// Apply a movement atomically
	ApplyMovement(ctx context.Context, mv *Movement) (*MovementResult, error)

	// Get a single transaction
	GetTransaction(ctx context.Context, firmID, accountID, transactionID string) (*TrustTransaction, error)

	// List transactions for an account in chronological order
	ListTransactions(ctx context.Context, firmID, accountID string, filter *TransactionFilter) ([]*TrustTransaction, error)

	// Mark a pending transaction cleared
	MarkCleared(ctx context.Context, firmID string, change *ClearedChange) (*TrustTransaction, error)

	// Stamp a completed reconciliation onto transactions, locking them
	// against future voiding
	LockTransactions(ctx context.Context, firmID, accountID string, transactionIDs []string, reconciliationID string) error

	// Get one client's balance row
	GetClientBalance(ctx context.Context, firmID, accountID, clientID, caseID string) (*ClientTrustBalance, error)

	// List all client balance rows for an account, zero balances included
	ListClientBalances(ctx context.Context, firmID, accountID string) ([]*ClientTrustBalance, error)
}
