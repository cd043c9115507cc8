package reconciliation

import (
	"context"
)

// Repository defines the interface for reconciliation data operations
type Repository interface {
	// Create a new session and acquire the per-account session lock;
	// fails when another session is already in progress for the account
	CreateReconciliation(ctx context.Context, recon *BankReconciliation) (*BankReconciliation, error)

	// Get a session by ID
	GetReconciliation(ctx context.Context, firmID, accountID, reconciliationID string) (*BankReconciliation, error)

	// List sessions for an account, newest first
	ListReconciliations(ctx context.Context, firmID, accountID string) ([]*BankReconciliation, error)

	// Persist in-session mutations (clear/unclear/adjustments); guarded by
	// optimistic versioning
	UpdateReconciliation(ctx context.Context, recon *BankReconciliation) (*BankReconciliation, error)

	// Mark a session completed and release the per-account session lock
	CompleteReconciliation(ctx context.Context, recon *BankReconciliation) (*BankReconciliation, error)

	// Mark a session as an exception and release the per-account session
	// lock without freezing any transactions
	CancelReconciliation(ctx context.Context, recon *BankReconciliation) (*BankReconciliation, error)

	// Most recent completed session for an account; nil when none exists
	LatestCompleted(ctx context.Context, firmID, accountID string) (*BankReconciliation, error)

	// Persist a three-way run; runs are never mutated afterwards
	PutThreeWayRun(ctx context.Context, run *ThreeWayRun) (*ThreeWayRun, error)

	// List three-way runs for an account, newest first
	ListThreeWayRuns(ctx context.Context, firmID, accountID string, limit int) ([]*ThreeWayRun, error)
}
