package account

import (
	"context"
)

// Repository defines the interface for trust account data operations
type Repository interface {
	// Create a new trust account
	CreateAccount(ctx context.Context, acct *TrustAccount) (*TrustAccount, error)

	// Get a trust account by ID
	GetAccount(ctx context.Context, firmID, accountID string) (*TrustAccount, error)

	// Get all trust accounts for a firm
	ListAccounts(ctx context.Context, firmID string) ([]*TrustAccount, error)

	// Soft-close an account; the balance must already be zero
	CloseAccount(ctx context.Context, firmID, accountID, reason string) (*TrustAccount, error)
}
