package account

import (
	"time"

	"github.com/traf3li/trustledger/internal/domain/money"
)

// Type represents the kind of trust account
type Type string

const (
	// Pooled is an IOLTA-style account holding many clients' funds,
	// tracked internally per client
	Pooled Type = "pooled"
	// Separate is a trust account dedicated to a single client
	Separate Type = "separate"
)

// Status represents the lifecycle state of a trust account
type Status string

const (
	// Active accounts accept transactions
	Active Status = "active"
	// Closed accounts are soft-deleted and reject all new transactions
	Closed Status = "closed"
)

// TrustAccount is a bank account holding client funds, legally segregated
// from firm operating funds. Balances are int64 minor units; the invariant
// Balance == AvailableBalance + PendingBalance holds at all times.
type TrustAccount struct {
	FirmID           string     `json:"firmId"`
	AccountID        string     `json:"accountId"`
	Name             string     `json:"name"`
	AccountType      Type       `json:"accountType"`
	Currency         string     `json:"currency"` // ISO-4217
	Balance          int64      `json:"balance"`
	AvailableBalance int64      `json:"availableBalance"`
	PendingBalance   int64      `json:"pendingBalance"`
	Status           Status     `json:"status"`
	ClosedReason     string     `json:"closedReason,omitempty"`
	ClosedAt         *time.Time `json:"closedAt,omitempty"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`

	// DynamoDB specific attributes
	PK string `json:"-"`
	SK string `json:"-"`
}

// IsActive reports whether the account accepts new transactions
func (a *TrustAccount) IsActive() bool {
	return a.Status == Active
}

// CreateAccountRequest represents the request to create a new trust account
type CreateAccountRequest struct {
	Name           string `json:"name" validate:"required"`
	AccountType    Type   `json:"accountType" validate:"required,oneof=pooled separate"`
	Currency       string `json:"currency" validate:"required,len=3"`
	OpeningBalance string `json:"openingBalance,omitempty"`
}

// CloseAccountRequest represents the request to close a trust account.
// Closing requires a zero balance and an audit reason.
type CloseAccountRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// APIAccount is the wire representation of a trust account. Amounts are
// fixed-point decimal strings, never binary floats.
type APIAccount struct {
	AccountID        string `json:"accountId"`
	Name             string `json:"name"`
	AccountType      Type   `json:"accountType"`
	Currency         string `json:"currency"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"availableBalance"`
	PendingBalance   string `json:"pendingBalance"`
	Status           Status `json:"status"`
	ClosedReason     string `json:"closedReason,omitempty"`
	CreatedAt        string `json:"createdAt"`
	UpdatedAt        string `json:"updatedAt"`
}

// ToAPI converts the stored account to its wire representation
func (a *TrustAccount) ToAPI() APIAccount {
	return APIAccount{
		AccountID:        a.AccountID,
		Name:             a.Name,
		AccountType:      a.AccountType,
		Currency:         a.Currency,
		Balance:          money.Format(a.Balance, a.Currency),
		AvailableBalance: money.Format(a.AvailableBalance, a.Currency),
		PendingBalance:   money.Format(a.PendingBalance, a.Currency),
		Status:           a.Status,
		ClosedReason:     a.ClosedReason,
		CreatedAt:        a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
