package ledger

import (
	"time"

	"github.com/traf3li/trustledger/internal/domain/money"
)

// TransactionType represents the kind of ledger entry
type TransactionType string

const (
	// Deposit is client money received into trust
	Deposit TransactionType = "deposit"
	// Withdrawal is client money disbursed out of trust
	Withdrawal TransactionType = "withdrawal"
	// TransferIn is the credit leg of an inter-account or inter-client transfer
	TransferIn TransactionType = "transfer_in"
	// TransferOut is the debit leg of an inter-account or inter-client transfer
	TransferOut TransactionType = "transfer_out"
)

// IsCredit reports whether the type increases the account balance
func (t TransactionType) IsCredit() bool {
	return t == Deposit || t == TransferIn
}

// Reverse returns the type of the reversing entry created by a void
func (t TransactionType) Reverse() TransactionType {
	switch t {
	case Deposit:
		return Withdrawal
	case Withdrawal:
		return Deposit
	case TransferIn:
		return TransferOut
	default:
		return TransferIn
	}
}

// TransactionStatus represents the lifecycle state of a ledger entry
type TransactionStatus string

const (
	// Pending entries are recorded but not yet confirmed by the bank
	Pending TransactionStatus = "pending"
	// Cleared entries are confirmed as settled by the bank
	Cleared TransactionStatus = "cleared"
	// Voided entries are reversed; voiding is terminal
	Voided TransactionStatus = "voided"
)

// CanTransition reports whether a status change is legal:
// pending -> cleared, and pending|cleared -> voided. Nothing leaves voided.
func CanTransition(from, to TransactionStatus) bool {
	switch from {
	case Pending:
		return to == Cleared || to == Voided
	case Cleared:
		return to == Voided
	default:
		return false
	}
}

// TrustTransaction is an immutable ledger entry. Amount, account, and client
// fields never change after creation; only Status, ClearedDate, void linkage,
// and the reconciliation lock are updated, and voiding appends a reversing
// entry rather than rewriting history.
type TrustTransaction struct {
	FirmID          string          `json:"firmId"`
	TransactionID   string          `json:"transactionId"` // ULID, chronologically sortable
	AccountID       string          `json:"accountId"`
	ClientID        string          `json:"clientId"`
	CaseID          string          `json:"caseId,omitempty"`
	TransactionType TransactionType `json:"transactionType"`
	Amount          int64           `json:"amount"` // positive minor units
	Currency        string          `json:"currency"`
	Date            string          `json:"date"` // YYYY-MM-DD
	Reference       string          `json:"reference"`
	Description     string          `json:"description,omitempty"`
	Counterpart     string          `json:"counterpart"` // payor or payee
	Status          TransactionStatus `json:"status"`
	ClearedDate     string          `json:"clearedDate,omitempty"`

	// Transfer linkage: both legs share TransferID and point at each other
	TransferID               string `json:"transferId,omitempty"`
	CounterpartAccountID     string `json:"counterpartAccountId,omitempty"`
	CounterpartTransactionID string `json:"counterpartTransactionId,omitempty"`

	// Audit linkage for withdrawals paying a firm bill from trust
	LinkedInvoiceID string `json:"linkedInvoiceId,omitempty"`
	LinkedExpenseID string `json:"linkedExpenseId,omitempty"`

	// Void linkage: the original carries VoidedBy, the reversal carries Voids
	VoidedBy   string `json:"voidedBy,omitempty"`
	Voids      string `json:"voids,omitempty"`
	VoidReason string `json:"voidReason,omitempty"`

	// Set when a completed bank reconciliation freezes this entry
	ReconciliationID string `json:"reconciliationId,omitempty"`

	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`

	// DynamoDB specific attributes
	PK string `json:"-"`
	SK string `json:"-"`
}

// Effect returns the signed impact of this entry on the account balance
func (t *TrustTransaction) Effect() int64 {
	if t.TransactionType.IsCredit() {
		return t.Amount
	}
	return -t.Amount
}

// ClientTrustBalance tracks one client's (optionally one case's) share of a
// trust account. Rows are created on first deposit and retained at zero
// balance for audit; the balance is never negative, and per account the sum
// of client balances always equals the account balance.
type ClientTrustBalance struct {
	FirmID    string    `json:"firmId"`
	AccountID string    `json:"accountId"`
	ClientID  string    `json:"clientId"`
	CaseID    string    `json:"caseId,omitempty"`
	Balance   int64     `json:"balance"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// DynamoDB specific attributes
	PK string `json:"-"`
	SK string `json:"-"`
}

// DepositRequest represents a request to receive client funds into trust
type DepositRequest struct {
	ClientID       string `json:"clientId" validate:"required"`
	CaseID         string `json:"caseId,omitempty"`
	Amount         string `json:"amount" validate:"required"`
	Payor          string `json:"payor" validate:"required"`
	Reference      string `json:"reference" validate:"required"`
	Notes          string `json:"notes,omitempty"`
	Date           string `json:"date,omitempty"` // YYYY-MM-DD, defaults to today
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// WithdrawRequest represents a request to disburse client funds from trust
type WithdrawRequest struct {
	ClientID        string `json:"clientId" validate:"required"`
	CaseID          string `json:"caseId,omitempty"`
	Amount          string `json:"amount" validate:"required"`
	Payee           string `json:"payee" validate:"required"`
	Reference       string `json:"reference" validate:"required"`
	LinkedInvoiceID string `json:"linkedInvoiceId,omitempty"`
	LinkedExpenseID string `json:"linkedExpenseId,omitempty"`
	Notes           string `json:"notes,omitempty"`
	Date            string `json:"date,omitempty"`
	IdempotencyKey  string `json:"idempotencyKey,omitempty"`
}

// TransferRequest represents a request to move funds between client ledgers,
// within one account or across two
type TransferRequest struct {
	FromAccountID  string `json:"fromAccountId" validate:"required"`
	ToAccountID    string `json:"toAccountId" validate:"required"`
	FromClientID   string `json:"fromClientId" validate:"required"`
	ToClientID     string `json:"toClientId" validate:"required"`
	FromCaseID     string `json:"fromCaseId,omitempty"`
	ToCaseID       string `json:"toCaseId,omitempty"`
	Amount         string `json:"amount" validate:"required"`
	Reference      string `json:"reference" validate:"required"`
	Notes          string `json:"notes,omitempty"`
	Date           string `json:"date,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// VoidRequest represents a request to reverse a transaction
type VoidRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// MarkClearedRequest marks a transaction as confirmed by the bank
type MarkClearedRequest struct {
	ClearedDate string `json:"clearedDate" validate:"required,datetime=2006-01-02"`
}

// TransactionFilter represents filtering criteria for ledger queries
type TransactionFilter struct {
	ClientID  string
	StartDate string // YYYY-MM-DD inclusive
	EndDate   string // YYYY-MM-DD inclusive
	Status    TransactionStatus
	Limit     int
}

// Matches reports whether a transaction passes the filter
func (f *TransactionFilter) Matches(t *TrustTransaction) bool {
	if f == nil {
		return true
	}
	if f.ClientID != "" && t.ClientID != f.ClientID {
		return false
	}
	if f.StartDate != "" && t.Date < f.StartDate {
		return false
	}
	if f.EndDate != "" && t.Date > f.EndDate {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

// APITransaction is the wire representation of a ledger entry
type APITransaction struct {
	TransactionID   string          `json:"transactionId"`
	AccountID       string          `json:"accountId"`
	ClientID        string          `json:"clientId"`
	CaseID          string          `json:"caseId,omitempty"`
	TransactionType TransactionType `json:"transactionType"`
	Amount          string          `json:"amount"`
	Currency        string          `json:"currency"`
	Date            string          `json:"date"`
	Reference       string          `json:"reference"`
	Description     string          `json:"description,omitempty"`
	Counterpart     string          `json:"counterpart"`
	Status          TransactionStatus `json:"status"`
	ClearedDate     string          `json:"clearedDate,omitempty"`
	TransferID      string          `json:"transferId,omitempty"`
	LinkedInvoiceID string          `json:"linkedInvoiceId,omitempty"`
	LinkedExpenseID string          `json:"linkedExpenseId,omitempty"`
	VoidedBy        string          `json:"voidedBy,omitempty"`
	Voids           string          `json:"voids,omitempty"`
	ReconciliationID string         `json:"reconciliationId,omitempty"`
	CreatedAt       string          `json:"createdAt"`
}

// ToAPI converts the stored transaction to its wire representation
func (t *TrustTransaction) ToAPI() APITransaction {
	return APITransaction{
		TransactionID:   t.TransactionID,
		AccountID:       t.AccountID,
		ClientID:        t.ClientID,
		CaseID:          t.CaseID,
		TransactionType: t.TransactionType,
		Amount:          money.Format(t.Amount, t.Currency),
		Currency:        t.Currency,
		Date:            t.Date,
		Reference:       t.Reference,
		Description:     t.Description,
		Counterpart:     t.Counterpart,
		Status:          t.Status,
		ClearedDate:     t.ClearedDate,
		TransferID:      t.TransferID,
		LinkedInvoiceID: t.LinkedInvoiceID,
		LinkedExpenseID: t.LinkedExpenseID,
		VoidedBy:        t.VoidedBy,
		Voids:           t.Voids,
		ReconciliationID: t.ReconciliationID,
		CreatedAt:       t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// APIClientBalance is the wire representation of a client trust balance
type APIClientBalance struct {
	AccountID string `json:"accountId"`
	ClientID  string `json:"clientId"`
	CaseID    string `json:"caseId,omitempty"`
	Balance   string `json:"balance"`
	Currency  string `json:"currency"`
	UpdatedAt string `json:"updatedAt"`
}

// ToAPI converts the stored client balance to its wire representation
func (b *ClientTrustBalance) ToAPI() APIClientBalance {
	return APIClientBalance{
		AccountID: b.AccountID,
		ClientID:  b.ClientID,
		CaseID:    b.CaseID,
		Balance:   money.Format(b.Balance, b.Currency),
		Currency:  b.Currency,
		UpdatedAt: b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
