package reconciliation

import (
	"time"

	"github.com/traf3li/trustledger/internal/domain/ledger"
	"github.com/traf3li/trustledger/internal/domain/money"
)

// Status represents the lifecycle state of a bank reconciliation session
type Status string

const (
	// InProgress sessions accept clear/unclear/adjustment operations
	InProgress Status = "in_progress"
	// Completed sessions are final; transactions cleared in them are frozen
	Completed Status = "completed"
	// Exception marks a session abandoned without resolving its difference
	Exception Status = "exception"
)

// Entry is a point-in-time snapshot of a candidate transaction taken when
// the session starts. Cleared means the reconciler matched it against the
// bank statement; the rest are outstanding.
type Entry struct {
	TransactionID   string                 `json:"transactionId"`
	TransactionType ledger.TransactionType `json:"transactionType"`
	Amount          int64                  `json:"amount"`
	Date            string                 `json:"date"`
	Description     string                 `json:"description,omitempty"`
	Cleared         bool                   `json:"cleared"`
}

// Adjustment is a manual correction recorded during a session, such as a
// bank fee not yet booked. The reason is mandatory: no silent corrections.
type Adjustment struct {
	AdjustmentID string    `json:"adjustmentId"`
	Amount       int64     `json:"amount"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"createdAt"`
}

// BankReconciliation is a session reconciling one account's book balance
// against an externally supplied bank-statement balance for a period. At
// most one session per account may be in progress at a time.
type BankReconciliation struct {
	FirmID           string       `json:"firmId"`
	ReconciliationID string       `json:"reconciliationId"`
	AccountID        string       `json:"accountId"`
	Currency         string       `json:"currency"`
	PeriodStart      string       `json:"periodStart"` // YYYY-MM-DD
	PeriodEnd        string       `json:"periodEnd"`
	BookBalance      int64        `json:"bookBalance"` // snapshot at session start
	StatementBalance int64        `json:"statementBalance"`
	Difference       int64        `json:"difference"`
	Status           Status       `json:"status"`
	Entries          []Entry      `json:"entries"`
	Adjustments      []Adjustment `json:"adjustments,omitempty"`
	Notes            string       `json:"notes,omitempty"`
	CompletedAt      *time.Time   `json:"completedAt,omitempty"`
	Version          int64        `json:"version"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`

	// DynamoDB specific attributes
	PK string `json:"-"`
	SK string `json:"-"`
}

// Recompute refreshes the session difference. The adjusted bank balance is
// the statement balance plus credits not yet on the statement minus debits
// not yet on the statement; the difference is that adjusted balance against
// the book snapshot, shifted by any recorded adjustments.
func (r *BankReconciliation) Recompute() {
	var outstandingCredits, outstandingDebits int64
	for _, e := range r.Entries {
		if e.Cleared {
			continue
		}
		if e.TransactionType.IsCredit() {
			outstandingCredits += e.Amount
		} else {
			outstandingDebits += e.Amount
		}
	}

	diff := r.StatementBalance + outstandingCredits - outstandingDebits - r.BookBalance
	for _, a := range r.Adjustments {
		diff += a.Amount
	}
	r.Difference = diff
}

// ClearedTransactionIDs returns the ids of entries matched to the statement
func (r *BankReconciliation) ClearedTransactionIDs() []string {
	var ids []string
	for _, e := range r.Entries {
		if e.Cleared {
			ids = append(ids, e.TransactionID)
		}
	}
	return ids
}

// ThreeWayRun is a point-in-time check that book balance, bank balance, and
// the sum of client balances for an account all agree. Runs are read-only
// history: discrepant runs are persisted too, never corrected in place.
type ThreeWayRun struct {
	FirmID               string    `json:"firmId"`
	RunID                string    `json:"runId"`
	AccountID            string    `json:"accountId"`
	Currency             string    `json:"currency"`
	RunAt                time.Time `json:"runAt"`
	BookBalance          int64     `json:"bookBalance"`
	BankBalance          *int64    `json:"bankBalance,omitempty"` // absent until a reconciliation completes
	BankReconciliationID string    `json:"bankReconciliationId,omitempty"`
	ClientBalanceTotal   int64     `json:"clientBalanceTotal"`
	Discrepant           bool      `json:"discrepant"`
	Disagreements        []string  `json:"disagreements,omitempty"`

	// DynamoDB specific attributes
	PK string `json:"-"`
	SK string `json:"-"`
}

// StartRequest opens a reconciliation session
type StartRequest struct {
	PeriodStart      string `json:"periodStart" validate:"required,datetime=2006-01-02"`
	PeriodEnd        string `json:"periodEnd" validate:"required,datetime=2006-01-02"`
	StatementBalance string `json:"statementBalance" validate:"required"`
}

// ClearRequest moves a transaction between the outstanding and cleared sets
type ClearRequest struct {
	TransactionID string `json:"transactionId" validate:"required"`
}

// AdjustmentRequest records a manual correction
type AdjustmentRequest struct {
	Amount string `json:"amount" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// CompleteRequest finalizes a session
type CompleteRequest struct {
	Notes string `json:"notes,omitempty"`
}

// APIReconciliation is the wire representation of a reconciliation session
type APIReconciliation struct {
	ReconciliationID string          `json:"reconciliationId"`
	AccountID        string          `json:"accountId"`
	Currency         string          `json:"currency"`
	PeriodStart      string          `json:"periodStart"`
	PeriodEnd        string          `json:"periodEnd"`
	BookBalance      string          `json:"bookBalance"`
	StatementBalance string          `json:"statementBalance"`
	Difference       string          `json:"difference"`
	Status           Status          `json:"status"`
	Entries          []APIEntry      `json:"entries"`
	Adjustments      []APIAdjustment `json:"adjustments,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	CompletedAt      string          `json:"completedAt,omitempty"`
	CreatedAt        string          `json:"createdAt"`
}

// APIEntry is the wire representation of a session entry
type APIEntry struct {
	TransactionID   string                 `json:"transactionId"`
	TransactionType ledger.TransactionType `json:"transactionType"`
	Amount          string                 `json:"amount"`
	Date            string                 `json:"date"`
	Description     string                 `json:"description,omitempty"`
	Cleared         bool                   `json:"cleared"`
}

// APIAdjustment is the wire representation of a session adjustment
type APIAdjustment struct {
	AdjustmentID string `json:"adjustmentId"`
	Amount       string `json:"amount"`
	Reason       string `json:"reason"`
	CreatedAt    string `json:"createdAt"`
}

// ToAPI converts the stored session to its wire representation
func (r *BankReconciliation) ToAPI() APIReconciliation {
	api := APIReconciliation{
		ReconciliationID: r.ReconciliationID,
		AccountID:        r.AccountID,
		Currency:         r.Currency,
		PeriodStart:      r.PeriodStart,
		PeriodEnd:        r.PeriodEnd,
		BookBalance:      money.Format(r.BookBalance, r.Currency),
		StatementBalance: money.Format(r.StatementBalance, r.Currency),
		Difference:       money.Format(r.Difference, r.Currency),
		Status:           r.Status,
		Notes:            r.Notes,
		CreatedAt:        r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		api.CompletedAt = r.CompletedAt.UTC().Format(time.RFC3339)
	}
	for _, e := range r.Entries {
		api.Entries = append(api.Entries, APIEntry{
			TransactionID:   e.TransactionID,
			TransactionType: e.TransactionType,
			Amount:          money.Format(e.Amount, r.Currency),
			Date:            e.Date,
			Description:     e.Description,
			Cleared:         e.Cleared,
		})
	}
	for _, a := range r.Adjustments {
		api.Adjustments = append(api.Adjustments, APIAdjustment{
			AdjustmentID: a.AdjustmentID,
			Amount:       money.Format(a.Amount, r.Currency),
			Reason:       a.Reason,
			CreatedAt:    a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return api
}

// APIThreeWayRun is the wire representation of a three-way reconciliation run
type APIThreeWayRun struct {
	RunID                string   `json:"runId"`
	AccountID            string   `json:"accountId"`
	Currency             string   `json:"currency"`
	RunAt                string   `json:"runAt"`
	BookBalance          string   `json:"bookBalance"`
	BankBalance          string   `json:"bankBalance,omitempty"`
	BankReconciliationID string   `json:"bankReconciliationId,omitempty"`
	ClientBalanceTotal   string   `json:"clientBalanceTotal"`
	Discrepant           bool     `json:"discrepant"`
	Disagreements        []string `json:"disagreements,omitempty"`
}

// ToAPI converts the stored run to its wire representation
func (r *ThreeWayRun) ToAPI() APIThreeWayRun {
	api := APIThreeWayRun{
		RunID:                r.RunID,
		AccountID:            r.AccountID,
		Currency:             r.Currency,
		RunAt:                r.RunAt.UTC().Format(time.RFC3339),
		BookBalance:          money.Format(r.BookBalance, r.Currency),
		BankReconciliationID: r.BankReconciliationID,
		ClientBalanceTotal:   money.Format(r.ClientBalanceTotal, r.Currency),
		Discrepant:           r.Discrepant,
		Disagreements:        r.Disagreements,
	}
	if r.BankBalance != nil {
		api.BankBalance = money.Format(*r.BankBalance, r.Currency)
	}
	return api
}
