package reporting

import (
	"github.com/traf3li/trustledger/internal/domain/ledger"
)

// ExportFormat selects the rendering of an exported ledger
type ExportFormat string

const (
	// FormatCSV renders the ledger as RFC 4180 comma-separated values
	FormatCSV ExportFormat = "csv"
	// FormatPDF renders the ledger as a printable document
	FormatPDF ExportFormat = "pdf"
)

// LedgerLine is one transaction on a client ledger with the running balance
// after it was applied. Voided entries keep their full effect; the reversing
// entry that voided them appears as its own line and offsets it, so the audit
// trail shows both sides.
type LedgerLine struct {
	Transaction    ledger.APITransaction `json:"transaction"`
	Effect         string                `json:"effect"` // signed
	RunningBalance string                `json:"runningBalance"`
}

// ClientLedger is the full activity statement for one client (optionally one
// case) within a trust account, oldest entry first.
type ClientLedger struct {
	AccountID      string       `json:"accountId"`
	ClientID       string       `json:"clientId"`
	CaseID         string       `json:"caseId,omitempty"`
	Currency       string       `json:"currency"`
	PeriodStart    string       `json:"periodStart,omitempty"`
	PeriodEnd      string       `json:"periodEnd,omitempty"`
	OpeningBalance string       `json:"openingBalance"`
	ClosingBalance string       `json:"closingBalance"`
	Lines          []LedgerLine `json:"lines"`
}

// ClientPosition is one client's share of an account in a summary
type ClientPosition struct {
	ClientID string `json:"clientId"`
	CaseID   string `json:"caseId,omitempty"`
	Balance  string `json:"balance"`
}

// AccountSummary is a point-in-time overview of a trust account: its balance
// split and every client position, zero balances included.
type AccountSummary struct {
	AccountID          string           `json:"accountId"`
	AccountName        string           `json:"accountName"`
	Currency           string           `json:"currency"`
	Balance            string           `json:"balance"`
	AvailableBalance   string           `json:"availableBalance"`
	PendingBalance     string           `json:"pendingBalance"`
	ClientBalanceTotal string           `json:"clientBalanceTotal"`
	ClientCount        int              `json:"clientCount"`
	Clients            []ClientPosition `json:"clients"`
}

// Export is a rendered ledger ready to be returned to the caller
type Export struct {
	Format      ExportFormat `json:"format"`
	ContentType string       `json:"contentType"`
	Filename    string       `json:"filename"`
	Body        []byte       `json:"-"`
}

// LedgerRequest scopes a client ledger report
type LedgerRequest struct {
	ClientID    string `json:"clientId" validate:"required"`
	CaseID      string `json:"caseId,omitempty"`
	PeriodStart string `json:"periodStart,omitempty" validate:"omitempty,datetime=2006-01-02"`
	PeriodEnd   string `json:"periodEnd,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// ExportRequest scopes a ledger export
type ExportRequest struct {
	LedgerRequest
	Format ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
}
