package reporting

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"github.com/traf3li/trustledger/internal/domain/account"
	"github.com/traf3li/trustledger/internal/domain/errors"
	"github.com/traf3li/trustledger/internal/domain/ledger"
	"github.com/traf3li/trustledger/internal/domain/money"
	"github.com/traf3li/trustledger/pkg/validator"
)

// PDFRenderer renders a client ledger as a printable document. The reporting
// service stays ignorant of the rendering library behind it.
type PDFRenderer interface {
	RenderClientLedger(l *ClientLedger) ([]byte, error)
}

// Service is the reporting interface: read-only views over the ledger store.
// It never mutates balances or transactions.
type Service struct {
	store     ledger.Store
	accounts  account.Repository
	validator validator.Validator
	pdf       PDFRenderer // optional
}

// NewService creates a new reporting service. The PDF renderer may be nil;
// PDF export then reports itself as unavailable.
func NewService(store ledger.Store, accounts account.Repository, v validator.Validator, pdf PDFRenderer) *Service {
	return &Service{
		store:     store,
		accounts:  accounts,
		validator: v,
		pdf:       pdf,
	}
}

// ClientLedger builds the activity statement for one client within an
// account: every entry touching the client's ledger in chronological order
// with a running balance, bracketed by opening and closing balances when a
// period is requested.
func (s *Service) ClientLedger(ctx context.Context, firmID, accountID string, req *LedgerRequest) (*ClientLedger, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}
	if req.PeriodStart != "" && req.PeriodEnd != "" && req.PeriodEnd < req.PeriodStart {
		return nil, errors.NewValidationError("period end precedes period start")
	}

	acct, err := s.accounts.GetAccount(ctx, firmID, accountID)
	if err != nil {
		return nil, err
	}

	// Full history, not just the period: the opening balance is the sum of
	// everything before the period start.
	txns, err := s.store.ListTransactions(ctx, firmID, accountID, &ledger.TransactionFilter{
		ClientID: req.ClientID,
	})
	if err != nil {
		return nil, err
	}

	report := &ClientLedger{
		AccountID:   accountID,
		ClientID:    req.ClientID,
		CaseID:      req.CaseID,
		Currency:    acct.Currency,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
	}

	var opening int64
	for _, t := range txns {
		if req.CaseID != "" && t.CaseID != req.CaseID {
			continue
		}
		if req.PeriodStart != "" && t.Date < req.PeriodStart {
			opening += t.Effect()
		}
	}
	report.OpeningBalance = money.Format(opening, acct.Currency)

	balance := opening
	for _, t := range txns {
		if req.CaseID != "" && t.CaseID != req.CaseID {
			continue
		}
		if req.PeriodStart != "" && t.Date < req.PeriodStart {
			continue
		}
		if req.PeriodEnd != "" && t.Date > req.PeriodEnd {
			continue
		}
		balance += t.Effect()
		report.Lines = append(report.Lines, LedgerLine{
			Transaction:    t.ToAPI(),
			Effect:         money.Format(t.Effect(), acct.Currency),
			RunningBalance: money.Format(balance, acct.Currency),
		})
	}
	report.ClosingBalance = money.Format(balance, acct.Currency)
	return report, nil
}

// AccountSummary builds a point-in-time overview of an account and every
// client position in it, zero balances included.
func (s *Service) AccountSummary(ctx context.Context, firmID, accountID string) (*AccountSummary, error) {
	acct, err := s.accounts.GetAccount(ctx, firmID, accountID)
	if err != nil {
		return nil, err
	}

	balances, err := s.store.ListClientBalances(ctx, firmID, accountID)
	if err != nil {
		return nil, err
	}

	summary := &AccountSummary{
		AccountID:        acct.AccountID,
		AccountName:      acct.Name,
		Currency:         acct.Currency,
		Balance:          money.Format(acct.Balance, acct.Currency),
		AvailableBalance: money.Format(acct.AvailableBalance, acct.Currency),
		PendingBalance:   money.Format(acct.PendingBalance, acct.Currency),
		ClientCount:      len(balances),
	}
	var total int64
	for _, b := range balances {
		total += b.Balance
		summary.Clients = append(summary.Clients, ClientPosition{
			ClientID: b.ClientID,
			CaseID:   b.CaseID,
			Balance:  money.Format(b.Balance, b.Currency),
		})
	}
	summary.ClientBalanceTotal = money.Format(total, acct.Currency)
	return summary, nil
}

// Export renders a client ledger in the requested format
func (s *Service) Export(ctx context.Context, firmID, accountID string, req *ExportRequest) (*Export, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	report, err := s.ClientLedger(ctx, firmID, accountID, &req.LedgerRequest)
	if err != nil {
		return nil, err
	}

	switch req.Format {
	case FormatCSV:
		body, err := renderCSV(report)
		if err != nil {
			return nil, errors.NewInternalError("failed to render csv export", err)
		}
		return &Export{
			Format:      FormatCSV,
			ContentType: "text/csv",
			Filename:    exportFilename(report, "csv"),
			Body:        body,
		}, nil
	case FormatPDF:
		if s.pdf == nil {
			return nil, errors.NewValidationError("pdf export is not available")
		}
		body, err := s.pdf.RenderClientLedger(report)
		if err != nil {
			return nil, errors.NewInternalError("failed to render pdf export", err)
		}
		return &Export{
			Format:      FormatPDF,
			ContentType: "application/pdf",
			Filename:    exportFilename(report, "pdf"),
			Body:        body,
		}, nil
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported export format %q", req.Format))
	}
}

func renderCSV(l *ClientLedger) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"date", "transactionId", "type", "status", "reference",
		"counterpart", "description", "amount", "effect", "runningBalance"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, line := range l.Lines {
		t := line.Transaction
		record := []string{t.Date, t.TransactionID, string(t.TransactionType),
			string(t.Status), t.Reference, t.Counterpart, t.Description,
			t.Amount, line.Effect, line.RunningBalance}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportFilename(l *ClientLedger, ext string) string {
	if l.CaseID != "" {
		return fmt.Sprintf("ledger-%s-%s.%s", l.ClientID, l.CaseID, ext)
	}
	return fmt.Sprintf("ledger-%s.%s", l.ClientID, ext)
}
