package reporting

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traf3li/trustledger/internal/domain/account"
	"github.com/traf3li/trustledger/internal/domain/errors"
	"github.com/traf3li/trustledger/internal/domain/ledger"
	"github.com/traf3li/trustledger/pkg/validator"
)

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
	return nil, nil
}

func (f *fakeAccounts) CloseAccount(ctx context.Context, firmID, accountID, reason string) (*account.TrustAccount, error) {
	return nil, errors.NewInternalError("not supported in this test", nil)
}

type stubStore struct {
	txns     []*ledger.TrustTransaction
	balances []*ledger.ClientTrustBalance
}

func (s *stubStore) ApplyMovement(ctx context.Context, mv *ledger.Movement) (*ledger.MovementResult, error) {
	return nil, errors.NewInternalError("not supported in this test", nil)
}

func (s *stubStore) GetTransaction(ctx context.Context, firmID, accountID, transactionID string) (*ledger.TrustTransaction, error) {
	return nil, errors.NewInternalError("not supported in this test", nil)
}

func (s *stubStore) ListTransactions(ctx context.Context, firmID, accountID string, filter *ledger.TransactionFilter) ([]*ledger.TrustTransaction, error) {
	out := []*ledger.TrustTransaction{}
	for _, txn := range s.txns {
		if txn.AccountID == accountID && filter.Matches(txn) {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (s *stubStore) MarkCleared(ctx context.Context, firmID string, change *ledger.ClearedChange) (*ledger.TrustTransaction, error) {
	return nil, errors.NewInternalError("not supported in this test", nil)
}

func (s *stubStore) LockTransactions(ctx context.Context, firmID, accountID string, transactionIDs []string, reconciliationID string) error {
	return errors.NewInternalError("not supported in this test", nil)
}

func (s *stubStore) GetClientBalance(ctx context.Context, firmID, accountID, clientID, caseID string) (*ledger.ClientTrustBalance, error) {
	return nil, errors.NewInternalError("not supported in this test", nil)
}

func (s *stubStore) ListClientBalances(ctx context.Context, firmID, accountID string) ([]*ledger.ClientTrustBalance, error) {
	return s.balances, nil
}

func txn(id string, txnType ledger.TransactionType, amount int64, date string) *ledger.TrustTransaction {
	return &ledger.TrustTransaction{
		FirmID:          "firm1",
		TransactionID:   id,
		AccountID:       "acct1",
		ClientID:        "client1",
		TransactionType: txnType,
		Amount:          amount,
		Currency:        "USD",
		Date:            date,
		Reference:       "ref-" + id,
		Counterpart:     "Acme Corp",
		Status:          ledger.Cleared,
	}
}

// newTestReporting seeds a client history spanning two months, including a
// voided deposit and its reversal inside the report period.
func newTestReporting() (*Service, *stubStore) {
	accounts := &fakeAccounts{accounts: map[string]*account.TrustAccount{
		"acct1": {
			FirmID: "firm1", AccountID: "acct1", Name: "General Trust",
			Currency: "USD", Status: account.Active,
			Balance: 13000, AvailableBalance: 8000, PendingBalance: 5000,
		},
	}}

	voided := txn("t5", ledger.Deposit, 3000, "2026-01-10")
	voided.Status = ledger.Voided
	voided.VoidedBy = "t6"
	reversal := txn("t6", ledger.Withdrawal, 3000, "2026-01-25")
	reversal.Voids = "t5"

	other := txn("t9", ledger.Deposit, 9999, "2026-01-12")
	other.ClientID = "client2"

	store := &stubStore{
		txns: []*ledger.TrustTransaction{
			txn("t1", ledger.Deposit, 10000, "2025-12-15"),
			txn("t2", ledger.Withdrawal, 2000, "2026-01-05"),
			voided,
			other,
			txn("t3", ledger.Deposit, 5000, "2026-01-20"),
			reversal,
		},
		balances: []*ledger.ClientTrustBalance{
			{AccountID: "acct1", ClientID: "client1", Balance: 13000, Currency: "USD"},
			{AccountID: "acct1", ClientID: "client2", Balance: 0, Currency: "USD"},
		},
	}
	return NewService(store, accounts, validator.New(), nil), store
}

func TestClientLedger(t *testing.T) {
	t.Run("running balance over a period", func(t *testing.T) {
		svc, _ := newTestReporting()

		report, err := svc.ClientLedger(context.Background(), "firm1", "acct1", &LedgerRequest{
			ClientID:    "client1",
			PeriodStart: "2026-01-01",
			PeriodEnd:   "2026-01-31",
		})
		require.NoError(t, err)

		// The December deposit lands in the opening balance, not the lines
		assert.Equal(t, "100.00", report.OpeningBalance)
		require.Len(t, report.Lines, 4)
		assert.Equal(t, "t2", report.Lines[0].Transaction.TransactionID)
		assert.Equal(t, "80.00", report.Lines[0].RunningBalance)
		assert.Equal(t, "t5", report.Lines[1].Transaction.TransactionID)
		assert.Equal(t, "110.00", report.Lines[1].RunningBalance)
		assert.Equal(t, "t3", report.Lines[2].Transaction.TransactionID)
		assert.Equal(t, "160.00", report.Lines[2].RunningBalance)
		assert.Equal(t, "t6", report.Lines[3].Transaction.TransactionID)
		assert.Equal(t, "130.00", report.Lines[3].RunningBalance)
		assert.Equal(t, "130.00", report.ClosingBalance)
	})

	t.Run("full history without a period", func(t *testing.T) {
		svc, _ := newTestReporting()

		report, err := svc.ClientLedger(context.Background(), "firm1", "acct1", &LedgerRequest{
			ClientID: "client1",
		})
		require.NoError(t, err)
		assert.Equal(t, "0.00", report.OpeningBalance)
		assert.Len(t, report.Lines, 5)
		assert.Equal(t, "130.00", report.ClosingBalance)
	})

	t.Run("signed effects", func(t *testing.T) {
		svc, _ := newTestReporting()

		report, err := svc.ClientLedger(context.Background(), "firm1", "acct1", &LedgerRequest{
			ClientID: "client1", PeriodStart: "2026-01-01", PeriodEnd: "2026-01-31",
		})
		require.NoError(t, err)
		assert.Equal(t, "-20.00", report.Lines[0].Effect)
		assert.Equal(t, "30.00", report.Lines[1].Effect, "a voided deposit keeps its effect; the reversal offsets it")
		assert.Equal(t, "-30.00", report.Lines[3].Effect)
	})

	t.Run("rejects inverted period", func(t *testing.T) {
		svc, _ := newTestReporting()
		_, err := svc.ClientLedger(context.Background(), "firm1", "acct1", &LedgerRequest{
			ClientID: "client1", PeriodStart: "2026-01-31", PeriodEnd: "2026-01-01",
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "VALIDATION_ERROR")
	})

	t.Run("requires a client id", func(t *testing.T) {
		svc, _ := newTestReporting()
		_, err := svc.ClientLedger(context.Background(), "firm1", "acct1", &LedgerRequest{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "VALIDATION_ERROR")
	})
}

func TestAccountSummaryReport(t *testing.T) {
	svc, _ := newTestReporting()

	summary, err := svc.AccountSummary(context.Background(), "firm1", "acct1")
	require.NoError(t, err)
	assert.Equal(t, "General Trust", summary.AccountName)
	assert.Equal(t, "130.00", summary.Balance)
	assert.Equal(t, "80.00", summary.AvailableBalance)
	assert.Equal(t, "50.00", summary.PendingBalance)
	assert.Equal(t, "130.00", summary.ClientBalanceTotal)
	assert.Equal(t, 2, summary.ClientCount)
	require.Len(t, summary.Clients, 2, "zero balances stay on the summary")
}

type stubRenderer struct{}

func (stubRenderer) RenderClientLedger(l *ClientLedger) ([]byte, error) {
	return []byte("%PDF-1.7 " + l.ClientID), nil
}

func TestExport(t *testing.T) {
	t.Run("csv", func(t *testing.T) {
		svc, _ := newTestReporting()

		export, err := svc.Export(context.Background(), "firm1", "acct1", &ExportRequest{
			LedgerRequest: LedgerRequest{ClientID: "client1", PeriodStart: "2026-01-01", PeriodEnd: "2026-01-31"},
			Format:        FormatCSV,
		})
		require.NoError(t, err)
		assert.Equal(t, "text/csv", export.ContentType)
		assert.Equal(t, "ledger-client1.csv", export.Filename)

		lines := strings.Split(strings.TrimSpace(string(export.Body)), "\n")
		require.Len(t, lines, 5, "header plus four transactions")
		assert.Contains(t, lines[0], "runningBalance")
		assert.Contains(t, lines[1], "t2")
		assert.Contains(t, lines[4], "130.00")
	})

	t.Run("pdf needs a renderer", func(t *testing.T) {
		svc, _ := newTestReporting()

		_, err := svc.Export(context.Background(), "firm1", "acct1", &ExportRequest{
			LedgerRequest: LedgerRequest{ClientID: "client1"},
			Format:        FormatPDF,
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "VALIDATION_ERROR")
	})

	t.Run("pdf with a renderer", func(t *testing.T) {
		accounts := &fakeAccounts{accounts: map[string]*account.TrustAccount{
			"acct1": {FirmID: "firm1", AccountID: "acct1", Currency: "USD", Status: account.Active},
		}}
		svc := NewService(&stubStore{}, accounts, validator.New(), stubRenderer{})

		export, err := svc.Export(context.Background(), "firm1", "acct1", &ExportRequest{
			LedgerRequest: LedgerRequest{ClientID: "client1"},
			Format:        FormatPDF,
		})
		require.NoError(t, err)
		assert.Equal(t, "application/pdf", export.ContentType)
		assert.Equal(t, "ledger-client1.pdf", export.Filename)
		assert.Contains(t, string(export.Body), "%PDF")
	})

	t.Run("unknown format fails validation", func(t *testing.T) {
		svc, _ := newTestReporting()

		_, err := svc.Export(context.Background(), "firm1", "acct1", &ExportRequest{
			LedgerRequest: LedgerRequest{ClientID: "client1"},
			Format:        "xlsx",
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "VALIDATION_ERROR")
	})
}
