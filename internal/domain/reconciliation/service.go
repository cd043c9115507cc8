package reconciliation

import (
	"context"
	"fmt"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"github.com/traf3li/trustledger/internal/domain/account"
	"github.com/traf3li/trustledger/internal/domain/errors"
	"github.com/traf3li/trustledger/internal/domain/ledger"
	"github.com/traf3li/trustledger/internal/domain/money"
	"github.com/traf3li/trustledger/pkg/validator"
)

// Service is the reconciliation engine: bank-statement reconciliation
// sessions and three-way checks of book, bank, and client-ledger balances.
type Service struct {
	repo      Repository
	store     ledger.Store
	accounts  account.Repository
	validator validator.Validator
}

// NewService creates a new reconciliation engine service
func NewService(repo Repository, store ledger.Store, accounts account.Repository, v validator.Validator) *Service {
	return &Service{
		repo:      repo,
		store:     store,
		accounts:  accounts,
		validator: v,
	}
}

// Start opens a reconciliation session for an account, snapshotting the
// current book balance and every not-yet-reconciled transaction dated on or
// before the period end as an outstanding candidate. Prior-period items are
// included because an uncashed check from last month still explains a
// statement difference this month.
func (s *Service) Start(ctx context.Context, firmID, accountID string, req *StartRequest) (*BankReconciliation, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}
	if req.PeriodEnd < req.PeriodStart {
		return nil, errors.NewValidationError("period end precedes period start")
	}

	acct, err := s.accounts.GetAccount(ctx, firmID, accountID)
	if err != nil {
		return nil, err
	}

	statement, err := money.Parse(req.StatementBalance, acct.Currency)
	if err != nil {
		return nil, err
	}

	candidates, err := s.store.ListTransactions(ctx, firmID, accountID, &ledger.TransactionFilter{
		EndDate: req.PeriodEnd,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	recon := &BankReconciliation{
		FirmID:           firmID,
		ReconciliationID: ulid.Make().String(),
		AccountID:        accountID,
		Currency:         acct.Currency,
		PeriodStart:      req.PeriodStart,
		PeriodEnd:        req.PeriodEnd,
		BookBalance:      acct.Balance,
		StatementBalance: statement,
		Status:           InProgress,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, t := range candidates {
		if t.Status == ledger.Voided || t.ReconciliationID != "" {
			continue
		}
		recon.Entries = append(recon.Entries, Entry{
			TransactionID:   t.TransactionID,
			TransactionType: t.TransactionType,
			Amount:          t.Amount,
			Date:            t.Date,
			Description:     t.Description,
		})
	}
	recon.Recompute()

	return s.repo.CreateReconciliation(ctx, recon)
}

// Get retrieves a session by ID
func (s *Service) Get(ctx context.Context, firmID, accountID, reconciliationID string) (*BankReconciliation, error) {
	return s.repo.GetReconciliation(ctx, firmID, accountID, reconciliationID)
}

// List retrieves an account's sessions, newest first
func (s *Service) List(ctx context.Context, firmID, accountID string) ([]*BankReconciliation, error) {
	return s.repo.ListReconciliations(ctx, firmID, accountID)
}

// Clear marks a candidate transaction as matched against the bank statement
func (s *Service) Clear(ctx context.Context, firmID, accountID, reconciliationID string, req *ClearRequest) (*BankReconciliation, error) {
	return s.setCleared(ctx, firmID, accountID, reconciliationID, req, true)
}

// Unclear returns a transaction to the outstanding set
func (s *Service) Unclear(ctx context.Context, firmID, accountID, reconciliationID string, req *ClearRequest) (*BankReconciliation, error) {
	return s.setCleared(ctx, firmID, accountID, reconciliationID, req, false)
}

func (s *Service) setCleared(ctx context.Context, firmID, accountID, reconciliationID string, req *ClearRequest, cleared bool) (*BankReconciliation, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	recon, err := s.openSession(ctx, firmID, accountID, reconciliationID)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range recon.Entries {
		if recon.Entries[i].TransactionID == req.TransactionID {
			recon.Entries[i].Cleared = cleared
			found = true
			break
		}
	}
	if !found {
		return nil, errors.NewNotFoundError(fmt.Sprintf(
			"transaction %s is not a candidate in reconciliation %s", req.TransactionID, reconciliationID))
	}

	recon.Recompute()
	recon.UpdatedAt = time.Now().UTC()
	return s.repo.UpdateReconciliation(ctx, recon)
}

// AddAdjustment records a manual correction with its mandatory reason
func (s *Service) AddAdjustment(ctx context.Context, firmID, accountID, reconciliationID string, req *AdjustmentRequest) (*BankReconciliation, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	recon, err := s.openSession(ctx, firmID, accountID, reconciliationID)
	if err != nil {
		return nil, err
	}

	amount, err := money.Parse(req.Amount, recon.Currency)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, errors.NewValidationError("adjustment amount must not be zero")
	}

	now := time.Now().UTC()
	recon.Adjustments = append(recon.Adjustments, Adjustment{
		AdjustmentID: ulid.Make().String(),
		Amount:       amount,
		Reason:       req.Reason,
		CreatedAt:    now,
	})
	recon.Recompute()
	recon.UpdatedAt = now
	return s.repo.UpdateReconciliation(ctx, recon)
}

// Complete finalizes a session. It refuses while the difference is nonzero;
// on success every transaction cleared in the session is stamped with the
// reconciliation id, freezing it against future voiding.
func (s *Service) Complete(ctx context.Context, firmID, accountID, reconciliationID string, req *CompleteRequest) (*BankReconciliation, error) {
	recon, err := s.openSession(ctx, firmID, accountID, reconciliationID)
	if err != nil {
		return nil, err
	}

	recon.Recompute()
	if recon.Difference != 0 {
		return nil, errors.NewUnreconciledDifferenceError(fmt.Sprintf(
			"reconciliation %s has an unresolved difference of %s %s",
			reconciliationID, money.Format(recon.Difference, recon.Currency), recon.Currency)).
			WithDetail("difference", money.Format(recon.Difference, recon.Currency))
	}

	// Freeze before finalizing: a session must never read as completed
	// while its transactions are still voidable.
	if err := s.store.LockTransactions(ctx, firmID, accountID, recon.ClearedTransactionIDs(), reconciliationID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	recon.Status = Completed
	recon.Notes = req.Notes
	recon.CompletedAt = &now
	recon.UpdatedAt = now
	return s.repo.CompleteReconciliation(ctx, recon)
}

// Cancel abandons a session as an exception, releasing the account for a
// fresh session without freezing anything
func (s *Service) Cancel(ctx context.Context, firmID, accountID, reconciliationID string) (*BankReconciliation, error) {
	recon, err := s.openSession(ctx, firmID, accountID, reconciliationID)
	if err != nil {
		return nil, err
	}

	recon.Status = Exception
	recon.UpdatedAt = time.Now().UTC()
	return s.repo.CancelReconciliation(ctx, recon)
}

// RunThreeWay checks that book balance, latest reconciled bank balance, and
// the sum of client balances agree for an account, and persists the result.
// Comparisons are exact: amounts are integer minor units, so there is no
// rounding tolerance. A discrepancy is reported as a typed failure naming
// the disagreeing pairs, never auto-corrected; the run record is persisted
// either way.
func (s *Service) RunThreeWay(ctx context.Context, firmID, accountID string) (*ThreeWayRun, error) {
	acct, err := s.accounts.GetAccount(ctx, firmID, accountID)
	if err != nil {
		return nil, err
	}

	balances, err := s.store.ListClientBalances(ctx, firmID, accountID)
	if err != nil {
		return nil, err
	}
	var clientTotal int64
	for _, b := range balances {
		clientTotal += b.Balance
	}

	run := &ThreeWayRun{
		FirmID:             firmID,
		RunID:              ulid.Make().String(),
		AccountID:          accountID,
		Currency:           acct.Currency,
		RunAt:              time.Now().UTC(),
		BookBalance:        acct.Balance,
		ClientBalanceTotal: clientTotal,
	}

	latest, err := s.repo.LatestCompleted(ctx, firmID, accountID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		bank := latest.StatementBalance
		run.BankBalance = &bank
		run.BankReconciliationID = latest.ReconciliationID
	}

	if run.BookBalance != run.ClientBalanceTotal {
		run.Disagreements = append(run.Disagreements, "book_vs_clients")
	}
	if run.BankBalance != nil {
		if run.BookBalance != *run.BankBalance {
			run.Disagreements = append(run.Disagreements, "book_vs_bank")
		}
		if *run.BankBalance != run.ClientBalanceTotal {
			run.Disagreements = append(run.Disagreements, "bank_vs_clients")
		}
	}
	run.Discrepant = len(run.Disagreements) > 0

	if _, err := s.repo.PutThreeWayRun(ctx, run); err != nil {
		return nil, err
	}

	if run.Discrepant {
		return run, errors.NewThreeWayDiscrepancyError(fmt.Sprintf(
			"account %s balances disagree: %v", accountID, run.Disagreements)).
			WithDetail("runId", run.RunID).
			WithDetail("disagreements", run.Disagreements)
	}
	return run, nil
}

// ListThreeWayRuns retrieves an account's three-way history, newest first
func (s *Service) ListThreeWayRuns(ctx context.Context, firmID, accountID string, limit int) ([]*ThreeWayRun, error) {
	return s.repo.ListThreeWayRuns(ctx, firmID, accountID, limit)
}

func (s *Service) openSession(ctx context.Context, firmID, accountID, reconciliationID string) (*BankReconciliation, error) {
	recon, err := s.repo.GetReconciliation(ctx, firmID, accountID, reconciliationID)
	if err != nil {
		return nil, err
	}
	if recon.Status != InProgress {
		return nil, errors.NewInvalidStateTransitionError(fmt.Sprintf(
			"reconciliation %s is %s and cannot be modified", reconciliationID, recon.Status))
	}
	return recon, nil
}
