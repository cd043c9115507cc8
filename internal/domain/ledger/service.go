package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	ulid "github.com/oklog/ulid/v2"

	"github.com/traf3li/trustledger/internal/domain/account"
	"github.com/traf3li/trustledger/internal/domain/errors"
	"github.com/traf3li/trustledger/internal/domain/money"
	"github.com/traf3li/trustledger/pkg/validator"
)

// Service is the transaction engine: it validates deposits, withdrawals,
// transfers, voids, and clears, and applies them to the ledger store as
// atomic movements.
type Service struct {
	store     Store
	accounts  account.Repository
	validator validator.Validator
}

// NewService creates a new transaction engine service
func NewService(store Store, accounts account.Repository, v validator.Validator) *Service {
	return &Service{
		store:     store,
		accounts:  accounts,
		validator: v,
	}
}

// Deposit records client money received into trust. The account balance and
// the client's balance both increase by the amount; the funds sit in the
// pending split until the bank confirms them.
func (s *Service) Deposit(ctx context.Context, firmID, accountID string, req *DepositRequest) (*MovementResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	acct, err := s.activeAccount(ctx, firmID, accountID)
	if err != nil {
		return nil, err
	}

	amount, err := money.ParsePositive(req.Amount, acct.Currency)
	if err != nil {
		return nil, err
	}

	date, err := resolveDate(req.Date)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	txn := &TrustTransaction{
		FirmID:          firmID,
		TransactionID:   ulid.Make().String(),
		AccountID:       accountID,
		ClientID:        req.ClientID,
		CaseID:          req.CaseID,
		TransactionType: Deposit,
		Amount:          amount,
		Currency:        acct.Currency,
		Date:            date,
		Reference:       req.Reference,
		Description:     req.Notes,
		Counterpart:     req.Payor,
		Status:          Pending,
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	return s.store.ApplyMovement(ctx, &Movement{
		FirmID:         firmID,
		IdempotencyKey: req.IdempotencyKey,
		KeyAccountID:   accountID,
		Entries: []MovementEntry{{
			Transaction:  txn,
			BalanceDelta: amount,
			PendingDelta: amount,
			ClientDelta:  amount,
		}},
	})
}

// Withdraw disburses client money from trust. The amount may never exceed
// the client's own balance: pulling from another client's share of a pooled
// account is a compliance violation even when the account total covers it.
func (s *Service) Withdraw(ctx context.Context, firmID, accountID string, req *WithdrawRequest) (*MovementResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	acct, err := s.activeAccount(ctx, firmID, accountID)
	if err != nil {
		return nil, err
	}

	amount, err := money.ParsePositive(req.Amount, acct.Currency)
	if err != nil {
		return nil, err
	}

	date, err := resolveDate(req.Date)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	txn := &TrustTransaction{
		FirmID:          firmID,
		TransactionID:   ulid.Make().String(),
		AccountID:       accountID,
		ClientID:        req.ClientID,
		CaseID:          req.CaseID,
		TransactionType: Withdrawal,
		Amount:          amount,
		Currency:        acct.Currency,
		Date:            date,
		Reference:       req.Reference,
		Description:     req.Notes,
		Counterpart:     req.Payee,
		Status:          Pending,
		LinkedInvoiceID: req.LinkedInvoiceID,
		LinkedExpenseID: req.LinkedExpenseID,
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	return s.store.ApplyMovement(ctx, &Movement{
		FirmID:         firmID,
		IdempotencyKey: req.IdempotencyKey,
		KeyAccountID:   accountID,
		Entries: []MovementEntry{{
			Transaction:    txn,
			BalanceDelta:   -amount,
			AvailableDelta: -amount,
			ClientDelta:    -amount,
		}},
	})
}

// Transfer moves funds from one client ledger to another, within one account
// or across two, as two linked legs sharing a correlation id. Both legs
// commit or neither does.
func (s *Service) Transfer(ctx context.Context, firmID string, req *TransferRequest) (*MovementResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}
	if req.FromAccountID == req.ToAccountID &&
		req.FromClientID == req.ToClientID && req.FromCaseID == req.ToCaseID {
		return nil, errors.NewValidationError("transfer source and destination are the same client ledger")
	}

	from, err := s.activeAccount(ctx, firmID, req.FromAccountID)
	if err != nil {
		return nil, err
	}
	to := from
	if req.ToAccountID != req.FromAccountID {
		to, err = s.activeAccount(ctx, firmID, req.ToAccountID)
		if err != nil {
			return nil, err
		}
		if to.Currency != from.Currency {
			return nil, errors.NewValidationError(fmt.Sprintf(
				"cannot transfer between %s and %s accounts", from.Currency, to.Currency))
		}
	}

	amount, err := money.ParsePositive(req.Amount, from.Currency)
	if err != nil {
		return nil, err
	}

	date, err := resolveDate(req.Date)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	transferID := uuid.New().String()

	outLeg := &TrustTransaction{
		FirmID:          firmID,
		TransactionID:   ulid.Make().String(),
		AccountID:       req.FromAccountID,
		ClientID:        req.FromClientID,
		CaseID:          req.FromCaseID,
		TransactionType: TransferOut,
		Amount:          amount,
		Currency:        from.Currency,
		Date:            date,
		Reference:       req.Reference,
		Description:     req.Notes,
		Counterpart:     req.ToClientID,
		Status:          Pending,
		TransferID:      transferID,
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	inLeg := &TrustTransaction{
		FirmID:          firmID,
		TransactionID:   ulid.Make().String(),
		AccountID:       req.ToAccountID,
		ClientID:        req.ToClientID,
		CaseID:          req.ToCaseID,
		TransactionType: TransferIn,
		Amount:          amount,
		Currency:        to.Currency,
		Date:            date,
		Reference:       req.Reference,
		Description:     req.Notes,
		Counterpart:     req.FromClientID,
		Status:          Pending,
		TransferID:      transferID,
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	outLeg.CounterpartAccountID = inLeg.AccountID
	outLeg.CounterpartTransactionID = inLeg.TransactionID
	inLeg.CounterpartAccountID = outLeg.AccountID
	inLeg.CounterpartTransactionID = outLeg.TransactionID

	entries := []MovementEntry{
		{
			Transaction:    outLeg,
			BalanceDelta:   -amount,
			AvailableDelta: -amount,
			ClientDelta:    -amount,
		},
		{
			Transaction:  inLeg,
			BalanceDelta: amount,
			PendingDelta: amount,
			ClientDelta:  amount,
		},
	}
	// Deterministic account ordering keeps two opposing transfers from
	// contending in opposite orders.
	keyAccount := req.FromAccountID
	if req.ToAccountID < keyAccount {
		keyAccount = req.ToAccountID
		entries[0], entries[1] = entries[1], entries[0]
	}

	return s.store.ApplyMovement(ctx, &Movement{
		FirmID:         firmID,
		IdempotencyKey: req.IdempotencyKey,
		KeyAccountID:   keyAccount,
		Entries:        entries,
	})
}

// Void reverses a transaction by appending an offsetting entry; the original
// is marked voided but never erased. Entries inside a completed bank
// reconciliation are frozen. Voiding a transfer leg voids both legs
// symmetrically, and is refused if either leg is frozen.
func (s *Service) Void(ctx context.Context, firmID, accountID, transactionID string, req *VoidRequest) (*MovementResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	original, err := s.store.GetTransaction(ctx, firmID, accountID, transactionID)
	if err != nil {
		return nil, err
	}

	legs := []*TrustTransaction{original}
	if original.TransferID != "" {
		paired, err := s.store.GetTransaction(ctx, firmID,
			original.CounterpartAccountID, original.CounterpartTransactionID)
		if err != nil {
			return nil, err
		}
		legs = append(legs, paired)
	}

	for _, leg := range legs {
		if leg.Status == Voided {
			return nil, errors.NewInvalidStateTransitionError(
				fmt.Sprintf("transaction %s is already voided", leg.TransactionID))
		}
		if leg.ReconciliationID != "" {
			return nil, errors.NewReconciliationLockError(fmt.Sprintf(
				"transaction %s was cleared in completed reconciliation %s and cannot be voided",
				leg.TransactionID, leg.ReconciliationID))
		}
	}

	now := time.Now().UTC()
	today := now.Format("2006-01-02")
	mv := &Movement{FirmID: firmID}
	for _, leg := range legs {
		reversal := &TrustTransaction{
			FirmID:          firmID,
			TransactionID:   ulid.Make().String(),
			AccountID:       leg.AccountID,
			ClientID:        leg.ClientID,
			CaseID:          leg.CaseID,
			TransactionType: leg.TransactionType.Reverse(),
			Amount:          leg.Amount,
			Currency:        leg.Currency,
			Date:            today,
			Reference:       leg.Reference,
			Description:     fmt.Sprintf("Reversal of %s: %s", leg.TransactionID, req.Reason),
			Counterpart:     leg.Counterpart,
			Status:          Cleared,
			ClearedDate:     today,
			Voids:           leg.TransactionID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		pendingDelta, availableDelta := splitUndo(leg)
		mv.Entries = append(mv.Entries, MovementEntry{
			Transaction:    reversal,
			BalanceDelta:   -leg.Effect(),
			PendingDelta:   pendingDelta,
			AvailableDelta: availableDelta,
			ClientDelta:    -leg.Effect(),
		})
		mv.StatusChanges = append(mv.StatusChanges, StatusChange{
			AccountID:     leg.AccountID,
			TransactionID: leg.TransactionID,
			From:          leg.Status,
			To:            Voided,
			VoidedBy:      reversal.TransactionID,
			VoidReason:    req.Reason,
		})
	}

	return s.store.ApplyMovement(ctx, mv)
}

// MarkCleared records bank confirmation of a pending transaction. The
// account balance does not move; an uncleared deposit's amount shifts from
// the pending split to the available split.
func (s *Service) MarkCleared(ctx context.Context, firmID, accountID, transactionID string, req *MarkClearedRequest) (*TrustTransaction, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	txn, err := s.store.GetTransaction(ctx, firmID, accountID, transactionID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(txn.Status, Cleared) {
		return nil, errors.NewInvalidStateTransitionError(fmt.Sprintf(
			"transaction %s is %s and cannot be marked cleared", transactionID, txn.Status))
	}

	change := &ClearedChange{
		AccountID:     accountID,
		TransactionID: transactionID,
		ClearedDate:   req.ClearedDate,
	}
	if txn.TransactionType.IsCredit() {
		change.PendingDelta = -txn.Amount
		change.AvailableDelta = txn.Amount
	}

	return s.store.MarkCleared(ctx, firmID, change)
}

// GetTransaction retrieves a single ledger entry
func (s *Service) GetTransaction(ctx context.Context, firmID, accountID, transactionID string) (*TrustTransaction, error) {
	return s.store.GetTransaction(ctx, firmID, accountID, transactionID)
}

// ListTransactions retrieves ledger entries for an account in chronological order
func (s *Service) ListTransactions(ctx context.Context, firmID, accountID string, filter *TransactionFilter) ([]*TrustTransaction, error) {
	return s.store.ListTransactions(ctx, firmID, accountID, filter)
}

// ListClientBalances retrieves every client's share of an account
func (s *Service) ListClientBalances(ctx context.Context, firmID, accountID string) ([]*ClientTrustBalance, error) {
	return s.store.ListClientBalances(ctx, firmID, accountID)
}

func (s *Service) activeAccount(ctx context.Context, firmID, accountID string) (*account.TrustAccount, error) {
	acct, err := s.accounts.GetAccount(ctx, firmID, accountID)
	if err != nil {
		return nil, err
	}
	if !acct.IsActive() {
		return nil, errors.NewAccountClosedError(fmt.Sprintf("account %s is closed", accountID))
	}
	return acct, nil
}

// splitUndo computes how a reversal unwinds the original's effect on the
// pending/available split of the account balance.
func splitUndo(t *TrustTransaction) (pendingDelta, availableDelta int64) {
	if t.TransactionType.IsCredit() {
		if t.Status == Pending {
			return -t.Amount, 0
		}
		return 0, -t.Amount
	}
	return 0, t.Amount
}

func resolveDate(date string) (string, error) {
	if date == "" {
		return time.Now().UTC().Format("2006-01-02"), nil
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", errors.NewValidationError("transaction date must be in YYYY-MM-DD format")
	}
	return date, nil
}
