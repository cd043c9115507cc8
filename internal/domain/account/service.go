package account

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/traf3li/trustledger/internal/domain/errors"
	"github.com/traf3li/trustledger/internal/domain/money"
	"github.com/traf3li/trustledger/pkg/validator"
)

// Service provides trust account business logic
type Service struct {
	repo      Repository
	validator validator.Validator
}

// NewService creates a new trust account service
func NewService(repo Repository, v validator.Validator) *Service {
	return &Service{
		repo:      repo,
		validator: v,
	}
}

// CreateAccount creates a new trust account for a firm.
//
// An opening balance, if supplied, must parse as a valid amount and must be
// zero: trust funds are only ever attributed to clients, so seeding an
// account is done through client deposits, not an unattributed opening
// balance that would break the per-client ledger invariant.
func (s *Service) CreateAccount(ctx context.Context, firmID string, req *CreateAccountRequest) (*TrustAccount, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	if _, err := money.Scale(req.Currency); err != nil {
		return nil, err
	}

	if req.OpeningBalance != "" {
		units, err := money.Parse(req.OpeningBalance, req.Currency)
		if err != nil {
			return nil, err
		}
		if units < 0 {
			return nil, errors.NewValidationError("opening balance must not be negative")
		}
		if units > 0 {
			return nil, errors.NewValidationError(
				"opening balances must be recorded as client deposits so funds stay attributed to clients")
		}
	}

	now := time.Now().UTC()
	acct := &TrustAccount{
		FirmID:      firmID,
		AccountID:   uuid.New().String(),
		Name:        req.Name,
		AccountType: req.AccountType,
		Currency:    req.Currency,
		Status:      Active,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	return s.repo.CreateAccount(ctx, acct)
}

// GetAccount retrieves a trust account by ID
func (s *Service) GetAccount(ctx context.Context, firmID, accountID string) (*TrustAccount, error) {
	return s.repo.GetAccount(ctx, firmID, accountID)
}

// ListAccounts retrieves all trust accounts for a firm
func (s *Service) ListAccounts(ctx context.Context, firmID string) ([]*TrustAccount, error) {
	return s.repo.ListAccounts(ctx, firmID)
}

// CloseAccount soft-closes a trust account. The account must hold no funds
// and the reason is kept for the audit trail.
func (s *Service) CloseAccount(ctx context.Context, firmID, accountID string, req *CloseAccountRequest) (*TrustAccount, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	acct, err := s.repo.GetAccount(ctx, firmID, accountID)
	if err != nil {
		return nil, err
	}
	if !acct.IsActive() {
		return nil, errors.NewAccountClosedError(fmt.Sprintf("account %s is already closed", accountID))
	}
	if acct.Balance != 0 {
		return nil, errors.NewValidationError(fmt.Sprintf(
			"account %s still holds %s %s; disburse all client funds before closing",
			accountID, money.Format(acct.Balance, acct.Currency), acct.Currency))
	}

	return s.repo.CloseAccount(ctx, firmID, accountID, req.Reason)
}
