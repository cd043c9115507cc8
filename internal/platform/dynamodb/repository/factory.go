package repository

import (
	"log/slog"

	"github.com/traf3li/trustledger/internal/domain/account"
	"github.com/traf3li/trustledger/internal/domain/ledger"
	"github.com/traf3li/trustledger/internal/domain/reconciliation"
	"github.com/traf3li/trustledger/internal/platform/dynamodb/client"
)

// Factory creates repository instances sharing one client, table, and logger
type Factory struct {
	client    client.Client
	tableName string
	logger    *slog.Logger
}

// NewFactory creates a new repository factory
func NewFactory(client client.Client, tableName string, logger *slog.Logger) *Factory {
	return &Factory{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// TrustAccountRepository returns an implementation of the account.Repository interface
func (f *Factory) TrustAccountRepository() account.Repository {
	return NewDynamoDBTrustAccountRepository(f.client, f.tableName, f.logger)
}

// LedgerStore returns an implementation of the ledger.Store interface
func (f *Factory) LedgerStore() ledger.Store {
	return NewDynamoDBLedgerRepository(f.client, f.tableName, f.logger)
}

// ReconciliationRepository returns an implementation of the reconciliation.Repository interface
func (f *Factory) ReconciliationRepository() reconciliation.Repository {
	return NewDynamoDBReconciliationRepository(f.client, f.tableName, f.logger)
}
