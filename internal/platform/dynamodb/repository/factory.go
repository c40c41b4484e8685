package repository

import (
	"log/slog"

	"github.com/hoaworks/fundledger/internal/domain/balance"
	"github.com/hoaworks/fundledger/internal/domain/journal"
	"github.com/hoaworks/fundledger/internal/domain/reconcile"
	"github.com/hoaworks/fundledger/internal/domain/registry"
	"github.com/hoaworks/fundledger/internal/platform/dynamodb/client"
)

// Factory creates repository instances
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

// JournalRepository returns an implementation of the journal.Repository interface
func (f *Factory) JournalRepository() journal.Repository {
	return NewDynamoDBJournalRepository(f.client, f.tableName, f.logger)
}

// RegistryRepository returns an implementation of the registry.Repository interface
func (f *Factory) RegistryRepository() registry.Repository {
	return NewDynamoDBRegistryRepository(f.client, f.tableName)
}

// StatementRepository returns an implementation of the reconcile.Repository interface
func (f *Factory) StatementRepository() reconcile.Repository {
	return NewDynamoDBStatementRepository(f.client, f.tableName, f.logger)
}

// BalanceRepository returns an implementation of the balance.SnapshotRepository interface
func (f *Factory) BalanceRepository() balance.SnapshotRepository {
	return NewDynamoDBBalanceRepository(f.client, f.tableName)
}
