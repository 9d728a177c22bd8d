package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tenantID string, tx *Transaction) error
	GetTransaction(ctx context.Context, tenantID string, txID string) (*Transaction, error)
	ListTransactions(ctx context.Context, tenantID string, filter TransactionFilter) ([]*Transaction, int, error)

	// UpdateTransactionAnalysis writes the analysis outcome back to the
	// transaction row and advances its status to analyzed.
	UpdateTransactionAnalysis(ctx context.Context, tenantID string, txID string, score int, suspicious bool, explanation string, analyzedAt time.Time) error

	// UpdateTransactionStatus applies a reviewer status transition.
	UpdateTransactionStatus(ctx context.Context, tenantID string, txID string, status string) error

	// HasPriorTransaction reports whether any transaction other than
	// excludeTxID exists between the same sender and receiver accounts.
	// Used by the beneficiary rule component.
	HasPriorTransaction(ctx context.Context, tenantID string, senderAccount, receiverAccount, excludeTxID string) (bool, error)

	// ListTransactionsForTraining returns up to limit transactions for
	// fitting a new anomaly model.
	ListTransactionsForTraining(ctx context.Context, tenantID string, limit int) ([]*Transaction, error)

	// Analysis results
	SaveAnalysis(ctx context.Context, tenantID string, result *AnalysisResult) error
	GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*AnalysisResult, error)

	// Stats returns the dashboard rollup.
	Stats(ctx context.Context, tenantID string) (*TransactionStats, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// TransactionFilter narrows ListTransactions results.
type TransactionFilter struct {
	Status     string
	Suspicious *bool
	MinAmount  *float64
	MaxAmount  *float64
	Page       int
	PageSize   int
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
