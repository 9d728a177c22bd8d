// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const transactionColumns = `id, tenant_id, reference, amount, currency,
	sender_account, receiver_account, sender_name, receiver_name,
	type, channel, country_origin, country_destination, description,
	timestamp, created_at, status, fraud_score, is_suspicious,
	explanation, analysis_date`

// SaveTransaction stores a transaction with tenant isolation.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID, tx.Reference, tx.Amount, tx.Currency,
		tx.SenderAccount, tx.ReceiverAccount, tx.SenderName, tx.ReceiverName,
		tx.Type, tx.Channel, tx.CountryOrigin, tx.CountryDestination, tx.Description,
		tx.Timestamp, tx.CreatedAt, tx.Status, nullableInt(tx.FraudScore), boolToInt(tx.IsSuspicious),
		tx.Explanation, nullableTime(tx.AnalysisDate),
	)
	return err
}

// GetTransaction retrieves a transaction by ID with tenant isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, tenantID string, txID string) (*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE tenant_id = ? AND id = ?`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tx, err
}

// ListTransactions retrieves a filtered, paginated transaction list plus
// the total count matching the filter.
func (r *SQLRepository) ListTransactions(ctx context.Context, tenantID string, filter domain.TransactionFilter) ([]*domain.Transaction, int, error) {
	if tenantID == "" {
		return nil, 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	where := []string{"tenant_id = ?"}
	args := []any{tenantID}

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Suspicious != nil {
		where = append(where, "is_suspicious = ?")
		args = append(args, boolToInt(*filter.Suspicious))
	}
	if filter.MinAmount != nil {
		where = append(where, "amount >= ?")
		args = append(args, *filter.MinAmount)
	}
	if filter.MaxAmount != nil {
		where = append(where, "amount <= ?")
		args = append(args, *filter.MaxAmount)
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM transactions WHERE " + whereClause
	if err := r.db.QueryRowContext(ctx, r.rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 50
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + whereClause + `
		ORDER BY timestamp DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, total, rows.Err()
}

// UpdateTransactionAnalysis writes the analysis outcome back to the
// transaction row and advances its status to analyzed.
func (r *SQLRepository) UpdateTransactionAnalysis(ctx context.Context, tenantID string, txID string, score int, suspicious bool, explanation string, analyzedAt time.Time) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE transactions
		SET fraud_score = ?, is_suspicious = ?, explanation = ?, analysis_date = ?, status = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		score, boolToInt(suspicious), explanation, analyzedAt, domain.StatusAnalyzed,
		tenantID, txID,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateTransactionStatus applies a reviewer status transition.
func (r *SQLRepository) UpdateTransactionStatus(ctx context.Context, tenantID string, txID string, status string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `UPDATE transactions SET status = ? WHERE tenant_id = ? AND id = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(query), status, tenantID, txID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// HasPriorTransaction reports whether any transaction other than
// excludeTxID exists between the same sender and receiver accounts.
func (r *SQLRepository) HasPriorTransaction(ctx context.Context, tenantID string, senderAccount, receiverAccount, excludeTxID string) (bool, error) {
	if tenantID == "" {
		return false, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(1) FROM transactions
		WHERE tenant_id = ? AND sender_account = ? AND receiver_account = ? AND id != ?
	`

	var count int
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, senderAccount, receiverAccount, excludeTxID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListTransactionsForTraining returns up to limit transactions, most
// recent first, for fitting a new anomaly model.
func (r *SQLRepository) ListTransactionsForTraining(ctx context.Context, tenantID string, limit int) ([]*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 1000
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE tenant_id = ? ORDER BY timestamp DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// SaveAnalysis stores an analysis result with tenant isolation.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, tenantID string, result *domain.AnalysisResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	factors, _ := json.Marshal(result.Factors)
	components, _ := json.Marshal(result.Components)
	metadata, _ := json.Marshal(result.Metadata)

	query := `
		INSERT INTO analyses (
			id, tenant_id, tx_id, score, suspicious, risk_level,
			factors, components, analyzed_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		result.ID, tenantID, result.TxID, result.Score, boolToInt(result.Suspicious),
		result.RiskLevel, string(factors), string(components), result.AnalyzedAt, string(metadata),
	)
	return err
}

// GetAnalysis retrieves an analysis result by ID with tenant isolation.
func (r *SQLRepository) GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*domain.AnalysisResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, tx_id, score, suspicious, risk_level,
			   factors, components, analyzed_at, metadata
		FROM analyses
		WHERE tenant_id = ? AND id = ?
	`

	var result domain.AnalysisResult
	var suspicious int
	var factors, components, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, analysisID).Scan(
		&result.ID, &result.TenantID, &result.TxID, &result.Score, &suspicious,
		&result.RiskLevel, &factors, &components, &result.AnalyzedAt, &metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	result.Suspicious = suspicious == 1
	json.Unmarshal([]byte(factors), &result.Factors)
	json.Unmarshal([]byte(components), &result.Components)
	json.Unmarshal([]byte(metadata), &result.Metadata)

	return &result, nil
}

// Stats returns the dashboard rollup for a tenant.
func (r *SQLRepository) Stats(ctx context.Context, tenantID string) (*domain.TransactionStats, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(is_suspicious), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_suspicious = 1 AND status IN (?, ?, ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN fraud_score >= 70 THEN 1 ELSE 0 END), 0),
			AVG(fraud_score)
		FROM transactions
		WHERE tenant_id = ?
	`

	var stats domain.TransactionStats
	var avg sql.NullFloat64

	err := r.db.QueryRowContext(ctx, r.rebind(query),
		domain.StatusConfirmedFraud,
		domain.StatusAnalyzed, domain.StatusUnderInvestigation, domain.StatusPendingCall,
		tenantID,
	).Scan(
		&stats.TotalTransactions, &stats.SuspiciousCount, &stats.ConfirmedFraud,
		&stats.PendingReview, &stats.HighRiskCount, &avg,
	)
	if err != nil {
		return nil, err
	}

	if avg.Valid {
		stats.AverageScore = &avg.Float64
	}
	return &stats, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var senderName, receiverName, countryOrigin, countryDest, description, explanation sql.NullString
	var fraudScore sql.NullInt64
	var suspicious int
	var analysisDate sql.NullTime

	err := row.Scan(
		&tx.ID, &tx.TenantID, &tx.Reference, &tx.Amount, &tx.Currency,
		&tx.SenderAccount, &tx.ReceiverAccount, &senderName, &receiverName,
		&tx.Type, &tx.Channel, &countryOrigin, &countryDest, &description,
		&tx.Timestamp, &tx.CreatedAt, &tx.Status, &fraudScore, &suspicious,
		&explanation, &analysisDate,
	)
	if err != nil {
		return nil, err
	}

	tx.SenderName = senderName.String
	tx.ReceiverName = receiverName.String
	tx.CountryOrigin = countryOrigin.String
	tx.CountryDestination = countryDest.String
	tx.Description = description.String
	tx.Explanation = explanation.String
	tx.IsSuspicious = suspicious == 1
	if fraudScore.Valid {
		score := int(fraudScore.Int64)
		tx.FraudScore = &score
	}
	if analysisDate.Valid {
		t := analysisDate.Time
		tx.AnalysisDate = &t
	}
	return &tx, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
