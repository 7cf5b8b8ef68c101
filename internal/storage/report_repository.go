package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wallet-insight/internal/types"
)

// ErrReportNotFound is returned when a report snapshot does not exist
var ErrReportNotFound = errors.New("report not found")

// ReportRepository stores wallet report snapshots in Postgres
type ReportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository creates a new report repository
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{
		pool: pool,
	}
}

// Create stores a new report snapshot, assigning an ID when the report has none
func (r *ReportRepository) Create(ctx context.Context, report *types.WalletReport) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	tags := report.Behavior.Tags
	if tags == nil {
		tags = []string{}
	}

	query := `
		INSERT INTO wallet_reports (
			id,
			chain,
			address,
			transaction_count,
			tags,
			report,
			generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.pool.Exec(
		ctx,
		query,
		report.ID,
		string(report.Chain),
		strings.ToLower(report.Address),
		report.Behavior.Metrics.TotalTransactions,
		tags,
		payload,
		report.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	return nil
}

// GetByID retrieves a single report snapshot
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*types.WalletReport, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrReportNotFound
	}

	var payload []byte
	err := r.pool.QueryRow(ctx, `SELECT report FROM wallet_reports WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to query report: %w", err)
	}

	var report types.WalletReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &report, nil
}

// ListByAddress returns the most recent report snapshots of an address, newest first
func (r *ReportRepository) ListByAddress(ctx context.Context, chain types.ChainSymbol, address string, limit int) ([]*types.WalletReport, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT report
		FROM wallet_reports
		WHERE chain = $1 AND address = $2
		ORDER BY generated_at DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, string(chain), strings.ToLower(address), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []*types.WalletReport
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}

		var report types.WalletReport
		if err := json.Unmarshal(payload, &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report: %w", err)
		}
		reports = append(reports, &report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating report rows: %w", err)
	}

	return reports, nil
}

// DeleteOlderThan removes snapshots generated before the cutoff
func (r *ReportRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM wallet_reports WHERE generated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old reports: %w", err)
	}
	return result.RowsAffected(), nil
}
