package store

import (
	"context"
	"database/sql"
	"time"

	"solgate/internal/domain"
)

// PnLSummaryRow is a cached PnL summary, one row per wallet. The summary JSON
// is stored verbatim as fetched from the provider.
type PnLSummaryRow struct {
	ID          int64     `json:"id"`
	Wallet      string    `json:"wallet_address"`
	Summary     string    `json:"summary"`
	Source      string    `json:"source"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// UpsertPnLSummary replaces the whole summary row for a wallet and returns
// its id for the token breakdown.
func (s *Store) UpsertPnLSummary(ctx context.Context, wallet, summary, source string) (int64, error) {
	const query = `
		INSERT INTO wallet_pnl_summary (wallet_address, summary, source, retrieved_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(wallet_address) DO UPDATE SET
			summary      = excluded.summary,
			source       = excluded.source,
			retrieved_at = excluded.retrieved_at
		RETURNING id
	`
	var id int64
	if err := s.db.QueryRowContext(ctx, query, wallet, summary, source).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// ReplacePnLTokens deletes and reinserts the per-token breakdown for a
// summary. Full replacement keeps the breakdown exactly in step with its
// parent summary; there is no incremental diffing.
func (s *Store) ReplacePnLTokens(ctx context.Context, summaryID int64, wallet string, tokens []domain.PnLToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM wallet_pnl_tokens WHERE summary_id = ?`, summaryID); err != nil {
		return err
	}

	for _, token := range tokens {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO wallet_pnl_tokens (summary_id, wallet_address, token, details)
			VALUES (?, ?, ?, ?)
		`, summaryID, wallet, token.Symbol, string(token.Details)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DistributionBucket is one bucketed count of per-token PnL ratios.
type DistributionBucket struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

// PnLDistribution buckets each token's total/total_invested ratio for a
// summary. Tokens without a usable invested amount are excluded.
func (s *Store) PnLDistribution(ctx context.Context, summaryID int64) ([]DistributionBucket, error) {
	const query = `
		SELECT
			CASE
				WHEN pnl < -0.5 THEN '<-50%'
				WHEN pnl < 0    THEN '-50-0%'
				WHEN pnl < 2    THEN '0-200%'
				WHEN pnl < 5    THEN '200-500%'
				ELSE '>500%'
			END AS bucket,
			COUNT(*) AS count
		FROM (
			SELECT
				CAST(json_extract(details, '$.total') AS REAL) /
				CAST(json_extract(details, '$.total_invested') AS REAL) AS pnl
			FROM wallet_pnl_tokens
			WHERE summary_id = ?
			  AND json_extract(details, '$.total_invested') IS NOT NULL
			  AND CAST(json_extract(details, '$.total_invested') AS REAL) != 0
		)
		GROUP BY bucket
		ORDER BY bucket
	`
	rows, err := s.db.QueryContext(ctx, query, summaryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []DistributionBucket
	for rows.Next() {
		var b DistributionBucket
		if err := rows.Scan(&b.Bucket, &b.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// GetPnLSummary returns the cached summary row for a wallet, or nil.
func (s *Store) GetPnLSummary(ctx context.Context, wallet string) (*PnLSummaryRow, error) {
	const query = `
		SELECT id, wallet_address, summary, source, retrieved_at
		FROM wallet_pnl_summary
		WHERE wallet_address = ?
		LIMIT 1
	`
	var row PnLSummaryRow
	err := s.db.QueryRowContext(ctx, query, wallet).Scan(
		&row.ID, &row.Wallet, &row.Summary, &row.Source, &row.RetrievedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
