package store

import (
	"context"
	"database/sql"
	"time"

	"solgate/internal/domain"
)

// BalanceRow is a cached wallet balance, one row per address.
type BalanceRow struct {
	ID          int64     `json:"id"`
	Address     string    `json:"address"`
	Lamports    int64     `json:"balance_lamports"`
	SOL         float64   `json:"balance_sol"`
	Token       string    `json:"token"`
	Source      string    `json:"source"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// UpsertBalance refreshes the single row for an address, last write wins.
// The unique constraint on address makes repeated calls converge without a
// read-modify-write cycle.
func (s *Store) UpsertBalance(ctx context.Context, address string, lamports int64, token, source string) error {
	const query = `
		INSERT INTO wallet_balances (address, balance_lamports, balance_sol, token, source, retrieved_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(address) DO UPDATE SET
			balance_lamports = excluded.balance_lamports,
			balance_sol      = excluded.balance_sol,
			token            = excluded.token,
			source           = excluded.source,
			retrieved_at     = excluded.retrieved_at
	`
	sol := float64(lamports) / domain.LamportsPerSOL
	_, err := s.db.ExecContext(ctx, query, address, lamports, sol, token, source)
	return err
}

// GetBalance returns the cached balance for an address, or nil when absent.
func (s *Store) GetBalance(ctx context.Context, address string) (*BalanceRow, error) {
	const query = `
		SELECT id, address, balance_lamports, balance_sol, token, source, retrieved_at
		FROM wallet_balances
		WHERE address = ?
		LIMIT 1
	`
	var row BalanceRow
	err := s.db.QueryRowContext(ctx, query, address).Scan(
		&row.ID, &row.Address, &row.Lamports, &row.SOL, &row.Token, &row.Source, &row.RetrievedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
