package store

import (
	"context"
	"database/sql"
)

// TransactionRow is a cached transaction, one row per hash. Transactions are
// immutable once confirmed, so a cache hit is authoritative.
type TransactionRow struct {
	ID        int64  `json:"id"`
	Hash      string `json:"transactionHash"`
	Status    string `json:"status"`
	BlockTime int64  `json:"blockTime"`
	Fee       int64  `json:"fee"`
	Signer    string `json:"signer"`
	Source    string `json:"source"`
}

// GetTransaction returns the cached transaction for a hash, or nil on miss.
func (s *Store) GetTransaction(ctx context.Context, hash string) (*TransactionRow, error) {
	const query = `
		SELECT id, transaction_hash, status, block_time, fee, signer, source
		FROM transactions
		WHERE transaction_hash = ?
		LIMIT 1
	`
	var row TransactionRow
	err := s.db.QueryRowContext(ctx, query, hash).Scan(
		&row.ID, &row.Hash, &row.Status, &row.BlockTime, &row.Fee, &row.Signer, &row.Source,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpsertTransaction stores a fetched transaction by hash.
func (s *Store) UpsertTransaction(ctx context.Context, row *TransactionRow) error {
	const query = `
		INSERT INTO transactions (transaction_hash, status, block_time, fee, signer, source)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_hash) DO UPDATE SET
			status     = excluded.status,
			block_time = excluded.block_time,
			fee        = excluded.fee,
			signer     = excluded.signer,
			source     = excluded.source
	`
	_, err := s.db.ExecContext(ctx, query,
		row.Hash, row.Status, row.BlockTime, row.Fee, row.Signer, row.Source)
	return err
}

// TransferRecord is the ledger entry persisted after a broadcast transfer is
// confirmed: the transaction row plus its single system-transfer instruction.
type TransferRecord struct {
	Signature string
	BlockTime int64
	Fee       int64
	From      string
	To        string
	Lamports  int64
}

// RecordTransfer persists the transaction and instruction rows atomically.
// A failure writes nothing: a transfer is either fully recorded or absent.
func (s *Store) RecordTransfer(ctx context.Context, rec *TransferRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (transaction_hash, status, block_time, fee, signer, source)
		VALUES (?, 'confirmed', ?, ?, ?, 'transfer')
	`, rec.Signature, rec.BlockTime, rec.Fee, rec.From)
	if err != nil {
		return err
	}
	txID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO instructions (transaction_id, program, instruction_type, from_address, to_address, lamports)
		VALUES (?, 'system', 'transfer', ?, ?, ?)
	`, txID, rec.From, rec.To, rec.Lamports)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// CountTransferRows reports how many transaction and instruction rows exist.
// Used by diagnostics and tests to verify all-or-nothing persistence.
func (s *Store) CountTransferRows(ctx context.Context) (transactions, instructions int64, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&transactions); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM instructions`).Scan(&instructions); err != nil {
		return 0, 0, err
	}
	return transactions, instructions, nil
}
