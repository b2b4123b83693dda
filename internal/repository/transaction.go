package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/minibank/ledger-service/internal/domain"
)

const transactionColumns = `id, kind, from_account_id, to_account_id,
	amount, status, description, transaction_date`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create appends one record to the ledger. It is only ever called inside a
// transfer or account-funding transaction; nothing updates or deletes rows
// in this table.
func (r *TransactionRepository) Create(ctx context.Context, tx *sql.Tx, record *domain.TransactionRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (
			id, kind, from_account_id, to_account_id,
			amount, status, description, transaction_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.Kind, record.FromAccountID, record.ToAccountID,
		record.Amount, record.Status, record.Description, record.TransactionDate,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// HistoryByAccount returns every record where the account is source or
// destination, newest first, with the account numbers of both sides joined
// in for display. The second return value is the total matching count.
func (r *TransactionRepository) HistoryByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.AccountTransaction, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions
		WHERE from_account_id = $1 OR to_account_id = $1`, accountID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("HistoryByAccount: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.kind, t.from_account_id, t.to_account_id,
			t.amount, t.status, t.description, t.transaction_date,
			fa.number, ta.number
		FROM transactions t
		LEFT JOIN accounts fa ON fa.id = t.from_account_id
		LEFT JOIN accounts ta ON ta.id = t.to_account_id
		WHERE t.from_account_id = $1 OR t.to_account_id = $1
		ORDER BY t.transaction_date DESC, t.id DESC
		LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("HistoryByAccount: %w", err)
	}
	defer rows.Close()

	var records []domain.AccountTransaction
	for rows.Next() {
		var rec domain.AccountTransaction
		err := rows.Scan(
			&rec.ID, &rec.Kind, &rec.FromAccountID, &rec.ToAccountID,
			&rec.Amount, &rec.Status, &rec.Description, &rec.TransactionDate,
			&rec.FromAccountNumber, &rec.ToAccountNumber,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("HistoryByAccount: scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("HistoryByAccount: rows: %w", err)
	}
	return records, total, nil
}

// SumEffects computes the signed sum of every committed record touching the
// account: +amount where it is the destination, -amount where it is the
// source. Running it on tx sees rows written earlier in the same transfer.
func (r *TransactionRepository) SumEffects(ctx context.Context, tx *sql.Tx, accountID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(
			CASE WHEN to_account_id = $1 THEN amount ELSE 0 END -
			CASE WHEN from_account_id = $1 THEN amount ELSE 0 END
		), 0)
		FROM transactions
		WHERE from_account_id = $1 OR to_account_id = $1`,
		accountID,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("SumEffects: %w", err)
	}
	return sum, nil
}

func scanTransaction(s scanner) (*domain.TransactionRecord, error) {
	var t domain.TransactionRecord
	err := s.Scan(
		&t.ID, &t.Kind, &t.FromAccountID, &t.ToAccountID,
		&t.Amount, &t.Status, &t.Description, &t.TransactionDate,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByID is used by read paths that re-fetch a committed record.
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return t, nil
}
