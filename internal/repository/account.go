package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/minibank/ledger-service/internal/domain"
)

const accountColumns = `id, owner_id, number, name, type, balance, status,
	version, created_at, updated_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, tx *sql.Tx, account *domain.Account) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (
			id, owner_id, number, name, type, balance, status,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		account.ID, account.OwnerID, account.Number, account.Name, account.Type,
		account.Balance, account.Status, account.Version,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE number = $1`, number,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByNumber: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByNumber: %w", err)
	}
	return a, nil
}

// Search lists an owner's accounts, optionally filtered by a substring of
// number, name, or type. Insertion order.
func (r *AccountRepository) Search(ctx context.Context, ownerID uuid.UUID, term string) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE owner_id = $1 AND status != 'closed'`
	args := []any{ownerID}
	if term != "" {
		query += ` AND (number ILIKE $2 OR name ILIKE $2 OR type ILIKE $2)`
		args = append(args, "%"+term+"%")
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("Search: scan: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Search: rows: %w", err)
	}
	return accounts, nil
}

// GetForUpdate locks the account row for the duration of tx. A lock wait
// that exceeds the transaction's lock_timeout surfaces as ErrTransferBusy.
func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		if isPgCode(err, pgLockNotAvailable) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrTransferBusy)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance decimal.Decimal, newVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, version = $2, updated_at = $3
		WHERE id = $4 AND version = $5`,
		newBalance, newVersion, time.Now().UTC(), id, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalance: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateBalance: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateBalance: %w", domain.ErrVersionConflict)
	}
	return nil
}

// UpdateDetails changes the non-financial fields. Balance is deliberately
// not reachable from here.
func (r *AccountRepository) UpdateDetails(ctx context.Context, id uuid.UUID, name string, accType domain.AccountType) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET name = $1, type = $2, updated_at = $3 WHERE id = $4`,
		name, accType, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("UpdateDetails: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateDetails: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateDetails: %w", domain.ErrNotFound)
	}
	return nil
}

// SetStatus runs on the pool. Callers that hold the account's row lock in an
// open transaction must roll back or commit before calling it.
func (r *AccountRepository) SetStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("SetStatus: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SetStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("SetStatus: %w", domain.ErrNotFound)
	}
	return nil
}

// CloseIfEmpty marks the account closed only if its balance is still exactly
// zero at execution time. Checking the balance in the same statement as the
// status change means a transfer crediting the account concurrently either
// commits first, leaving a nonzero balance that blocks the close, or finds
// the account already closed and aborts.
func (r *AccountRepository) CloseIfEmpty(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET status = $1, updated_at = $2 WHERE id = $3 AND balance = 0`,
		domain.AccountStatusClosed, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("CloseIfEmpty: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("CloseIfEmpty: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("CloseIfEmpty: %w", domain.ErrAccountNotEmpty)
	}
	return nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.ID, &a.OwnerID, &a.Number, &a.Name, &a.Type,
		&a.Balance, &a.Status, &a.Version,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
