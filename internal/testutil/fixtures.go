package testutil

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/minibank/ledger-service/internal/domain"
)

var nextAccountNumber = 1000000000

func SeedTestUser(t *testing.T, db *sql.DB, email, name string) *domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	_, err = db.Exec(
		`INSERT INTO users (id, email, name, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed test user %s: %v", email, err)
	}
	return u
}

// SeedTestAccount inserts an account and, when the opening balance is
// non-zero, a matching DEPOSIT record so that the balance always equals the
// sum of recorded effects.
func SeedTestAccount(t *testing.T, db *sql.DB, ownerID uuid.UUID, accType domain.AccountType, balance decimal.Decimal) *domain.Account {
	t.Helper()

	nextAccountNumber++
	now := time.Now().UTC()
	a := &domain.Account{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Number:    fmt.Sprintf("%d", nextAccountNumber),
		Name:      "test account",
		Type:      accType,
		Balance:   balance,
		Status:    domain.AccountStatusActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := db.Exec(
		`INSERT INTO accounts (id, owner_id, number, name, type, balance, status, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.OwnerID, a.Number, a.Name, a.Type, a.Balance, a.Status, a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed test account for %s: %v", ownerID, err)
	}

	if balance.IsPositive() {
		_, err = db.Exec(
			`INSERT INTO transactions (id, kind, to_account_id, amount, status, description, transaction_date)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New(), domain.TransactionKindDeposit, a.ID, balance,
			domain.TransactionStatusCompleted, "initial funding", now,
		)
		if err != nil {
			t.Fatalf("seed funding record for %s: %v", a.ID, err)
		}
	}
	return a
}

func GetAccountBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get account balance %s: %v", accountID, err)
	}
	return balance
}

func CountTransactions(t *testing.T, db *sql.DB, accountID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM transactions WHERE from_account_id = $1 OR to_account_id = $1`,
		accountID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count transactions for account %s: %v", accountID, err)
	}
	return count
}
