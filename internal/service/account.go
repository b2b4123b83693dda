package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/minibank/ledger-service/internal/domain"
	"github.com/minibank/ledger-service/internal/logging"
	"github.com/minibank/ledger-service/internal/repository"
)

type accountRepository interface {
	Create(ctx context.Context, tx *sql.Tx, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	UpdateDetails(ctx context.Context, id uuid.UUID, name string, accType domain.AccountType) error
	CloseIfEmpty(ctx context.Context, id uuid.UUID) error
}

type fundingLog interface {
	Create(ctx context.Context, tx *sql.Tx, record *domain.TransactionRecord) error
}

// AccountService handles account lifecycle. Balances are out of its reach
// except for the initial funding written at creation.
type AccountService struct {
	accounts accountRepository
	ledger   fundingLog
	db       *sql.DB
}

func NewAccountService(accounts accountRepository, ledger fundingLog, db *sql.DB) *AccountService {
	return &AccountService{accounts: accounts, ledger: ledger, db: db}
}

const maxNumberAttempts = 5

func (s *AccountService) CreateAccount(ctx context.Context, ownerID uuid.UUID, name string, accType domain.AccountType, initialBalance decimal.Decimal) (*domain.Account, error) {
	log := logging.FromContext(ctx)

	if name == "" {
		return nil, fmt.Errorf("CreateAccount: name: %w", domain.ErrInvalidRequest)
	}
	if !accType.IsValid() {
		return nil, fmt.Errorf("CreateAccount: %w", domain.ErrInvalidAccountType)
	}
	if !domain.ValidBalance(initialBalance) {
		return nil, fmt.Errorf("CreateAccount: initial balance: %w", domain.ErrInvalidAmount)
	}

	// Numbers are random, so collisions are possible; retry on the unique
	// constraint rather than pre-checking.
	for range maxNumberAttempts {
		number, err := generateAccountNumber()
		if err != nil {
			return nil, fmt.Errorf("CreateAccount: %w", err)
		}

		account, err := s.createWithFunding(ctx, ownerID, number, name, accType, initialBalance)
		if err != nil {
			if repository.IsUniqueViolation(err) {
				continue
			}
			return nil, fmt.Errorf("CreateAccount: %w", err)
		}

		log.Info("account created",
			"account_id", account.ID,
			"owner_id", ownerID,
			"type", accType,
			"initial_balance", initialBalance,
		)
		return account, nil
	}

	return nil, fmt.Errorf("CreateAccount: could not allocate a unique account number")
}

// createWithFunding inserts the account and, for a nonzero opening balance,
// the DEPOSIT record that accounts for it, in one transaction. The
// reconciliation invariant therefore holds from the account's first moment.
func (s *AccountService) createWithFunding(ctx context.Context, ownerID uuid.UUID, number, name string, accType domain.AccountType, initialBalance decimal.Decimal) (*domain.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("createWithFunding: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	account := &domain.Account{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Number:    number,
		Name:      name,
		Type:      accType,
		Balance:   initialBalance,
		Status:    domain.AccountStatusActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.accounts.Create(ctx, tx, account); err != nil {
		return nil, err
	}

	if initialBalance.IsPositive() {
		desc := "initial funding"
		record := &domain.TransactionRecord{
			ID:              uuid.New(),
			Kind:            domain.TransactionKindDeposit,
			ToAccountID:     &account.ID,
			Amount:          initialBalance,
			Status:          domain.TransactionStatusCompleted,
			Description:     &desc,
			TransactionDate: now,
		}
		if err := s.ledger.Create(ctx, tx, record); err != nil {
			return nil, fmt.Errorf("createWithFunding: funding record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("createWithFunding: commit: %w", err)
	}
	return account, nil
}

type AccountPatch struct {
	Name *string
	Type *domain.AccountType
}

func (s *AccountService) UpdateAccount(ctx context.Context, ownerID, accountID uuid.UUID, patch AccountPatch) (*domain.Account, error) {
	account, err := s.ownedAccount(ctx, ownerID, accountID)
	if err != nil {
		return nil, fmt.Errorf("UpdateAccount: %w", err)
	}

	name := account.Name
	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, fmt.Errorf("UpdateAccount: name: %w", domain.ErrInvalidRequest)
		}
		name = *patch.Name
	}
	accType := account.Type
	if patch.Type != nil {
		if !patch.Type.IsValid() {
			return nil, fmt.Errorf("UpdateAccount: %w", domain.ErrInvalidAccountType)
		}
		accType = *patch.Type
	}

	if err := s.accounts.UpdateDetails(ctx, accountID, name, accType); err != nil {
		return nil, fmt.Errorf("UpdateAccount: %w", err)
	}

	updated, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("UpdateAccount: reload: %w", err)
	}
	return updated, nil
}

// DeleteAccount closes an account. The ledger is append-only, so deletion is
// a status change and requires the balance to already be exactly zero.
func (s *AccountService) DeleteAccount(ctx context.Context, ownerID, accountID uuid.UUID) error {
	account, err := s.ownedAccount(ctx, ownerID, accountID)
	if err != nil {
		return fmt.Errorf("DeleteAccount: %w", err)
	}

	if !account.Balance.IsZero() {
		return fmt.Errorf("DeleteAccount: %w", domain.ErrAccountNotEmpty)
	}

	// The balance check above raced against any in-flight credit; the
	// close itself re-checks the balance atomically.
	if err := s.accounts.CloseIfEmpty(ctx, accountID); err != nil {
		return fmt.Errorf("DeleteAccount: %w", err)
	}

	logging.FromContext(ctx).Info("account closed", "account_id", accountID, "owner_id", ownerID)
	return nil
}

// ownedAccount hides other owners' accounts behind NotFound rather than
// acknowledging their existence with a 403.
func (s *AccountService) ownedAccount(ctx context.Context, ownerID, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return account, nil
}

func generateAccountNumber() (string, error) {
	digits := make([]byte, 10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generateAccountNumber: %w", err)
		}
		digits[i] = '0' + byte(n.Int64())
	}
	return string(digits), nil
}
