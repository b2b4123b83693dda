package transfer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/minibank/ledger-service/internal/config"
	"github.com/minibank/ledger-service/internal/domain"
)

type accountRepo interface {
	GetByNumber(ctx context.Context, number string) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance decimal.Decimal, newVersion int64) error
	SetStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus) error
}

type transactionLog interface {
	Create(ctx context.Context, tx *sql.Tx, record *domain.TransactionRecord) error
	SumEffects(ctx context.Context, tx *sql.Tx, accountID uuid.UUID) (decimal.Decimal, error)
}

// Service owns the only write path to account balances and the ledger.
type Service struct {
	accounts      accountRepo
	ledger        transactionLog
	db            *sql.DB
	creditLimit   decimal.Decimal
	lockTimeoutMS int
}

func NewService(accounts accountRepo, ledger transactionLog, db *sql.DB, cfg *config.Config) (*Service, error) {
	limit, err := decimal.NewFromString(cfg.CreditLimit)
	if err != nil {
		return nil, fmt.Errorf("NewService: parse credit limit %q: %w", cfg.CreditLimit, err)
	}
	if limit.IsNegative() {
		return nil, fmt.Errorf("NewService: credit limit %q must not be negative", cfg.CreditLimit)
	}
	return &Service{
		accounts:      accounts,
		ledger:        ledger,
		db:            db,
		creditLimit:   limit,
		lockTimeoutMS: cfg.LockTimeoutMS,
	}, nil
}
