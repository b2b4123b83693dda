package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/minibank/ledger-service/internal/domain"
)

type accountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByNumber(ctx context.Context, number string) (*domain.Account, error)
	Search(ctx context.Context, ownerID uuid.UUID, term string) ([]domain.Account, error)
}

type historyReader interface {
	HistoryByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.AccountTransaction, int, error)
}

// QueryService is the read side: account projections and transaction
// history. It never mutates anything.
type QueryService struct {
	accounts    accountReader
	ledger      historyReader
	maxPageSize int
}

func NewQueryService(accounts accountReader, ledger historyReader, maxPageSize int) *QueryService {
	return &QueryService{accounts: accounts, ledger: ledger, maxPageSize: maxPageSize}
}

func (s *QueryService) AccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("AccountByID: %w", err)
	}
	return account, nil
}

// AccountByNumber resolves a transfer recipient by the human-facing number,
// so senders never need the recipient's id up front.
func (s *QueryService) AccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	account, err := s.accounts.GetByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("AccountByNumber: %w", err)
	}
	return account, nil
}

func (s *QueryService) SearchAccounts(ctx context.Context, ownerID uuid.UUID, term string) ([]domain.Account, error) {
	accounts, err := s.accounts.Search(ctx, ownerID, term)
	if err != nil {
		return nil, fmt.Errorf("SearchAccounts: %w", err)
	}
	return accounts, nil
}

// TransactionView is one history entry as shown to a caller. Amount is
// always the positive magnitude; Direction says which way it moved relative
// to the requested account. Callers must never re-derive direction by
// comparing ids.
type TransactionView struct {
	ID                 uuid.UUID
	Kind               domain.TransactionKind
	Direction          domain.Direction
	Amount             decimal.Decimal
	CounterpartyNumber *string
	Description        *string
	Status             domain.TransactionStatus
	TransactionDate    time.Time
}

type HistoryPage struct {
	Items []TransactionView
	Total int
	Page  int
	Size  int
}

const defaultPageSize = 20

// HistoryView returns the account's committed records, newest first. The
// page size is clamped to bound response cost.
func (s *QueryService) HistoryView(ctx context.Context, accountID uuid.UUID, page, size int) (*HistoryPage, error) {
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return nil, fmt.Errorf("HistoryView: %w", err)
	}

	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > s.maxPageSize {
		size = s.maxPageSize
	}

	records, total, err := s.ledger.HistoryByAccount(ctx, accountID, size, page*size)
	if err != nil {
		return nil, fmt.Errorf("HistoryView: %w", err)
	}

	items := make([]TransactionView, len(records))
	for i := range records {
		items[i] = toView(&records[i], accountID)
	}

	return &HistoryPage{Items: items, Total: total, Page: page, Size: size}, nil
}

func toView(rec *domain.AccountTransaction, accountID uuid.UUID) TransactionView {
	view := TransactionView{
		ID:              rec.ID,
		Kind:            rec.Kind,
		Amount:          rec.Amount,
		Description:     rec.Description,
		Status:          rec.Status,
		TransactionDate: rec.TransactionDate,
	}

	if rec.FromAccountID != nil && *rec.FromAccountID == accountID {
		view.Direction = domain.DirectionOutgoing
		view.CounterpartyNumber = rec.ToAccountNumber
	} else {
		view.Direction = domain.DirectionIncoming
		view.CounterpartyNumber = rec.FromAccountNumber
	}

	return view
}
