package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minibank/ledger-service/internal/domain"
)

type fakeAccountReader struct {
	accounts map[uuid.UUID]*domain.Account
}

func (f *fakeAccountReader) GetByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	if a, ok := f.accounts[id]; ok {
		return a, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeAccountReader) GetByNumber(_ context.Context, number string) (*domain.Account, error) {
	for _, a := range f.accounts {
		if a.Number == number {
			return a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeAccountReader) Search(_ context.Context, ownerID uuid.UUID, _ string) ([]domain.Account, error) {
	var out []domain.Account
	for _, a := range f.accounts {
		if a.OwnerID == ownerID {
			out = append(out, *a)
		}
	}
	return out, nil
}

type fakeHistoryReader struct {
	records []domain.AccountTransaction
}

func (f *fakeHistoryReader) HistoryByAccount(_ context.Context, _ uuid.UUID, limit, offset int) ([]domain.AccountTransaction, int, error) {
	total := len(f.records)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return f.records[offset:end], total, nil
}

func transferBetween(from, to *domain.Account, amount string, at time.Time) domain.AccountTransaction {
	return domain.AccountTransaction{
		TransactionRecord: domain.TransactionRecord{
			ID:              uuid.New(),
			Kind:            domain.TransactionKindTransfer,
			FromAccountID:   &from.ID,
			ToAccountID:     &to.ID,
			Amount:          decimal.RequireFromString(amount),
			Status:          domain.TransactionStatusCompleted,
			TransactionDate: at,
		},
		FromAccountNumber: &from.Number,
		ToAccountNumber:   &to.Number,
	}
}

func TestHistoryView_Directions(t *testing.T) {
	owner := uuid.New()
	mine := &domain.Account{ID: uuid.New(), OwnerID: owner, Number: "1000000001"}
	theirs := &domain.Account{ID: uuid.New(), OwnerID: uuid.New(), Number: "1000000002"}

	now := time.Now().UTC()
	ledger := &fakeHistoryReader{records: []domain.AccountTransaction{
		transferBetween(theirs, mine, "15.00", now),
		transferBetween(mine, theirs, "40.00", now.Add(-time.Minute)),
	}}
	accounts := &fakeAccountReader{accounts: map[uuid.UUID]*domain.Account{mine.ID: mine}}
	svc := NewQueryService(accounts, ledger, 100)

	page, err := svc.HistoryView(context.Background(), mine.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Total)

	incoming := page.Items[0]
	assert.Equal(t, domain.DirectionIncoming, incoming.Direction)
	assert.True(t, incoming.Amount.Equal(decimal.RequireFromString("15.00")))
	require.NotNil(t, incoming.CounterpartyNumber)
	assert.Equal(t, theirs.Number, *incoming.CounterpartyNumber)

	outgoing := page.Items[1]
	assert.Equal(t, domain.DirectionOutgoing, outgoing.Direction)
	assert.True(t, outgoing.Amount.Equal(decimal.RequireFromString("40.00")))
	require.NotNil(t, outgoing.CounterpartyNumber)
	assert.Equal(t, theirs.Number, *outgoing.CounterpartyNumber)
}

func TestHistoryView_Paging(t *testing.T) {
	owner := uuid.New()
	mine := &domain.Account{ID: uuid.New(), OwnerID: owner, Number: "1000000001"}
	other := &domain.Account{ID: uuid.New(), OwnerID: uuid.New(), Number: "1000000002"}

	now := time.Now().UTC()
	var records []domain.AccountTransaction
	for i := range 7 {
		records = append(records, transferBetween(mine, other, "1.00", now.Add(-time.Duration(i)*time.Minute)))
	}

	accounts := &fakeAccountReader{accounts: map[uuid.UUID]*domain.Account{mine.ID: mine}}
	svc := NewQueryService(accounts, &fakeHistoryReader{records: records}, 5)

	tests := []struct {
		name      string
		page      int
		size      int
		wantLen   int
		wantPage  int
		wantSize  int
		wantTotal int
	}{
		{name: "first page", page: 0, size: 3, wantLen: 3, wantPage: 0, wantSize: 3, wantTotal: 7},
		{name: "last partial page", page: 2, size: 3, wantLen: 1, wantPage: 2, wantSize: 3, wantTotal: 7},
		{name: "beyond the end", page: 5, size: 3, wantLen: 0, wantPage: 5, wantSize: 3, wantTotal: 7},
		{name: "size clamped to max", page: 0, size: 50, wantLen: 5, wantPage: 0, wantSize: 5, wantTotal: 7},
		{name: "defaults applied", page: -1, size: 0, wantLen: 5, wantPage: 0, wantSize: 5, wantTotal: 7},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			page, err := svc.HistoryView(context.Background(), mine.ID, tc.page, tc.size)
			require.NoError(t, err)
			assert.Len(t, page.Items, tc.wantLen)
			assert.Equal(t, tc.wantPage, page.Page)
			assert.Equal(t, tc.wantSize, page.Size)
			assert.Equal(t, tc.wantTotal, page.Total)
		})
	}
}

func TestHistoryView_UnknownAccount(t *testing.T) {
	svc := NewQueryService(
		&fakeAccountReader{accounts: map[uuid.UUID]*domain.Account{}},
		&fakeHistoryReader{},
		100,
	)

	_, err := svc.HistoryView(context.Background(), uuid.New(), 0, 10)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
