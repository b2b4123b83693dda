package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minibank/ledger-service/internal/auth"
	"github.com/minibank/ledger-service/internal/domain"
	"github.com/minibank/ledger-service/internal/service"
	"github.com/minibank/ledger-service/internal/service/transfer"
)

type mockTransferService struct {
	gotReq transfer.TransferRequest
	rec    *domain.TransactionRecord
	err    error
}

func (m *mockTransferService) Transfer(_ context.Context, req transfer.TransferRequest) (*domain.TransactionRecord, error) {
	m.gotReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.rec, nil
}

type mockTransactionGetter struct {
	rec *domain.TransactionRecord
	err error
}

func (m *mockTransactionGetter) GetByID(_ context.Context, _ uuid.UUID) (*domain.TransactionRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.rec, nil
}

type mockAccountQueries struct {
	account *domain.Account
	history *service.HistoryPage
	err     error
}

func (m *mockAccountQueries) AccountByID(_ context.Context, _ uuid.UUID) (*domain.Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.account, nil
}

func (m *mockAccountQueries) AccountByNumber(_ context.Context, _ string) (*domain.Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.account, nil
}

func (m *mockAccountQueries) SearchAccounts(_ context.Context, _ uuid.UUID, _ string) ([]domain.Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []domain.Account{*m.account}, nil
}

func (m *mockAccountQueries) HistoryView(_ context.Context, _ uuid.UUID, page, size int) (*service.HistoryPage, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.history, nil
}

func authedRequest(method, target, body string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(auth.ContextWithOwnerID(req.Context(), userID))
}

func validTransferBody() string {
	b, _ := json.Marshal(createTransferRequest{
		FromAccountNumber: "1000000001",
		ToAccountNumber:   "1000000002",
		Amount:            decimal.RequireFromString("25.00"),
	})
	return string(b)
}

func TestCreateTransfer(t *testing.T) {
	userID := uuid.New()
	fromID, toID := uuid.New(), uuid.New()
	completed := &domain.TransactionRecord{
		ID:              uuid.New(),
		Kind:            domain.TransactionKindTransfer,
		FromAccountID:   &fromID,
		ToAccountID:     &toID,
		Amount:          decimal.RequireFromString("25.00"),
		Status:          domain.TransactionStatusCompleted,
		TransactionDate: time.Now().UTC(),
	}

	tests := []struct {
		name       string
		body       string
		authed     bool
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "successful transfer",
			body:       validTransferBody(),
			authed:     true,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing auth context",
			body:       validTransferBody(),
			authed:     false,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "MISSING_TOKEN",
		},
		{
			name:       "invalid JSON",
			body:       "not-json",
			authed:     true,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "missing fields",
			body:       `{"amount":"10.00"}`,
			authed:     true,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "zero amount",
			body:       `{"from_account_number":"1000000001","to_account_number":"1000000002","amount":"0"}`,
			authed:     true,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "insufficient funds",
			body:       validTransferBody(),
			authed:     true,
			svcErr:     fmt.Errorf("Transfer: %w", domain.ErrInsufficientFunds),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INSUFFICIENT_FUNDS",
		},
		{
			name:       "self transfer",
			body:       validTransferBody(),
			authed:     true,
			svcErr:     fmt.Errorf("Transfer: %w", domain.ErrSelfTransfer),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "SELF_TRANSFER_NOT_ALLOWED",
		},
		{
			name:       "recipient not found",
			body:       validTransferBody(),
			authed:     true,
			svcErr:     fmt.Errorf("Transfer: %w", domain.ErrRecipientNotFound),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "RECIPIENT_NOT_FOUND",
		},
		{
			name:       "not the owner",
			body:       validTransferBody(),
			authed:     true,
			svcErr:     fmt.Errorf("Transfer: %w", domain.ErrNotAccountOwner),
			wantStatus: http.StatusForbidden,
			wantCode:   "NOT_ACCOUNT_OWNER",
		},
		{
			name:       "lock contention",
			body:       validTransferBody(),
			authed:     true,
			svcErr:     fmt.Errorf("Transfer: %w", domain.ErrTransferBusy),
			wantStatus: http.StatusConflict,
			wantCode:   "TRANSFER_BUSY",
		},
		{
			name:       "invariant violation hides detail",
			body:       validTransferBody(),
			authed:     true,
			svcErr:     fmt.Errorf("Transfer: %w", domain.ErrInvariantViolation),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockTransferService{rec: completed, err: tc.svcErr}
			h := NewTransferHandler(svc, &mockTransactionGetter{}, &mockAccountQueries{})

			var req *http.Request
			if tc.authed {
				req = authedRequest(http.MethodPost, "/api/v1/transfers", tc.body, userID)
			} else {
				req = httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(tc.body))
			}
			rr := httptest.NewRecorder()

			h.Create(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)

			var resp APIResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

			if tc.wantCode == "" {
				assert.True(t, resp.Success)
			} else {
				assert.False(t, resp.Success)
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestCreateTransfer_PassesOwnerFromToken(t *testing.T) {
	userID := uuid.New()
	fromID, toID := uuid.New(), uuid.New()
	svc := &mockTransferService{rec: &domain.TransactionRecord{
		ID:            uuid.New(),
		Kind:          domain.TransactionKindTransfer,
		FromAccountID: &fromID,
		ToAccountID:   &toID,
		Amount:        decimal.RequireFromString("25.00"),
		Status:        domain.TransactionStatusCompleted,
	}}
	h := NewTransferHandler(svc, &mockTransactionGetter{}, &mockAccountQueries{})

	req := authedRequest(http.MethodPost, "/api/v1/transfers", validTransferBody(), userID)
	rr := httptest.NewRecorder()

	h.Create(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, userID, svc.gotReq.OwnerID)
	assert.Equal(t, "1000000001", svc.gotReq.FromNumber)
	assert.Equal(t, "1000000002", svc.gotReq.ToNumber)
	assert.True(t, svc.gotReq.Amount.Equal(decimal.RequireFromString("25.00")))
}

func TestGetTransactionByID(t *testing.T) {
	owner := uuid.New()
	stranger := uuid.New()
	fromID, toID := uuid.New(), uuid.New()
	rec := &domain.TransactionRecord{
		ID:            uuid.New(),
		Kind:          domain.TransactionKindTransfer,
		FromAccountID: &fromID,
		ToAccountID:   &toID,
		Amount:        decimal.RequireFromString("30.00"),
		Status:        domain.TransactionStatusCompleted,
	}

	queries := &mockAccountQueries{
		account: &domain.Account{ID: fromID, OwnerID: owner, Number: "1000000001"},
	}
	h := NewTransferHandler(&mockTransferService{}, &mockTransactionGetter{rec: rec}, queries)

	t.Run("a participant can read the record", func(t *testing.T) {
		req := authedRequest(http.MethodGet, "/api/v1/transactions/"+rec.ID.String(), "", owner)
		req.SetPathValue("id", rec.ID.String())
		rr := httptest.NewRecorder()

		h.GetByID(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("an outsider sees not found", func(t *testing.T) {
		req := authedRequest(http.MethodGet, "/api/v1/transactions/"+rec.ID.String(), "", stranger)
		req.SetPathValue("id", rec.ID.String())
		rr := httptest.NewRecorder()

		h.GetByID(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestHistory_OwnershipAndPaging(t *testing.T) {
	owner := uuid.New()
	stranger := uuid.New()
	accountID := uuid.New()

	queries := &mockAccountQueries{
		account: &domain.Account{ID: accountID, OwnerID: owner, Number: "1000000001"},
		history: &service.HistoryPage{
			Items: []service.TransactionView{{
				ID:        uuid.New(),
				Kind:      domain.TransactionKindTransfer,
				Direction: domain.DirectionOutgoing,
				Amount:    decimal.RequireFromString("30.00"),
				Status:    domain.TransactionStatusCompleted,
			}},
			Total: 1,
			Page:  0,
			Size:  20,
		},
	}
	h := NewTransferHandler(&mockTransferService{}, &mockTransactionGetter{}, queries)

	t.Run("owner sees the history", func(t *testing.T) {
		req := authedRequest(http.MethodGet, "/api/v1/accounts/"+accountID.String()+"/transactions", "", owner)
		req.SetPathValue("id", accountID.String())
		rr := httptest.NewRecorder()

		h.History(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var resp APIResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.True(t, resp.Success)

		data, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		var page historyPageDTO
		require.NoError(t, json.Unmarshal(data, &page))
		require.Len(t, page.Items, 1)
		assert.Equal(t, "OUTGOING", page.Items[0].Direction)
	})

	t.Run("another user's account reads as not found", func(t *testing.T) {
		req := authedRequest(http.MethodGet, "/api/v1/accounts/"+accountID.String()+"/transactions", "", stranger)
		req.SetPathValue("id", accountID.String())
		rr := httptest.NewRecorder()

		h.History(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("malformed account id", func(t *testing.T) {
		req := authedRequest(http.MethodGet, "/api/v1/accounts/nope/transactions", "", owner)
		req.SetPathValue("id", "nope")
		rr := httptest.NewRecorder()

		h.History(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
