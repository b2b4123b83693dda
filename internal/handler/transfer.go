package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/minibank/ledger-service/internal/auth"
	"github.com/minibank/ledger-service/internal/domain"
	"github.com/minibank/ledger-service/internal/logging"
	"github.com/minibank/ledger-service/internal/service"
	"github.com/minibank/ledger-service/internal/service/transfer"
)

type transferService interface {
	Transfer(ctx context.Context, req transfer.TransferRequest) (*domain.TransactionRecord, error)
}

type transactionGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, error)
}

type TransferHandler struct {
	transfers transferService
	records   transactionGetter
	queries   accountQueries
}

func NewTransferHandler(transfers transferService, records transactionGetter, queries accountQueries) *TransferHandler {
	return &TransferHandler{transfers: transfers, records: records, queries: queries}
}

type createTransferRequest struct {
	FromAccountNumber string          `json:"from_account_number"`
	ToAccountNumber   string          `json:"to_account_number"`
	Amount            decimal.Decimal `json:"amount"`
	Description       *string         `json:"description"`
}

func (r createTransferRequest) Validate() []FieldError {
	var errs []FieldError
	if r.FromAccountNumber == "" {
		errs = append(errs, FieldError{Field: "from_account_number", Message: "required"})
	}
	if r.ToAccountNumber == "" {
		errs = append(errs, FieldError{Field: "to_account_number", Message: "required"})
	}
	if !r.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	return errs
}

type transactionDTO struct {
	ID              uuid.UUID       `json:"id"`
	Kind            string          `json:"kind"`
	FromAccountID   *uuid.UUID      `json:"from_account_id"`
	ToAccountID     *uuid.UUID      `json:"to_account_id"`
	Amount          decimal.Decimal `json:"amount"`
	Status          string          `json:"status"`
	Description     *string         `json:"description,omitempty"`
	TransactionDate time.Time       `json:"transaction_date"`
}

func toTransactionDTO(t *domain.TransactionRecord) transactionDTO {
	return transactionDTO{
		ID:              t.ID,
		Kind:            string(t.Kind),
		FromAccountID:   t.FromAccountID,
		ToAccountID:     t.ToAccountID,
		Amount:          t.Amount,
		Status:          string(t.Status),
		Description:     t.Description,
		TransactionDate: t.TransactionDate,
	}
}

func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	rec, err := h.transfers.Transfer(r.Context(), transfer.TransferRequest{
		OwnerID:     ownerID,
		FromNumber:  req.FromAccountNumber,
		ToNumber:    req.ToAccountNumber,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		log.Warn("transfer rejected", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toTransactionDTO(rec))
}

// GetByID returns one committed record. Only a caller owning one of its
// accounts may see it; anyone else learns nothing, not even that it exists.
func (h *TransferHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	recordID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	rec, err := h.records.GetByID(r.Context(), recordID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	if !h.ownsEitherSide(r.Context(), ownerID, rec) {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTO(rec))
}

func (h *TransferHandler) ownsEitherSide(ctx context.Context, ownerID uuid.UUID, rec *domain.TransactionRecord) bool {
	for _, accountID := range []*uuid.UUID{rec.FromAccountID, rec.ToAccountID} {
		if accountID == nil {
			continue
		}
		account, err := h.queries.AccountByID(ctx, *accountID)
		if err != nil {
			continue
		}
		if account.OwnerID == ownerID {
			return true
		}
	}
	return false
}

type transactionViewDTO struct {
	ID                 uuid.UUID       `json:"id"`
	Kind               string          `json:"kind"`
	Direction          string          `json:"direction"`
	Amount             decimal.Decimal `json:"amount"`
	CounterpartyNumber *string         `json:"counterparty_number"`
	Description        *string         `json:"description,omitempty"`
	Status             string          `json:"status"`
	TransactionDate    time.Time       `json:"transaction_date"`
}

type historyPageDTO struct {
	Items []transactionViewDTO `json:"items"`
	Total int                  `json:"total"`
	Page  int                  `json:"page"`
	Size  int                  `json:"size"`
}

func toHistoryPageDTO(p *service.HistoryPage) historyPageDTO {
	items := make([]transactionViewDTO, len(p.Items))
	for i, v := range p.Items {
		items[i] = transactionViewDTO{
			ID:                 v.ID,
			Kind:               string(v.Kind),
			Direction:          string(v.Direction),
			Amount:             v.Amount,
			CounterpartyNumber: v.CounterpartyNumber,
			Description:        v.Description,
			Status:             string(v.Status),
			TransactionDate:    v.TransactionDate,
		}
	}
	return historyPageDTO{Items: items, Total: p.Total, Page: p.Page, Size: p.Size}
}

// History returns the account's ledger records, newest first, each with the
// direction already computed relative to the account in the path.
func (h *TransferHandler) History(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	accountID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	account, err := h.queries.AccountByID(r.Context(), accountID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	if account.OwnerID != ownerID {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	page := intQueryParam(r, "page", 0)
	size := intQueryParam(r, "size", 0)

	history, err := h.queries.HistoryView(r.Context(), accountID, page, size)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to load history", "account_id", accountID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toHistoryPageDTO(history))
}
