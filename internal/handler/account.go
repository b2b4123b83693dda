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
)

type accountService interface {
	CreateAccount(ctx context.Context, ownerID uuid.UUID, name string, accType domain.AccountType, initialBalance decimal.Decimal) (*domain.Account, error)
	UpdateAccount(ctx context.Context, ownerID, accountID uuid.UUID, patch service.AccountPatch) (*domain.Account, error)
	DeleteAccount(ctx context.Context, ownerID, accountID uuid.UUID) error
}

type accountQueries interface {
	AccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	AccountByNumber(ctx context.Context, number string) (*domain.Account, error)
	SearchAccounts(ctx context.Context, ownerID uuid.UUID, term string) ([]domain.Account, error)
	HistoryView(ctx context.Context, accountID uuid.UUID, page, size int) (*service.HistoryPage, error)
}

type AccountHandler struct {
	accounts accountService
	queries  accountQueries
}

func NewAccountHandler(accounts accountService, queries accountQueries) *AccountHandler {
	return &AccountHandler{accounts: accounts, queries: queries}
}

type createAccountRequest struct {
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

func (r createAccountRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Name == "" {
		errs = append(errs, FieldError{Field: "name", Message: "required"})
	}
	if r.Type == "" {
		errs = append(errs, FieldError{Field: "type", Message: "required"})
	} else if !domain.AccountType(r.Type).IsValid() {
		errs = append(errs, FieldError{Field: "type", Message: "must be SAVING or CREDIT"})
	}
	if r.InitialBalance.IsNegative() {
		errs = append(errs, FieldError{Field: "initial_balance", Message: "must not be negative"})
	}
	return errs
}

type accountDTO struct {
	ID        uuid.UUID       `json:"id"`
	Number    string          `json:"number"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Balance   decimal.Decimal `json:"balance"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toAccountDTO(a *domain.Account) accountDTO {
	return accountDTO{
		ID:        a.ID,
		Number:    a.Number,
		Name:      a.Name,
		Type:      string(a.Type),
		Balance:   a.Balance,
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	account, err := h.accounts.CreateAccount(r.Context(), ownerID, req.Name, domain.AccountType(req.Type), req.InitialBalance)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to create account", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toAccountDTO(account))
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	accounts, err := h.queries.SearchAccounts(r.Context(), ownerID, r.URL.Query().Get("search"))
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list accounts", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]accountDTO, len(accounts))
	for i := range accounts {
		dtos[i] = toAccountDTO(&accounts[i])
	}

	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *AccountHandler) GetByID(w http.ResponseWriter, r *http.Request) {
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

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}

// GetByNumber resolves any account by its public number so a sender can
// confirm a recipient before transferring. It is not restricted to the
// caller's own accounts.
func (h *AccountHandler) GetByNumber(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")
	if number == "" {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	account, err := h.queries.AccountByNumber(r.Context(), number)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}

type updateAccountRequest struct {
	Name *string `json:"name"`
	Type *string `json:"type"`
	// Balance is decoded only to reject any attempt to set it here.
	Balance *decimal.Decimal `json:"balance"`
}

func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
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

	var req updateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if req.Balance != nil {
		RespondAppError(w, ErrBalanceImmutable, nil)
		return
	}

	patch := service.AccountPatch{Name: req.Name}
	if req.Type != nil {
		t := domain.AccountType(*req.Type)
		patch.Type = &t
	}

	account, err := h.accounts.UpdateAccount(r.Context(), ownerID, accountID, patch)
	if err != nil {
		logging.FromContext(r.Context()).Warn("account update failed", "account_id", accountID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}

func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.accounts.DeleteAccount(r.Context(), ownerID, accountID); err != nil {
		logging.FromContext(r.Context()).Warn("account deletion failed", "account_id", accountID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]string{"status": "deleted"})
}
