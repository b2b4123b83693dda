package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/minibank/ledger-service/internal/auth"
	"github.com/minibank/ledger-service/internal/domain"
	"github.com/minibank/ledger-service/internal/logging"
)

type userProfileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}

type UserHandler struct {
	users userProfileStore
}

func NewUserHandler(users userProfileStore) *UserHandler {
	return &UserHandler{users: users}
}

// Me returns the authenticated caller's own profile.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to load user", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, userDTO{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
	})
}

type updateProfileRequest struct {
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	Password *string `json:"password"`
}

func (r updateProfileRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Email != nil && *r.Email == "" {
		errs = append(errs, FieldError{Field: "email", Message: "must not be empty"})
	}
	if r.Name != nil && *r.Name == "" {
		errs = append(errs, FieldError{Field: "name", Message: "must not be empty"})
	}
	if r.Password != nil && len(*r.Password) < 8 {
		errs = append(errs, FieldError{Field: "password", Message: "must be at least 8 characters"})
	}
	return errs
}

// UpdateMe patches the caller's own profile. Absent fields keep their
// current value; a new password is re-hashed before it is stored.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			RespondAppError(w, ErrInternalError, nil)
			return
		}
		user.PasswordHash = string(hash)
	}

	if err := h.users.Update(r.Context(), user); err != nil {
		logging.FromContext(r.Context()).Warn("profile update failed", "error", err, "user_id", userID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, userDTO{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
	})
}
