package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidCredentials = &AppError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount      = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be positive with at most two decimal places"}
	ErrInvalidAccountType = &AppError{http.StatusBadRequest, "INVALID_ACCOUNT_TYPE", "Account type must be SAVING or CREDIT"}
	ErrBalanceImmutable   = &AppError{http.StatusBadRequest, "BALANCE_IMMUTABLE", "Balance cannot be set directly; it only changes through transfers"}
	ErrSelfTransfer       = &AppError{http.StatusUnprocessableEntity, "SELF_TRANSFER_NOT_ALLOWED", "Cannot transfer to the same account"}
	ErrInsufficientFunds  = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrAccountNotFound    = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_NOT_FOUND", "Source account not found"}
	ErrRecipientNotFound  = &AppError{http.StatusUnprocessableEntity, "RECIPIENT_NOT_FOUND", "Recipient account not found"}
	ErrNotAccountOwner    = &AppError{http.StatusForbidden, "NOT_ACCOUNT_OWNER", "Caller does not own the source account"}
	ErrAccountHalted      = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_HALTED", "Account is halted pending review"}
	ErrAccountClosed      = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_CLOSED", "Account is closed"}
	ErrAccountNotEmpty    = &AppError{http.StatusConflict, "ACCOUNT_NOT_EMPTY", "Account balance must be zero before deletion"}
	ErrEmailTaken         = &AppError{http.StatusConflict, "EMAIL_TAKEN", "Email already registered"}

	// Transient: callers may retry these with backoff.
	ErrTransferBusy    = &AppError{http.StatusConflict, "TRANSFER_BUSY", "Transfer contention, please retry"}
	ErrVersionConflict = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrIdempotencyInFlight   = &AppError{http.StatusConflict, "IDEMPOTENCY_IN_FLIGHT", "A request with this idempotency key is still being processed"}
)
