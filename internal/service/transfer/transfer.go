package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/minibank/ledger-service/internal/domain"
	"github.com/minibank/ledger-service/internal/logging"
)

type TransferRequest struct {
	// OwnerID is the authenticated caller; it must own the source account.
	OwnerID     uuid.UUID
	FromNumber  string
	ToNumber    string
	Amount      decimal.Decimal
	Description *string
}

// Transfer moves Amount from the source to the destination account as one
// all-or-nothing unit: both balances change and exactly one TRANSFER record
// is appended, or nothing is visible at all.
//
// Validation failures are terminal; ErrTransferBusy and ErrVersionConflict
// are transient and safe for the caller to retry. The engine never retries
// internally.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*domain.TransactionRecord, error) {
	log := logging.FromContext(ctx)

	if err := validateRequest(req); err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}

	from, to, err := s.resolveAccounts(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}

	if from.OwnerID != req.OwnerID {
		return nil, fmt.Errorf("Transfer: %w", domain.ErrNotAccountOwner)
	}

	log.Debug("transfer validated, acquiring locks",
		"from_account", from.ID,
		"to_account", to.ID,
		"amount", req.Amount,
	)

	rec, err := s.executeTransfer(ctx, req, from.ID, to.ID)
	if err != nil {
		// Halting must wait until executeTransfer has returned and its
		// rollback released the row locks. Issued any earlier, the status
		// update would block behind the transfer's own FOR UPDATE lock.
		var reconErr *reconciliationError
		if errors.As(err, &reconErr) {
			log.Error("halting account after reconciliation mismatch", "account_id", reconErr.accountID)
			if haltErr := s.accounts.SetStatus(ctx, reconErr.accountID, domain.AccountStatusHalted); haltErr != nil {
				log.Error("failed to halt account", "account_id", reconErr.accountID, "error", haltErr)
			}
		}

		log.Warn("transfer failed",
			"from_account", from.ID,
			"to_account", to.ID,
			"error", err,
		)
		return nil, fmt.Errorf("Transfer: %w", err)
	}

	log.Info("transfer committed",
		"transaction_id", rec.ID,
		"from_account", from.ID,
		"to_account", to.ID,
		"amount", req.Amount,
	)

	return rec, nil
}

func validateRequest(req TransferRequest) error {
	if !domain.ValidAmount(req.Amount) {
		return fmt.Errorf("validateRequest: %w", domain.ErrInvalidAmount)
	}
	if req.FromNumber == req.ToNumber {
		return fmt.Errorf("validateRequest: %w", domain.ErrSelfTransfer)
	}
	return nil
}

func (s *Service) resolveAccounts(ctx context.Context, req TransferRequest) (*domain.Account, *domain.Account, error) {
	from, err := s.accounts.GetByNumber(ctx, req.FromNumber)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, fmt.Errorf("resolveAccounts: source: %w", domain.ErrAccountNotFound)
		}
		return nil, nil, fmt.Errorf("resolveAccounts: source: %w", err)
	}

	to, err := s.accounts.GetByNumber(ctx, req.ToNumber)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, fmt.Errorf("resolveAccounts: destination: %w", domain.ErrRecipientNotFound)
		}
		return nil, nil, fmt.Errorf("resolveAccounts: destination: %w", err)
	}

	return from, to, nil
}

func (s *Service) executeTransfer(ctx context.Context, req TransferRequest, fromID, toID uuid.UUID) (*domain.TransactionRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("executeTransfer: begin tx: %w", err)
	}
	defer tx.Rollback()

	// Bound lock waits so a transfer blocked behind contention reports
	// busy instead of hanging the caller.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeoutMS)); err != nil {
		return nil, fmt.Errorf("executeTransfer: set lock_timeout: %w", err)
	}

	locked, err := lockAccountsInOrder(ctx, tx, s.accounts, fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}

	from, to := locked[fromID], locked[toID]

	if err := verifyAccountOpen(from, "source"); err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}
	if err := verifyAccountOpen(to, "destination"); err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}

	// Sufficiency is decided here, under lock. Any check the caller did
	// beforehand was advisory.
	if err := s.checkFunds(from, req.Amount); err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}

	now := time.Now().UTC()
	fromAfter := from.Balance.Sub(req.Amount)
	toAfter := to.Balance.Add(req.Amount)

	rec := &domain.TransactionRecord{
		ID:              uuid.New(),
		Kind:            domain.TransactionKindTransfer,
		FromAccountID:   &fromID,
		ToAccountID:     &toID,
		Amount:          req.Amount,
		Status:          domain.TransactionStatusCompleted,
		Description:     req.Description,
		TransactionDate: now,
	}

	if err := s.ledger.Create(ctx, tx, rec); err != nil {
		return nil, fmt.Errorf("executeTransfer: append record: %w", err)
	}

	if err := s.accounts.UpdateBalance(ctx, tx, fromID, fromAfter, from.Version+1); err != nil {
		return nil, fmt.Errorf("executeTransfer: debit: %w", err)
	}
	if err := s.accounts.UpdateBalance(ctx, tx, toID, toAfter, to.Version+1); err != nil {
		return nil, fmt.Errorf("executeTransfer: credit: %w", err)
	}

	if err := s.verifyReconciliation(ctx, tx, fromID, fromAfter); err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}
	if err := s.verifyReconciliation(ctx, tx, toID, toAfter); err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("executeTransfer: commit: %w", err)
	}

	return rec, nil
}

func (s *Service) checkFunds(from *domain.Account, amount decimal.Decimal) error {
	floor := decimal.Zero
	if from.Type == domain.AccountTypeCredit {
		floor = s.creditLimit.Neg()
	}
	if from.Balance.Sub(amount).LessThan(floor) {
		return fmt.Errorf("checkFunds: %w", domain.ErrInsufficientFunds)
	}
	return nil
}

// reconciliationError names the account whose ledger sum disagreed with the
// balance about to be committed. It unwraps to ErrInvariantViolation.
type reconciliationError struct {
	accountID uuid.UUID
}

func (e *reconciliationError) Error() string {
	return fmt.Sprintf("account %s: %v", e.accountID, domain.ErrInvariantViolation)
}

func (e *reconciliationError) Unwrap() error { return domain.ErrInvariantViolation }

// verifyReconciliation recomputes the signed sum of all records touching the
// account, inside the same transaction, and compares it to the balance about
// to be committed. A mismatch aborts the transfer; Transfer halts the account
// for manual review once the transaction has been rolled back, since the
// status update would otherwise wait on this tx's own row lock.
func (s *Service) verifyReconciliation(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, want decimal.Decimal) error {
	sum, err := s.ledger.SumEffects(ctx, tx, accountID)
	if err != nil {
		return fmt.Errorf("verifyReconciliation: %w", err)
	}
	if !sum.Equal(want) {
		logging.FromContext(ctx).Error("reconciliation mismatch",
			"account_id", accountID,
			"ledger_sum", sum,
			"balance", want,
		)
		return fmt.Errorf("verifyReconciliation: %w", &reconciliationError{accountID: accountID})
	}
	return nil
}

func verifyAccountOpen(acct *domain.Account, role string) error {
	if acct.Status == domain.AccountStatusHalted {
		return fmt.Errorf("%s: %w", role, domain.ErrAccountHalted)
	}
	if acct.Status != domain.AccountStatusActive {
		return fmt.Errorf("%s: %w", role, domain.ErrAccountClosed)
	}
	return nil
}

// lockAccountsInOrder acquires both row locks in ascending id order,
// regardless of which side is debited. Every transfer locking the same pair
// in the same order cannot deadlock.
func lockAccountsInOrder(ctx context.Context, tx *sql.Tx, accounts accountRepo, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	result := make(map[uuid.UUID]*domain.Account, len(ids))
	for _, id := range sorted {
		acct, err := accounts.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("lockAccountsInOrder: %w", err)
		}
		result[id] = acct
	}
	return result, nil
}
