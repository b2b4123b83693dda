package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransactionKindTransfer   TransactionKind = "TRANSFER"
	TransactionKindDeposit    TransactionKind = "DEPOSIT"
	TransactionKindWithdrawal TransactionKind = "WITHDRAWAL"
)

type TransactionStatus string

const TransactionStatusCompleted TransactionStatus = "COMPLETED"

// TransactionRecord is one immutable row of the ledger. A TRANSFER record
// has both account ids set; a DEPOSIT only the destination; a WITHDRAWAL
// only the source. Amount is always the positive magnitude moved; the
// signed effect on an account is -amount at from and +amount at to.
type TransactionRecord struct {
	ID              uuid.UUID
	Kind            TransactionKind
	FromAccountID   *uuid.UUID
	ToAccountID     *uuid.UUID
	Amount          decimal.Decimal
	Status          TransactionStatus
	Description     *string
	TransactionDate time.Time
}

// Direction classifies a record relative to one of the accounts it touches.
type Direction string

const (
	DirectionIncoming Direction = "INCOMING"
	DirectionOutgoing Direction = "OUTGOING"
)

// AccountTransaction is a TransactionRecord joined with the human-facing
// numbers of the accounts it references, as read back for history views.
type AccountTransaction struct {
	TransactionRecord
	FromAccountNumber *string
	ToAccountNumber   *string
}
