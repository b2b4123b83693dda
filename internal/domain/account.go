package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountTypeSaving AccountType = "SAVING"
	AccountTypeCredit AccountType = "CREDIT"
)

func (t AccountType) IsValid() bool {
	return t == AccountTypeSaving || t == AccountTypeCredit
}

type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	// AccountStatusHalted marks an account whose ledger failed the
	// reconciliation check. Halted accounts refuse transfers until a
	// manual review reactivates them.
	AccountStatusHalted AccountStatus = "halted"
	AccountStatusClosed AccountStatus = "closed"
)

type Account struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Number    string
	Name      string
	Type      AccountType
	Balance   decimal.Decimal
	Status    AccountStatus
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
