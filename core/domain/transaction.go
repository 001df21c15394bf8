package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType describes the direction of a ledger movement relative to
// the owning account.
type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

// Transaction is one append-only ledger entry created by the message
// processor. Entries are never mutated or deleted; a reversal appends a
// compensating entry that reuses the original retrieval reference.
type Transaction struct {
	ID uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	// From is the id of the bank account that owns the entry.
	From uuid.UUID `json:"from" gorm:"column:from_account;type:uuid;index"`
	// To names the beneficiary account for on-chain transfers, nil for
	// plain card purchases.
	To        *uuid.UUID      `json:"to" gorm:"column:to_account;type:uuid"`
	Amount    uint32          `json:"amount" gorm:"not null"`
	Type      TransactionType `json:"transaction_type" gorm:"column:transaction_type;size:8"`
	Reference string          `json:"reference" gorm:"size:12;index"`
	CreatedAt time.Time       `json:"created_at"`
}

// TransactionCreate carries the fields for a new ledger entry.
type TransactionCreate struct {
	ID        uuid.UUID
	From      uuid.UUID
	To        *uuid.UUID
	Amount    uint32
	Type      TransactionType
	Reference string
}
