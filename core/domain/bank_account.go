package domain

import (
	"time"

	"github.com/google/uuid"
)

// BankAccount is the off-chain ledger record backing one payment card. The
// card number is the external lookup key for cardholder-initiated queries;
// the optional on-chain account id links the record to its blockchain
// counterpart and is the lookup key for OCW balance reads.
type BankAccount struct {
	ID                  uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CardNumber          string    `json:"card_number" gorm:"size:19;uniqueIndex"`
	CardHolderFirstName string    `json:"card_holder_first_name" gorm:"size:64"`
	CardHolderLastName  string    `json:"card_holder_last_name" gorm:"size:64"`
	CardCVV             string    `json:"card_cvv" gorm:"size:4"`
	CardExpirationDate  time.Time `json:"card_expiration_date"`
	Balance             uint32    `json:"balance" gorm:"not null"`
	// Nonce counts state-changing operations applied to the account. It is
	// read by the chain side to reject replayed settlement extrinsics.
	Nonce uint32 `json:"nonce" gorm:"not null;default:0"`
	// AccountID is the hex-encoded 32-byte on-chain account id without the
	// 0x prefix. Nil when the card has not been linked on-chain.
	AccountID *string `json:"account_id" gorm:"size:64;uniqueIndex"`
}

// BankAccountCreate carries the caller-supplied fields for a new account.
// Nonce always starts at zero and is omitted deliberately.
type BankAccountCreate struct {
	ID                  uuid.UUID
	CardNumber          string
	CardHolderFirstName string
	CardHolderLastName  string
	CardCVV             string
	CardExpirationDate  time.Time
	Balance             uint32
	AccountID           *string
}
