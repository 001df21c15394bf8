package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrStaleAccount is returned by BankAccountStore.Update when the stored
// nonce no longer matches the caller's expectation: another write landed
// between the caller's read and this update. The caller must re-read the
// account before deciding anything about its balance.
var ErrStaleAccount = errors.New("bank account changed since it was read")

// BankAccountStore is the capability surface the gateway and the message
// processor need from the account ledger. Lookups return (nil, nil) when
// nothing matches; an error always means the store itself failed.
// Implementations must be safe for concurrent use.
type BankAccountStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*BankAccount, error)
	FindByCardNumber(ctx context.Context, cardNumber string) (*BankAccount, error)
	FindByAccountID(ctx context.Context, accountID string) (*BankAccount, error)
	// Create inserts a new account. A card number or on-chain account id
	// that is already registered is a BadRequest domain error.
	Create(ctx context.Context, create *BankAccountCreate) (*BankAccount, error)
	// Update persists the balance and nonce of an existing account. Card
	// attributes are immutable after creation. The write applies only if
	// the stored nonce still equals expectedNonce; otherwise the account
	// is left untouched and ErrStaleAccount is returned.
	Update(ctx context.Context, account *BankAccount, expectedNonce uint32) error
}

// TransactionStore is the capability surface for the append-only ledger
// entries. Implementations must be safe for concurrent use.
type TransactionStore interface {
	// FindByBankAccountID lists entries that touch the account, as payer
	// or as beneficiary, most recent first.
	FindByBankAccountID(ctx context.Context, id uuid.UUID) ([]Transaction, error)
	// FindByReference resolves the most recent entry carrying the ISO8583
	// retrieval reference, or (nil, nil).
	FindByReference(ctx context.Context, reference string) (*Transaction, error)
	Create(ctx context.Context, create *TransactionCreate) (*Transaction, error)
}
