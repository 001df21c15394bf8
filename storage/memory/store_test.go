package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/subclone/pcidss-oracle/core/domain"
)

func testAccount(card string, chainID *string) *domain.BankAccountCreate {
	return &domain.BankAccountCreate{
		ID:                  uuid.New(),
		CardNumber:          card,
		CardHolderFirstName: "Alice",
		CardHolderLastName:  "Wonderland",
		CardCVV:             "123",
		CardExpirationDate:  time.Now().UTC().AddDate(4, 0, 0),
		Balance:             1000,
		AccountID:           chainID,
	}
}

func TestBankAccountsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewBankAccounts()

	chainID := "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"
	created, err := store.Create(ctx, testAccount("4169812345678901", &chainID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	byID, err := store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if byID == nil || byID.CardNumber != "4169812345678901" {
		t.Fatalf("find by id returned %+v", byID)
	}

	byCard, err := store.FindByCardNumber(ctx, "4169812345678901")
	if err != nil {
		t.Fatalf("find by card: %v", err)
	}
	if byCard == nil || byCard.ID != created.ID {
		t.Fatalf("find by card returned %+v", byCard)
	}

	byChain, err := store.FindByAccountID(ctx, chainID)
	if err != nil {
		t.Fatalf("find by account id: %v", err)
	}
	if byChain == nil || byChain.ID != created.ID {
		t.Fatalf("find by account id returned %+v", byChain)
	}
}

func TestBankAccountsNotFoundIsNilNil(t *testing.T) {
	ctx := context.Background()
	store := NewBankAccounts()

	if acct, err := store.FindByID(ctx, uuid.New()); acct != nil || err != nil {
		t.Fatalf("FindByID = (%+v, %v), want (nil, nil)", acct, err)
	}
	if acct, err := store.FindByCardNumber(ctx, "4000000000000000"); acct != nil || err != nil {
		t.Fatalf("FindByCardNumber = (%+v, %v), want (nil, nil)", acct, err)
	}
	if acct, err := store.FindByAccountID(ctx, "deadbeef"); acct != nil || err != nil {
		t.Fatalf("FindByAccountID = (%+v, %v), want (nil, nil)", acct, err)
	}
}

func TestBankAccountsUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewBankAccounts()

	chainID := "8eaf04151687736326c9fea17e25fc5287613693c912909cb226aa4794f26a48"
	if _, err := store.Create(ctx, testAccount("4169812345678902", &chainID)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Create(ctx, testAccount("4169812345678902", nil)); domain.KindOf(err) != domain.ErrorKindBadRequest {
		t.Fatalf("duplicate card number: err = %v, want bad request", err)
	}
	if _, err := store.Create(ctx, testAccount("4169812345678903", &chainID)); domain.KindOf(err) != domain.ErrorKindBadRequest {
		t.Fatalf("duplicate on-chain account id: err = %v, want bad request", err)
	}
}

func TestBankAccountsUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewBankAccounts()

	created, err := store.Create(ctx, testAccount("4169812345678904", nil))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	created.Balance = 250
	created.Nonce = 3
	created.CardCVV = "999" // must not stick, card attributes are immutable
	if err := store.Update(ctx, created, 0); err != nil {
		t.Fatalf("update: %v", err)
	}

	reloaded, err := store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if reloaded.Balance != 250 || reloaded.Nonce != 3 {
		t.Fatalf("update not applied: balance=%d nonce=%d", reloaded.Balance, reloaded.Nonce)
	}
	if reloaded.CardCVV != "123" {
		t.Fatalf("card cvv mutated to %q", reloaded.CardCVV)
	}

	if err := store.Update(ctx, &domain.BankAccount{ID: uuid.New()}, 0); err == nil {
		t.Fatal("update of unknown account succeeded")
	}
}

func TestBankAccountsUpdateRejectsStaleWriter(t *testing.T) {
	ctx := context.Background()
	store := NewBankAccounts()

	created, err := store.Create(ctx, testAccount("4169812345678906", nil))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	winner := *created
	winner.Balance = 900
	winner.Nonce = 1
	if err := store.Update(ctx, &winner, 0); err != nil {
		t.Fatalf("first update: %v", err)
	}

	// The second writer still works from the pre-update snapshot.
	loser := *created
	loser.Balance = 100
	loser.Nonce = 1
	if err := store.Update(ctx, &loser, 0); !errors.Is(err, domain.ErrStaleAccount) {
		t.Fatalf("stale update: err = %v, want ErrStaleAccount", err)
	}

	reloaded, err := store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if reloaded.Balance != 900 || reloaded.Nonce != 1 {
		t.Fatalf("stale writer overwrote the account: balance=%d nonce=%d", reloaded.Balance, reloaded.Nonce)
	}
}

func TestBankAccountsGeneratesID(t *testing.T) {
	ctx := context.Background()
	store := NewBankAccounts()

	create := testAccount("4169812345678905", nil)
	create.ID = uuid.Nil
	created, err := store.Create(ctx, create)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Fatal("store did not assign an id")
	}
}

func TestTransactionsOrderAndVisibility(t *testing.T) {
	ctx := context.Background()
	store := NewTransactions()

	payer := uuid.New()
	beneficiary := uuid.New()

	first, err := store.Create(ctx, &domain.TransactionCreate{
		From:      payer,
		Amount:    100,
		Type:      domain.TransactionTypeDebit,
		Reference: "000000000001",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := store.Create(ctx, &domain.TransactionCreate{
		From:      payer,
		To:        &beneficiary,
		Amount:    50,
		Type:      domain.TransactionTypeDebit,
		Reference: "000000000002",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	entries, err := store.FindByBankAccountID(ctx, payer)
	if err != nil {
		t.Fatalf("find by account: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("payer sees %d entries, want 2", len(entries))
	}
	if entries[0].ID != second.ID || entries[1].ID != first.ID {
		t.Fatal("entries not returned most recent first")
	}

	incoming, err := store.FindByBankAccountID(ctx, beneficiary)
	if err != nil {
		t.Fatalf("find by account: %v", err)
	}
	if len(incoming) != 1 || incoming[0].ID != second.ID {
		t.Fatalf("beneficiary sees %+v, want the transfer entry", incoming)
	}

	if entries, err := store.FindByBankAccountID(ctx, uuid.New()); err != nil || len(entries) != 0 {
		t.Fatalf("unknown account sees %d entries, err %v", len(entries), err)
	}
}

func TestTransactionsFindByReference(t *testing.T) {
	ctx := context.Background()
	store := NewTransactions()

	payer := uuid.New()
	if _, err := store.Create(ctx, &domain.TransactionCreate{
		From:      payer,
		Amount:    100,
		Type:      domain.TransactionTypeDebit,
		Reference: "000000000009",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	reversal, err := store.Create(ctx, &domain.TransactionCreate{
		From:      payer,
		Amount:    100,
		Type:      domain.TransactionTypeCredit,
		Reference: "000000000009",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := store.FindByReference(ctx, "000000000009")
	if err != nil {
		t.Fatalf("find by reference: %v", err)
	}
	if found == nil || found.ID != reversal.ID {
		t.Fatalf("find by reference returned %+v, want the most recent entry", found)
	}

	if entry, err := store.FindByReference(ctx, "999999999999"); entry != nil || err != nil {
		t.Fatalf("FindByReference = (%+v, %v), want (nil, nil)", entry, err)
	}
}
