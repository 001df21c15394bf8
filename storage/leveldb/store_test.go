package leveldb

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/subclone/pcidss-oracle/core/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return db
}

func testAccount(card string, chainID *string) *domain.BankAccountCreate {
	return &domain.BankAccountCreate{
		ID:                  uuid.New(),
		CardNumber:          card,
		CardHolderFirstName: "Bob",
		CardHolderLastName:  "Builder",
		CardCVV:             "124",
		CardExpirationDate:  time.Date(2028, time.June, 1, 0, 0, 0, 0, time.UTC),
		Balance:             1000,
		AccountID:           chainID,
	}
}

func TestBankAccountsRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := db.BankAccounts()

	chainID := "8eaf04151687736326c9fea17e25fc5287613693c912909cb226aa4794f26a48"
	created, err := store.Create(ctx, testAccount("4169812345678902", &chainID))
	require.NoError(t, err)

	byID, err := store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	require.Equal(t, "4169812345678902", byID.CardNumber)
	require.Equal(t, uint32(1000), byID.Balance)
	require.True(t, byID.CardExpirationDate.Equal(created.CardExpirationDate))

	byCard, err := store.FindByCardNumber(ctx, "4169812345678902")
	require.NoError(t, err)
	require.NotNil(t, byCard)
	require.Equal(t, created.ID, byCard.ID)

	byChain, err := store.FindByAccountID(ctx, chainID)
	require.NoError(t, err)
	require.NotNil(t, byChain)
	require.Equal(t, created.ID, byChain.ID)

	missing, err := store.FindByCardNumber(ctx, "4000000000000000")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestBankAccountsUniqueness(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := db.BankAccounts()

	chainID := "90b5ab205c6974c9ea841be688864633dc9ca8a357843eeacf2314649965fe22"
	_, err := store.Create(ctx, testAccount("4169812345678903", &chainID))
	require.NoError(t, err)

	_, err = store.Create(ctx, testAccount("4169812345678903", nil))
	require.Error(t, err, "duplicate card number must be rejected")
	require.Equal(t, domain.ErrorKindBadRequest, domain.KindOf(err))

	_, err = store.Create(ctx, testAccount("4169812345678904", &chainID))
	require.Error(t, err, "duplicate on-chain account id must be rejected")
	require.Equal(t, domain.ErrorKindBadRequest, domain.KindOf(err))
}

func TestBankAccountsUpdatePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := Open(dir)
	require.NoError(t, err)

	created, err := db.BankAccounts().Create(ctx, testAccount("4169812345678905", nil))
	require.NoError(t, err)

	created.Balance = 400
	created.Nonce = 2
	require.NoError(t, db.BankAccounts().Update(ctx, created, 0))
	require.NoError(t, db.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	account, err := reopened.BankAccounts().FindByCardNumber(ctx, "4169812345678905")
	require.NoError(t, err)
	require.NotNil(t, account)
	require.Equal(t, uint32(400), account.Balance)
	require.Equal(t, uint32(2), account.Nonce)
}

func TestBankAccountsUpdateUnknown(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	err := db.BankAccounts().Update(ctx, &domain.BankAccount{ID: uuid.New()}, 0)
	require.Error(t, err, "update of an unknown account must fail")
}

func TestBankAccountsUpdateRejectsStaleWriter(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := db.BankAccounts()

	created, err := store.Create(ctx, testAccount("4169812345678906", nil))
	require.NoError(t, err)

	winner := *created
	winner.Balance = 900
	winner.Nonce = 1
	require.NoError(t, store.Update(ctx, &winner, 0))

	// The second writer still works from the pre-update snapshot.
	loser := *created
	loser.Balance = 100
	loser.Nonce = 1
	err = store.Update(ctx, &loser, 0)
	require.ErrorIs(t, err, domain.ErrStaleAccount)

	reloaded, err := store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	require.Equal(t, uint32(900), reloaded.Balance)
	require.Equal(t, uint32(1), reloaded.Nonce)
}

func TestTransactionsOrderAndVisibility(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := db.Transactions()

	payer := uuid.New()
	beneficiary := uuid.New()

	var ids []uuid.UUID
	for i, amount := range []uint32{100, 50, 25} {
		create := &domain.TransactionCreate{
			From:      payer,
			Amount:    amount,
			Type:      domain.TransactionTypeDebit,
			Reference: "00000000000" + string(rune('1'+i)),
		}
		if i == 1 {
			create.To = &beneficiary
		}
		entry, err := store.Create(ctx, create)
		require.NoError(t, err)
		ids = append(ids, entry.ID)
	}

	entries, err := store.FindByBankAccountID(ctx, payer)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, want := range []uuid.UUID{ids[2], ids[1], ids[0]} {
		require.Equal(t, want, entries[i].ID, "entries must list most recent first")
	}

	incoming, err := store.FindByBankAccountID(ctx, beneficiary)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	require.Equal(t, ids[1], incoming[0].ID)

	none, err := store.FindByBankAccountID(ctx, uuid.New())
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestTransactionsFindByReference(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := db.Transactions()

	payer := uuid.New()
	_, err := store.Create(ctx, &domain.TransactionCreate{
		From:      payer,
		Amount:    75,
		Type:      domain.TransactionTypeDebit,
		Reference: "000000000042",
	})
	require.NoError(t, err)

	reversal, err := store.Create(ctx, &domain.TransactionCreate{
		From:      payer,
		Amount:    75,
		Type:      domain.TransactionTypeCredit,
		Reference: "000000000042",
	})
	require.NoError(t, err)

	found, err := store.FindByReference(ctx, "000000000042")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, reversal.ID, found.ID, "lookup must return the most recent entry")
	require.Equal(t, domain.TransactionTypeCredit, found.Type)

	missing, err := store.FindByReference(ctx, "999999999999")
	require.NoError(t, err)
	require.Nil(t, missing)
}
