// Package leveldb persists the ledger in a local LevelDB directory. Records
// are stored as JSON under typed key prefixes; secondary lookups go through
// small index keys so no scan ever touches more than one prefix.
package leveldb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goleveldb "github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/subclone/pcidss-oracle/core/domain"
)

// Key layout:
//
//	acct/<uuid>            -> BankAccount JSON
//	card/<pan>             -> account uuid
//	chain/<hex account id> -> account uuid
//	tx/<uuid>              -> Transaction JSON
//	txacct/<uuid>/<seq>    -> transaction uuid, one entry per touched account
//	txref/<reference>/<seq>-> transaction uuid
//	txseq                  -> big-endian uint64 insertion counter
//
// <seq> is a zero-padded hex counter, so lexical key order inside a prefix is
// insertion order and reverse iteration is most recent first.
const (
	keyAccount     = "acct/"
	keyCardIndex   = "card/"
	keyChainIndex  = "chain/"
	keyTx          = "tx/"
	keyTxByAccount = "txacct/"
	keyTxByRef     = "txref/"
	keyTxSeq       = "txseq"
)

// DB owns the LevelDB handle shared by both stores. The mutexes serialize
// read-modify-write cycles (uniqueness checks, the insertion counter) that
// LevelDB itself cannot make atomic.
type DB struct {
	ldb       *goleveldb.DB
	accountMu sync.Mutex
	txMu      sync.Mutex
}

// Open creates or opens the database directory at path.
func Open(path string) (*DB, error) {
	ldb, err := goleveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}
	return &DB{ldb: ldb}, nil
}

func (d *DB) Close() error {
	return d.ldb.Close()
}

func (d *DB) BankAccounts() *BankAccounts {
	return &BankAccounts{db: d}
}

func (d *DB) Transactions() *Transactions {
	return &Transactions{db: d}
}

// get wraps Get so that a missing key is (nil, false, nil) rather than an
// error, matching the store contract where absence is not a failure.
func (d *DB) get(key []byte) ([]byte, bool, error) {
	value, err := d.ldb.Get(key, nil)
	if errors.Is(err, goleveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func accountKey(id uuid.UUID) []byte   { return []byte(keyAccount + id.String()) }
func cardKey(pan string) []byte        { return []byte(keyCardIndex + pan) }
func chainKey(accountID string) []byte { return []byte(keyChainIndex + accountID) }
func txKey(id string) []byte           { return []byte(keyTx + id) }

func seqSuffix(seq uint64) string { return fmt.Sprintf("%016x", seq) }

// --- Bank accounts ---

// BankAccounts implements domain.BankAccountStore.
type BankAccounts struct {
	db *DB
}

func (s *BankAccounts) FindByID(_ context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	return s.load(accountKey(id))
}

func (s *BankAccounts) FindByCardNumber(_ context.Context, cardNumber string) (*domain.BankAccount, error) {
	return s.loadViaIndex(cardKey(cardNumber))
}

func (s *BankAccounts) FindByAccountID(_ context.Context, accountID string) (*domain.BankAccount, error) {
	return s.loadViaIndex(chainKey(accountID))
}

func (s *BankAccounts) load(key []byte) (*domain.BankAccount, error) {
	raw, ok, err := s.db.get(key)
	if err != nil || !ok {
		return nil, err
	}
	var account domain.BankAccount
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, fmt.Errorf("decode bank account record: %w", err)
	}
	return &account, nil
}

func (s *BankAccounts) loadViaIndex(indexKey []byte) (*domain.BankAccount, error) {
	id, ok, err := s.db.get(indexKey)
	if err != nil || !ok {
		return nil, err
	}
	return s.load(append([]byte(keyAccount), id...))
}

func (s *BankAccounts) Create(_ context.Context, create *domain.BankAccountCreate) (*domain.BankAccount, error) {
	s.db.accountMu.Lock()
	defer s.db.accountMu.Unlock()

	if _, ok, err := s.db.get(cardKey(create.CardNumber)); err != nil {
		return nil, err
	} else if ok {
		return nil, domain.NewBadRequest("card number already registered")
	}
	if create.AccountID != nil {
		if _, ok, err := s.db.get(chainKey(*create.AccountID)); err != nil {
			return nil, err
		} else if ok {
			return nil, domain.NewBadRequest(fmt.Sprintf("on-chain account id %s already linked", *create.AccountID))
		}
	}

	account := domain.BankAccount{
		ID:                  create.ID,
		CardNumber:          create.CardNumber,
		CardHolderFirstName: create.CardHolderFirstName,
		CardHolderLastName:  create.CardHolderLastName,
		CardCVV:             create.CardCVV,
		CardExpirationDate:  create.CardExpirationDate,
		Balance:             create.Balance,
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if create.AccountID != nil {
		v := *create.AccountID
		account.AccountID = &v
	}

	raw, err := json.Marshal(account)
	if err != nil {
		return nil, fmt.Errorf("encode bank account record: %w", err)
	}
	batch := new(goleveldb.Batch)
	batch.Put(accountKey(account.ID), raw)
	batch.Put(cardKey(account.CardNumber), []byte(account.ID.String()))
	if account.AccountID != nil {
		batch.Put(chainKey(*account.AccountID), []byte(account.ID.String()))
	}
	if err := s.db.ldb.Write(batch, nil); err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *BankAccounts) Update(_ context.Context, account *domain.BankAccount, expectedNonce uint32) error {
	s.db.accountMu.Lock()
	defer s.db.accountMu.Unlock()

	existing, err := s.load(accountKey(account.ID))
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("bank account %s not found", account.ID)
	}
	if existing.Nonce != expectedNonce {
		return domain.ErrStaleAccount
	}
	existing.Balance = account.Balance
	existing.Nonce = account.Nonce

	raw, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("encode bank account record: %w", err)
	}
	return s.db.ldb.Put(accountKey(account.ID), raw, nil)
}

// --- Transactions ---

// Transactions implements domain.TransactionStore.
type Transactions struct {
	db *DB
}

func (s *Transactions) Create(_ context.Context, create *domain.TransactionCreate) (*domain.Transaction, error) {
	s.db.txMu.Lock()
	defer s.db.txMu.Unlock()

	seq, err := s.nextSeq()
	if err != nil {
		return nil, err
	}

	entry := domain.Transaction{
		ID:        create.ID,
		From:      create.From,
		Amount:    create.Amount,
		Type:      create.Type,
		Reference: create.Reference,
		CreatedAt: time.Now().UTC(),
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if create.To != nil {
		v := *create.To
		entry.To = &v
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode transaction record: %w", err)
	}

	suffix := seqSuffix(seq)
	idBytes := []byte(entry.ID.String())
	batch := new(goleveldb.Batch)
	batch.Put(txKey(entry.ID.String()), raw)
	batch.Put([]byte(keyTxByAccount+entry.From.String()+"/"+suffix), idBytes)
	if entry.To != nil && *entry.To != entry.From {
		batch.Put([]byte(keyTxByAccount+entry.To.String()+"/"+suffix), idBytes)
	}
	if entry.Reference != "" {
		batch.Put([]byte(keyTxByRef+entry.Reference+"/"+suffix), idBytes)
	}
	var seqValue [8]byte
	binary.BigEndian.PutUint64(seqValue[:], seq)
	batch.Put([]byte(keyTxSeq), seqValue[:])

	if err := s.db.ldb.Write(batch, nil); err != nil {
		return nil, err
	}
	return &entry, nil
}

// nextSeq returns the next insertion counter value. The caller persists it
// inside the same batch as the record, under txMu.
func (s *Transactions) nextSeq() (uint64, error) {
	raw, ok, err := s.db.get([]byte(keyTxSeq))
	if err != nil {
		return 0, err
	}
	var seq uint64
	if ok && len(raw) == 8 {
		seq = binary.BigEndian.Uint64(raw)
	}
	return seq + 1, nil
}

func (s *Transactions) FindByBankAccountID(_ context.Context, id uuid.UUID) ([]domain.Transaction, error) {
	prefix := util.BytesPrefix([]byte(keyTxByAccount + id.String() + "/"))
	iter := s.db.ldb.NewIterator(prefix, nil)
	defer iter.Release()

	var out []domain.Transaction
	for ok := iter.Last(); ok; ok = iter.Prev() {
		entry, err := s.load(string(iter.Value()))
		if err != nil {
			return nil, err
		}
		if entry != nil {
			out = append(out, *entry)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Transactions) FindByReference(_ context.Context, reference string) (*domain.Transaction, error) {
	prefix := util.BytesPrefix([]byte(keyTxByRef + reference + "/"))
	iter := s.db.ldb.NewIterator(prefix, nil)
	defer iter.Release()

	if !iter.Last() {
		return nil, iter.Error()
	}
	return s.load(string(iter.Value()))
}

func (s *Transactions) load(id string) (*domain.Transaction, error) {
	raw, ok, err := s.db.get(txKey(id))
	if err != nil || !ok {
		return nil, err
	}
	var entry domain.Transaction
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode transaction record: %w", err)
	}
	return &entry, nil
}
