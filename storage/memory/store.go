// Package memory keeps the whole ledger in process memory. It backs unit
// tests and dev-mode runs where persistence across restarts does not matter.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/subclone/pcidss-oracle/core/domain"
)

// --- Bank accounts ---

// BankAccounts implements domain.BankAccountStore on plain maps.
type BankAccounts struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]domain.BankAccount
	byCardNumber map[string]uuid.UUID
	byAccountID  map[string]uuid.UUID
}

func NewBankAccounts() *BankAccounts {
	return &BankAccounts{
		accounts:     make(map[uuid.UUID]domain.BankAccount),
		byCardNumber: make(map[string]uuid.UUID),
		byAccountID:  make(map[string]uuid.UUID),
	}
}

func (s *BankAccounts) FindByID(_ context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

func (s *BankAccounts) FindByCardNumber(_ context.Context, cardNumber string) (*domain.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCardNumber[cardNumber]
	if !ok {
		return nil, nil
	}
	account := s.accounts[id]
	return &account, nil
}

func (s *BankAccounts) FindByAccountID(_ context.Context, accountID string) (*domain.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byAccountID[accountID]
	if !ok {
		return nil, nil
	}
	account := s.accounts[id]
	return &account, nil
}

func (s *BankAccounts) Create(_ context.Context, create *domain.BankAccountCreate) (*domain.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCardNumber[create.CardNumber]; ok {
		return nil, domain.NewBadRequest("card number already registered")
	}
	if create.AccountID != nil {
		if _, ok := s.byAccountID[*create.AccountID]; ok {
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
	s.accounts[account.ID] = account
	s.byCardNumber[account.CardNumber] = account.ID
	if account.AccountID != nil {
		s.byAccountID[*account.AccountID] = account.ID
	}
	out := account
	return &out, nil
}

func (s *BankAccounts) Update(_ context.Context, account *domain.BankAccount, expectedNonce uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.accounts[account.ID]
	if !ok {
		return fmt.Errorf("bank account %s not found", account.ID)
	}
	if existing.Nonce != expectedNonce {
		return domain.ErrStaleAccount
	}
	existing.Balance = account.Balance
	existing.Nonce = account.Nonce
	s.accounts[account.ID] = existing
	return nil
}

// --- Transactions ---

// Transactions implements domain.TransactionStore as an append-only slice.
// Slice order is insertion order, so reverse iteration yields most recent
// first without comparing timestamps.
type Transactions struct {
	mu      sync.RWMutex
	entries []domain.Transaction
}

func NewTransactions() *Transactions {
	return &Transactions{}
}

func (s *Transactions) FindByBankAccountID(_ context.Context, id uuid.UUID) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Transaction
	for i := len(s.entries) - 1; i >= 0; i-- {
		entry := s.entries[i]
		if entry.From == id || (entry.To != nil && *entry.To == id) {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *Transactions) FindByReference(_ context.Context, reference string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Reference == reference {
			entry := s.entries[i]
			return &entry, nil
		}
	}
	return nil, nil
}

func (s *Transactions) Create(_ context.Context, create *domain.TransactionCreate) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
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
	s.entries = append(s.entries, entry)
	out := entry
	return &out, nil
}
