// Package postgres persists the ledger through GORM. Production runs use the
// Postgres driver; the stores themselves are dialect-agnostic and the tests
// exercise them on an in-memory SQLite database.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/subclone/pcidss-oracle/core/domain"
)

// DB wraps the GORM handle shared by both stores.
type DB struct {
	gdb *gorm.DB
}

// Open connects to the Postgres database at dsn and runs the schema
// migration before returning.
func Open(dsn string) (*DB, error) {
	return openDialector(pgdriver.Open(dsn))
}

func openDialector(dial gorm.Dialector) (*DB, error) {
	// TranslateError folds driver-specific unique violations into
	// gorm.ErrDuplicatedKey on both dialects.
	gdb, err := gorm.Open(dial, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := autoMigrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &DB{gdb: gdb}, nil
}

// autoMigrate performs all schema migrations for the ledger.
func autoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&domain.BankAccount{},
		&domain.Transaction{},
	)
}

func (d *DB) Close() error {
	sqlDB, err := d.gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *DB) BankAccounts() *BankAccounts {
	return &BankAccounts{db: d.gdb}
}

func (d *DB) Transactions() *Transactions {
	return &Transactions{db: d.gdb}
}

// --- Bank accounts ---

// BankAccounts implements domain.BankAccountStore.
type BankAccounts struct {
	db *gorm.DB
}

func (s *BankAccounts) FindByID(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *BankAccounts) FindByCardNumber(ctx context.Context, cardNumber string) (*domain.BankAccount, error) {
	return s.first(ctx, "card_number = ?", cardNumber)
}

func (s *BankAccounts) FindByAccountID(ctx context.Context, accountID string) (*domain.BankAccount, error) {
	return s.first(ctx, "account_id = ?", accountID)
}

func (s *BankAccounts) first(ctx context.Context, query string, args ...any) (*domain.BankAccount, error) {
	var account domain.BankAccount
	err := s.db.WithContext(ctx).Where(query, args...).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *BankAccounts) Create(ctx context.Context, create *domain.BankAccountCreate) (*domain.BankAccount, error) {
	account := domain.BankAccount{
		ID:                  create.ID,
		CardNumber:          create.CardNumber,
		CardHolderFirstName: create.CardHolderFirstName,
		CardHolderLastName:  create.CardHolderLastName,
		CardCVV:             create.CardCVV,
		CardExpirationDate:  create.CardExpirationDate,
		Balance:             create.Balance,
		AccountID:           create.AccountID,
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.NewBadRequest("card number or on-chain account id already registered")
		}
		return nil, err
	}
	return &account, nil
}

func (s *BankAccounts) Update(ctx context.Context, account *domain.BankAccount, expectedNonce uint32) error {
	// Struct updates skip zero values and a drained balance is zero,
	// so the columns go through a map. The nonce guard makes the write
	// conditional: a row another writer touched since the caller's read
	// no longer matches and affects zero rows.
	res := s.db.WithContext(ctx).Model(&domain.BankAccount{}).
		Where("id = ? AND nonce = ?", account.ID, expectedNonce).
		Updates(map[string]any{
			"balance": account.Balance,
			"nonce":   account.Nonce,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		existing, err := s.FindByID(ctx, account.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("bank account %s not found", account.ID)
		}
		return domain.ErrStaleAccount
	}
	return nil
}

// --- Transactions ---

// Transactions implements domain.TransactionStore.
type Transactions struct {
	db *gorm.DB
}

func (s *Transactions) FindByBankAccountID(ctx context.Context, id uuid.UUID) ([]domain.Transaction, error) {
	var entries []domain.Transaction
	err := s.db.WithContext(ctx).
		Where("from_account = ? OR to_account = ?", id, id).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Transactions) FindByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	var entry domain.Transaction
	err := s.db.WithContext(ctx).
		Where("reference = ?", reference).
		Order("created_at DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Transactions) Create(ctx context.Context, create *domain.TransactionCreate) (*domain.Transaction, error) {
	entry := domain.Transaction{
		ID:        create.ID,
		From:      create.From,
		To:        create.To,
		Amount:    create.Amount,
		Type:      create.Type,
		Reference: create.Reference,
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}
