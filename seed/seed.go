// Package seed provisions bank accounts at startup: the fixed Substrate dev
// accounts in dev mode, plus optional operator-supplied accounts from a YAML
// file.
package seed

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/subclone/pcidss-oracle/core/domain"
	"github.com/subclone/pcidss-oracle/observability/logging"
)

// devAccounts are the Substrate dev identities (sr25519 account ids) with
// fixed card fixtures. Balances are in the smallest unit.
var devAccounts = []struct {
	name      string
	card      string
	cvv       string
	balance   uint32
	accountID string
}{
	{"Alice", "4169812345678901", "123", 1000, "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"},
	{"Bob", "4169812345678902", "124", 1000, "8eaf04151687736326c9fea17e25fc5287613693c912909cb226aa4794f26a48"},
	{"Charlie", "4169812345678903", "125", 1000, "90b5ab205c6974c9ea841be688864633dc9ca8a357843eeacf2314649965fe22"},
	{"Dave", "4169812345678904", "126", 1000, "306721211d5404bd9da88e0204360a1a9ab8b87c66c1bc2fcdd37f3c2222cc20"},
	{"Eve", "4169812345678905", "127", 1000, "e659a7a1628cdd93febc04a4e0646ea20e9f5f0ce097d9a05290d4a9e054df4e"},
}

// DevAccounts returns the five fixed dev accounts. Eve's card is already two
// months expired so decline paths are exercisable out of the box; the others
// run 48 months ahead.
func DevAccounts(now time.Time) []domain.BankAccountCreate {
	out := make([]domain.BankAccountCreate, 0, len(devAccounts))
	for _, acc := range devAccounts {
		expiration := now.AddDate(0, 48, 0)
		if acc.name == "Eve" {
			expiration = now.AddDate(0, -2, 0)
		}
		chainID := acc.accountID
		out = append(out, domain.BankAccountCreate{
			ID:                  uuid.New(),
			CardNumber:          acc.card,
			CardHolderFirstName: acc.name,
			CardHolderLastName:  acc.name,
			CardCVV:             acc.cvv,
			CardExpirationDate:  expiration,
			Balance:             acc.balance,
			AccountID:           &chainID,
		})
	}
	return out
}

// Apply inserts the accounts, skipping ones the store rejects, and returns
// the number inserted. Reruns against a persistent store hit duplicate card
// numbers; that is expected and only logged.
func Apply(ctx context.Context, store domain.BankAccountStore, accounts []domain.BankAccountCreate, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	inserted := 0
	for i := range accounts {
		create := accounts[i]
		account, err := store.Create(ctx, &create)
		if err != nil {
			logger.Warn("seed account skipped",
				logging.PANField("card_number", create.CardNumber),
				slog.String("reason", err.Error()),
			)
			continue
		}
		inserted++
		logger.Info("seeded bank account",
			logging.PANField("card_number", account.CardNumber),
			slog.String("holder", account.CardHolderFirstName),
		)
	}
	return inserted
}

// fileAccount is one entry of the optional YAML seed file.
type fileAccount struct {
	CardNumber string `yaml:"card_number"`
	FirstName  string `yaml:"first_name"`
	LastName   string `yaml:"last_name"`
	CVV        string `yaml:"cvv"`
	// Expires names the last valid month as YYYY-MM.
	Expires   string `yaml:"expires"`
	Balance   uint32 `yaml:"balance"`
	AccountID string `yaml:"account_id"`
}

// LoadFile reads operator-supplied accounts from a YAML seed file.
func LoadFile(path string) ([]domain.BankAccountCreate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []fileAccount
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	out := make([]domain.BankAccountCreate, 0, len(entries))
	for i, entry := range entries {
		create, err := entry.toCreate()
		if err != nil {
			return nil, fmt.Errorf("seed file %s entry %d: %w", path, i, err)
		}
		out = append(out, create)
	}
	return out, nil
}

func (a fileAccount) toCreate() (domain.BankAccountCreate, error) {
	var out domain.BankAccountCreate
	card := strings.TrimSpace(a.CardNumber)
	if card == "" {
		return out, fmt.Errorf("card_number required")
	}
	cvv := strings.TrimSpace(a.CVV)
	if cvv == "" {
		return out, fmt.Errorf("cvv required")
	}
	expires, err := time.Parse("2006-01", strings.TrimSpace(a.Expires))
	if err != nil {
		return out, fmt.Errorf("expires must be YYYY-MM: %w", err)
	}
	out = domain.BankAccountCreate{
		ID:                  uuid.New(),
		CardNumber:          card,
		CardHolderFirstName: strings.TrimSpace(a.FirstName),
		CardHolderLastName:  strings.TrimSpace(a.LastName),
		CardCVV:             cvv,
		// Valid through the whole named month.
		CardExpirationDate: expires.AddDate(0, 1, 0),
		Balance:            a.Balance,
	}
	if id := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(a.AccountID), "0x")); id != "" {
		if len(id) != 64 {
			return out, fmt.Errorf("account_id must be 32 bytes of hex")
		}
		if _, err := hex.DecodeString(id); err != nil {
			return out, fmt.Errorf("account_id must be hex: %w", err)
		}
		out.AccountID = &id
	}
	return out, nil
}
