package processor

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	moov8583 "github.com/moov-io/iso8583"

	"github.com/subclone/pcidss-oracle/core/domain"
	"github.com/subclone/pcidss-oracle/observability"
	"github.com/subclone/pcidss-oracle/observability/logging"
)

// Response codes the oracle emits in DE39.
const (
	CodeApproved           = "00"
	CodeDoNotHonor         = "05"
	CodeInvalidTransaction = "12"
	CodeInvalidCardNumber  = "14"
	CodeUnableToLocate     = "25"
	CodeInsufficientFunds  = "51"
	CodeExpiredCard        = "54"
	CodeDuplicate          = "94"
)

const (
	mtiAuthorizationRequest = "0100"
	mtiReversalAdvice       = "0420"
)

// staleRetryLimit bounds how often a message is re-run when its account
// writes keep losing to concurrent operations. Every retry re-reads state,
// so one round normally settles it.
const staleRetryLimit = 3

// DE3 transaction classes (positions 1-2).
const (
	txnPurchase = "00"
	txnRefund   = "20"
)

// Fields copied from the request into the response. DE52 is deliberately
// absent: card verification data never leaves the oracle.
var echoFields = []int{
	fieldPAN,
	fieldProcessingCode,
	fieldAmount,
	fieldTransmission,
	fieldSTAN,
	fieldLocalTime,
	fieldLocalDate,
	fieldExpiration,
	fieldAcquirer,
	fieldTrack2,
	fieldRRN,
	fieldTerminalID,
	fieldMerchantID,
	fieldCardAcceptor,
	fieldCurrency,
	fieldPrivateData,
}

// Processor executes ISO8583 messages against the ledger stores. It is safe
// for concurrent use as long as the injected stores are.
type Processor struct {
	accounts     domain.BankAccountStore
	transactions domain.TransactionStore
	logger       *slog.Logger
	metrics      *observability.ISO8583Metrics
	clock        func() time.Time
}

// New builds a Processor on the given stores. A nil logger falls back to the
// process-wide default.
func New(accounts domain.BankAccountStore, transactions domain.TransactionStore, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		accounts:     accounts,
		transactions: transactions,
		logger:       logger,
		metrics:      observability.ISO8583(),
		clock:        time.Now,
	}
}

// Process validates and executes one raw message and returns the packed
// response bytes. Validation declines are successful processing: the decline
// code travels in DE39 of the returned message. An error return always
// carries a domain classification and means no response was produced.
func (p *Processor) Process(ctx context.Context, raw []byte) ([]byte, error) {
	msg := moov8583.NewMessage(Spec)
	if err := msg.Unpack(raw); err != nil {
		p.metrics.RecordMessage("unknown", "unparsed")
		return nil, domain.NewBadRequest(fmt.Sprintf("unpack iso8583 message: %v", err))
	}
	mti, err := msg.GetMTI()
	if err != nil || len(mti) != 4 {
		return nil, domain.NewBadRequest("message type indicator missing")
	}

	switch mti {
	case mtiAuthorizationRequest:
		return p.retryStale(ctx, msg, p.authorize)
	case mtiReversalAdvice:
		return p.retryStale(ctx, msg, p.reverse)
	default:
		// Unsupported message classes still get a well-formed response so
		// terminals do not hang waiting for one.
		return p.respond(msg, mti, CodeInvalidTransaction)
	}
}

// retryStale re-runs op when its payer write lost the account to a
// concurrent operation. op reports that only via a bare ErrStaleAccount and
// only before it has written anything, so a re-run validates and executes
// against the state the competing writer left behind.
func (p *Processor) retryStale(ctx context.Context, msg *moov8583.Message, op func(context.Context, *moov8583.Message) ([]byte, error)) ([]byte, error) {
	for attempt := 0; attempt < staleRetryLimit; attempt++ {
		resp, err := op(ctx, msg)
		if !errors.Is(err, domain.ErrStaleAccount) {
			return resp, err
		}
	}
	return nil, domain.NewInternalServerError(fmt.Sprintf("account stayed contended across %d attempts", staleRetryLimit))
}

// authorize handles 0100 authorization requests. Purchases debit the
// cardholder and, when DE126 names an on-chain beneficiary, credit that
// account in the same operation. Refunds credit the cardholder back.
func (p *Processor) authorize(ctx context.Context, msg *moov8583.Message) ([]byte, error) {
	pan := getString(msg, fieldPAN)
	if pan == "" {
		return nil, domain.NewBadRequest("authorization without a primary account number")
	}
	amount, err := parseAmount(getString(msg, fieldAmount))
	if err != nil {
		return nil, domain.NewBadRequest(err.Error())
	}

	account, err := p.accounts.FindByCardNumber(ctx, pan)
	if err != nil {
		return nil, domain.NewInternalServerError(fmt.Sprintf("find account by card number: %v", err))
	}
	if account == nil {
		return p.respond(msg, mtiAuthorizationRequest, CodeInvalidCardNumber)
	}
	if getString(msg, fieldVerificationData) != account.CardCVV {
		return p.respond(msg, mtiAuthorizationRequest, CodeDoNotHonor)
	}
	if p.cardExpired(msg, account) {
		return p.respond(msg, mtiAuthorizationRequest, CodeExpiredCard)
	}

	var direction domain.TransactionType
	switch transactionClass(getString(msg, fieldProcessingCode)) {
	case txnPurchase:
		direction = domain.TransactionTypeDebit
	case txnRefund:
		direction = domain.TransactionTypeCredit
	default:
		return p.respond(msg, mtiAuthorizationRequest, CodeInvalidTransaction)
	}

	var beneficiary *domain.BankAccount
	if direction == domain.TransactionTypeDebit {
		chainID, ok := beneficiaryAccountID(msg)
		if !ok {
			return p.respond(msg, mtiAuthorizationRequest, CodeInvalidCardNumber)
		}
		if chainID != "" {
			beneficiary, err = p.accounts.FindByAccountID(ctx, chainID)
			if err != nil {
				return nil, domain.NewInternalServerError(fmt.Sprintf("find beneficiary account: %v", err))
			}
			if beneficiary == nil {
				return p.respond(msg, mtiAuthorizationRequest, CodeInvalidCardNumber)
			}
		}
		if amount > account.Balance {
			return p.respond(msg, mtiAuthorizationRequest, CodeInsufficientFunds)
		}
		if beneficiary != nil && beneficiary.ID != account.ID &&
			beneficiary.Balance > math.MaxUint32-amount {
			return p.respond(msg, mtiAuthorizationRequest, CodeInvalidTransaction)
		}
	} else if account.Balance > math.MaxUint32-amount {
		return p.respond(msg, mtiAuthorizationRequest, CodeInvalidTransaction)
	}

	selfTransfer := beneficiary != nil && beneficiary.ID == account.ID
	switch {
	case selfTransfer:
		// Balance is untouched; the operation still bumps the nonce and
		// lands in the ledger.
	case direction == domain.TransactionTypeDebit:
		account.Balance -= amount
	default:
		account.Balance += amount
	}
	expected := account.Nonce
	account.Nonce++
	if err := p.accounts.Update(ctx, account, expected); err != nil {
		if errors.Is(err, domain.ErrStaleAccount) {
			return nil, err
		}
		return nil, domain.NewInternalServerError(fmt.Sprintf("update payer account: %v", err))
	}
	if beneficiary != nil && !selfTransfer {
		if err := p.settleCounterparty(ctx, beneficiary, amount, domain.TransactionTypeCredit); err != nil {
			return nil, err
		}
	}

	create := &domain.TransactionCreate{
		From:      account.ID,
		Amount:    amount,
		Type:      direction,
		Reference: getString(msg, fieldRRN),
	}
	if beneficiary != nil {
		to := beneficiary.ID
		create.To = &to
	}
	if _, err := p.transactions.Create(ctx, create); err != nil {
		return nil, domain.NewInternalServerError(fmt.Sprintf("append ledger entry: %v", err))
	}

	return p.respond(msg, mtiAuthorizationRequest, CodeApproved)
}

// reverse handles 0420 reversal advices. The original transaction is located
// by retrieval reference and card; reversing appends a compensating credit
// entry under the same reference rather than mutating the ledger.
func (p *Processor) reverse(ctx context.Context, msg *moov8583.Message) ([]byte, error) {
	pan := getString(msg, fieldPAN)
	if pan == "" {
		return nil, domain.NewBadRequest("reversal without a primary account number")
	}
	rrn := getString(msg, fieldRRN)
	if rrn == "" {
		return p.respond(msg, mtiReversalAdvice, CodeUnableToLocate)
	}

	account, err := p.accounts.FindByCardNumber(ctx, pan)
	if err != nil {
		return nil, domain.NewInternalServerError(fmt.Sprintf("find account by card number: %v", err))
	}
	if account == nil {
		return p.respond(msg, mtiReversalAdvice, CodeInvalidCardNumber)
	}

	original, err := p.transactions.FindByReference(ctx, rrn)
	if err != nil {
		return nil, domain.NewInternalServerError(fmt.Sprintf("find transaction by reference: %v", err))
	}
	if original == nil || original.From != account.ID {
		return p.respond(msg, mtiReversalAdvice, CodeUnableToLocate)
	}
	if original.Type == domain.TransactionTypeCredit {
		// The latest entry under this reference is already a compensation.
		return p.respond(msg, mtiReversalAdvice, CodeDuplicate)
	}
	if raw := getString(msg, fieldAmount); raw != "" {
		amount, err := parseAmount(raw)
		if err != nil {
			return nil, domain.NewBadRequest(err.Error())
		}
		if amount != original.Amount {
			return p.respond(msg, mtiReversalAdvice, CodeUnableToLocate)
		}
	}

	selfTransfer := original.To != nil && *original.To == account.ID
	var beneficiary *domain.BankAccount
	if original.To != nil && !selfTransfer {
		beneficiary, err = p.accounts.FindByID(ctx, *original.To)
		if err != nil {
			return nil, domain.NewInternalServerError(fmt.Sprintf("find beneficiary account: %v", err))
		}
		if beneficiary == nil {
			return nil, domain.NewInternalServerError(fmt.Sprintf("beneficiary %s missing for reversal of %s", *original.To, original.ID))
		}
		if beneficiary.Balance < original.Amount {
			return p.respond(msg, mtiReversalAdvice, CodeInsufficientFunds)
		}
	}
	if !selfTransfer && account.Balance > math.MaxUint32-original.Amount {
		return p.respond(msg, mtiReversalAdvice, CodeInvalidTransaction)
	}

	if !selfTransfer {
		account.Balance += original.Amount
	}
	expected := account.Nonce
	account.Nonce++
	if err := p.accounts.Update(ctx, account, expected); err != nil {
		if errors.Is(err, domain.ErrStaleAccount) {
			return nil, err
		}
		return nil, domain.NewInternalServerError(fmt.Sprintf("update payer account: %v", err))
	}
	if beneficiary != nil {
		if err := p.settleCounterparty(ctx, beneficiary, original.Amount, domain.TransactionTypeDebit); err != nil {
			return nil, err
		}
	}

	create := &domain.TransactionCreate{
		From:      account.ID,
		To:        original.To,
		Amount:    original.Amount,
		Type:      domain.TransactionTypeCredit,
		Reference: rrn,
	}
	if _, err := p.transactions.Create(ctx, create); err != nil {
		return nil, domain.NewInternalServerError(fmt.Sprintf("append ledger entry: %v", err))
	}

	return p.respond(msg, mtiReversalAdvice, CodeApproved)
}

// settleCounterparty applies the beneficiary leg of a transfer after the
// payer's write has already landed. A contended write is retried against a
// fresh read rather than bubbled up: re-running the whole message here would
// apply the payer leg twice. The nonce stays put, only cardholder-originated
// operations count it up.
func (p *Processor) settleCounterparty(ctx context.Context, account *domain.BankAccount, amount uint32, direction domain.TransactionType) error {
	for attempt := 0; ; attempt++ {
		if direction == domain.TransactionTypeCredit {
			if account.Balance > math.MaxUint32-amount {
				return domain.NewInternalServerError(fmt.Sprintf("beneficiary %s balance would overflow", account.ID))
			}
			account.Balance += amount
		} else {
			if account.Balance < amount {
				return domain.NewInternalServerError(fmt.Sprintf("beneficiary %s balance would underflow", account.ID))
			}
			account.Balance -= amount
		}
		err := p.accounts.Update(ctx, account, account.Nonce)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrStaleAccount) {
			return domain.NewInternalServerError(fmt.Sprintf("update beneficiary account: %v", err))
		}
		if attempt+1 >= staleRetryLimit {
			return domain.NewInternalServerError(fmt.Sprintf("beneficiary %s stayed contended across %d attempts", account.ID, staleRetryLimit))
		}
		fresh, err := p.accounts.FindByID(ctx, account.ID)
		if err != nil {
			return domain.NewInternalServerError(fmt.Sprintf("reload beneficiary account: %v", err))
		}
		if fresh == nil {
			return domain.NewInternalServerError(fmt.Sprintf("beneficiary %s vanished mid-transfer", account.ID))
		}
		*account = *fresh
	}
}

// respond packs the response message: request MTI advanced by 10, request
// fields echoed, DE39 set to code.
func (p *Processor) respond(req *moov8583.Message, reqMTI, code string) ([]byte, error) {
	respMTI, err := responseMTI(reqMTI)
	if err != nil {
		return nil, domain.NewBadRequest(err.Error())
	}

	resp := moov8583.NewMessage(Spec)
	resp.MTI(respMTI)
	for _, id := range echoFields {
		value := getString(req, id)
		if value == "" {
			continue
		}
		if err := resp.Field(id, value); err != nil {
			return nil, domain.NewInternalServerError(fmt.Sprintf("echo field %d: %v", id, err))
		}
	}
	if err := resp.Field(fieldResponseCode, code); err != nil {
		return nil, domain.NewInternalServerError(fmt.Sprintf("set response code: %v", err))
	}
	packed, err := resp.Pack()
	if err != nil {
		return nil, domain.NewInternalServerError(fmt.Sprintf("pack response: %v", err))
	}

	p.metrics.RecordMessage(reqMTI, code)
	p.logger.Debug("processed iso8583 message",
		slog.String("mti", reqMTI),
		slog.String("response_code", code),
		logging.PANField("card_number", getString(req, fieldPAN)),
	)
	return packed, nil
}

// cardExpired reports whether the stored card is past its expiration or the
// message carries an expiration that contradicts the stored one.
func (p *Processor) cardExpired(msg *moov8583.Message, account *domain.BankAccount) bool {
	if !account.CardExpirationDate.After(p.clock()) {
		return true
	}
	if de14 := getString(msg, fieldExpiration); de14 != "" && de14 != account.CardExpirationDate.Format("0601") {
		return true
	}
	return false
}

// beneficiaryAccountID extracts and normalizes the on-chain account id from
// DE126. Returns ("", true) when the field is absent and ("", false) when it
// is present but not a 32-byte hex id.
func beneficiaryAccountID(msg *moov8583.Message) (string, bool) {
	raw := strings.TrimSpace(getString(msg, fieldPrivateData))
	if raw == "" {
		return "", true
	}
	id := strings.ToLower(strings.TrimPrefix(raw, "0x"))
	if len(id) != 64 {
		return "", false
	}
	if _, err := hex.DecodeString(id); err != nil {
		return "", false
	}
	return id, true
}

// transactionClass returns the DE3 transaction class. An absent processing
// code defaults to a purchase.
func transactionClass(code string) string {
	if code == "" {
		return txnPurchase
	}
	if len(code) < 2 {
		return code
	}
	return code[:2]
}

func parseAmount(raw string) (uint32, error) {
	if raw == "" {
		return 0, fmt.Errorf("transaction amount missing")
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("transaction amount %q is not numeric", raw)
	}
	if value > math.MaxUint32 {
		return 0, fmt.Errorf("transaction amount %d exceeds the ledger unit range", value)
	}
	return uint32(value), nil
}

func responseMTI(mti string) (string, error) {
	value, err := strconv.Atoi(mti)
	if err != nil || value < 0 {
		return "", fmt.Errorf("message type indicator %q is not numeric", mti)
	}
	return fmt.Sprintf("%04d", value+10), nil
}

// getString reads a field value without trimming, so echoed fields pack back
// to their original bytes. Absent fields read as "".
func getString(msg *moov8583.Message, id int) string {
	value, err := msg.GetString(id)
	if err != nil {
		return ""
	}
	return value
}
