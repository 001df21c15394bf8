package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/subclone/pcidss-oracle/core/domain"
	"github.com/subclone/pcidss-oracle/observability/logging"
)

// handleSubmitISO8583 passes the raw message buffer to the processor
// unmodified and returns the processor's response bytes verbatim. The
// envelope never wraps a processing failure in a success object.
func (s *Server) handleSubmitISO8583(ctx context.Context, req *RPCRequest) *RPCResponse {
	if len(req.Params) != 1 {
		return invalidParams(req.ID)
	}
	var raw rawBytes
	if err := json.Unmarshal(req.Params[0], &raw); err != nil {
		return invalidParams(req.ID)
	}
	s.logger.Debug("received iso8583 message", slog.Int("bytes", len(raw)))

	response, err := s.processor.Process(ctx, raw)
	if err != nil {
		return s.domainError(req.ID, methodSubmitISO8583, err)
	}
	s.logger.Debug("iso8583 response", slog.String("hex", hex.EncodeToString(response)))
	return resultResponse(req.ID, rawBytes(response))
}

// handleGetTransactions lists the ledger entries touching the account behind
// a card number, most recent first.
func (s *Server) handleGetTransactions(ctx context.Context, req *RPCRequest) *RPCResponse {
	cardNumber, ok := stringParam(req)
	if !ok {
		return invalidParams(req.ID)
	}
	account, err := s.accounts.FindByCardNumber(ctx, cardNumber)
	if err != nil || account == nil {
		// Unknown cards and lookup faults are indistinguishable to callers:
		// this surface must not confirm whether a card number exists.
		s.logger.Debug("card lookup failed", logging.PANField("card_number", cardNumber))
		return invalidParams(req.ID)
	}
	entries, err := s.transactions.FindByBankAccountID(ctx, account.ID)
	if err != nil {
		// The ledger error keeps whatever domain kind it carries; only the
		// mapped code reaches the caller.
		return s.domainError(req.ID, methodGetTransactions, err)
	}
	if entries == nil {
		entries = []domain.Transaction{}
	}
	return resultResponse(req.ID, entries)
}

// handleGetBankAccount resolves the full account record behind a card number.
func (s *Server) handleGetBankAccount(ctx context.Context, req *RPCRequest) *RPCResponse {
	cardNumber, ok := stringParam(req)
	if !ok {
		return invalidParams(req.ID)
	}
	account, err := s.accounts.FindByCardNumber(ctx, cardNumber)
	if err != nil || account == nil {
		s.logger.Debug("bank account lookup failed", logging.PANField("card_number", cardNumber))
		return invalidParams(req.ID)
	}
	return resultResponse(req.ID, account)
}

// handleGetBatchBalances serves the OCW's authenticated batch read. The
// signature must verify over the canonical message before any store access;
// every failure on this path collapses to invalid params so callers learn
// nothing about why verification or lookup failed.
func (s *Server) handleGetBatchBalances(ctx context.Context, req *RPCRequest) *RPCResponse {
	if len(req.Params) != 2 {
		return invalidParams(req.ID)
	}
	var signature rawBytes
	if err := json.Unmarshal(req.Params[0], &signature); err != nil {
		return invalidParams(req.ID)
	}
	var ids []string
	if err := json.Unmarshal(req.Params[1], &ids); err != nil {
		return invalidParams(req.ID)
	}
	if len(ids) == 0 {
		// An empty id list has no canonical message to verify.
		return invalidParams(req.ID)
	}
	if !s.ocwKey.Verify(canonicalBatchMessage(ids), signature) {
		s.logger.Debug("batch balance signature rejected", slog.Int("ids", len(ids)))
		return invalidParams(req.ID)
	}

	entries := make([]BalanceEntry, 0, len(ids))
	for _, id := range ids {
		// Ids are matched exactly as signed over; stored ids never carry a
		// 0x prefix, so a prefixed id resolves nothing and is skipped.
		account, err := s.accounts.FindByAccountID(ctx, id)
		if err != nil {
			s.logger.Debug("batch balance lookup failed",
				slog.String("account_id", id),
				slog.String("error", err.Error()),
			)
			return invalidParams(req.ID)
		}
		if account == nil {
			continue
		}
		entries = append(entries, BalanceEntry{AccountID: id, Balance: account.Balance})
	}
	return resultResponse(req.ID, entries)
}

func stringParam(req *RPCRequest) (string, bool) {
	if len(req.Params) != 1 {
		return "", false
	}
	var value string
	if err := json.Unmarshal(req.Params[0], &value); err != nil {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}
