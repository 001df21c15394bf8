package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeRateLimited    = -32020
)

const (
	methodSubmitISO8583    = "pcidss_submit_iso8583"
	methodGetTransactions  = "pcidss_get_transactions"
	methodGetBankAccount   = "pcidss_get_bank_account"
	methodGetBatchBalances = "pcidss_get_batch_balances"
)

// knownMethods bounds the method label space of the RPC metrics. Anything a
// caller invents beyond the published surface is counted under "unknown".
var knownMethods = map[string]bool{
	methodSubmitISO8583:    true,
	methodGetTransactions:  true,
	methodGetBankAccount:   true,
	methodGetBatchBalances: true,
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func errorResponse(id interface{}, code int, message string, data interface{}) *RPCResponse {
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	return &RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
}

func resultResponse(id interface{}, result interface{}) *RPCResponse {
	return &RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
}

// exec runs one JSON-RPC envelope. Both transports funnel through here: the
// POST handler passes the request body, the WebSocket loop passes one frame.
func (s *Server) exec(ctx context.Context, body []byte, source string) *RPCResponse {
	if len(bytes.TrimSpace(body)) == 0 {
		return errorResponse(nil, codeInvalidRequest, "request body required", nil)
	}
	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		return errorResponse(nil, codeParseError, "invalid JSON payload", nil)
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		return errorResponse(req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
	}
	if req.Method == "" {
		return errorResponse(req.ID, codeInvalidRequest, "method required", nil)
	}

	start := time.Now()
	resp := s.dispatch(ctx, req, source)
	code := 0
	if resp.Error != nil {
		code = resp.Error.Code
	}
	label := req.Method
	if !knownMethods[label] {
		label = "unknown"
	}
	s.metrics.Observe(label, code, time.Since(start))
	return resp
}

func (s *Server) dispatch(ctx context.Context, req *RPCRequest, source string) *RPCResponse {
	switch req.Method {
	case methodSubmitISO8583:
		if !s.limiter.allow(source) {
			return errorResponse(req.ID, codeRateLimited, "submission rate limit exceeded", nil)
		}
		return s.handleSubmitISO8583(ctx, req)
	case methodGetTransactions:
		return s.handleGetTransactions(ctx, req)
	case methodGetBankAccount:
		return s.handleGetBankAccount(ctx, req)
	case methodGetBatchBalances:
		return s.handleGetBatchBalances(ctx, req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

// httpStatusFor maps the JSON-RPC error space onto POST transport statuses.
// WebSocket responses carry the code alone.
func httpStatusFor(resp *RPCResponse) int {
	if resp.Error == nil {
		return http.StatusOK
	}
	switch resp.Error.Code {
	case codeParseError, codeInvalidRequest, codeInvalidParams:
		return http.StatusBadRequest
	case codeMethodNotFound:
		return http.StatusNotFound
	case codeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeResponse(w, status, errorResponse(nil, codeInvalidRequest, message, nil))
		return
	}

	resp := s.exec(r.Context(), body, s.clientSource(r))
	writeResponse(w, httpStatusFor(resp), resp)
}

func writeResponse(w http.ResponseWriter, status int, resp *RPCResponse) {
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) clientSource(r *http.Request) string {
	if s.trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			parts := strings.Split(forwarded, ",")
			if candidate := strings.TrimSpace(parts[0]); candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
