package rpc

import (
	"log/slog"

	"github.com/subclone/pcidss-oracle/core/domain"
)

// Fixed caller-facing reason strings. Full failure detail stays in the
// server-side log; only these cross the RPC boundary.
const (
	msgInvalidParams = "Invalid params"
	msgInternalError = "Internal error"
)

func invalidParams(id interface{}) *RPCResponse {
	return errorResponse(id, codeInvalidParams, msgInvalidParams, nil)
}

func internalError(id interface{}) *RPCResponse {
	return errorResponse(id, codeInternalError, msgInternalError, nil)
}

// domainError collapses a classified failure onto the two codes callers see.
// The mapping is total: BadRequest and NotFound become invalid params,
// everything else, including kinds no constructor produces, becomes internal
// error.
func (s *Server) domainError(id interface{}, method string, err error) *RPCResponse {
	kind := domain.KindOf(err)
	s.logger.Error("rpc call failed",
		slog.String("method", method),
		slog.String("kind", kind.String()),
		slog.String("error", err.Error()),
	)
	switch kind {
	case domain.ErrorKindBadRequest, domain.ErrorKindNotFound:
		return invalidParams(id)
	default:
		return internalError(id)
	}
}
