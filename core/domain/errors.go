package domain

import "errors"

// ErrorKind is the closed set of failure classes collaborators may surface.
// The RPC layer collapses these onto the caller-facing code space; nothing
// else about a failure crosses that boundary.
type ErrorKind int

const (
	// ErrorKindAPI marks a failure in an upstream API the collaborator
	// depends on.
	ErrorKindAPI ErrorKind = iota
	// ErrorKindInternal marks an unexpected server-side fault.
	ErrorKindInternal
	// ErrorKindBadRequest marks input the collaborator refused to process.
	ErrorKindBadRequest
	// ErrorKindNotFound marks a lookup that resolved nothing where a result
	// was required.
	ErrorKindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindAPI:
		return "api_error"
	case ErrorKindInternal:
		return "internal_server_error"
	case ErrorKindBadRequest:
		return "bad_request"
	case ErrorKindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a classified domain failure. The message is for server-side logs
// only and must never be written to a caller.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// NewAPIError reports a dependency fault.
func NewAPIError(msg string) *Error {
	return &Error{Kind: ErrorKindAPI, Message: msg}
}

// NewInternalServerError reports an unexpected server-side fault.
func NewInternalServerError(msg string) *Error {
	return &Error{Kind: ErrorKindInternal, Message: msg}
}

// NewBadRequest reports input the domain refused to process.
func NewBadRequest(msg string) *Error {
	return &Error{Kind: ErrorKindBadRequest, Message: msg}
}

// NewNotFound reports a required lookup that resolved nothing.
func NewNotFound(msg string) *Error {
	return &Error{Kind: ErrorKindNotFound, Message: msg}
}

// KindOf classifies an arbitrary error. Errors that do not carry a domain
// classification are treated as internal faults so no detail can leak
// through an unmapped path.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrorKindInternal
}
