package errcode

import "fmt"

// Error represents a client error with a stable code
type Error struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Status int    `json:"status,omitempty"` // HTTP status when the error came from a response
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("errcode: %d, status: %d, msg: %s", e.Code, e.Status, e.Msg)
	}
	return fmt.Sprintf("errcode: %d, msg: %s", e.Code, e.Msg)
}

// Is reports whether target carries the same code, so errors.Is works on wrapped copies
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new error with code and message
func New(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap wraps an error with additional context
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code:   e.Code,
		Msg:    fmt.Sprintf("%s: %v", e.Msg, err),
		Status: e.Status,
	}
}

// WithMsg returns a copy carrying msg instead of the default message
func (e *Error) WithMsg(msg string) *Error {
	return &Error{Code: e.Code, Msg: msg, Status: e.Status}
}

// WithStatus returns a copy carrying the HTTP status
func (e *Error) WithStatus(status int) *Error {
	return &Error{Code: e.Code, Msg: e.Msg, Status: status}
}

// Common error codes
var (
	// Configuration and validation errors (1xxx)
	ErrConfigMissing      = New(1001, "api base url is not configured")
	ErrInvalidParam       = New(1002, "invalid parameter")
	ErrInvalidEmail       = New(1003, "invalid email")
	ErrPasswordTooShort   = New(1004, "password must be at least 6 characters")
	ErrNameTooShort       = New(1005, "name must be at least 2 characters")
	ErrSearchTermTooShort = New(1006, "search term must be at least 3 characters")

	// Network errors (2xxx)
	ErrRequestFailed = New(2001, "request failed")
	ErrUnauthorized  = New(2002, "unauthorized")

	// Realtime errors (3xxx)
	ErrNotConnected     = New(3001, "transport not connected")
	ErrConnClosed       = New(3002, "connection closed")
	ErrInvalidProtocol  = New(3003, "invalid protocol")
	ErrConnectRefused   = New(3004, "connect refused")
	ErrWriteChannelFull = New(3005, "write channel full")

	// Conversation and message errors (4xxx)
	ErrNoChat              = New(4001, "no chat selected")
	ErrInvalidConversation = New(4002, "invalid conversation")
	ErrConvNotFound        = New(4003, "conversation not found")
	ErrMessageNotFound     = New(4004, "message not found")
)
