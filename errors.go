package tigerclient

import (
	"errors"
	"fmt"

	"github.com/tigerclient/tigerclient/internal/packet"
)

// Code is the closed taxonomy of errors surfaced from init or Acquire
// (spec §7). Packet completion status uses the lighter-weight
// packet.Status instead — this enum covers lifecycle-level failures that
// never reach a completion callback.
type Code string

const (
	CodeConcurrencyMaxInvalid  Code = "concurrency_max_invalid"
	CodeAddressInvalid         Code = "address_invalid"
	CodeAddressLimitExceeded   Code = "address_limit_exceeded"
	CodeSystemResources        Code = "system_resources"
	CodeUnexpected             Code = "unexpected"
	CodeOutOfMemory            Code = "out_of_memory"
	CodeConcurrencyMaxExceeded Code = "concurrency_max_exceeded"
	CodeShutdown               Code = "shutdown"
	CodeInvalidOperation       Code = "invalid_operation"
	CodeInvalidDataSize        Code = "invalid_data_size"
	CodeTooMuchData            Code = "too_much_data"
	CodeOK                     Code = "ok"
)

// Error is the structured error type returned from NewClient and Acquire.
// Fields other than Code and Msg are zero-valued when not applicable.
type Error struct {
	Op        string           // operation that failed, e.g. "NewClient", "ParseAddresses"
	ClientID  [16]byte         // client id, zero if not yet assigned
	Operation packet.Operation // packet operation code, 0 if not applicable
	Code      Code
	Msg       string
	Inner     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("tigerclient: %s (op=%s)", msg, e.Op)
	}
	return fmt.Sprintf("tigerclient: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is compares by Code alone, so callers can match
// errors.Is(err, &Error{Code: CodeShutdown}) without caring about Op/Msg.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// NewError constructs a bare *Error for a given op and code.
func NewError(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewPacketError constructs an *Error carrying the packet operation code
// that produced it, for callers that log init-time failures tied to a
// particular request rather than the lifecycle.
func NewPacketError(op string, operation packet.Operation, code Code, msg string) *Error {
	return &Error{Op: op, Operation: operation, Code: code, Msg: msg}
}

// WrapError wraps inner with Code unexpected unless inner is already a
// structured *Error, in which case its Code is preserved.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if te, ok := inner.(*Error); ok {
		return &Error{Op: op, ClientID: te.ClientID, Operation: te.Operation, Code: te.Code, Msg: te.Msg, Inner: te.Inner}
	}
	return &Error{Op: op, Code: CodeUnexpected, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is (or wraps) an *Error with the given Code.
func IsCode(err error, code Code) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}
