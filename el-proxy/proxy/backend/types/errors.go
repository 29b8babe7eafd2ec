package types

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/elciao/elciao/el-service/client"
)

// JSON-RPC error codes of the error kinds served to clients.
const (
	CodeInvalidParams     = -32602
	CodeUpstream          = -32603
	CodeUnsupportedMethod = -32601
	CodeIntegrity         = -32090
	CodeExecutionReverted = 3
	CodeExecutionError    = -32000
)

// InvalidParamsError reports malformed parameters, unsupported block tags, and block numbers outside the trusted window.
type InvalidParamsError struct {
	Msg string
}

func (e *InvalidParamsError) Error() string  { return e.Msg }
func (e *InvalidParamsError) ErrorCode() int { return CodeInvalidParams }

func InvalidParams(format string, args ...any) error {
	return &InvalidParamsError{Msg: fmt.Sprintf(format, args...)}
}

// UpstreamError reports that the untrusted upstream could not serve the data. The client may try again later.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string  { return "upstream unavailable: " + e.Err.Error() }
func (e *UpstreamError) ErrorCode() int { return CodeUpstream }
func (e *UpstreamError) Unwrap() error  { return e.Err }

// UnsupportedMethodError reports a method that is not served.
type UnsupportedMethodError struct {
	Method string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("the method %s is not supported", e.Method)
}
func (e *UnsupportedMethodError) ErrorCode() int { return CodeUnsupportedMethod }

// IntegrityError reports data from the upstream that failed verification against trusted headers.
// It is never retried.
type IntegrityError struct {
	What string
	Err  error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation: %s: %v", e.What, e.Err)
}
func (e *IntegrityError) ErrorCode() int { return CodeIntegrity }
func (e *IntegrityError) Unwrap() error  { return e.Err }

func Integrity(what string, err error) error {
	return &IntegrityError{What: what, Err: err}
}

// ExecutionRevertedError is a call or gas estimation that reverted. The revert data is attached.
type ExecutionRevertedError struct {
	Reason string
	Data   []byte
}

func (e *ExecutionRevertedError) Error() string {
	if e.Reason != "" {
		return "execution reverted: " + e.Reason
	}
	return "execution reverted"
}
func (e *ExecutionRevertedError) ErrorCode() int { return CodeExecutionReverted }
func (e *ExecutionRevertedError) ErrorData() any { return hexutil.Encode(e.Data) }

// ExecutionError is any other failure of the EVM, such as running out of gas or an invalid opcode.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string  { return e.Err.Error() }
func (e *ExecutionError) ErrorCode() int { return CodeExecutionError }
func (e *ExecutionError) Unwrap() error  { return e.Err }

var (
	_ rpc.Error     = (*InvalidParamsError)(nil)
	_ rpc.Error     = (*UpstreamError)(nil)
	_ rpc.Error     = (*UnsupportedMethodError)(nil)
	_ rpc.Error     = (*IntegrityError)(nil)
	_ rpc.Error     = (*ExecutionRevertedError)(nil)
	_ rpc.DataError = (*ExecutionRevertedError)(nil)
	_ rpc.Error     = (*ExecutionError)(nil)
)

// FromUpstream classifies an error of the upstream client. Typed errors pass through unchanged.
func FromUpstream(err error) error {
	if err == nil {
		return nil
	}
	if AsRPCError(err) != nil {
		return err
	}
	if errors.Is(err, client.ErrUnsupportedMethod) {
		return &UnsupportedMethodError{Method: unsupportedMethodName(err)}
	}
	return &UpstreamError{Err: err}
}

// AsRPCError returns the first error kind of this package found in the chain of err, or nil.
// The JSON-RPC server only reads the code and data of the returned error itself, not of wrapped errors.
func AsRPCError(err error) rpc.Error {
	var (
		invalid     *InvalidParamsError
		upstream    *UpstreamError
		unsupported *UnsupportedMethodError
		integrity   *IntegrityError
		reverted    *ExecutionRevertedError
		execErr     *ExecutionError
	)
	switch {
	case errors.As(err, &invalid):
		return invalid
	case errors.As(err, &unsupported):
		return unsupported
	case errors.As(err, &integrity):
		return integrity
	case errors.As(err, &reverted):
		return reverted
	case errors.As(err, &execErr):
		return execErr
	case errors.As(err, &upstream):
		return upstream
	}
	return nil
}

func unsupportedMethodName(err error) string {
	msg := err.Error()
	prefix := client.ErrUnsupportedMethod.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
