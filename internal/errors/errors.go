package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess     Code = 0
	CodeInternal    Code = 1
	CodeUsage       Code = 2
	CodeAuth        Code = 10
	CodeRateLimited Code = 11
	CodeUnavailable Code = 12
	CodeUnsupported Code = 13
	CodeBlocked     Code = 16

	CodeInvalidAddress   Code = 20
	CodeInvalidAmount    Code = 21
	CodeUnknownVault     Code = 22
	CodeUnknownToken     Code = 23
	CodeEncoding         Code = 24
	CodeChainCall        Code = 25
	CodeReceiptTimeout   Code = 26
	CodeReverted         Code = 27
	CodeMultisigCreation Code = 28
	CodeSigner           Code = 29
)

// Error is a typed CLI error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	cErr, ok := As(err)
	return ok && cErr.Code == code
}

// IsValidation reports whether err is an input-format failure that callers
// relay to end users as a plain message.
func IsValidation(err error) bool {
	return IsCode(err, CodeInvalidAddress) || IsCode(err, CodeInvalidAmount)
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}

// TypeName is the envelope error type for a code.
func TypeName(code Code) string {
	switch code {
	case CodeUsage:
		return "usage_error"
	case CodeAuth:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "provider_unavailable"
	case CodeUnsupported:
		return "unsupported"
	case CodeBlocked:
		return "command_blocked"
	case CodeInvalidAddress:
		return "invalid_address"
	case CodeInvalidAmount:
		return "invalid_amount"
	case CodeUnknownVault:
		return "unknown_vault"
	case CodeUnknownToken:
		return "unknown_token"
	case CodeEncoding:
		return "encoding_error"
	case CodeChainCall:
		return "chain_call_error"
	case CodeReceiptTimeout:
		return "receipt_timeout"
	case CodeReverted:
		return "transaction_reverted"
	case CodeMultisigCreation:
		return "multisig_creation_error"
	case CodeSigner:
		return "signer_error"
	default:
		return "internal_error"
	}
}
