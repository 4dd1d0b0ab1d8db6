// Package apperr carries the terminal's error taxonomy. Every failure a
// screen can surface is classified by a Code so callers decide between an
// inline message, the permission modal, a forced re-login, or a retry prompt.
package apperr

import (
	stderrors "errors"
	"fmt"
)

type Code string

const (
	CodeValidation Code = "VALIDATION_ERROR"
	CodeNotFound   Code = "NOT_FOUND"
	CodePermission Code = "PERMISSION_DENIED"
	CodeSession    Code = "SESSION_EXPIRED"
	CodeTransport  Code = "TRANSPORT_ERROR"
)

// Retryable reports whether the failed action may be offered again with its
// input preserved. Validation failures are fixable, transport failures are
// retryable as-is; permission and session failures abort the action entirely.
func (c Code) Retryable() bool {
	return c == CodeTransport
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeTransport
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts a typed *Error from an error chain, or nil.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf classifies an arbitrary error. Unclassified errors are treated as
// transport failures so they stay retryable.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeTransport
}

// PermissionDetails is the structured denial emitted by the capability gate:
// the capability that was missing and the role that lacked it.
type PermissionDetails struct {
	Capability string `json:"capability"`
	Rol        string `json:"rol"`
}

// StockDetails accompanies insufficient-stock rejections from the cart.
type StockDetails struct {
	SKU       string `json:"sku"`
	Requested string `json:"requested"`
	Available string `json:"available"`
}
