package domain

import (
	"errors"
	"net/http"
)

type ErrorCode string

const (
	CodeValidation           ErrorCode = "VALIDATION_ERROR"
	CodeDuplicateItem        ErrorCode = "DUPLICATE_ITEM"
	CodeConfirmationMismatch ErrorCode = "CONFIRMATION_MISMATCH"
	CodeInvalidRange         ErrorCode = "INVALID_RANGE"
	CodeUnauthenticated      ErrorCode = "UNAUTHENTICATED"
	CodeForbidden            ErrorCode = "FORBIDDEN"
	CodeAccountInactive      ErrorCode = "ACCOUNT_INACTIVE"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeItemNotFound         ErrorCode = "ITEM_NOT_FOUND"
	CodeUserNotFound         ErrorCode = "USER_NOT_FOUND"
	CodeOutOfStock           ErrorCode = "OUT_OF_STOCK"
	CodeNotReversible        ErrorCode = "NOT_REVERSIBLE"
	CodeAlreadyReversed      ErrorCode = "ALREADY_REVERSED"
	CodeSettled              ErrorCode = "SETTLED"
	CodeInvalidStatus        ErrorCode = "INVALID_STATUS"
	CodeUnpaid               ErrorCode = "UNPAID"
	CodeHasPayments          ErrorCode = "HAS_PAYMENTS"
	CodeConflict             ErrorCode = "CONFLICT"
	CodeStockNotZero         ErrorCode = "STOCK_NOT_ZERO"
	CodeServerError          ErrorCode = "SERVER_ERROR"
)

// Error is a failure the caller can act on. Two errors match under
// errors.Is when their codes are equal.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
	Details any       `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) WithDetails(details any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details}
}

var (
	ErrValidation           = NewError(CodeValidation, "invalid input")
	ErrDuplicateItem        = NewError(CodeDuplicateItem, "an item appears more than once")
	ErrConfirmationMismatch = NewError(CodeConfirmationMismatch, "confirmation does not match item name")
	ErrInvalidRange         = NewError(CodeInvalidRange, "range end is before range start")
	ErrUnauthenticated      = NewError(CodeUnauthenticated, "authentication required")
	ErrForbidden            = NewError(CodeForbidden, "not allowed")
	ErrAccountInactive      = NewError(CodeAccountInactive, "account is inactive")
	ErrNotFound             = NewError(CodeNotFound, "not found")
	ErrItemNotFound         = NewError(CodeItemNotFound, "item not found")
	ErrUserNotFound         = NewError(CodeUserNotFound, "user not found")
	ErrOutOfStock           = NewError(CodeOutOfStock, "insufficient stock")
	ErrNotReversible        = NewError(CodeNotReversible, "consumption can no longer be reversed")
	ErrAlreadyReversed      = NewError(CodeAlreadyReversed, "consumption already reversed")
	ErrSettled              = NewError(CodeSettled, "consumption is locked into a settlement")
	ErrInvalidStatus        = NewError(CodeInvalidStatus, "settlement is not in the required status")
	ErrUnpaid               = NewError(CodeUnpaid, "settlement has unpaid lines")
	ErrHasPayments          = NewError(CodeHasPayments, "settlement already has payments")
	ErrConflict             = NewError(CodeConflict, "conflicting record exists")
	ErrStockNotZero         = NewError(CodeStockNotZero, "item still has stock")
)

// AsError extracts a domain error from err, if any.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

func HTTPStatus(code ErrorCode) int {
	switch code {
	case CodeValidation, CodeDuplicateItem, CodeConfirmationMismatch, CodeInvalidRange:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeAccountInactive:
		return http.StatusLocked
	case CodeNotFound, CodeItemNotFound, CodeUserNotFound:
		return http.StatusNotFound
	case CodeOutOfStock, CodeNotReversible, CodeAlreadyReversed, CodeSettled, CodeInvalidStatus,
		CodeUnpaid, CodeHasPayments, CodeConflict, CodeStockNotZero:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
