package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	// 引擎错误分类
	ErrTransientIO                 ErrorType = "TRANSIENT_IO"
	ErrExchangeRejection           ErrorType = "EXCHANGE_REJECTION"
	ErrReconciliationInconsistency ErrorType = "RECONCILIATION_INCONSISTENCY"
	ErrConfiguration               ErrorType = "CONFIGURATION"
	ErrSettlementDataGap           ErrorType = "SETTLEMENT_DATA_GAP"

	// HTTP 管理接口
	ErrAuthFailed     ErrorType = "AUTH_FAILED"
	ErrInvalidRequest ErrorType = "INVALID_REQUEST"
	ErrInternal       ErrorType = "INTERNAL_ERROR"
	ErrNotFound       ErrorType = "NOT_FOUND"
	ErrConflict       ErrorType = "CONFLICT"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func Transient(msg string, cause error) *AppError {
	return New(ErrTransientIO, msg, cause)
}

func Rejection(msg string, cause error) *AppError {
	return New(ErrExchangeRejection, msg, cause)
}

func Inconsistency(msg string) *AppError {
	return New(ErrReconciliationInconsistency, msg, nil)
}

func Configuration(msg string) *AppError {
	return New(ErrConfiguration, msg, nil)
}

func DataGap(msg string, cause error) *AppError {
	return New(ErrSettlementDataGap, msg, cause)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// Is reports whether any AppError in err's chain has type t.
func Is(err error, t ErrorType) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Type == t {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return Is(err, ErrTransientIO)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidRequest, ErrConfiguration:
		return http.StatusBadRequest
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrConflict:
		return http.StatusConflict
	case ErrNotFound:
		return http.StatusNotFound
	case ErrTransientIO, ErrExchangeRejection, ErrSettlementDataGap:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrTransientIO:
		return "Retry later; the exchange or network is temporarily unavailable."
	case ErrExchangeRejection:
		return "Check offer parameters and wallet balance."
	case ErrConfiguration:
		return "Fix the configuration and restart."
	case ErrSettlementDataGap:
		return "Re-run settlement for the date once the exchange is reachable."
	case ErrConflict:
		return "Another run is in progress; retry after it finishes."
	case ErrAuthFailed:
		return "Check API keys."
	default:
		return ""
	}
}
