package tips

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount indicates a tip amount of zero.
	ErrInvalidAmount = errors.New("tips: tip amount must be greater than 0")
	// ErrMessageTooLong indicates a sanitized message beyond the record capacity.
	ErrMessageTooLong = errors.New("tips: message cannot exceed 280 bytes")
	// ErrInvalidCharacters indicates a message rune outside the allowed and problematic sets.
	ErrInvalidCharacters = errors.New("tips: message contains invalid characters")
	// ErrInsufficientFunds is raised only by a Ledger implementation when the payer cannot cover the amount.
	ErrInsufficientFunds = errors.New("tips: insufficient balance for this tip")
	// ErrAlreadyExists indicates the derived tip address is already occupied.
	ErrAlreadyExists = errors.New("tips: tip account already exists")
	// ErrInvalidRequest indicates a malformed identity or program configuration.
	ErrInvalidRequest = errors.New("tips: invalid request")
	// ErrRecordNotFound indicates no tip account is stored at the requested address.
	ErrRecordNotFound = errors.New("tips: tip account not found")
)

// ServiceError carries a stable operation code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "tips.service.new"
	opSendTip    = "tips.send_tip"
	opFetchTip   = "tips.fetch_tip"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// FailureReason maps an error onto the snake_case reason used in logs, metrics and API responses.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrMessageTooLong):
		return "message_too_long"
	case errors.Is(err, ErrInvalidCharacters):
		return "invalid_characters"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrRecordNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
