package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation                     = errors.New("validation failed")
	ErrNotFound                       = errors.New("not found")
	ErrConflict                       = errors.New("conflict")
	ErrInvalidTransition              = errors.New("invalid status transition")
	ErrUnauthorized                   = errors.New("unauthorized")
	ErrForbidden                      = errors.New("forbidden")
	ErrPaymentNotAwaitingConfirmation = errors.New("payment is not awaiting confirmation")
	ErrNoPayableCommissions           = errors.New("no approved commissions to pay out")
	ErrSessionRevoked                 = fmt.Errorf("%w: session has been revoked", ErrUnauthorized)
)

// isUniqueViolation reports whether err is a unique constraint failure
// (works with PostgreSQL, MySQL and SQLite messages)
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "duplicate") ||
		strings.Contains(errMsg, "unique constraint") ||
		strings.Contains(errMsg, "unique")
}
