package domain

import (
	"errors"
	"fmt"
)

type ErrCode string

const (
	CodeValidation    ErrCode = "validation_error"
	CodeNotFound      ErrCode = "not_found"
	CodeForbidden     ErrCode = "forbidden"
	CodeStateConflict ErrCode = "state_conflict"
	CodePersistence   ErrCode = "persistence_error"
)

type AppError struct {
	Code    ErrCode
	Message string
	Meta    map[string]string

	// Retryable marks conflicts caused by a lost race (lock timeout,
	// serialization failure). The ledger re-reads and re-evaluates these.
	Retryable bool

	Err error
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if len(e.Meta) > 0 {
		msg = fmt.Sprintf("%s (%v)", msg, e.Meta)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Err }

func ErrValidation(msg string) error { return &AppError{Code: CodeValidation, Message: msg} }
func ErrValidationMeta(msg string, meta map[string]string) error {
	return &AppError{Code: CodeValidation, Message: msg, Meta: meta}
}
func ErrNotFound(msg string) error      { return &AppError{Code: CodeNotFound, Message: msg} }
func ErrForbidden(msg string) error     { return &AppError{Code: CodeForbidden, Message: msg} }
func ErrStateConflict(msg string) error { return &AppError{Code: CodeStateConflict, Message: msg} }

// ErrConcurrentUpdate is a state conflict the caller may retry after re-reading.
func ErrConcurrentUpdate(msg string, cause error) error {
	return &AppError{Code: CodeStateConflict, Message: msg, Retryable: true, Err: cause}
}

func ErrPersistence(op string, cause error) error {
	return &AppError{Code: CodePersistence, Message: op, Err: cause}
}

// CodeOf returns the taxonomy code of err, or "" for untyped errors.
func CodeOf(err error) ErrCode {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func IsCode(err error, code ErrCode) bool { return CodeOf(err) == code }

func IsRetryable(err error) bool {
	var ae *AppError
	return errors.As(err, &ae) && ae.Retryable
}

// PromotionError reports a waitlist run that stopped part-way. Promotions
// before the failure are committed and stay committed.
type PromotionError struct {
	GameID   string
	Promoted int
	Err      error
}

func (e *PromotionError) Error() string {
	return fmt.Sprintf("waitlist %s: %d promoted, then failed: %v", e.GameID, e.Promoted, e.Err)
}

func (e *PromotionError) Unwrap() error { return e.Err }
