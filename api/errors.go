// errors.go - Fehler-Taxonomie fuer tensorbatch Operationen
//
// Dieses Modul enthaelt:
// - ErrorCode: Verhaltenskategorien der Batching-Fehler
// - Error: Fehler mit Code und Nachricht
// - Konstruktoren je Kategorie (InvalidArgumentf, Internalf, ...)
// - Code: Extrahiert den ErrorCode aus einer Fehlerkette
// - HTTPStatus: Abbildung von ErrorCode auf HTTP-Status
package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode kategorisiert einen Operationsfehler
type ErrorCode string

const (
	CodeOK                 ErrorCode = ""
	CodeInvalidArgument    ErrorCode = "invalid_argument"
	CodeFailedPrecondition ErrorCode = "failed_precondition"
	CodeInternal           ErrorCode = "internal"
	CodeAlreadyExists      ErrorCode = "already_exists"
	CodeDeadlineExceeded   ErrorCode = "deadline_exceeded"
	CodeUnavailable        ErrorCode = "unavailable"
)

// Error ist ein Operationsfehler mit Verhaltenskategorie
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"error"`
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code ErrorCode, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func InvalidArgumentf(format string, args ...any) error {
	return newError(CodeInvalidArgument, format, args...)
}

func FailedPreconditionf(format string, args ...any) error {
	return newError(CodeFailedPrecondition, format, args...)
}

func Internalf(format string, args ...any) error {
	return newError(CodeInternal, format, args...)
}

func AlreadyExistsf(format string, args ...any) error {
	return newError(CodeAlreadyExists, format, args...)
}

func DeadlineExceededf(format string, args ...any) error {
	return newError(CodeDeadlineExceeded, format, args...)
}

func Unavailablef(format string, args ...any) error {
	return newError(CodeUnavailable, format, args...)
}

// Code gibt den ErrorCode eines Fehlers zurueck.
// Fehler ohne Kategorie werden als internal gewertet, nil als OK.
func Code(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}

	return CodeInternal
}

// HTTPStatus bildet einen ErrorCode auf einen HTTP-Status ab
func HTTPStatus(code ErrorCode) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidArgument, CodeFailedPrecondition:
		return http.StatusBadRequest
	case CodeAlreadyExists:
		return http.StatusConflict
	case CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
