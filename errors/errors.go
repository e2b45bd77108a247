package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
	Op      string `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// E builds an AppError with an explicit status code.
func E(op string, err error, message string, code int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
	}
}

func InvalidInput(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusBadRequest)
}

func NotFound(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusNotFound)
}

func Conflict(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusConflict)
}

// Unavailable marks failures of an upstream collaborator (scraper, LLM,
// renderer, CV service).
func Unavailable(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusBadGateway)
}

func Internal(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusInternalServerError)
}

func IsNotFound(err error) bool {
	return Code(err) == http.StatusNotFound
}

func IsInvalidInput(err error) bool {
	return Code(err) == http.StatusBadRequest
}

// Code returns the HTTP status carried by err, or 500 when err is not an
// AppError.
func Code(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// Message returns the user-facing message for err. Errors that are not
// AppErrors are reported generically.
func Message(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return "Internal server error"
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
