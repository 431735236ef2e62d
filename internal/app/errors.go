package app

import (
	"fmt"
	"net/http"
)

// Error codes returned in the "code" field of every error response.
const (
	codeInvalidBody      = "INVALID_BODY"
	codeValidation       = "VALIDATION_ERROR"
	codeNotFound         = "NOT_FOUND"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	codeSaveInProgress   = "SAVE_IN_PROGRESS"
	codeSaveFailed       = "SAVE_FAILED"
	codeOrderMismatch    = "ORDER_MISMATCH"
	codeEditorClosed     = "EDITOR_CLOSED"
	codeUnsavedChanges   = "UNSAVED_CHANGES"
	codeMediaUnavailable = "MEDIA_UNAVAILABLE"
	codeServerError      = "SERVER_ERROR"
)

// DomainError is an error the service has already classified. Details, when
// set, is sent back as the response's "details", for example the editor
// state after a failed save.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, codeValidation, message, nil)
}
