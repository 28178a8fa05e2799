package engine

import (
	"errors"
	"fmt"

	"exambank/internal/metadata"
	"exambank/internal/store"
)

var (
	ErrUnknownField   = errors.New("unknown field")
	ErrNoFields       = errors.New("no fields to update")
	ErrNotPersisted   = errors.New("entity has not been inserted")
	ErrNotPointer     = errors.New("entity must be a non-nil pointer to a struct")
	ErrNoReference    = errors.New("child entity does not reference parent")
	ErrNoRelation     = errors.New("entity has no relation table")
	ErrResetAborted   = errors.New("reset aborted")
	ErrNestedTx       = errors.New("transaction already in progress")
	ErrInvalidOrderBy = errors.New("invalid order column")
	ErrReferenceType  = errors.New("value does not match referenced entity")
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(entity, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", entity, id),
	}
}

func UnknownEntityError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_ENTITY",
		Status:  404,
		Message: fmt.Sprintf("Unknown entity: %s", name),
	}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

func BadRequestError(msg string) *AppError {
	return &AppError{Code: "INVALID_PAYLOAD", Status: 400, Message: msg}
}

// ToAppError converts gateway errors into their HTTP representation.
// Errors without a mapping are returned unchanged.
func ToAppError(err error) error {
	var appErr *AppError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, ErrUnknownField), errors.Is(err, ErrInvalidOrderBy), errors.Is(err, ErrNoFields):
		return &AppError{Code: "UNKNOWN_FIELD", Status: 400, Message: err.Error()}
	case errors.Is(err, ErrReferenceType):
		return &AppError{Code: "INVALID_REFERENCE", Status: 400, Message: err.Error()}
	case errors.Is(err, ErrNoReference), errors.Is(err, ErrNoRelation):
		return &AppError{Code: "INVALID_RELATION", Status: 400, Message: err.Error()}
	case errors.Is(err, metadata.ErrUnregistered):
		return &AppError{Code: "UNKNOWN_ENTITY", Status: 404, Message: err.Error()}
	case errors.Is(err, store.ErrNotFound):
		return &AppError{Code: "NOT_FOUND", Status: 404, Message: err.Error()}
	case errors.Is(err, store.ErrUniqueViolation):
		return &AppError{Code: "CONFLICT", Status: 409, Message: err.Error()}
	case errors.Is(err, ErrResetAborted):
		return &AppError{Code: "RESET_ABORTED", Status: 409, Message: "Reset requires confirmation"}
	}
	return err
}
