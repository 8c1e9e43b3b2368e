package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    "BAD_REQUEST",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Forbidden(message string, err error) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// RoomNotFound is returned for lookups of rooms that do not exist or were
// already torn down.
func RoomNotFound(roomID string, err error) *AppError {
	return &AppError{
		Code:    "ROOM_NOT_FOUND",
		Message: fmt.Sprintf("room %s not found", roomID),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

// InvalidParticipants signals a room creation attempt with fewer than two
// distinct participants. Usage error, never retried.
func InvalidParticipants(message string) *AppError {
	return &AppError{
		Code:    "INVALID_PARTICIPANTS",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     nil,
	}
}

// NotAParticipant rejects an operation by a user outside the room's
// participant set. Usage error, never retried.
func NotAParticipant(userID, roomID string) *AppError {
	return &AppError{
		Code:    "NOT_A_PARTICIPANT",
		Message: fmt.Sprintf("user %s is not a participant of room %s", userID, roomID),
		Status:  http.StatusForbidden,
		Err:     nil,
	}
}

// ConcurrentCreate is surfaced by the store when two first-sends race on the
// same participant pair. The directory resolves it internally; it never
// reaches the end caller.
func ConcurrentCreate(pairKey string, err error) *AppError {
	return &AppError{
		Code:    "CONCURRENT_CREATE",
		Message: fmt.Sprintf("concurrent room creation for pair %s", pairKey),
		Status:  http.StatusConflict,
		Err:     err,
	}
}

// StoreUnavailable wraps transient persistence failures. Read paths retry
// once; write paths surface it to the caller.
func StoreUnavailable(err error) *AppError {
	return &AppError{
		Code:    "STORE_UNAVAILABLE",
		Message: "persistence layer temporarily unavailable",
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

// AttachmentCleanup reports a failed blob deletion during room teardown.
// Non-fatal: logged and skipped, never blocks the teardown itself.
func AttachmentCleanup(ref string, err error) *AppError {
	return &AppError{
		Code:    "ATTACHMENT_CLEANUP",
		Message: fmt.Sprintf("failed to release attachment %s", ref),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
