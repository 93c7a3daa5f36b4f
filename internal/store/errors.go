package store

import "fmt"

// Error is the store's typed error: an HTTP status plus a wire code, so
// internal/httpapi never re-derives a status from a string compare.
type Error struct {
	Code       string
	HTTPStatus int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newErr(code string, status int, format string, args ...any) *Error {
	return &Error{Code: code, HTTPStatus: status, Message: fmt.Sprintf(format, args...)}
}

func errInvalidTeamID(format string, args ...any) *Error {
	return newErr("INVALID_TEAM_ID", 400, format, args...)
}

func errInvalidAgentID(format string, args ...any) *Error {
	return newErr("INVALID_AGENT_ID", 400, format, args...)
}

func errInvalidTask(format string, args ...any) *Error {
	return newErr("INVALID_TASK", 400, format, args...)
}

func errInvalidThread(format string, args ...any) *Error {
	return newErr("INVALID_THREAD", 400, format, args...)
}

func errInvalidThreadMessage(format string, args ...any) *Error {
	return newErr("INVALID_THREAD_MESSAGE", 400, format, args...)
}

func errTeamNotFound(format string, args ...any) *Error {
	return newErr("TEAM_NOT_FOUND", 404, format, args...)
}

func errTaskNotFound(format string, args ...any) *Error {
	return newErr("TASK_NOT_FOUND", 404, format, args...)
}

func errThreadNotFound(format string, args ...any) *Error {
	return newErr("THREAD_NOT_FOUND", 404, format, args...)
}

func errTaskNotClaimable(format string, args ...any) *Error {
	return newErr("TASK_NOT_CLAIMABLE", 409, format, args...)
}

func errTaskNotInProgress(format string, args ...any) *Error {
	return newErr("TASK_NOT_IN_PROGRESS", 409, format, args...)
}

func errEpochMismatch(format string, args ...any) *Error {
	return newErr("EPOCH_MISMATCH", 409, format, args...)
}

func errLeaseExpired(format string, args ...any) *Error {
	return newErr("LEASE_EXPIRED", 403, format, args...)
}

func errLeaseHolderMismatch(format string, args ...any) *Error {
	return newErr("LEASE_HOLDER_MISMATCH", 403, format, args...)
}

func errInternal(format string, args ...any) *Error {
	return newErr("INTERNAL_ERROR", 500, format, args...)
}
