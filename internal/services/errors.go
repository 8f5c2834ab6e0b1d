package services

import (
	"errors"
)

type ErrorCode string

const (
	ErrorInvalid         ErrorCode = "invalid"
	ErrorForbidden       ErrorCode = "forbidden"
	ErrorNotFound        ErrorCode = "not_found"
	ErrorConflict        ErrorCode = "conflict"
	ErrorUnauthorized    ErrorCode = "unauthorized"
	ErrorTooManyRequests ErrorCode = "too_many_requests"
)

// Reason narrows a ServiceError to a domain-specific cause. Clients receive it as "code".
type Reason string

const (
	ReasonAuthorization        Reason = "authorization"
	ReasonNotFound             Reason = "not_found"
	ReasonUserNotFound         Reason = "user_not_found"
	ReasonSelfInvitation       Reason = "self_invitation"
	ReasonDuplicateInvitation  Reason = "duplicate_invitation"
	ReasonDuplicateSubmission  Reason = "duplicate_submission"
	ReasonIncompleteSubmission Reason = "incomplete_submission"
	ReasonInvalid              Reason = "invalid"
	ReasonConflict             Reason = "conflict"
	ReasonUnauthorized         Reason = "unauthorized"
	ReasonInternal             Reason = "internal"
	ReasonEmailTaken           Reason = "email_taken"
	ReasonBadCredentials       Reason = "bad_credentials"
)

type ServiceError struct {
	Code       ErrorCode
	Reason     Reason
	Message    string
	QuestionID string
}

func (e *ServiceError) Error() string { return e.Message }

// Is matches on Reason so callers can compare against the Err* sentinels.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Reason != "" && t.Reason == e.Reason
}

var (
	ErrAuthorization        = &ServiceError{Code: ErrorForbidden, Reason: ReasonAuthorization, Message: "not authorized"}
	ErrNotFound             = &ServiceError{Code: ErrorNotFound, Reason: ReasonNotFound, Message: "not found"}
	ErrUserNotFound         = &ServiceError{Code: ErrorNotFound, Reason: ReasonUserNotFound, Message: "user not found"}
	ErrSelfInvitation       = &ServiceError{Code: ErrorInvalid, Reason: ReasonSelfInvitation, Message: "cannot invite yourself"}
	ErrDuplicateInvitation  = &ServiceError{Code: ErrorConflict, Reason: ReasonDuplicateInvitation, Message: "user already invited to this survey"}
	ErrDuplicateSubmission  = &ServiceError{Code: ErrorConflict, Reason: ReasonDuplicateSubmission, Message: "invitation already completed"}
	ErrIncompleteSubmission = &ServiceError{Code: ErrorInvalid, Reason: ReasonIncompleteSubmission, Message: "all questions must be answered"}

	// errInviteFailed marks a single batch entry that hit a store failure.
	errInviteFailed = &ServiceError{Reason: ReasonInternal, Message: "could not process invitation"}
)

func NewInvalidError(msg string) error {
	return &ServiceError{Code: ErrorInvalid, Reason: ReasonInvalid, Message: msg}
}

func NewForbiddenError(msg string) error {
	return &ServiceError{Code: ErrorForbidden, Reason: ReasonAuthorization, Message: msg}
}

func NewNotFoundError(msg string) error {
	return &ServiceError{Code: ErrorNotFound, Reason: ReasonNotFound, Message: msg}
}

func NewConflictError(msg string) error {
	return &ServiceError{Code: ErrorConflict, Reason: ReasonConflict, Message: msg}
}

func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Reason: ReasonUnauthorized, Message: msg}
}

func NewTooManyRequestsError(msg string) error {
	return &ServiceError{Code: ErrorTooManyRequests, Message: msg}
}

func newIncompleteError(questionID string) error {
	return &ServiceError{
		Code:       ErrorInvalid,
		Reason:     ReasonIncompleteSubmission,
		Message:    "question " + questionID + " is not answered",
		QuestionID: questionID,
	}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
