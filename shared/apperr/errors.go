package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that only care about the category,
// such as the HTTP layer choosing a status code.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindQuotaExceeded      Kind = "quota_exceeded"
	KindPreconditionFailed Kind = "precondition_failed"
	KindAccessDenied       Kind = "access_denied"
	KindInvalid            Kind = "invalid"
	KindUnavailable        Kind = "unavailable"
)

// Error is a classified domain error. Two errors with the same Code match
// under errors.Is, so sentinels survive WithMessage and Wrap copies.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// New creates a classified error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Wrap returns a copy of e with err attached as the cause.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

var (
	ErrTenantNotFound       = New(KindNotFound, "tenant_not_found", "gym not found")
	ErrStudentNotFound      = New(KindNotFound, "student_not_found", "student not found")
	ErrPlanNotFound         = New(KindNotFound, "plan_not_found", "membership plan not found or inactive")
	ErrSubscriptionNotFound = New(KindNotFound, "subscription_plan_not_found", "subscription plan not found")

	ErrDuplicateDNI     = New(KindConflict, "duplicate_dni", "a student with this DNI already exists")
	ErrDuplicateCheckIn = New(KindConflict, "duplicate_checkin", "student already checked in today")
	ErrDuplicateName    = New(KindConflict, "duplicate_name", "a plan with this name already exists")
	ErrPlanInUse        = New(KindConflict, "plan_in_use", "plan has assigned students")

	ErrQuotaExceeded = New(KindQuotaExceeded, "quota_exceeded", "student limit reached for the gym's subscription plan")

	ErrMembershipInactive = New(KindPreconditionFailed, "membership_inactive", "membership is not active")
	ErrMethodNotAllowed   = New(KindPreconditionFailed, "method_not_allowed", "check-in method not enabled for this gym")
	ErrTenantInactive     = New(KindPreconditionFailed, "tenant_inactive", "gym is not active")

	ErrTenantMismatch = New(KindAccessDenied, "tenant_mismatch", "student belongs to another gym")

	ErrInvalidInput = New(KindInvalid, "invalid_input", "invalid input")
	ErrUnavailable  = New(KindUnavailable, "store_unavailable", "storage temporarily unavailable")
)

// Invalid builds a validation error with a specific message.
func Invalid(format string, args ...interface{}) error {
	return ErrInvalidInput.WithMessage(format, args...)
}

// Unavailable wraps an infrastructure failure. Errors that are already
// classified pass through untouched.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return ErrUnavailable.Wrap(err)
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsRetryable reports whether err is a transient storage failure.
func IsRetryable(err error) bool {
	return KindOf(err) == KindUnavailable
}
