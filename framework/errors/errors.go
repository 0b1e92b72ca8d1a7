// Package errors holds the structured error taxonomy reported by the
// resolution runtime.
//
// Every failure is an *Error carrying a Code. errors.Is matches by code, so
// callers compare against the exported sentinels:
//
//	if errors.Is(err, rerrors.ErrNotRegistered) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Error codes.
const (
	CodeNotRegistered        = "NOT_REGISTERED"
	CodeScopeViolation       = "SCOPE_VIOLATION"
	CodeCircularDependency   = "CIRCULAR_DEPENDENCY"
	CodeRegistrationFailed   = "REGISTRATION_FAILED"
	CodeDisposedContainer    = "DISPOSED_CONTAINER"
	CodeConstructionFailed   = "CONSTRUCTION_FAILED"
	CodeNotificationFailed   = "NOTIFICATION_FAILED"
	CodeTypeMismatch         = "TYPE_MISMATCH"
	CodeInvalidConfiguration = "INVALID_CONFIGURATION"
)

// Sentinels for errors.Is.
var (
	ErrNotRegistered        = &Error{Code: CodeNotRegistered}
	ErrScopeViolation       = &Error{Code: CodeScopeViolation}
	ErrCircularDependency   = &Error{Code: CodeCircularDependency}
	ErrRegistrationFailed   = &Error{Code: CodeRegistrationFailed}
	ErrDisposedContainer    = &Error{Code: CodeDisposedContainer}
	ErrConstructionFailed   = &Error{Code: CodeConstructionFailed}
	ErrNotificationFailed   = &Error{Code: CodeNotificationFailed}
	ErrTypeMismatch         = &Error{Code: CodeTypeMismatch}
	ErrInvalidConfiguration = &Error{Code: CodeInvalidConfiguration}
)

// Error is a structured runtime error.
type Error struct {
	Code    string
	Message string
	// Key is the rendered composite key the operation acted on, if any.
	Key     string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.ToLower(strings.ReplaceAll(e.Code, "_", " "))
	}
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches by code, allowing comparison against the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

// WithContext attaches a diagnostic value.
func (e *Error) WithContext(k string, v any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[k] = v
	return e
}

// NotRegistered reports that no visible entry matched key.
func NotRegistered(key string) *Error {
	return &Error{Code: CodeNotRegistered, Message: "no registration for", Key: key}
}

// ScopeViolation reports that entries matched key but none is visible from the
// requesting container.
func ScopeViolation(key, requester string) *Error {
	return (&Error{
		Code:    CodeScopeViolation,
		Message: "registration not visible from container " + requester + " for",
		Key:     key,
	}).WithContext("requester", requester)
}

// CircularDependency reports a resolve call re-entering a registration it is
// still constructing. path lists the keys from the outermost request inward.
func CircularDependency(path []string) *Error {
	return (&Error{
		Code:    CodeCircularDependency,
		Message: "circular dependency: " + strings.Join(path, " -> "),
	}).WithContext("path", path)
}

// RegistrationFailed reports a rejected batch. problems are aggregated.
func RegistrationFailed(problems ...error) *Error {
	return &Error{
		Code:    CodeRegistrationFailed,
		Message: "registration batch rejected",
		Cause:   multierr.Combine(problems...),
	}
}

// DisposedContainer reports an operation on a disposed container.
func DisposedContainer(container, op string) *Error {
	return (&Error{
		Code:    CodeDisposedContainer,
		Message: fmt.Sprintf("%s on disposed container %s", op, container),
	}).WithContext("operation", op)
}

// ConstructionFailed wraps a factory failure with the requested key.
func ConstructionFailed(key string, cause error) *Error {
	return &Error{Code: CodeConstructionFailed, Message: "cannot construct", Key: key, Cause: cause}
}

// NotificationFailed wraps listener failures. The operation that triggered the
// notification completed normally.
func NotificationFailed(cause error) *Error {
	return &Error{Code: CodeNotificationFailed, Message: "event listener failed", Cause: cause}
}

// TypeMismatch reports a resolved instance that is not of the requested Go type.
func TypeMismatch(key string, want string, got any) *Error {
	return &Error{
		Code:    CodeTypeMismatch,
		Message: fmt.Sprintf("instance of %T is not %s for", got, want),
		Key:     key,
	}
}

// InvalidConfiguration reports an unusable configuration value.
func InvalidConfiguration(field string, cause error) *Error {
	return (&Error{
		Code:    CodeInvalidConfiguration,
		Message: "invalid configuration " + field,
		Cause:   cause,
	}).WithContext("field", field)
}

// IsRecoverable reports whether a TryResolve may turn err into a plain miss.
// Circular dependencies and disposed containers are programming errors and
// are never recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrCircularDependency) || errors.Is(err, ErrDisposedContainer) {
		return false
	}
	return errors.Is(err, ErrNotRegistered) ||
		errors.Is(err, ErrScopeViolation) ||
		errors.Is(err, ErrConstructionFailed)
}

// IsNotification reports whether err only carries listener failures.
func IsNotification(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeNotificationFailed
}
