// Package apperr is the error taxonomy shared by the auth, policy and
// Action Hub layers. Handlers map a Kind to an HTTP status in one place.
package apperr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lalith-99/disruptionhub/internal/models"
)

type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindInvalidInput
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication_failure"
	case KindAuthorization:
		return "authorization_failure"
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindDependency:
		return "dependency_failure"
	}
	return "internal"
}

// Authorization failure reasons exposed to clients.
const (
	ReasonNotOwner         = "not_owner"
	ReasonRoleInsufficient = "role_insufficient"
	ReasonPremiumRequired  = "premium_required"
)

// Sentinels for errors.Is checks against a Kind.
var (
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrInvalidInput   = &Error{Kind: KindInvalidInput}
	ErrDependency     = &Error{Kind: KindDependency}
)

type Error struct {
	Kind    Kind
	Message string

	// Authorization context. Meant for logs, not for recovery.
	Reason   string
	Required []models.Role
	Actual   models.Role

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " (reason=%s", e.Reason)
		if len(e.Required) > 0 {
			fmt.Fprintf(&b, " required=%v actual=%s", e.Required, e.Actual)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Authentication(cause error) error {
	return &Error{Kind: KindAuthentication, Message: "invalid or expired token", Err: cause}
}

func NotFound(what string) error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func InvalidInput(format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func Dependency(what string, cause error) error {
	return &Error{Kind: KindDependency, Message: what, Err: cause}
}

func Forbidden(reason string, required []models.Role, actual models.Role) error {
	return &Error{
		Kind:     KindAuthorization,
		Message:  "forbidden",
		Reason:   reason,
		Required: required,
		Actual:   actual,
	}
}

// KindOf reports the Kind of err, or KindInternal if it is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
