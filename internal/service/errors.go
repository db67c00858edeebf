package service

import "fmt"

// Code is the machine-readable failure kind handed to transport layers.
type Code string

const (
	CodeEmailExists             Code = "EMAIL_EXISTS"
	CodeInvalidCredentials      Code = "INVALID_CREDENTIALS"
	CodeAccountDeactivated      Code = "ACCOUNT_DEACTIVATED"
	CodeMissingToken            Code = "MISSING_TOKEN"
	CodeInvalidRefreshToken     Code = "INVALID_REFRESH_TOKEN"
	CodeUserNotFound            Code = "USER_NOT_FOUND"
	CodeInvalidExternalAudience Code = "INVALID_EXTERNAL_AUDIENCE"
	CodeUnverifiedExternalEmail Code = "UNVERIFIED_EXTERNAL_EMAIL"
	CodeInvalidOrExpiredToken   Code = "INVALID_OR_EXPIRED_TOKEN"
	CodeWeakPassword            Code = "WEAK_PASSWORD"
	CodeInvalidInput            Code = "INVALID_INPUT"
	CodeStoreUnavailable        Code = "STORE_UNAVAILABLE"
)

// Error is the typed outcome of a failed operation.  Two errors are equal
// under errors.Is when their codes match, so callers compare against the
// sentinels below regardless of message or cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrEmailExists             = &Error{Code: CodeEmailExists, Message: "email already registered"}
	ErrInvalidCredentials      = &Error{Code: CodeInvalidCredentials, Message: "invalid email or password"}
	ErrAccountDeactivated      = &Error{Code: CodeAccountDeactivated, Message: "account is deactivated"}
	ErrMissingToken            = &Error{Code: CodeMissingToken, Message: "token is required"}
	ErrInvalidRefreshToken     = &Error{Code: CodeInvalidRefreshToken, Message: "invalid refresh token"}
	ErrUserNotFound            = &Error{Code: CodeUserNotFound, Message: "user not found"}
	ErrInvalidExternalAudience = &Error{Code: CodeInvalidExternalAudience, Message: "external identity could not be verified"}
	ErrUnverifiedExternalEmail = &Error{Code: CodeUnverifiedExternalEmail, Message: "email is not verified by the identity provider"}
	ErrInvalidOrExpiredToken   = &Error{Code: CodeInvalidOrExpiredToken, Message: "invalid or expired token"}
	ErrWeakPassword            = &Error{Code: CodeWeakPassword, Message: "password must be 8 to 72 bytes long"}
	ErrInvalidInput            = &Error{Code: CodeInvalidInput, Message: "invalid input"}
	ErrStoreUnavailable        = &Error{Code: CodeStoreUnavailable, Message: "internal error"}
)

// storeUnavailable wraps an infrastructure failure.  The cause stays
// reachable through errors.Unwrap for logging; Message never mentions it.
func storeUnavailable(cause error) error {
	return &Error{Code: CodeStoreUnavailable, Message: ErrStoreUnavailable.Message, cause: cause}
}

func invalidInput(msg string) error {
	return &Error{Code: CodeInvalidInput, Message: msg}
}
