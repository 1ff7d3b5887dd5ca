package goGuard

import (
	"errors"
	"maps"

	json "github.com/goccy/go-json"
)

// ErrorCode identifies one kind of authentication or authorization failure.
// The set is closed; embedders switch on it to build transport responses.
type ErrorCode uint8

const (
	CodeUnauthenticated ErrorCode = iota + 1
	CodeAlreadyAuthenticated
	CodeInvalidCredentials
	CodeSessionExpired
	CodeSessionError
	CodeVerificationRequired
	CodeAlreadyVerified
	CodeTOTPRequired
	CodeTOTPInvalid
	CodeReauthRequired
	CodeBanned
	CodeInsufficientRole
	CodePermissionDenied
	CodeOAuthError
	CodeCSRFInvalid
	CodeBackendError
	CodeInternalError
)

// Family groups error codes by what went wrong.
type Family uint8

const (
	// FamilyAuthentication covers who the caller is.
	FamilyAuthentication Family = iota + 1
	// FamilyAuthorization covers what the caller may do.
	FamilyAuthorization
	// FamilyInfrastructure covers collaborator and protocol failures.
	FamilyInfrastructure
)

func (f Family) String() string {
	switch f {
	case FamilyAuthentication:
		return "authentication"
	case FamilyAuthorization:
		return "authorization"
	case FamilyInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

type codeInfo struct {
	wire    string
	message string
	family  Family
}

var codeTable = map[ErrorCode]codeInfo{
	CodeUnauthenticated:      {"AUTH_UNAUTHENTICATED", "Authentication required", FamilyAuthentication},
	CodeAlreadyAuthenticated: {"AUTH_ALREADY_AUTHENTICATED", "Already authenticated", FamilyAuthentication},
	CodeInvalidCredentials:   {"AUTH_INVALID_CREDENTIALS", "Invalid credentials", FamilyAuthentication},
	CodeSessionExpired:       {"AUTH_SESSION_EXPIRED", "Session expired", FamilyAuthentication},
	CodeSessionError:         {"AUTH_SESSION_ERROR", "Session error", FamilyAuthentication},
	CodeVerificationRequired: {"AUTH_VERIFICATION_REQUIRED", "Email verification required", FamilyAuthorization},
	CodeAlreadyVerified:      {"AUTH_ALREADY_VERIFIED", "Already verified", FamilyAuthorization},
	CodeTOTPRequired:         {"AUTH_TOTP_REQUIRED", "Two-factor authentication required", FamilyAuthorization},
	CodeTOTPInvalid:          {"AUTH_TOTP_INVALID", "Invalid two-factor code", FamilyAuthorization},
	CodeReauthRequired:       {"AUTH_REAUTH_REQUIRED", "Password confirmation required", FamilyAuthorization},
	CodeBanned:               {"AUTH_BANNED", "Account banned", FamilyAuthorization},
	CodeInsufficientRole:     {"AUTH_INSUFFICIENT_ROLE", "Insufficient permissions", FamilyAuthorization},
	CodePermissionDenied:     {"AUTH_PERMISSION_DENIED", "Permission denied", FamilyAuthorization},
	CodeOAuthError:           {"AUTH_OAUTH_ERROR", "OAuth provider error", FamilyInfrastructure},
	CodeCSRFInvalid:          {"AUTH_CSRF_INVALID", "Invalid CSRF token", FamilyInfrastructure},
	CodeBackendError:         {"AUTH_BACKEND_ERROR", "Backend error", FamilyInfrastructure},
	CodeInternalError:        {"AUTH_INTERNAL_ERROR", "Internal error", FamilyInfrastructure},
}

// Codes lists every error code in declaration order.
func Codes() []ErrorCode {
	out := make([]ErrorCode, 0, len(codeTable))
	for c := CodeUnauthenticated; c <= CodeInternalError; c++ {
		out = append(out, c)
	}
	return out
}

// String returns the stable wire identifier, e.g. "AUTH_BANNED".
func (c ErrorCode) String() string {
	if info, ok := codeTable[c]; ok {
		return info.wire
	}
	return "AUTH_UNKNOWN"
}

// Family returns the family the code belongs to.
func (c ErrorCode) Family() Family {
	return codeTable[c].family
}

// DefaultMessage returns a client-safe message for the code.
func (c ErrorCode) DefaultMessage() string {
	if info, ok := codeTable[c]; ok {
		return info.message
	}
	return "Unknown error"
}

// Error is the single error type returned by engine operations.
//
// Context holds structured diagnostics safe to show clients (required vs
// actual role, failing condition). The wrapped cause is for logs only and is
// never serialized.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	cause   error
}

// NewError creates an error with the code's default message.
func NewError(code ErrorCode) *Error {
	return &Error{Code: code, Message: code.DefaultMessage()}
}

// WrapError creates an error with the code's default message and cause.
func WrapError(code ErrorCode, cause error) *Error {
	return &Error{Code: code, Message: code.DefaultMessage(), cause: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Code.String() + ": " + e.Message
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the collaborator error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches any *Error with the same code, so errors.Is(err, ErrBanned)
// holds for every banned error regardless of message or context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy with a replaced message.
func (e *Error) WithMessage(msg string) *Error {
	c := e.clone()
	c.Message = msg
	return c
}

// With returns a copy carrying an extra context entry.
func (e *Error) With(key string, value any) *Error {
	c := e.clone()
	if c.Context == nil {
		c.Context = make(map[string]any, 2)
	}
	c.Context[key] = value
	return c
}

// WithCause returns a copy wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	c := e.clone()
	c.cause = cause
	return c
}

func (e *Error) clone() *Error {
	c := *e
	if e.Context != nil {
		c.Context = maps.Clone(e.Context)
	}
	return &c
}

type errorWire struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// MarshalJSON renders {"code","message","context"}; the cause is omitted.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(errorWire{Code: e.Code.String(), Message: e.Message, Context: e.Context})
}

// Sentinels, one per code. Compare with errors.Is; never mutate them.
var (
	ErrUnauthenticated      = NewError(CodeUnauthenticated)
	ErrAlreadyAuthenticated = NewError(CodeAlreadyAuthenticated)
	ErrInvalidCredentials   = NewError(CodeInvalidCredentials)
	ErrSessionExpired       = NewError(CodeSessionExpired)
	ErrSession              = NewError(CodeSessionError)
	ErrVerificationRequired = NewError(CodeVerificationRequired)
	ErrAlreadyVerified      = NewError(CodeAlreadyVerified)
	ErrTOTPRequired         = NewError(CodeTOTPRequired)
	ErrTOTPInvalid          = NewError(CodeTOTPInvalid)
	ErrReauthRequired       = NewError(CodeReauthRequired)
	ErrBanned               = NewError(CodeBanned)
	ErrInsufficientRole     = NewError(CodeInsufficientRole)
	ErrPermissionDenied     = NewError(CodePermissionDenied)
	ErrOAuth                = NewError(CodeOAuthError)
	ErrCSRFInvalid          = NewError(CodeCSRFInvalid)
	ErrBackend              = NewError(CodeBackendError)
	ErrInternal             = NewError(CodeInternalError)
)

// CodeOf extracts the code of err. Errors that are not *Error report
// CodeInternalError; nil reports false.
func CodeOf(err error) (ErrorCode, bool) {
	if err == nil {
		return 0, false
	}
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Code, true
	}
	return CodeInternalError, true
}

// AsError converts err into an *Error, wrapping foreign errors as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e
	}
	return WrapError(CodeInternalError, err)
}

// wrapBackend converts a collaborator failure into CodeBackendError, leaving
// engine errors untouched.
func wrapBackend(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return WrapError(CodeBackendError, err)
}
