package middleware

import (
	"net/http"

	json "github.com/goccy/go-json"

	goGuard "github.com/MrEthical07/goGuard"
)

// StatusCode maps an error code to its HTTP status.
func StatusCode(code goGuard.ErrorCode) int {
	switch code {
	case goGuard.CodeUnauthenticated,
		goGuard.CodeInvalidCredentials,
		goGuard.CodeSessionExpired,
		goGuard.CodeTOTPInvalid,
		goGuard.CodeCSRFInvalid:
		return http.StatusUnauthorized
	case goGuard.CodeAlreadyAuthenticated,
		goGuard.CodeAlreadyVerified:
		return http.StatusConflict
	case goGuard.CodeVerificationRequired,
		goGuard.CodeTOTPRequired,
		goGuard.CodeReauthRequired,
		goGuard.CodeBanned,
		goGuard.CodeInsufficientRole,
		goGuard.CodePermissionDenied:
		return http.StatusForbidden
	case goGuard.CodeOAuthError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON envelope written for failures:
// {"error":{"code":...,"message":...,"context":{...}}}.
type ErrorBody struct {
	Error *goGuard.Error `json:"error"`
}

// NewErrorBody converts err into the response envelope and its status.
func NewErrorBody(err error) (int, ErrorBody) {
	ae := goGuard.AsError(err)
	if ae == nil {
		ae = goGuard.ErrInternal
	}
	return StatusCode(ae.Code), ErrorBody{Error: ae}
}

// WriteError writes err as a JSON error response.
func WriteError(w http.ResponseWriter, err error) {
	status, body := NewErrorBody(err)
	data, mErr := json.Marshal(body)
	if mErr != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
