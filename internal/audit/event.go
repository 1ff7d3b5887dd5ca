package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the engine.
const (
	TypeLogin           = "login"
	TypeLogout          = "logout"
	TypeLoginHookFailed = "login_hook_failed"
	TypeLogoutHookFail  = "logout_hook_failed"
	TypeSessionDangling = "session_dangling"
	TypeSessionExpired  = "session_expired"
	TypeAccessDenied    = "access_denied"
	TypeReauth          = "reauth"
	TypeTOTPConfirm     = "totp_confirm"
	TypeOAuthLogin      = "oauth_login"
)

// Event is one security-relevant record. UserID is rendered with fmt so the
// dispatcher stays independent of the embedder's identifier type.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Type      string            `json:"type"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Code      string            `json:"code,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewEvent stamps an event with a random ID and the given time.
func NewEvent(eventType string, now time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: now.UTC(),
		Type:      eventType,
	}
}
