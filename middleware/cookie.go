package middleware

import (
	"net/http"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/jwt"
)

// CookieCodec moves the session ID between requests and responses.
type CookieCodec interface {
	// Read returns the presented session ID, or "" when absent or invalid.
	Read(r *http.Request) string
	Write(w http.ResponseWriter, sessionID string)
	Expire(w http.ResponseWriter)
}

// Cookies is the default CookieCodec. With a signing key the cookie value is
// an HS256 token wrapping the session ID, so forged IDs are rejected before
// any store lookup.
type Cookies struct {
	cfg    goGuard.CookieConfig
	maxAge time.Duration
	signer *jwt.Manager
}

var _ CookieCodec = (*Cookies)(nil)

// NewCookies builds a codec from cfg. maxAge is usually the session TTL.
func NewCookies(cfg goGuard.CookieConfig, maxAge time.Duration) (*Cookies, error) {
	c := &Cookies{cfg: cfg, maxAge: maxAge}
	if cfg.SigningKey != "" {
		signer, err := jwt.NewHS256([]byte(cfg.SigningKey), maxAge)
		if err != nil {
			return nil, err
		}
		c.signer = signer
	}
	return c, nil
}

func (c *Cookies) Read(r *http.Request) string {
	cookie, err := r.Cookie(c.cfg.Name)
	if err != nil || cookie.Value == "" {
		return ""
	}
	if c.signer == nil {
		return cookie.Value
	}
	claims, err := c.signer.Parse(cookie.Value)
	if err != nil {
		return ""
	}
	return claims.SID
}

func (c *Cookies) Write(w http.ResponseWriter, sessionID string) {
	value := sessionID
	if c.signer != nil {
		signed, err := c.signer.Sign(sessionID)
		if err != nil {
			return
		}
		value = signed
	}
	http.SetCookie(w, c.cookie(value, int(c.maxAge/time.Second)))
}

func (c *Cookies) Expire(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie("", -1))
}

func (c *Cookies) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     c.cfg.Name,
		Value:    value,
		Path:     c.cfg.Path,
		Domain:   c.cfg.Domain,
		MaxAge:   maxAge,
		Secure:   c.cfg.Secure,
		HttpOnly: c.cfg.HTTPOnly,
		SameSite: c.cfg.SameSiteMode(),
	}
}
