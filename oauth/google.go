package oauth

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"
)

const (
	GoogleProviderID  = "google"
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// GoogleConfig fills in Google's endpoints and the openid/email/profile
// scopes.
func GoogleConfig(clientID, clientSecret, redirectURI string) ProviderConfig {
	return ProviderConfig{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		AuthURL:      googleAuthURL,
		TokenURL:     googleTokenURL,
		UserInfoURL:  googleUserInfoURL,
		Scopes:       []string{"openid", "email", "profile"},
	}
}

// NewGoogle returns a provider for Google sign-in. cfg is usually
// GoogleConfig; tests point its URLs at a fake server.
func NewGoogle(cfg ProviderConfig, opts ...ProviderOption) *OAuth2Provider {
	return NewOAuth2Provider(GoogleProviderID, cfg, DecodeGoogleUserInfo, opts...)
}

// GoogleFromEnv reads GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and
// GOOGLE_REDIRECT_URI.
func GoogleFromEnv(opts ...ProviderOption) (*OAuth2Provider, error) {
	vals := map[string]string{}
	for _, key := range []string{"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_REDIRECT_URI"} {
		v := os.Getenv(key)
		if v == "" {
			return nil, fmt.Errorf("oauth: %s not set", key)
		}
		vals[key] = v
	}
	cfg := GoogleConfig(vals["GOOGLE_CLIENT_ID"], vals["GOOGLE_CLIENT_SECRET"], vals["GOOGLE_REDIRECT_URI"])
	return NewGoogle(cfg, opts...), nil
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// DecodeGoogleUserInfo parses the v2 userinfo response.
func DecodeGoogleUserInfo(body []byte) (UserInfo, error) {
	var g googleUserInfo
	if err := json.Unmarshal(body, &g); err != nil {
		return UserInfo{}, err
	}
	return UserInfo{
		ProviderUserID: g.ID,
		Email:          g.Email,
		Name:           g.Name,
		AvatarURL:      g.Picture,
		EmailVerified:  g.VerifiedEmail,
	}, nil
}
