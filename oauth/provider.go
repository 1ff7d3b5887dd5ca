package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	goGuard "github.com/MrEthical07/goGuard"
)

const maxUserInfoBytes = 1 << 20

// ProviderConfig holds the endpoints and credentials of one provider.
type ProviderConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURI  string   `mapstructure:"redirect_uri"`
	AuthURL      string   `mapstructure:"auth_url"`
	TokenURL     string   `mapstructure:"token_url"`
	UserInfoURL  string   `mapstructure:"user_info_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// UserInfo is the provider's identity normalized across providers. Empty
// strings mean the provider did not return the field.
type UserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
	EmailVerified  bool
}

// Provider is one external identity provider. Every failure is an
// OAuthError.
type Provider interface {
	ID() string
	// AuthorizationURL generates a CSRF token, stores it for ttl and returns
	// the redirect URL carrying it as the state parameter.
	AuthorizationURL(ctx context.Context, csrf CSRFStorage, ttl time.Duration) (authURL, token string, err error)
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchUserInfo(ctx context.Context, token *oauth2.Token) (UserInfo, error)
}

// UserInfoDecoder turns a user-info response body into UserInfo.
type UserInfoDecoder func(body []byte) (UserInfo, error)

// ProviderOption configures an OAuth2Provider.
type ProviderOption func(*OAuth2Provider)

// WithHTTPClient sets the client used for token and user-info calls.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *OAuth2Provider) { p.client = c }
}

// OAuth2Provider implements Provider for any authorization-code provider
// with a JSON user-info endpoint.
type OAuth2Provider struct {
	id          string
	conf        *oauth2.Config
	userInfoURL string
	decode      UserInfoDecoder
	client      *http.Client
}

var _ Provider = (*OAuth2Provider)(nil)

func NewOAuth2Provider(id string, cfg ProviderConfig, decode UserInfoDecoder, opts ...ProviderOption) *OAuth2Provider {
	p := &OAuth2Provider{
		id: id,
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       append([]string(nil), cfg.Scopes...),
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		decode:      decode,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OAuth2Provider) ID() string { return p.id }

func (p *OAuth2Provider) AuthorizationURL(ctx context.Context, csrf CSRFStorage, ttl time.Duration) (string, string, error) {
	token, err := NewCSRFToken()
	if err != nil {
		return "", "", goGuard.WrapError(goGuard.CodeInternalError, err)
	}
	if err := csrf.Store(ctx, token, ttl); err != nil {
		return "", "", goGuard.WrapError(goGuard.CodeOAuthError, err).WithMessage("Failed to store OAuth state")
	}
	return p.conf.AuthCodeURL(token), token, nil
}

func (p *OAuth2Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := p.conf.Exchange(p.clientContext(ctx), code)
	if err != nil {
		return nil, goGuard.WrapError(goGuard.CodeOAuthError, err).
			WithMessage("Failed to exchange authorization code").
			With("provider", p.id)
	}
	return tok, nil
}

func (p *OAuth2Provider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (UserInfo, error) {
	fail := func(msg string, cause error) *goGuard.Error {
		e := goGuard.ErrOAuth.WithMessage(msg).With("provider", p.id)
		if cause != nil {
			e = e.WithCause(cause)
		}
		return e
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return UserInfo{}, fail("Failed to build user info request", err)
	}
	resp, err := p.conf.Client(p.clientContext(ctx), token).Do(req)
	if err != nil {
		return UserInfo{}, fail("Failed to fetch user info", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return UserInfo{}, fail("Failed to read user info", err)
	}
	if resp.StatusCode != http.StatusOK {
		return UserInfo{}, fail("Failed to fetch user info", fmt.Errorf("user info status %d", resp.StatusCode)).
			With("status", resp.StatusCode)
	}
	info, err := p.decode(body)
	if err != nil {
		return UserInfo{}, fail("Failed to parse user info", err)
	}
	if info.ProviderUserID == "" {
		return UserInfo{}, fail("Provider returned no user ID", nil)
	}
	return info, nil
}

func (p *OAuth2Provider) clientContext(ctx context.Context) context.Context {
	if p.client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}
