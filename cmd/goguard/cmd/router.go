package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/MrEthical07/goGuard/oauth"
)

// stepUpWindow is how recent a password confirmation must be for
// /account/sensitive.
const stepUpWindow = 10 * time.Minute

// accounts is what the reference server needs from a backend beyond
// AuthBackend: email lookup for password login and the OAuth user handler.
type accounts[U goGuard.AuthUser[uuid.UUID]] interface {
	goGuard.AuthBackend[uuid.UUID, U]
	oauth.UserHandler[U]
}

type server[U goGuard.AuthUser[uuid.UUID]] struct {
	engine *goGuard.Engine[uuid.UUID, U]
	users  accounts[U]
	flow   *oauth.Flow[uuid.UUID, U]
	logger *zap.Logger
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type meResponse struct {
	UserID        string    `json:"user_id"`
	Role          int32     `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	TOTPEnabled   bool      `json:"totp_enabled"`
	TOTPVerified  bool      `json:"totp_verified"`
	Authenticated time.Time `json:"authenticated_at"`
	Device        string    `json:"device,omitempty"`
	IP            string    `json:"ip,omitempty"`
}

// newRouter mounts the reference API. flow may be nil when no OAuth provider
// is configured.
func newRouter[U goGuard.AuthUser[uuid.UUID]](engine *goGuard.Engine[uuid.UUID, U], users accounts[U], flow *oauth.Flow[uuid.UUID, U]) (http.Handler, error) {
	s := &server[U]{engine: engine, users: users, flow: flow, logger: engine.Logger().Named("http")}

	metrics, err := prometheus.Handler(engine)
	if err != nil {
		return nil, err
	}

	attach := middleware.Attach(engine)
	anonymous := middleware.RequireUnauthenticated(engine)
	signedIn := middleware.Guard(engine, goGuard.AuthRequirements().Authenticated().NotBanned())
	admin := middleware.Guard(engine, goGuard.AuthRequirements().
		Authenticated().
		Verified().
		NotBanned().
		TOTPVerified().
		RoleAtLeast(goGuard.RoleAdmin))
	stepUp := middleware.Guard(engine, goGuard.AuthRequirements().Authenticated().NotBanned().ReauthWithin(stepUpWindow))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Route("/auth", func(r chi.Router) {
		r.With(anonymous).Post("/login", s.login)
		r.With(attach).Post("/logout", s.logout)
		r.With(signedIn).Get("/me", s.me)
		r.With(signedIn).Post("/reauth", s.reauth)
		r.With(signedIn).Post("/totp", s.confirmTOTP)
		if flow != nil {
			r.With(anonymous).Get("/oauth/"+flow.Provider().ID(), s.oauthBegin)
			r.With(attach).Get("/oauth/"+flow.Provider().ID()+"/callback", s.oauthCallback)
		}
	})
	r.With(admin).Get("/admin/ping", s.ok)
	r.With(stepUp).Post("/account/sensitive", s.ok)
	return r, nil
}

func (s *server[U]) session(r *http.Request) *goGuard.Session[uuid.UUID, U] {
	sess, ok := middleware.SessionFromContext[uuid.UUID, U](r.Context())
	if !ok {
		panic("goguard: handler mounted without a session middleware")
	}
	return sess
}

func (s *server[U]) login(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		middleware.WriteError(w, goGuard.ErrInvalidCredentials.WithMessage("email and password are required"))
		return
	}
	ctx := r.Context()
	user, err := s.authenticate(ctx, body.Email, body.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := s.session(r).Login(ctx, user); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": user.ID().String()})
}

func (s *server[U]) authenticate(ctx context.Context, email, password string) (U, error) {
	var zero U
	user, found, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return zero, goGuard.WrapError(goGuard.CodeBackendError, err)
	}
	if !found {
		return zero, goGuard.ErrInvalidCredentials
	}
	ok, err := s.users.VerifyPassword(ctx, user.ID(), password)
	if err != nil {
		return zero, goGuard.WrapError(goGuard.CodeBackendError, err)
	}
	if !ok {
		return zero, goGuard.ErrInvalidCredentials
	}
	return user, nil
}

func (s *server[U]) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.session(r).Logout(r.Context()); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server[U]) me(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	user, err := sess.UserRequired()
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	st := sess.State()
	writeJSON(w, http.StatusOK, meResponse{
		UserID:        user.ID().String(),
		Role:          user.RoleLevel(),
		EmailVerified: user.EmailVerified(),
		TOTPEnabled:   user.TOTPEnabled(),
		TOTPVerified:  st.IsTOTPVerified(),
		Authenticated: st.AuthenticatedAt(),
		Device:        st.Device(),
		IP:            st.IPAddress(),
	})
}

func (s *server[U]) reauth(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		middleware.WriteError(w, goGuard.ErrInvalidCredentials)
		return
	}
	if err := s.session(r).Reauthenticate(r.Context(), body.Password); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server[U]) confirmTOTP(w http.ResponseWriter, r *http.Request) {
	var body codeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		middleware.WriteError(w, goGuard.ErrTOTPInvalid)
		return
	}
	if err := s.session(r).ConfirmTOTP(r.Context(), body.Code); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server[U]) oauthBegin(w http.ResponseWriter, r *http.Request) {
	authURL, err := s.flow.Begin(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *server[U]) oauthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		middleware.WriteError(w, goGuard.ErrOAuth.WithMessage("provider denied the request: "+e))
		return
	}
	user, res, err := s.flow.Complete(r.Context(), s.session(r), q.Get("code"), q.Get("state"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"user_id":    user.ID().String(),
		"resolution": res.String(),
	})
}

func (s *server[U]) ok(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server[U]) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
