package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/jainuniversity/campus-portal/internal/metrics"
	"github.com/jainuniversity/campus-portal/internal/models"
	"github.com/jainuniversity/campus-portal/internal/ratelimit"
	"github.com/jainuniversity/campus-portal/internal/service"
)

const sessionCookieName = "token"

// Pinger reports whether the credential store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	ClientURL  string
	Production bool
	SessionTTL time.Duration
}

type Server struct {
	auth     *service.AuthService
	accounts *service.AccountService
	store    Pinger
	limiter  ratelimit.Limiter
	metrics  *metrics.Metrics
	log      *zap.Logger
	opts     Options
}

// NewServer wires the HTTP surface. limiter and m may be nil.
func NewServer(auth *service.AuthService, accounts *service.AccountService, store Pinger, limiter ratelimit.Limiter, m *metrics.Metrics, log *zap.Logger, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	return &Server{
		auth:     auth,
		accounts: accounts,
		store:    store,
		limiter:  limiter,
		metrics:  m,
		log:      log.Named("http"),
		opts:     opts,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.opts.ClientURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.With(s.rateLimitMiddleware).Post("/login", s.handleLogin)
		r.With(s.authMiddleware).Get("/me", s.handleMe)
		r.With(s.authMiddleware).Post("/logout", s.handleLogout)
		r.With(s.rateLimitMiddleware, s.optionalAuth).Post("/register/{role}", s.handleRegister)
		r.With(s.rateLimitMiddleware, s.authMiddleware).Post("/change-password", s.handleChangePassword)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireRole(models.RoleAdmin))
		r.Patch("/accounts/{role}/{id}/status", s.handleSetStatus)
		r.Post("/accounts/{role}/{id}/unlock", s.handleUnlock)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "Route not found")
	})

	return r
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.opts.SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   s.opts.Production,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearSessionCookie expires the cookie with the attributes it was set with,
// otherwise browsers keep the original.
func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.opts.Production,
		SameSite: http.SameSiteStrictMode,
	})
}
