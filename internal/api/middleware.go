package api

import (
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jainuniversity/campus-portal/internal/models"
	"github.com/jainuniversity/campus-portal/internal/service"
	"github.com/jainuniversity/campus-portal/pkg/errors"
)

// authMiddleware resolves the session cookie into a principal. Every
// request re-reads the account, so deactivation applies immediately.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			s.rejectSession("missing_token")
			writeMessage(w, http.StatusUnauthorized, errors.MsgNoToken)
			return
		}

		principal, err := s.auth.Authenticate(r.Context(), cookie.Value)
		if err != nil {
			switch {
			case stderrors.Is(err, errors.ErrInvalidToken):
				s.rejectSession("invalid_token")
			case stderrors.Is(err, errors.ErrInternal):
				s.writeError(w, r, err)
				return
			default:
				s.rejectSession("account_unavailable")
			}
			writeMessage(w, http.StatusUnauthorized, errors.PublicMessage(err))
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithPrincipal(r.Context(), principal)))
	})
}

// requireRole admits only principals holding one of roles.
func (s *Server) requireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := service.PrincipalFromContext(r.Context())
			if !ok {
				writeMessage(w, http.StatusUnauthorized, errors.MsgNotAuthenticated)
				return
			}
			for _, role := range roles {
				if principal.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeMessage(w, http.StatusForbidden, errors.MsgForbidden)
		})
	}
}

// optionalAuth attaches a principal when a valid session cookie is present
// and otherwise lets the request through anonymously.
func (s *Server) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err == nil && cookie.Value != "" {
			if principal, err := s.auth.Authenticate(r.Context(), cookie.Value); err == nil {
				r = r.WithContext(service.WithPrincipal(r.Context(), principal))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware throttles by client address.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		if err := s.limiter.CheckLimit(r.Context(), "ip:"+clientIP(r)); err != nil {
			if stderrors.Is(err, errors.ErrRateLimitExceeded) {
				w.Header().Set("Retry-After", "60")
			}
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request with zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)

		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(started)),
			zap.String("remote_ip", clientIP(r)),
			zap.String("request_id", requestID(r)),
		)
	})
}

// recoverer turns a handler panic into the standard JSON 500 body.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.log.Error("panic serving request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestID(r)),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			writeMessage(w, http.StatusInternalServerError, errors.MsgInternal)
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rejectSession(reason string) {
	if s.metrics != nil {
		s.metrics.SessionRejected(reason)
	}
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// clientIP returns the caller's address. RealIP has already rewritten
// RemoteAddr from trusted proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
