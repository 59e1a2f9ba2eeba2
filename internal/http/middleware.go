package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"endurely/internal/auth"
	"endurely/internal/session"
)

// MetricsRecorder is the slice of the metrics collector the HTTP layer
// records to.
type MetricsRecorder interface {
	RecordRequest(method, route string, status int, duration time.Duration)
	RecordLogin()
	RecordLoginFailure(stage string)
	RecordTokenValidationFailure(reason string)
	RecordSecurityEvent(kind string)
	RecordSessionRevocation()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func newRequestLogger(logger *slog.Logger, metrics MetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = r.URL.Path
			}
			metrics.RecordRequest(r.Method, route, recorder.status, duration)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"duration", duration.String(),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

func newSecurityHeadersMiddleware(environment string) func(http.Handler) http.Handler {
	isDev := strings.EqualFold(environment, "development")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")

			if !isDev {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const userContextKey contextKey = "user"

// UserFromContext extracts the authenticated user from the request context.
// Returns nil if the auth middleware hasn't populated the context.
func UserFromContext(ctx context.Context) *auth.User {
	user, _ := ctx.Value(userContextKey).(*auth.User)
	return user
}

type sessionValidator interface {
	Validate(ctx context.Context, credential string) (uuid.UUID, error)
}

type userSource interface {
	FindUser(ctx context.Context, id uuid.UUID) (*auth.User, error)
}

// newSessionAuthMiddleware resolves the session cookie to an active user, or
// denies the request. Validation is local: signature, claims and a
// revocation lookup, never a provider round trip.
func newSessionAuthMiddleware(sessions sessionValidator, users userSource, metrics MetricsRecorder, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				denyUnauthenticated(w, r, "authentication required")
				return
			}

			userID, err := sessions.Validate(r.Context(), cookie.Value)
			if err != nil {
				switch {
				case errors.Is(err, session.ErrExpired):
					metrics.RecordTokenValidationFailure("expired")
					denyUnauthenticated(w, r, "session expired")
				case errors.Is(err, session.ErrRevoked):
					metrics.RecordTokenValidationFailure("revoked")
					denyUnauthenticated(w, r, "session revoked")
				case errors.Is(err, session.ErrInvalid):
					metrics.RecordTokenValidationFailure("invalid")
					denyUnauthenticated(w, r, "session invalid")
				default:
					logger.Error("session validation", "error", err)
					writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
				}
				return
			}

			user, err := users.FindUser(r.Context(), userID)
			if err != nil {
				logger.Error("load session user", "error", err)
				writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
				return
			}
			if user == nil {
				denyUnauthenticated(w, r, "session user no longer exists")
				return
			}
			if !user.IsActive {
				metrics.RecordSecurityEvent("inactive_account")
				logger.Warn("inactive account denied",
					"security_event", "inactive_account",
					"user_id", user.ID)
				writeError(w, http.StatusForbidden, "account_inactive", "this account has been deactivated")
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// newStaticUserMiddleware resolves every request to the one fixed user.
// Cookies are ignored entirely; used when authentication is disabled.
func newStaticUserMiddleware(user *auth.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// denyUnauthenticated answers API routes with 401 JSON and browser routes
// with a redirect to the login entry point.
func denyUnauthenticated(w http.ResponseWriter, r *http.Request, description string) {
	if strings.HasPrefix(r.URL.Path, "/api") {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "unauthorized", description)
		return
	}
	http.Redirect(w, r, "/auth/login", http.StatusFound)
}
