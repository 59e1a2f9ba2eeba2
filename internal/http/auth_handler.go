package http

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"endurely/internal/auth"
	"endurely/internal/session"
)

const (
	sessionCookieName = "endurely_session"
	stateCookieName   = "endurely_auth_state"
)

// isValidRedirectPath validates that a path is a safe relative redirect.
// It prevents open redirect attacks by ensuring the path:
// - Starts with a single "/" (not "//")
// - Has no scheme or host component
// - Cannot be bypassed via URL encoding
func isValidRedirectPath(path string) bool {
	if path == "" {
		return false
	}

	// Decode to catch encoded bypass attempts like /%2f%2f
	decoded, err := url.QueryUnescape(path)
	if err != nil {
		return false
	}

	// Must start with / but not //
	if !strings.HasPrefix(decoded, "/") || strings.HasPrefix(decoded, "//") {
		return false
	}

	parsed, err := url.Parse(decoded)
	if err != nil {
		return false
	}

	// Reject if it has a scheme or host (would be an absolute URL)
	if parsed.Scheme != "" || parsed.Host != "" {
		return false
	}

	return true
}

// AuthHandler drives the provider login round trip and the session cookie
// lifecycle. It is only mounted when authentication is enabled.
type AuthHandler struct {
	service      *auth.Service
	sessions     *session.Manager
	metrics      MetricsRecorder
	logger       *slog.Logger
	secureCookie bool
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(service *auth.Service, sessions *session.Manager, metrics MetricsRecorder, env string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:      service,
		sessions:     sessions,
		metrics:      metrics,
		logger:       logger,
		secureCookie: !strings.EqualFold(env, "development"),
	}
}

// Login handles GET /auth/login. It creates a login attempt, binds the
// browser to it with a short-lived state cookie, and redirects to the
// provider's authorization endpoint.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	redirectTo := r.URL.Query().Get("redirect_to")
	if redirectTo != "" && !isValidRedirectPath(redirectTo) {
		redirectTo = ""
	}

	attempt, err := h.service.BeginLogin(r.Context(), redirectTo)
	if err != nil {
		h.logger.Error("begin login", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to start login")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    attempt.State,
		Path:     "/auth",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(auth.DefaultStateTTL.Seconds()),
	})

	http.Redirect(w, r, attempt.URL, http.StatusFound)
}

// Callback handles GET /auth/callback. It checks the state cookie against
// the query in constant time, consumes the single-use login state, redeems
// the code, and issues the session cookie. No session cookie is ever set on
// a failed attempt.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	stateParam := r.URL.Query().Get("state")
	if stateParam == "" {
		h.metrics.RecordLoginFailure("state")
		writeError(w, http.StatusBadRequest, "invalid_request", "missing state")
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.metrics.RecordLoginFailure("state")
		h.logger.Warn("callback without state cookie")
		writeError(w, http.StatusBadRequest, "invalid_request", "login attempt not found or expired")
		return
	}

	if subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(stateParam)) != 1 {
		h.metrics.RecordLoginFailure("state")
		h.metrics.RecordSecurityEvent("state_mismatch")
		h.logger.Warn("callback state mismatch", "security_event", "state_mismatch")
		h.clearStateCookie(w)
		writeError(w, http.StatusBadRequest, "invalid_request", "state mismatch")
		return
	}

	// The browser is bound to this attempt; the cookie has done its job.
	h.clearStateCookie(w)

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.metrics.RecordLoginFailure("provider")
		h.logger.Warn("provider returned error", "error", errParam)
		writeError(w, http.StatusUnauthorized, errParam, r.URL.Query().Get("error_description"))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.metrics.RecordLoginFailure("state")
		writeError(w, http.StatusBadRequest, "invalid_request", "missing authorization code")
		return
	}

	user, redirectTo, err := h.service.CompleteLogin(r.Context(), stateParam, code)
	if err != nil {
		h.failCallback(w, err)
		return
	}

	credential, err := h.sessions.Issue(user.ID)
	if err != nil {
		h.metrics.RecordLoginFailure("session")
		h.logger.Error("issue session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to establish session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    credential,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.sessions.TTL().Seconds()),
	})

	h.metrics.RecordLogin()
	h.logger.Info("login complete", "user_id", user.ID, "email", user.Email)

	target := "/"
	if redirectTo != "" && isValidRedirectPath(redirectTo) {
		target = redirectTo
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// failCallback maps a CompleteLogin error to a response. Replayed or expired
// state is the client's mistake; everything downstream of a consumed state
// is an authentication failure or an infrastructure problem.
func (h *AuthHandler) failCallback(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrStateNotFound):
		h.metrics.RecordLoginFailure("state")
		h.logger.Warn("callback with unknown state")
		writeError(w, http.StatusBadRequest, "invalid_request", "login attempt not found or expired")
	case errors.Is(err, auth.ErrNonceMismatch):
		h.metrics.RecordLoginFailure("verify")
		h.metrics.RecordSecurityEvent("nonce_mismatch")
		h.logger.Warn("callback nonce mismatch", "security_event", "nonce_mismatch")
		writeError(w, http.StatusBadRequest, "invalid_request", "token does not belong to this login attempt")
	case errors.Is(err, auth.ErrNetwork):
		h.metrics.RecordLoginFailure("exchange")
		h.logger.Error("identity provider unreachable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "identity provider is unreachable, try again")
	case errors.Is(err, auth.ErrInvalidGrant), errors.Is(err, auth.ErrInvalidResponse):
		h.metrics.RecordLoginFailure("exchange")
		h.logger.Warn("code exchange failed", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid_grant", "authorization code could not be redeemed")
	case errors.Is(err, auth.ErrBadSignature),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrWrongAudience),
		errors.Is(err, auth.ErrWrongIssuer),
		errors.Is(err, auth.ErrMalformedToken):
		h.metrics.RecordLoginFailure("verify")
		h.logger.Warn("id token rejected", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid_token", "identity token could not be validated")
	default:
		h.metrics.RecordLoginFailure("provision")
		h.logger.Error("complete login", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to complete login")
	}
}

// Logout handles POST /auth/logout. It revokes the presented session, if
// any, clears the cookie and sends the browser home. Repeating it is
// harmless.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.Revoke(r.Context(), cookie.Value); err != nil {
			h.logger.Warn("revoke session", "error", err)
		} else {
			h.metrics.RecordSessionRevocation()
		}
	}

	clearCookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	}
	http.SetCookie(w, clearCookie)

	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *AuthHandler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/auth",
		HttpOnly: true,
		Secure:   h.secureCookie,
		MaxAge:   -1,
	})
}

// currentUserHandler serves GET /api/auth/user for whichever middleware
// resolved the user, session-backed or fixed.
func currentUserHandler(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		denyUnauthenticated(w, r, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
