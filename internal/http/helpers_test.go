package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"endurely/internal/auth"
	"endurely/internal/config"
	"endurely/internal/exporter"
	"endurely/internal/importer"
	"endurely/internal/metrics"
	"endurely/internal/programs"
	"endurely/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testSessionSecret = []byte("0123456789abcdef0123456789abcdef")

type stubMetrics struct {
	logins        int
	loginFailures map[string]int
	tokenFailures map[string]int
	events        map[string]int
	revocations   int
	requests      int
}

func newStubMetrics() *stubMetrics {
	return &stubMetrics{
		loginFailures: map[string]int{},
		tokenFailures: map[string]int{},
		events:        map[string]int{},
	}
}

func (m *stubMetrics) RecordRequest(method, route string, status int, duration time.Duration) {
	m.requests++
}

func (m *stubMetrics) RecordLogin() { m.logins++ }

func (m *stubMetrics) RecordLoginFailure(stage string) { m.loginFailures[stage]++ }

func (m *stubMetrics) RecordTokenValidationFailure(reason string) { m.tokenFailures[reason]++ }

func (m *stubMetrics) RecordSecurityEvent(kind string) { m.events[kind]++ }

func (m *stubMetrics) RecordSessionRevocation() { m.revocations++ }

type stubProvider struct {
	authURLFn  func(state, nonce, codeVerifier string) string
	exchangeFn func(ctx context.Context, code, codeVerifier string) (string, error)
	verifyFn   func(ctx context.Context, rawIDToken, expectedNonce string) (*auth.Claims, error)
}

func (p *stubProvider) AuthCodeURL(state, nonce, codeVerifier string) string {
	if p.authURLFn != nil {
		return p.authURLFn(state, nonce, codeVerifier)
	}
	return "https://login.example/authorize?state=" + url.QueryEscape(state)
}

func (p *stubProvider) Exchange(ctx context.Context, code, codeVerifier string) (string, error) {
	if p.exchangeFn != nil {
		return p.exchangeFn(ctx, code, codeVerifier)
	}
	return "raw-id-token", nil
}

func (p *stubProvider) VerifyIDToken(ctx context.Context, rawIDToken, expectedNonce string) (*auth.Claims, error) {
	if p.verifyFn != nil {
		return p.verifyFn(ctx, rawIDToken, expectedNonce)
	}
	return &auth.Claims{
		ObjectID: "subject-1",
		Email:    "athlete@example.com",
		Name:     "Test Athlete",
	}, nil
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return parsed
}

func testUser() *auth.User {
	now := time.Now().UTC()
	return &auth.User{
		ID:          uuid.New(),
		Email:       auth.DefaultUserEmail,
		DisplayName: auth.DefaultUserName,
		IsActive:    true,
		CreatedAt:   now,
		LastLoginAt: now,
	}
}

// newAPIServer builds the full router in auth-disabled mode backed by the
// in-memory stores.
func newAPIServer(t *testing.T) (http.Handler, *auth.User, *programs.Service) {
	t.Helper()

	user := testUser()
	svc := programs.NewService(programs.NewInMemoryRepository())
	reg := prometheus.NewRegistry()

	cfg := config.Config{
		Environment:    "development",
		AllowedOrigins: []string{"http://localhost:4200"},
	}
	router := NewRouter(cfg, Deps{
		Logger:      testLogger(),
		Metrics:     metrics.NewCollector(reg),
		Gatherer:    reg,
		DefaultUser: user,
		Programs:    svc,
		Exporter:    exporter.NewCSVExporter(),
		Importer:    importer.NewCSVImporter(svc),
	})
	return router, user, svc
}

// newScopedRouter mounts the resource handlers behind a fixed user, so
// cross-user behavior can be exercised against a shared service.
func newScopedRouter(user *auth.User, svc *programs.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(newStaticUserMiddleware(user))

	programHandler := NewProgramHandler(svc, testLogger())
	historyHandler := NewHistoryHandler(svc, exporter.NewCSVExporter(), importer.NewCSVImporter(svc), testLogger())

	r.Post("/api/workouts/generate", programHandler.Generate)
	r.Get("/api/workouts", programHandler.List)
	r.Get("/api/workouts/{id}", programHandler.Get)
	r.Delete("/api/workouts/{id}", programHandler.Delete)
	r.Post("/api/history/log", historyHandler.Log)
	r.Get("/api/history", historyHandler.List)
	return r
}

func newTestSessions() *session.Manager {
	return session.NewManager(testSessionSecret, time.Hour, session.NewMemoryRevocationStore())
}
