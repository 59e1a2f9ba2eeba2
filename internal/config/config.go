package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ConfigurationError indicates the process cannot start with the supplied
// environment. main treats it as fatal before any listener opens.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

func configErr(format string, args ...any) error {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// Config aggregates runtime configuration for the Endurely API.
type Config struct {
	Environment    string `validate:"required,oneof=development staging production"`
	HTTPPort       int    `validate:"required,gte=1,lte=65535"`
	LogLevel       string
	AllowedOrigins []string
	DataStore      string `validate:"required,oneof=memory postgres"`
	DatabaseURL    string
	RedisURL       string

	// Authentication. When EnableAuth is false every request resolves to the
	// fixed development user and none of the Entra fields are consulted.
	EnableAuth        bool
	EntraTenantID     string `validate:"required_if=EnableAuth true"`
	EntraClientID     string `validate:"required_if=EnableAuth true"`
	EntraClientSecret string `validate:"required_if=EnableAuth true"`
	EntraCIAMDomain   string
	RedirectURI       string `validate:"required_if=EnableAuth true,omitempty,url"`
	SessionSecret     string `validate:"required_if=EnableAuth true"`
	SessionTTL        time.Duration
}

const (
	defaultSessionTTL    = 7 * 24 * time.Hour
	minSessionSecretSize = 32
)

// Load reads configuration from environment variables with sensible defaults
// for local development. Every validation failure is a ConfigurationError;
// the process must not begin serving with a partially valid configuration.
func Load() (Config, error) {
	databaseURL, err := getEnvOrFile("DATABASE_URL", "/run/secrets/endurely_database_url")
	if err != nil {
		return Config{}, err
	}

	clientSecret, err := getEnvOrFile("ENTRA_CLIENT_SECRET", "/run/secrets/endurely_entra_client_secret")
	if err != nil {
		return Config{}, err
	}

	sessionSecret, err := getEnvOrFile("SESSION_SECRET_KEY", "/run/secrets/endurely_session_secret")
	if err != nil {
		return Config{}, err
	}

	enableAuth, err := getEnvBool("ENABLE_AUTH", false)
	if err != nil {
		return Config{}, err
	}

	sessionTTL, err := getEnvDuration("SESSION_TTL", defaultSessionTTL)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment:       getEnv("APP_ENV", "development"),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		AllowedOrigins:    parseCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:4200,http://localhost:8000")),
		DataStore:         strings.ToLower(getEnv("DATA_STORE", "memory")),
		DatabaseURL:       databaseURL,
		RedisURL:          strings.TrimSpace(getEnv("REDIS_URL", "")),
		EnableAuth:        enableAuth,
		EntraTenantID:     strings.TrimSpace(getEnv("ENTRA_TENANT_ID", "")),
		EntraClientID:     strings.TrimSpace(getEnv("ENTRA_CLIENT_ID", "")),
		EntraClientSecret: strings.TrimSpace(clientSecret),
		EntraCIAMDomain:   strings.TrimSpace(getEnv("ENTRA_CIAM_DOMAIN", "")),
		RedirectURI:       strings.TrimSpace(getEnv("ENTRA_REDIRECT_URI", "http://localhost:8000/auth/callback")),
		SessionSecret:     strings.TrimSpace(sessionSecret),
		SessionTTL:        sessionTTL,
	}

	portValue := getEnv("PORT", getEnv("HTTP_PORT", "8000"))
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return Config{}, configErr("invalid port %q: %v", portValue, err)
	}
	cfg.HTTPPort = port

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// validate applies the declarative rules plus the cross-field checks the
// struct tags cannot express.
func (c Config) validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			switch fe.Tag() {
			case "required":
				return configErr("%s is required", envNameFor(fe.Field()))
			case "required_if":
				return configErr("%s is required when ENABLE_AUTH is true", envNameFor(fe.Field()))
			case "oneof":
				return configErr("%s must be one of [%s]", envNameFor(fe.Field()), fe.Param())
			default:
				return configErr("%s is invalid", envNameFor(fe.Field()))
			}
		}
		return configErr("%v", err)
	}

	if c.DataStore == "postgres" && c.DatabaseURL == "" {
		return configErr("DATA_STORE is postgres but DATABASE_URL is not set")
	}

	if c.EnableAuth {
		if len(c.SessionSecret) < minSessionSecretSize {
			return configErr("SESSION_SECRET_KEY must be at least %d bytes", minSessionSecretSize)
		}
		if c.SessionTTL <= 0 {
			return configErr("SESSION_TTL must be positive")
		}
	}

	return nil
}

// envNameFor maps a Config field name back to the environment variable the
// operator needs to fix.
func envNameFor(field string) string {
	switch field {
	case "Environment":
		return "APP_ENV"
	case "HTTPPort":
		return "PORT"
	case "DataStore":
		return "DATA_STORE"
	case "EntraTenantID":
		return "ENTRA_TENANT_ID"
	case "EntraClientID":
		return "ENTRA_CLIENT_ID"
	case "EntraClientSecret":
		return "ENTRA_CLIENT_SECRET"
	case "RedirectURI":
		return "ENTRA_REDIRECT_URI"
	case "SessionSecret":
		return "SESSION_SECRET_KEY"
	default:
		return field
	}
}

// HTTPAddress returns the address the HTTP server should bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// UseInMemoryStore returns true if the in-memory repositories should be used.
func (c Config) UseInMemoryStore() bool {
	return c.DataStore == "memory"
}

// Issuer returns the OIDC issuer URL for the configured tenant. Customer
// tenants (CIAM) live under ciamlogin.com; workforce tenants under
// login.microsoftonline.com.
func (c Config) Issuer() string {
	if c.EntraCIAMDomain != "" {
		return fmt.Sprintf("https://%s.ciamlogin.com/%s/v2.0", c.EntraCIAMDomain, c.EntraTenantID)
	}
	return fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", c.EntraTenantID)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, configErr("invalid %s %q: expected true or false", key, value)
	}
	return parsed, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, configErr("invalid %s %q: %v", key, value, err)
	}
	return parsed, nil
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrFile(key, defaultPath string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		return readSecret(path, fileKey)
	}

	if defaultPath != "" {
		return readSecret(defaultPath, key)
	}

	return "", nil
}

func readSecret(path, name string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", configErr("reading %s (%s): %v", name, path, err)
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", configErr("%s (%s) is empty", name, path)
	}
	return value, nil
}
