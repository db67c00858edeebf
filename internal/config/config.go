package config // package config loads application configuration from environment variables

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// SigningKey is one HMAC secret identified by the `kid` header it signs under.
type SigningKey struct {
	ID     string
	Secret string
}

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env    string // application environment (e.g. "dev", "prod")
	Port   string // HTTP port to listen on
	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	SigningKey     SigningKey   // current key; signs every new token
	PreviousKeys   []SigningKey // retired keys still accepted during a rotation grace window
	AccessTTLMin   int          // access token time‑to‑live in minutes
	RefreshTTLDays int          // refresh token time‑to‑live in days
	ResetTTLMin    int          // password-reset token time-to-live in minutes
	BcryptCost     int          // bcrypt cost for password hashing

	ExternalIssuer    string // OIDC issuer of the identity provider
	ExternalClientID  string // expected audience; empty disables the audience check
	OAuthClientSecret string // authorization-code flow secret (optional)
	OAuthRedirectURL  string // authorization-code flow callback (optional)

	ResetTokenInResponse bool   // development only: echo the reset token back to the caller
	ResetURLBase         string // link embedded in reset emails

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	MailFrom string

	RabbitURL     string        // AMQP broker; empty disables event publishing
	SweepInterval time.Duration // expired refresh-token sweep period of the worker

	LogLevel  string
	LogFormat string
}

// AccessTTL returns the access token lifetime.
func (c Config) AccessTTL() time.Duration { return time.Duration(c.AccessTTLMin) * time.Minute }

// RefreshTTL returns the refresh token lifetime.
func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}

// ResetTTL returns the password-reset token lifetime.
func (c Config) ResetTTL() time.Duration { return time.Duration(c.ResetTTLMin) * time.Minute }

// Load reads an optional .env file and then builds a Config from the
// environment.  Missing required variables cause the program to exit with a
// fatal log message.
func Load() Config {
	_ = godotenv.Load() // a missing .env is fine; the real environment wins
	cfg, err := FromEnv()
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

// FromEnv is Load without the .env preload and without exiting, so it can be
// exercised by tests.
func FromEnv() (Config, error) {
	var missing []string
	must := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		Env:    envStr("APP_ENV", "dev"),
		Port:   envStr("APP_PORT", "8080"),
		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: envStr("DB_PORT", "3306"),
		DBName: must("DB_NAME"),

		SigningKey: SigningKey{
			ID:     envStr("JWT_KEY_ID", "k1"),
			Secret: must("JWT_SECRET"),
		},
		AccessTTLMin:   envInt("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays: envInt("REFRESH_TOKEN_TTL_DAYS", 7),
		ResetTTLMin:    envInt("RESET_TOKEN_TTL_MIN", 15),
		BcryptCost:     envInt("BCRYPT_COST", 12),

		ExternalIssuer:    envStr("EXTERNAL_ISSUER", "https://accounts.google.com"),
		ExternalClientID:  os.Getenv("EXTERNAL_CLIENT_ID"),
		OAuthClientSecret: os.Getenv("OAUTH_CLIENT_SECRET"),
		OAuthRedirectURL:  os.Getenv("OAUTH_REDIRECT_URL"),

		ResetTokenInResponse: envBool("RESET_TOKEN_IN_RESPONSE", false),
		ResetURLBase:         envStr("RESET_URL_BASE", "http://localhost:8080/reset-password"),

		SMTPHost: os.Getenv("SMTP_HOST"),
		SMTPPort: envInt("SMTP_PORT", 587),
		SMTPUser: os.Getenv("SMTP_USER"),
		SMTPPass: os.Getenv("SMTP_PASS"),
		MailFrom: envStr("MAIL_FROM", "no-reply@localhost"),

		RabbitURL:     os.Getenv("RABBITMQ_URL"),
		SweepInterval: envDur("SWEEP_INTERVAL", time.Hour),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "text"),
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env var: %s", strings.Join(missing, ", "))
	}

	prev, err := parseKeys(os.Getenv("JWT_PREVIOUS_KEYS"))
	if err != nil {
		return Config{}, err
	}
	for _, k := range prev {
		if k.ID == cfg.SigningKey.ID {
			return Config{}, fmt.Errorf("JWT_PREVIOUS_KEYS reuses current kid %q", k.ID)
		}
	}
	cfg.PreviousKeys = prev

	if cfg.AccessTTLMin < 1 || cfg.RefreshTTLDays < 1 || cfg.ResetTTLMin < 1 {
		return Config{}, fmt.Errorf("token TTLs must be positive")
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", cfg.SweepInterval)
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return Config{}, fmt.Errorf("invalid BCRYPT_COST: %d", cfg.BcryptCost)
	}
	return cfg, nil
}

// parseKeys reads "kid:secret,kid2:secret2".
func parseKeys(s string) ([]SigningKey, error) {
	var out []SigningKey
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kid, secret, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(kid) == "" || secret == "" {
			return nil, fmt.Errorf("invalid JWT_PREVIOUS_KEYS entry %q", part)
		}
		out = append(out, SigningKey{ID: strings.TrimSpace(kid), Secret: secret})
	}
	return out, nil
}

// DSN builds the MySQL connection string.
// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
func (c Config) DSN() string {
	auth := c.DBUser
	if c.DBPass != "" {
		auth = fmt.Sprintf("%s:%s", c.DBUser, c.DBPass)
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, c.DBHost, c.DBPort, c.DBName)
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
