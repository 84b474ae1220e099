package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	strs "evoto/pkg/platform/strings"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	devSigningKey = "dev-secret-key-change-in-production"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	Env      string
	LogLevel string

	Server       Server
	Auth         AuthConfig
	Redis        RedisConfig
	Postgres     PostgresConfig
	Kafka        KafkaConfig
	Verification VerificationConfig
	Storage      StorageConfig
	Mail         MailConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	PublicURL       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	// AdminToken guards operational endpoints such as /metrics. Empty leaves them open.
	AdminToken string
}

// AuthConfig describes the hosted identity provider and the app session cookie.
type AuthConfig struct {
	Domain            string // e.g. https://auth.example.com
	ClientID          string
	ClientSecret      string
	RedirectURL       string
	Scopes            []string
	SessionSigningKey string
	SessionTTL        time.Duration
	CookieSecure      bool
	PostLoginURL      string
}

// RedisConfig holds connection settings for the verification session cache.
// An empty URL selects the in-memory cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig holds the ballot ledger connection. An empty DSN selects the
// in-memory ledger, which is refused in production.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// KafkaConfig configures the confirmation-mail outbox. No brokers means mails are only logged.
type KafkaConfig struct {
	Brokers   []string
	MailTopic string
}

// VerificationConfig tunes the document pipeline.
type VerificationConfig struct {
	TargetHeight  uint
	Rotations     []int
	TesseractPath string
	Language      string
	PageSegMode   int
	Timeout       time.Duration
	SessionTTL    time.Duration
	WorkDir       string
	// RateLimit caps verification requests per subject within RateWindow. Zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// StorageConfig points at the document image store.
type StorageConfig struct {
	UploadDir string
}

// MailConfig is the sender identity of confirmation mails.
type MailConfig struct {
	From    string
	Subject string
}

// FromEnv builds a Config from environment variables so main stays lean.
// Malformed values are errors; missing ones fall back to development defaults.
func FromEnv() (Config, error) {
	p := &parser{}
	cfg := Config{
		Env:      getenv("APP_ENV", EnvDevelopment),
		LogLevel: getenv("LOG_LEVEL", "info"),
		Server: Server{
			Addr:            getenv("EVOTO_ADDR", ":8080"),
			PublicURL:       getenv("APP_URL", "http://localhost:8080"),
			ReadTimeout:     p.duration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    p.duration("HTTP_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: p.duration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			MaxUploadBytes:  int64(p.int("MAX_UPLOAD_BYTES", 16<<20)),
			AdminToken:      os.Getenv("ADMIN_TOKEN"),
		},
		Auth: AuthConfig{
			Domain:            strings.TrimRight(os.Getenv("OIDC_DOMAIN"), "/"),
			ClientID:          os.Getenv("OIDC_CLIENT_ID"),
			ClientSecret:      os.Getenv("OIDC_CLIENT_SECRET"),
			RedirectURL:       os.Getenv("OIDC_REDIRECT_URL"),
			Scopes:            splitList(getenv("OIDC_SCOPES", "openid,email,profile")),
			SessionSigningKey: getenv("SESSION_SIGNING_KEY", devSigningKey),
			SessionTTL:        p.duration("SESSION_TTL", 2*time.Hour),
			CookieSecure:      p.bool("COOKIE_SECURE", false),
			PostLoginURL:      os.Getenv("POST_LOGIN_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    p.int("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    p.int("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:   splitList(os.Getenv("KAFKA_BROKERS")),
			MailTopic: getenv("MAIL_TOPIC", "evoto.mail.outbound"),
		},
		Verification: VerificationConfig{
			TargetHeight:  uint(p.int("OCR_TARGET_HEIGHT", 1600)),
			Rotations:     p.ints("OCR_ROTATIONS", []int{0, 90, 180, 270}),
			TesseractPath: getenv("TESSERACT_PATH", "tesseract"),
			Language:      getenv("OCR_LANGUAGE", "spa"),
			PageSegMode:   p.int("OCR_PSM", 11),
			Timeout:       p.duration("VERIFY_TIMEOUT", 60*time.Second),
			SessionTTL:    p.duration("VERIFICATION_TTL", 30*time.Minute),
			WorkDir:       getenv("OCR_WORK_DIR", os.TempDir()),
			RateLimit:     p.int("VERIFY_RATE_LIMIT", 10),
			RateWindow:    p.duration("VERIFY_RATE_WINDOW", 15*time.Minute),
		},
		Storage: StorageConfig{
			UploadDir: getenv("UPLOAD_DIR", "data/uploads"),
		},
		Mail: MailConfig{
			From:    os.Getenv("MAIL_FROM"),
			Subject: getenv("MAIL_SUBJECT", "Tu participación fue registrada"),
		},
	}
	if err := p.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsProduction reports whether APP_ENV selects production.
func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Validate refuses to start production without its critical settings and
// names every missing one.
func (c Config) Validate() error {
	if len(c.Verification.Rotations) == 0 || len(c.Verification.Rotations) > 4 {
		return fmt.Errorf("OCR_ROTATIONS must list between 1 and 4 angles, got %d", len(c.Verification.Rotations))
	}
	if !c.IsProduction() {
		return nil
	}

	critical := map[string]string{
		"OIDC_DOMAIN":        c.Auth.Domain,
		"OIDC_CLIENT_ID":     c.Auth.ClientID,
		"OIDC_CLIENT_SECRET": c.Auth.ClientSecret,
		"OIDC_REDIRECT_URL":  c.Auth.RedirectURL,
		"DATABASE_URL":       c.Postgres.DSN,
		"REDIS_URL":          c.Redis.URL,
		"MAIL_FROM":          c.Mail.From,
	}
	if c.Auth.SessionSigningKey == devSigningKey {
		critical["SESSION_SIGNING_KEY"] = ""
	}
	var missing []string
	for name, value := range critical {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing essential configuration variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	return strs.DedupeAndTrim(strs.SplitTrim(raw))
}

// parser collects every malformed variable instead of stopping at the first.
type parser struct {
	errs []error
}

func (p *parser) err() error {
	return errors.Join(p.errs...)
}

func (p *parser) int(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) ints(key string, fallback []int) []int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var out []int
	for _, part := range splitList(raw) {
		v, err := strconv.Atoi(part)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
			return fallback
		}
		out = append(out, v)
	}
	return out
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) bool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}
