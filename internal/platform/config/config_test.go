package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("OCR_ROTATIONS", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []int{0, 90, 180, 270}, cfg.Verification.Rotations)
	assert.Equal(t, uint(1600), cfg.Verification.TargetHeight)
	assert.Equal(t, "spa", cfg.Verification.Language)
	assert.Equal(t, 11, cfg.Verification.PageSegMode)
	assert.Equal(t, 10, cfg.Verification.RateLimit)
	assert.Equal(t, 15*time.Minute, cfg.Verification.RateWindow)
	assert.Equal(t, []string{"openid", "email", "profile"}, cfg.Auth.Scopes)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("OCR_ROTATIONS", "0, 180")
	t.Setenv("VERIFICATION_TTL", "5m")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("OIDC_DOMAIN", "https://auth.example.com/")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 180}, cfg.Verification.Rotations)
	assert.Equal(t, 5*time.Minute, cfg.Verification.SessionTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "https://auth.example.com", cfg.Auth.Domain)
}

func TestFromEnvReportsEveryMalformedValue(t *testing.T) {
	t.Setenv("MAX_UPLOAD_BYTES", "lots")
	t.Setenv("SESSION_TTL", "forever")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_UPLOAD_BYTES")
	assert.Contains(t, err.Error(), "SESSION_TTL")
}

func TestValidateProductionListsMissingVariables(t *testing.T) {
	cfg := Config{
		Env:          EnvProduction,
		Auth:         AuthConfig{Domain: "https://auth.example.com", SessionSigningKey: devSigningKey},
		Verification: VerificationConfig{Rotations: []int{0}},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t,
		"missing essential configuration variables: DATABASE_URL, MAIL_FROM, OIDC_CLIENT_ID, OIDC_CLIENT_SECRET, OIDC_REDIRECT_URL, REDIS_URL, SESSION_SIGNING_KEY",
		err.Error())
}

func TestValidateRejectsTooManyRotations(t *testing.T) {
	cfg := Config{Verification: VerificationConfig{Rotations: []int{0, 90, 180, 270, 45}}}
	assert.Error(t, cfg.Validate())
}
