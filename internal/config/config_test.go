package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE", "memory")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 3*time.Second, cfg.LedgerTimeout)
	assert.Equal(t, "*/10 * * * *", cfg.CompletionSchedule)
	assert.Equal(t, "UTC", cfg.ClinicLocation.String())
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
}

func TestLoadRequiresDSNForPostgres(t *testing.T) {
	t.Setenv("STORAGE", "postgres")
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("JWT_SECRET", "s3cret")

	_, err := Load()
	assert.ErrorContains(t, err, "POSTGRES_DSN")
}

func TestLoadRejectsUnknownStorage(t *testing.T) {
	t.Setenv("STORAGE", "firestore")
	t.Setenv("JWT_SECRET", "s3cret")

	_, err := Load()
	assert.ErrorContains(t, err, "unknown STORAGE")
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("STORAGE", "memory")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestGetDurationAcceptsSecondsAndGoSyntax(t *testing.T) {
	t.Setenv("X_SECONDS", "7")
	t.Setenv("X_GO", "250ms")
	t.Setenv("X_BAD", "soon")

	d, err := getDuration("X_SECONDS", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, d)

	d, err = getDuration("X_GO", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	d, err = getDuration("X_UNSET", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	_, err = getDuration("X_BAD", time.Minute)
	assert.ErrorContains(t, err, "X_BAD")
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("STORAGE", "memory")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("LEDGER_TIMEOUT", "soon")

	_, err := Load()
	assert.ErrorContains(t, err, "LEDGER_TIMEOUT")
}

func TestParseRedisURL(t *testing.T) {
	addr, user, pass, err := parseRedisURL("redis://alice:pw@cache:6380")
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", addr)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "pw", pass)
}
