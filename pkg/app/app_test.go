package app

import (
	"context"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vending/pkg/storage"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "VENDING_DOMAIN", "VENDING_DB_TYPE", "VENDING_DB_PATH", "VENDING_CATALOG",
		"LOG_LEVEL", "DEV_MODE", "VENDING_MONITOR_SCHEDULE", "VENDING_CORS_ORIGIN",
	} {
		t.Setenv(key, "")
	}
}

func TestParseFlags_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, 8765, cfg.port)
	assert.Equal(t, ":8765", cfg.address())
	assert.Equal(t, storage.TypeMemory, cfg.dbType)
	assert.Equal(t, "info", cfg.logLevel)
	assert.Equal(t, "@every 1m", cfg.monitorSchedule)
	assert.True(t, cfg.monitorEnabled())
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.origins())
	assert.False(t, cfg.devMode)
	assert.Empty(t, cfg.domain)
}

func TestParseFlags_EnvironmentThenFlags(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("VENDING_DB_TYPE", "sqlite")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("VENDING_CORS_ORIGIN", "http://a.test, http://b.test")

	cfg, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.port)
	assert.Equal(t, storage.TypeSQLite, cfg.dbType)
	assert.True(t, cfg.devMode)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.origins())

	cfg, err = parseFlags([]string{"-port", "7000", "-db-type", "memory", "-monitor", "off"})
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.port)
	assert.Equal(t, storage.TypeMemory, cfg.dbType)
	assert.False(t, cfg.monitorEnabled())
}

func TestParseFlags_Rejects(t *testing.T) {
	clearEnv(t)

	_, err := parseFlags([]string{"-db-type", "postgres"})
	assert.ErrorContains(t, err, "unsupported db-type")

	_, err = parseFlags([]string{"-port", "70000"})
	assert.ErrorContains(t, err, "out of range")

	_, err = parseFlags([]string{"-no-such-flag"})
	assert.Error(t, err)
}

func TestRun_ServesUntilCancelledAndPersistsSnapshot(t *testing.T) {
	clearEnv(t)
	snapshot := filepath.Join(t.TempDir(), "machine.json")
	cfg, err := parseFlags([]string{"-port", "0", "-db-path", snapshot, "-monitor", "@every 1h"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zerolog.Nop()) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation")
	}

	data, err := os.ReadFile(snapshot)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Americano")
	assert.Contains(t, string(data), "Mocaccino")
}

func TestRun_FailsFast(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := parseFlags([]string{"-port", "0", "-db-path", filepath.Join(dir, "a.json"), "-catalog", filepath.Join(dir, "missing.yaml")})
	require.NoError(t, err)
	assert.Error(t, run(context.Background(), cfg, zerolog.Nop()))

	cfg, err = parseFlags([]string{"-port", "0", "-db-path", filepath.Join(dir, "b.json"), "-monitor", "whenever"})
	require.NoError(t, err)
	assert.ErrorContains(t, run(context.Background(), cfg, zerolog.Nop()), "invalid monitor schedule")
}

func TestGenerateCertificate(t *testing.T) {
	cert, keyFile, certFile, err := generateCertificate("vending.example.com")
	require.NoError(t, err)
	defer os.Remove(keyFile)
	defer os.Remove(certFile)

	require.NotEmpty(t, cert.Certificate)
	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"vending.example.com"}, parsed.DNSNames)
	assert.True(t, parsed.NotAfter.After(time.Now().Add(80*24*time.Hour)))

	assert.FileExists(t, keyFile)
	assert.FileExists(t, certFile)
}

func TestRedirectHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	redirectHandler("vending.example.com").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/machine/items?x=1", nil))

	assert.Equal(t, http.StatusPermanentRedirect, rec.Code)
	assert.Equal(t, "https://vending.example.com/api/machine/items?x=1", rec.Header().Get("Location"))
}
