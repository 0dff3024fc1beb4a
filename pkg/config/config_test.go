package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "svc.yaml")
	writeFile(t, file, "server:\n  http:\n    port: 8080\nservice:\n  name: svc\n")

	t.Setenv("CONFIG_PATH", file)
	t.Setenv("SVC_SERVER_HTTP_PORT", "9090")

	cfg, err := Load("svc", Options{EnvFiles: []string{filepath.Join(dir, "missing.env")}})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.GetInt("server.http.port"))
	assert.Equal(t, "svc", cfg.GetString("service.name"))
	assert.Equal(t, file, cfg.ConfigFileUsed())
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONFIG_PATH", dir)

	cfg, err := Load("svc", Options{
		Defaults:         map[string]interface{}{"log.level": "warn"},
		EnvFiles:         []string{filepath.Join(dir, ".env")},
		AllowMissingFile: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.GetString("log.level"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", t.TempDir())

	_, err := Load("svc", Options{EnvFiles: []string{"does-not-exist.env"}})
	assert.Error(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	writeFile(t, envFile, "SVC_SERVICE_NAME=from-dotenv\n")
	t.Setenv("CONFIG_PATH", dir)
	t.Cleanup(func() { os.Unsetenv("SVC_SERVICE_NAME") })

	cfg, err := Load("svc", Options{EnvFiles: []string{envFile}, AllowMissingFile: true})
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.GetString("service.name"))
}
