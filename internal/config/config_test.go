package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SOLGATE_TEST_KEY", "secret-123")
	t.Setenv("SOLGATE_TEST_EMPTY", "")

	assert.Equal(t, "secret-123", ExpandEnvVars("${SOLGATE_TEST_KEY}"))
	assert.Equal(t, "key=secret-123!", ExpandEnvVars("key=${SOLGATE_TEST_KEY}!"))
	assert.Equal(t, "fallback", ExpandEnvVars("${SOLGATE_TEST_UNSET_XYZ:-fallback}"))
	assert.Equal(t, "fallback", ExpandEnvVars("${SOLGATE_TEST_EMPTY:-fallback}"))
	assert.Equal(t, "", ExpandEnvVars("${SOLGATE_TEST_UNSET_XYZ}"))
	assert.Equal(t, "no vars here", ExpandEnvVars("no vars here"))
}

func TestLoad_ExpandsAndOverlaysDefaults(t *testing.T) {
	t.Setenv("SOLGATE_TEST_OPENAI_KEY", "sk-test")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
general:
  logLevel: debug
server:
  port: 8088
providers:
  openai:
    apiKey: ${SOLGATE_TEST_OPENAI_KEY}
database:
  path: ` + filepath.Join(dir, "solgate.db") + `
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.General.LogLevel)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "sk-test", cfg.Providers.OpenAI.APIKey)

	// unset values keep their defaults
	defaults := Defaults()
	assert.Equal(t, defaults.Server.Host, cfg.Server.Host)
	assert.Equal(t, defaults.Chain.RPCURL, cfg.Chain.RPCURL)
	assert.Equal(t, defaults.Transfer.EstimatedFeeLamports, cfg.Transfer.EstimatedFeeLamports)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, Validate(cfg))

	cfg.General.LogLevel = "verbose"
	assert.Error(t, Validate(cfg))

	cfg = Defaults()
	cfg.Chain.Commitment = "eventually"
	assert.Error(t, Validate(cfg))

	cfg = Defaults()
	cfg.Channels.Telegram.Enabled = true
	cfg.Channels.Telegram.Token = ""
	assert.Error(t, Validate(cfg))

	cfg = Defaults()
	cfg.Server.Port = 99999
	assert.Error(t, Validate(cfg))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Defaults()
	cfg.Server.Port = 4321
	cfg.Database.Path = filepath.Join(dir, "db.sqlite")
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4321, loaded.Server.Port)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "x.db"), ExpandPath("~/x.db"))
	assert.Equal(t, "/abs/x.db", ExpandPath("/abs/x.db"))
	assert.Equal(t, "rel.db", ExpandPath("rel.db"))
}
