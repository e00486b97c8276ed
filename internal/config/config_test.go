package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9000\"\nmessage_page_size: 20\njwt_secret: from-file\n"), 0o600))

	unsetEnv(t, "JWT_SECRET")
	unsetEnv(t, "PORT")
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MESSAGE_PAGE_SIZE", "30")
	t.Setenv("ADMIN_EMAILS", "a@x.io, b@x.io ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 30, cfg.MessagePageSize)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, []string{"a@x.io", "b@x.io"}, cfg.AdminEmails)
	assert.True(t, cfg.IsAdminEmail("A@X.io"))
	assert.False(t, cfg.IsAdminEmail("c@x.io"))
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsBadNumber(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("MESSAGE_PAGE_SIZE", "many")

	_, err := Load()
	require.Error(t, err)
}

func TestTypingDelay(t *testing.T) {
	unsetEnv(t, "TYPING_TTL")
	d, err := TypingDelay()
	require.NoError(t, err)
	assert.Equal(t, DefaultTypingDelay, d)

	t.Setenv("TYPING_TTL", "3s")
	d, err = TypingDelay()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)

	t.Setenv("TYPING_TTL", "-1s")
	_, err = TypingDelay()
	require.Error(t, err)
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	old, ok := os.LookupEnv(key)
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() {
		if ok {
			_ = os.Setenv(key, old)
		}
	})
}
