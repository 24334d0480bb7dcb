package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func clearClientEnv(t *testing.T) {
	for _, key := range []string{"GASTRACK_CONFIG", "GASTRACK_DATA_DIR", "GASTRACK_REMOTE_URL",
		"GASTRACK_SECRET", "GASTRACK_TIMEOUT", "GASTRACK_NODE_ID", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

func TestLoadClientDefaults(t *testing.T) {
	clearClientEnv(t)

	cfg, err := LoadClient(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local/share/gastrack"), cfg.DataDir)
	assert.Empty(t, cfg.RemoteURL)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, int64(1), cfg.NodeID)
}

func TestLoadClientFile(t *testing.T) {
	clearClientEnv(t)
	dataDir := t.TempDir()
	path := writeConfig(t, `
data_dir = "`+dataDir+`"
remote_url = "http://localhost:8080"
secret = "s3cret"
timeout = "3s"
node_id = 7
log_level = "debug"
`)

	cfg, err := LoadClient(path)
	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dataDir, "gastrack.db"), cfg.DBPath())
	assert.Equal(t, "http://localhost:8080", cfg.RemoteURL)
	assert.Equal(t, "s3cret", cfg.Secret)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, int64(7), cfg.NodeID)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadClientEnvOverridesFile(t *testing.T) {
	clearClientEnv(t)
	path := writeConfig(t, `
remote_url = "http://file:8080"
secret = "from-file"
timeout = "3s"
`)
	t.Setenv("GASTRACK_REMOTE_URL", "http://env:9090")
	t.Setenv("GASTRACK_TIMEOUT", "250ms")
	t.Setenv("GASTRACK_NODE_ID", "12")

	cfg, err := LoadClient(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env:9090", cfg.RemoteURL)
	assert.Equal(t, "from-file", cfg.Secret)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.Equal(t, int64(12), cfg.NodeID)
}

func TestLoadClientNodeZero(t *testing.T) {
	clearClientEnv(t)
	path := writeConfig(t, `node_id = 0`)

	cfg, err := LoadClient(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cfg.NodeID, "an explicit zero is kept")
}

func TestLoadClientErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "bad toml", body: `remote_url = `},
		{name: "bad timeout", body: `timeout = "soon"`},
		{name: "node out of range", body: `node_id = 5000`},
		{name: "remote without secret", body: `remote_url = "http://localhost:8080"`},
		{name: "bad env timeout", env: map[string]string{"GASTRACK_TIMEOUT": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearClientEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadClient(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadServer(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "9000")
	t.Setenv("STORAGE_BACKEND", "Redis")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("JWT_SECRET", "abc")
	t.Setenv("LOG_FORMAT", "")

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadServerDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET=from-dotenv\n"), 0o600))
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("PORT", "")
	os.Unsetenv("JWT_SECRET")

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.JWTSecret)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, 8080, cfg.Port)
}

func TestLoadServerErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}},
		{"unknown backend", map[string]string{"JWT_SECRET": "x", "STORAGE_BACKEND": "mongo"}},
		{"bad port", map[string]string{"JWT_SECRET": "x", "PORT": "abc"}},
		{"port out of range", map[string]string{"JWT_SECRET": "x", "PORT": "70000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv("STORAGE_BACKEND", "")
			t.Setenv("PORT", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadServer()
			assert.Error(t, err)
		})
	}
}
