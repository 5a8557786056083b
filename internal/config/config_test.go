package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
[web.twitch_api_credentials]
client_id = "abc"
client_secret = "def"
redirect_uri = "https://example.org/callback"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.App.MaxBufferSize)
	assert.Equal(t, 24*time.Hour, cfg.App.MessagesExpireAfter)
	assert.Equal(t, 30*time.Minute, cfg.App.VacuumMessagesEvery)
	assert.Equal(t, 10*time.Second, cfg.Web.RequestTimeout)
	assert.Equal(t, "abc", cfg.Web.TwitchAPICredentials.ClientID)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[app]
max_buffer_size = 250
messages_expire_after = "1h"

[db.main_db]
host = "db-main"
port = 5432
dbname = "recentmessages"
user = "rm"
password = "secret"

[[db.shard_db]]
host = "db-shard-0"
port = 5432
dbname = "recentmessages_shard"
user = "rm"
password = "secret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.App.MaxBufferSize)
	assert.Equal(t, time.Hour, cfg.App.MessagesExpireAfter)
	require.Len(t, cfg.DB.ShardDB, 1)
	assert.Equal(t, "db-shard-0", cfg.DB.ShardDB[0].Host)
	assert.Contains(t, cfg.DB.MainDB.DSN(), "host=db-main")
}

func TestMissingConfigFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.App.MaxBufferSize)
}
