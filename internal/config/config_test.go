package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHome, home)
	t.Setenv("ZOLD_DEBUG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, home, cfg.Home)
	assert.Equal(t, DefaultNetwork, cfg.Network)
	assert.Equal(t, filepath.Join(home, "wallets"), cfg.WalletsDir)
	assert.Equal(t, filepath.Join(home, "remotes.db"), cfg.BookPath)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.False(t, cfg.Debug)
}

func TestLoadFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHome, home)
	t.Setenv("ZOLD_DEBUG", "1")
	t.Setenv(EnvPassphrase, "pw")
	path := filepath.Join(home, FileName)
	yml := `network: test
timeout: 3s
workers: 2
remotes:
  - name: b1
    addr: b1.zold.io:4096
    score: [aa, bb]
redis_addr: localhost:6379
redis_ttl: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Network)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, 2, cfg.Workers)
	require.Len(t, cfg.Remotes, 1)
	assert.Equal(t, []string{"aa", "bb"}, cfg.Remotes[0].Score)
	assert.Equal(t, time.Hour, cfg.RedisTTL)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "pw", cfg.Passphrase)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())
	cases := map[string]string{
		"negative workers": "workers: -1\n",
		"remote no addr":   "remotes:\n  - name: x\n",
		"duplicate remote": "remotes:\n  - addr: a:1\n  - addr: a:1\n",
		"dotted ext":       "wallet_ext: .z\n",
	}
	for name, yml := range cases {
		path := filepath.Join(t.TempDir(), FileName)
		require.NoError(t, os.WriteFile(path, []byte(yml), 0600))
		_, err := Load(path)
		assert.True(t, errors.Is(err, ErrInvalid), "%s: %v", name, err)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("timeout: [\n"), 0600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHome, home)
	t.Setenv(EnvPassphrase, "")
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Remotes = []RemoteConfig{{Name: "n", Addr: "127.0.0.1:1"}}
	cfg.Passphrase = "never written"
	path := filepath.Join(home, "nested", FileName)
	require.NoError(t, cfg.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "never written")
	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Remotes, again.Remotes)
	assert.Equal(t, cfg.Timeout, again.Timeout)
}
