package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7878, cfg.Server.Port)
	assert.Equal(t, "", cfg.Server.BasePath)
	assert.Equal(t, 90, cfg.Retention.Days)
	assert.Equal(t, 0.5, cfg.Scanner.MaxSkipRatio)
	assert.Equal(t, 3, cfg.Notify.MaxAttempts)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9000
  base_path: /scanarr/
scanner:
  max_skip_ratio: 0.25
  probe_timeout: 5s
retention:
  days: 30
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("SCANARR_PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "env overrides file")
	assert.Equal(t, "/scanarr", cfg.Server.BasePath)
	assert.Equal(t, 0.25, cfg.Scanner.MaxSkipRatio)
	assert.Equal(t, 5*time.Second, cfg.Scanner.ProbeTimeout)
	assert.Equal(t, 30, cfg.Retention.Days)
}

func TestLoad_RejectsBadSkipRatio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scanner:\n  max_skip_ratio: 1.5\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_skip_ratio")
}

func TestBackupDir(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = "/data/scanarr.db"
	assert.Equal(t, "/data/backups", cfg.BackupDir())
	assert.True(t, cfg.Backup.Enabled)
	assert.Equal(t, 7, cfg.Backup.Keep)

	cfg.Backup.Path = "/snapshots"
	assert.Equal(t, "/snapshots", cfg.BackupDir())
}
