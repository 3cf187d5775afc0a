package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupFile_NoConfig(t *testing.T) {
	backup, err := BackupFile(filepath.Join(t.TempDir(), ".eventindexer.yaml"))
	require.NoError(t, err)
	assert.Empty(t, backup)
}

func TestBackupFile_CopiesContent(t *testing.T) {
	// Given: an existing config file
	path := filepath.Join(t.TempDir(), ".eventindexer.yaml")
	content := "version: 1\nretention:\n  days_to_keep: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	// When: backing it up
	backup, err := BackupFile(path)
	require.NoError(t, err)

	// Then: the backup holds the same bytes next to the original
	require.NotEmpty(t, backup)
	assert.Equal(t, filepath.Dir(path), filepath.Dir(backup))
	assert.Contains(t, filepath.Base(backup), ".eventindexer.yaml"+BackupSuffix+".")
	got, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestBackupFile_KeepsNewest(t *testing.T) {
	// Given: a config file
	path := filepath.Join(t.TempDir(), ".eventindexer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0644))

	// When: backing it up more times than MaxBackups
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var made []string
	for i := 0; i < MaxBackups+2; i++ {
		b, err := backupAt(path, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		made = append(made, b)
	}

	// Then: only the newest MaxBackups remain, newest first
	backups, err := ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, MaxBackups)
	assert.Equal(t, made[len(made)-1], backups[0])
	assert.NoFileExists(t, made[0])
}

func TestListBackups_MissingDir(t *testing.T) {
	backups, err := ListBackups(filepath.Join(t.TempDir(), "nope", "config.yaml"))
	require.NoError(t, err)
	assert.Empty(t, backups)
}
