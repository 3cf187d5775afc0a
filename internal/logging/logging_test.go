package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, FormatAuto, cfg.Format)
	assert.Empty(t, cfg.FilePath)
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 5, cfg.MaxFiles)
}

func TestSetup_NonTerminalWritesJSON(t *testing.T) {
	// Given: stderr is a buffer, not a terminal
	var buf bytes.Buffer
	logger, cleanup, err := Setup(DefaultConfig(), &buf)
	require.NoError(t, err)
	defer cleanup()

	// When: logging an event
	logger.Info("index_created", slog.String("partition", "snowplow_events_2021-01-05-00-00-00"))

	// Then: the record is JSON with typed attrs
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "index_created", rec["msg"])
	assert.Equal(t, "snowplow_events_2021-01-05-00-00-00", rec["partition"])
}

func TestSetup_ExplicitText(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = FormatText
	logger, cleanup, err := Setup(cfg, &buf)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("partitions_deleted", slog.Int("count", 2))
	assert.Contains(t, buf.String(), "msg=partitions_deleted")
	assert.Contains(t, buf.String(), "count=2")
}

func TestSetup_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = "warn"
	logger, cleanup, err := Setup(cfg, &buf)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetup_WithFile(t *testing.T) {
	// Given: a log file in a directory that does not exist yet
	logPath := filepath.Join(t.TempDir(), "logs", "eventindexer.log")
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = "debug"
	cfg.Format = FormatText
	cfg.FilePath = logPath

	// When: logging
	logger, cleanup, err := Setup(cfg, &buf)
	require.NoError(t, err)
	logger.Debug("ingest_complete", slog.Int("documents", 3))
	cleanup()

	// Then: both sinks receive the same JSON record
	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"ingest_complete"`)
	assert.Equal(t, string(content), buf.String())
}

func TestSetupDefault_InstallsLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := DefaultConfig()
	cfg.FilePath = filepath.Join(t.TempDir(), "default.log")
	cleanup, err := SetupDefault(cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.NotSame(t, prev, slog.Default())
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, LevelFromString(tt.input))
		})
	}
}

func TestLogFile_RotatesBeforeExceedingLimit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "rotate.log")

	// Given: a file capped at 100 bytes
	l, err := openLogFile(logPath, 100, 3)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	// When: the second record would cross the cap
	_, err = l.Write([]byte(strings.Repeat("a", 60) + "\n"))
	require.NoError(t, err)
	_, err = l.Write([]byte(strings.Repeat("b", 60) + "\n"))
	require.NoError(t, err)

	// Then: each file holds exactly one whole record
	current, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("b", 60)+"\n", string(current))
	previous, err := os.ReadFile(logPath + ".1")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 60)+"\n", string(previous))
}

func TestLogFile_KeepsNewestCopies(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "keep.log")
	l, err := openLogFile(logPath, 10, 2)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	// When: five oversized records are written
	for i := 0; i < 5; i++ {
		_, err := fmt.Fprintf(l, "record-%d-xxxxxxxx\n", i)
		require.NoError(t, err)
	}

	// Then: only the current file and two copies remain, newest first
	assert.NoFileExists(t, logPath+".3")
	one, err := os.ReadFile(logPath + ".1")
	require.NoError(t, err)
	assert.Contains(t, string(one), "record-3")
	two, err := os.ReadFile(logPath + ".2")
	require.NoError(t, err)
	assert.Contains(t, string(two), "record-2")
}

func TestLogFile_NoCopiesTruncates(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "truncate.log")
	l, err := openLogFile(logPath, 10, 0)
	require.NoError(t, err)

	_, err = l.Write([]byte("first-record\n"))
	require.NoError(t, err)
	_, err = l.Write([]byte("second-record\n"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, "second-record\n", string(content))
	assert.NoFileExists(t, logPath+".1")
}

func TestLogFile_AppendsToExisting(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "append.log")
	require.NoError(t, os.WriteFile(logPath, []byte("old\n"), 0o644))

	l, err := openLogFile(logPath, 1024, 3)
	require.NoError(t, err)
	_, err = l.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(content))
}

func TestLogFile_WriteAfterClose(t *testing.T) {
	l, err := openLogFile(filepath.Join(t.TempDir(), "closed.log"), 1024, 1)
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	_, err = l.Write([]byte("late\n"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestLogFile_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "concurrent.log")
	l, err := openLogFile(logPath, 10*1024*1024, 3)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = fmt.Fprintf(l, `{"id":%d,"iter":%d}`+"\n", id, j)
			}
		}(i)
	}
	wg.Wait()

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(content)), "\n"), 1000)
}
