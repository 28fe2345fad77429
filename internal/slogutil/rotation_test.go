package slogutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingFileCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs", "daemon.log")

	rf, err := OpenRotatingFile(path, 0, 0)
	require.NoError(t, err)
	_, err = rf.Write([]byte("line\n"))
	require.NoError(t, err)
	require.NoError(t, rf.Close())
	require.NoError(t, rf.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
}

func TestRotatingFileKeepsBoundedBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")
	rf, err := OpenRotatingFile(path, 50, 2)
	require.NoError(t, err)

	for _, c := range "abcde" {
		_, err := rf.Write([]byte(strings.Repeat(string(c), 29) + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, rf.Close())

	read := func(p string) string {
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		return string(b)
	}
	assert.True(t, strings.HasPrefix(read(path), "eee"))
	assert.True(t, strings.HasPrefix(read(path+".1"), "ddd"))
	assert.True(t, strings.HasPrefix(read(path+".2"), "ccc"))
	assert.NoFileExists(t, path+".3")
}

func TestRotatingFileAppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	rf, err := OpenRotatingFile(path, 1024, 1)
	require.NoError(t, err)
	_, err = rf.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, rf.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))
}

func TestNewRotatingFileLogger(t *testing.T) {
	dir := t.TempDir()

	logger, closer, err := NewRotatingFileLogger(filepath.Join(dir, "a.log"), slog.LevelInfo, "10MiB", 3)
	require.NoError(t, err)
	logger.Info("hello", "n", 1)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "a.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[info] hello | n=1")

	_, _, err = NewRotatingFileLogger(filepath.Join(dir, "b.log"), slog.LevelInfo, "lots", 3)
	assert.ErrorContains(t, err, "invalid log size")
}
