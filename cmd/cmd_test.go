package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "documents")
	path := filepath.Join(dir, "config.yaml")
	body := "storage:\n  root: " + root + "\nmetrics:\n  enabled: false\nlogging:\n  development: false\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, root
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	return root.ExecuteContext(context.Background())
}

func TestParseRange(t *testing.T) {
	t.Parallel()

	start, end, err := parseRange("2024-01-15", "2024-01-19")
	require.NoError(t, err)
	assert.Equal(t, "20240115", start.ID())
	assert.Equal(t, "20240119", end.ID())

	_, _, err = parseRange("15/01/2024", "2024-01-19")
	require.ErrorContains(t, err, "--start")

	_, _, err = parseRange("2024-01-15", "")
	require.ErrorContains(t, err, "--end")
}

func TestHarvestRequiresFlags(t *testing.T) {
	t.Parallel()

	path, _ := writeConfig(t)
	err := execute(t, "harvest", "--config", path, "--start", "2024-01-15")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "end")
}

func TestHarvestRejectsRangeBeforeEarliestPeriod(t *testing.T) {
	t.Parallel()

	path, _ := writeConfig(t)
	err := execute(t, "harvest", "--config", path, "--start", "2023-09-01", "--end", "2023-09-02")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid period")
}

func TestDedupeOnEmptyStore(t *testing.T) {
	t.Parallel()

	path, root := writeConfig(t)
	require.NoError(t, execute(t, "dedupe", "--config", path))
	assert.DirExists(t, root)
}

func TestDedupeRejectsBackupInsideRoot(t *testing.T) {
	t.Parallel()

	path, root := writeConfig(t)
	err := execute(t, "dedupe", "--config", path, "--backup-dir", filepath.Join(root, "dupes"))
	require.Error(t, err)
}

func TestMissingConfigFile(t *testing.T) {
	t.Parallel()

	err := execute(t, "dedupe", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "load config")
}
