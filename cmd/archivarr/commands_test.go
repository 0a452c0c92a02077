// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/archivarr/internal/models"
)

func TestScanAndStatsCommands(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")
	root := t.TempDir()
	prepareConfigDir(t, configDir, root)

	file := filepath.Join(root, "movies", "Heat (1995)", "Heat.1995.1080p.BluRay.x264.mkv")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, make([]byte, 2048), 0o644))

	output := mustRunCommand(t, "scan", "--config", configDir)
	assert.Contains(t, output, "Archive 1 ("+root+"): files=1 indexed=1 skipped=0")

	output = mustRunCommand(t, "scan", "--config", configDir)
	assert.Contains(t, output, "files=1 indexed=0 skipped=1")

	output = mustRunCommand(t, "stats", "--config", configDir, "--format", "json")
	var stats models.ArchiveStats
	require.NoError(t, json.Unmarshal([]byte(output), &stats))
	assert.Equal(t, 1, stats.Counts.Movies)
	assert.Equal(t, int64(2048), stats.Sizes.Movies)
	assert.Equal(t, 1, stats.Drives.Count)

	output = mustRunCommand(t, "stats", "--config", configDir, "--format", "yaml")
	assert.Contains(t, output, "movies: 1")

	output = mustRunCommand(t, "stats", "--config", configDir)
	assert.Contains(t, output, "Movies:   1 (2.0 KiB)")

	output = mustRunCommand(t, "drives", "list", "--config", configDir)
	assert.Contains(t, output, "Archive 1")
	assert.Contains(t, output, "capacity=1.0 TiB")
}

func TestScanCommandWithoutRoots(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")
	prepareConfigDir(t, configDir, "")

	_, err := runCommand("scan", "--config", configDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scan roots configured")
}

func TestStatsCommandRejectsUnknownFormat(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")
	prepareConfigDir(t, configDir, "")

	_, err := runCommand("stats", "--config", configDir, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestConnectorsImportAndList(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")
	prepareConfigDir(t, configDir, "")

	yamlPath := filepath.Join(t.TempDir(), "connectors.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
sonarr:
  base_url: http://sonarr.local:8989/
  api_key: supersecretkey
`), 0o644))

	output := mustRunCommand(t, "connectors", "import", yamlPath, "--config", configDir)
	assert.Contains(t, output, "Registered sonarr connector")

	output = mustRunCommand(t, "connectors", "list", "--config", configDir)
	assert.Contains(t, output, "sonarr")
	assert.Contains(t, output, "http://sonarr.local:8989")
	assert.NotContains(t, output, "supersecretkey")
}

func TestDrivesDedupWithoutDuplicates(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")
	prepareConfigDir(t, configDir, "")

	output := mustRunCommand(t, "drives", "dedup", "--config", configDir)
	assert.Contains(t, output, "No duplicate drives found.")
}

func TestDBStatusCommand(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")
	prepareConfigDir(t, configDir, "")

	mustRunCommand(t, "db", "migrate", "--config", configDir)

	output := mustRunCommand(t, "db", "status", "--config", configDir)
	assert.Contains(t, output, filepath.Join(configDir, "archivarr.db"))
	assert.Contains(t, output, "001_initial_schema.sql")
}

func TestConfigLogCommandPersists(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")
	prepareConfigDir(t, configDir, "")

	output := mustRunCommand(t, "config", "log", "--config", configDir, "--level", "warn", "--max-backups", "7")
	assert.Contains(t, output, "Log settings saved")

	content, err := os.ReadFile(filepath.Join(configDir, "config.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `logLevel = "WARN"`)
	assert.Contains(t, string(content), "logMaxBackups = 7")

	_, err = runCommand("config", "log", "--config", configDir, "--level", "loud")
	require.Error(t, err)

	output = mustRunCommand(t, "config", "path", "--config", configDir)
	assert.Contains(t, output, filepath.Join(configDir, "config.toml"))
}

func TestVersionCommand(t *testing.T) {
	output := mustRunCommand(t, "version", "--json")
	assert.Contains(t, output, `"version":"dev"`)
}

func prepareConfigDir(t *testing.T, dir, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	content := "logLevel = \"ERROR\"\n"
	if root != "" {
		content += fmt.Sprintf("\n[[scanRoots]]\nname = \"Archive 1\"\npath = %q\ntotalSize = \"1 TiB\"\n", root)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644))
}

func mustRunCommand(t *testing.T, args ...string) string {
	t.Helper()
	output, err := runCommand(args...)
	require.NoError(t, err, output)
	return output
}

func runCommand(args ...string) (string, error) {
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
