// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Config represents the application configuration
type Config struct {
	Version       string
	Host          string `toml:"host" mapstructure:"host"`
	Port          int    `toml:"port" mapstructure:"port"`
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir       string `toml:"dataDir" mapstructure:"dataDir"`
	DatabasePath  string `toml:"databasePath" mapstructure:"databasePath"`
	PosterDir     string `toml:"posterDir" mapstructure:"posterDir"`

	MetricsEnabled        bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	MetricsHost           string `toml:"metricsHost" mapstructure:"metricsHost"`
	MetricsPort           int    `toml:"metricsPort" mapstructure:"metricsPort"`
	MetricsBasicAuthUsers string `toml:"metricsBasicAuthUsers" mapstructure:"metricsBasicAuthUsers"`

	ScanOnStart          bool `toml:"scanOnStart" mapstructure:"scanOnStart"`
	PruneMissing         bool `toml:"pruneMissing" mapstructure:"pruneMissing"`
	WatchEnabled         bool `toml:"watchEnabled" mapstructure:"watchEnabled"`
	WatchDebounceSeconds int  `toml:"watchDebounceSeconds" mapstructure:"watchDebounceSeconds"`
	EnrichWorkers        int  `toml:"enrichWorkers" mapstructure:"enrichWorkers"`
	EnrichQueueSize      int  `toml:"enrichQueueSize" mapstructure:"enrichQueueSize"`

	SonarrURL              string  `toml:"sonarrUrl" mapstructure:"sonarrUrl"`
	SonarrAPIKey           string  `toml:"sonarrApiKey" mapstructure:"sonarrApiKey"`
	RadarrURL              string  `toml:"radarrUrl" mapstructure:"radarrUrl"`
	RadarrAPIKey           string  `toml:"radarrApiKey" mapstructure:"radarrApiKey"`
	TMDBAPIKey             string  `toml:"tmdbApiKey" mapstructure:"tmdbApiKey"`
	TMDBBaseURL            string  `toml:"tmdbBaseUrl" mapstructure:"tmdbBaseUrl"`
	TMDBRequestsPerSecond  float64 `toml:"tmdbRequestsPerSecond" mapstructure:"tmdbRequestsPerSecond"`
	ProviderTimeoutSeconds int     `toml:"providerTimeoutSeconds" mapstructure:"providerTimeoutSeconds"`
	PosterTimeoutSeconds   int     `toml:"posterTimeoutSeconds" mapstructure:"posterTimeoutSeconds"`

	ScanRoots  []ScanRoot        `toml:"scanRoots" mapstructure:"scanRoots"`
	Connectors []ConnectorConfig `toml:"connectors" mapstructure:"connectors"`
}

// ScanRoot is a configured archive drive. TotalSize accepts plain bytes or
// a human readable size such as "2 TB".
type ScanRoot struct {
	Name      string `toml:"name" mapstructure:"name" json:"name" yaml:"name"`
	Path      string `toml:"path" mapstructure:"path" json:"path" yaml:"path"`
	Device    string `toml:"device" mapstructure:"device" json:"device,omitempty" yaml:"device,omitempty"`
	Brand     string `toml:"brand" mapstructure:"brand" json:"brand,omitempty" yaml:"brand,omitempty"`
	Model     string `toml:"model" mapstructure:"model" json:"model,omitempty" yaml:"model,omitempty"`
	Serial    string `toml:"serial" mapstructure:"serial" json:"serial,omitempty" yaml:"serial,omitempty"`
	TotalSize string `toml:"totalSize" mapstructure:"totalSize" json:"totalSize,omitempty" yaml:"totalSize,omitempty"`
}

// NormalizedPath returns the absolute, cleaned root path without a
// trailing separator.
func (r ScanRoot) NormalizedPath() (string, error) {
	p := strings.TrimSpace(r.Path)
	if p == "" {
		return "", errors.New("scan root path is empty")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve scan root %q: %w", p, err)
	}
	return abs, nil
}

// Capacity parses TotalSize. Zero means unknown.
func (r ScanRoot) Capacity() (int64, error) {
	raw := strings.TrimSpace(r.TotalSize)
	if raw == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid totalSize %q: %w", raw, err)
	}
	return int64(n), nil
}

// DisplayName falls back to the base name of the path.
func (r ScanRoot) DisplayName() string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return name
	}
	return filepath.Base(filepath.Clean(r.Path))
}

type ConnectorConfig struct {
	AppType string `toml:"appType" mapstructure:"appType" json:"appType" yaml:"appType"`
	BaseURL string `toml:"baseUrl" mapstructure:"baseUrl" json:"baseUrl" yaml:"baseUrl"`
	APIKey  string `toml:"apiKey" mapstructure:"apiKey" json:"apiKey" yaml:"apiKey"`
}

// Validate checks the scan roots and connectors.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.ScanRoots))
	for i, root := range c.ScanRoots {
		p, err := root.NormalizedPath()
		if err != nil {
			return fmt.Errorf("scanRoots[%d]: %w", i, err)
		}
		if _, dup := seen[strings.ToLower(p)]; dup {
			return fmt.Errorf("scanRoots[%d]: duplicate path %q", i, p)
		}
		seen[strings.ToLower(p)] = struct{}{}

		if _, err := root.Capacity(); err != nil {
			return fmt.Errorf("scanRoots[%d]: %w", i, err)
		}
	}

	for i, conn := range c.Connectors {
		switch strings.ToLower(strings.TrimSpace(conn.AppType)) {
		case "sonarr", "radarr":
		default:
			return fmt.Errorf("connectors[%d]: unknown appType %q", i, conn.AppType)
		}
		if strings.TrimSpace(conn.BaseURL) == "" {
			return fmt.Errorf("connectors[%d]: baseUrl is required", i)
		}
	}

	return nil
}
