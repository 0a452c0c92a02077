// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/autobrr/archivarr/internal/domain"
	"github.com/autobrr/archivarr/pkg/tmdb"
)

const (
	appName        = "archivarr"
	envPrefix      = "ARCHIVARR__"
	configFileName = "config.toml"
	databaseName   = "archivarr.db"
)

// AppConfig wraps the loaded configuration together with the file it came from.
type AppConfig struct {
	Config     *domain.Config
	viper      *viper.Viper
	configPath string
}

// New loads configuration from configPath, which may be a config.toml file
// or the directory holding it. An empty path uses the default config
// directory. A commented default config is written when none exists.
func New(configPath string, version ...string) (*AppConfig, error) {
	c := &AppConfig{
		Config: &domain.Config{},
		viper:  viper.New(),
	}
	if len(version) > 0 {
		c.Config.Version = version[0]
	}

	c.configPath = resolveConfigPath(configPath)
	c.defaults()

	if err := c.writeDefaultConfig(); err != nil {
		return nil, err
	}

	c.viper.SetConfigFile(c.configPath)
	c.viper.SetConfigType("toml")
	if err := c.viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", c.configPath, err)
	}

	if err := c.bindEnv(); err != nil {
		return nil, err
	}

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if c.Config.DataDir == "" {
		c.Config.DataDir = filepath.Dir(c.configPath)
	}

	if err := c.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return c, nil
}

func resolveConfigPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return filepath.Join(getDefaultConfigDir(), configFileName)
	}
	if strings.HasSuffix(strings.ToLower(p), ".toml") {
		return p
	}
	return filepath.Join(p, configFileName)
}

// getDefaultConfigDir follows XDG. A container sets XDG_CONFIG_HOME=/config
// and expects files directly in /config.
func getDefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		if xdg == "/config" {
			return xdg
		}
		return filepath.Join(xdg, appName)
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, appName)
}

var defaultValues = map[string]any{
	"host":                   "localhost",
	"port":                   7477,
	"logLevel":               "INFO",
	"logPath":                "",
	"logMaxSize":             50,
	"logMaxBackups":          3,
	"dataDir":                "",
	"databasePath":           "",
	"posterDir":              "",
	"metricsEnabled":         false,
	"metricsHost":            "127.0.0.1",
	"metricsPort":            9074,
	"metricsBasicAuthUsers":  "",
	"scanOnStart":            false,
	"pruneMissing":           false,
	"watchEnabled":           false,
	"watchDebounceSeconds":   30,
	"enrichWorkers":          2,
	"enrichQueueSize":        1024,
	"sonarrUrl":              "",
	"sonarrApiKey":           "",
	"radarrUrl":              "",
	"radarrApiKey":           "",
	"tmdbApiKey":             "",
	"tmdbBaseUrl":            tmdb.DefaultBaseURL,
	"tmdbRequestsPerSecond":  4.0,
	"providerTimeoutSeconds": 10,
	"posterTimeoutSeconds":   15,
}

func (c *AppConfig) defaults() {
	for key, value := range defaultValues {
		c.viper.SetDefault(key, value)
	}
}

// bindEnv maps every scalar key to ARCHIVARR__SCREAMING_SNAKE, so
// databasePath is overridden by ARCHIVARR__DATABASE_PATH.
func (c *AppConfig) bindEnv() error {
	for key := range defaultValues {
		if err := c.viper.BindEnv(key, envName(key)); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

func envName(key string) string {
	var b strings.Builder
	b.WriteString(envPrefix)
	runes := []rune(key)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 && !unicode.IsUpper(runes[i-1]) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// ConfigPath returns the config file in use.
func (c *AppConfig) ConfigPath() string {
	return c.configPath
}

// GetDatabasePath returns databasePath when set, else archivarr.db next to
// the config file.
func (c *AppConfig) GetDatabasePath() string {
	if p := strings.TrimSpace(c.Config.DatabasePath); p != "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.configPath), databaseName)
}

// GetPosterDir returns posterDir when set, else posters under the data dir.
func (c *AppConfig) GetPosterDir() string {
	if p := strings.TrimSpace(c.Config.PosterDir); p != "" {
		return p
	}
	return filepath.Join(c.Config.DataDir, "posters")
}

func (c *AppConfig) writeDefaultConfig() error {
	if _, err := os.Stat(c.configPath); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.configPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var buf bytes.Buffer
	if err := defaultConfigTemplate.Execute(&buf, map[string]any{
		"host": defaultValues["host"],
		"port": defaultValues["port"],
	}); err != nil {
		return fmt.Errorf("render default config: %w", err)
	}

	if err := os.WriteFile(c.configPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	log.Info().Str("path", c.configPath).Msg("config: wrote default config")
	return nil
}

// SetupLogging configures the global zerolog logger from the loaded config.
func (c *AppConfig) SetupLogging() {
	SetupLogging(c.Config.LogLevel, c.Config.LogPath, c.Config.LogMaxSize, c.Config.LogMaxBackups)
}

// SetupLogging writes to stderr and, when path is set, to a rotating log file.
func SetupLogging(level, path string, maxSize, maxBackups int) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var writers []io.Writer
	writers = append(writers, zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	})

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			log.Error().Err(err).Str("path", path).Msg("config: failed to create log directory")
		} else {
			writers = append(writers, &lumberjack.Logger{
				Filename:   path,
				MaxSize:    maxSize,
				MaxBackups: maxBackups,
			})
		}
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
}

// UpdateLogSettings applies new log settings and persists them to the config file.
func (c *AppConfig) UpdateLogSettings(level, path string, maxSize, maxBackups int) error {
	content, err := os.ReadFile(c.configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	updated := updateLogSettingsInTOML(string(content), level, path, maxSize, maxBackups)
	if err := os.WriteFile(c.configPath, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	c.Config.LogLevel = level
	c.Config.LogPath = path
	c.Config.LogMaxSize = maxSize
	c.Config.LogMaxBackups = maxBackups
	c.SetupLogging()
	return nil
}

var defaultConfigTemplate = template.Must(template.New("config").Parse(`# config.toml - Auto-generated on first run

# Hostname / IP
# Default: "localhost"
host = "{{ .host }}"

# Port
# Default: 7477
port = {{ .port }}

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "INFO"

# Log file path
# If not defined, logs to stderr
# Optional
#logPath = "log/archivarr.log"

# Log rotation
# Maximum log file size in megabytes before rotation
# Default: 50
#logMaxSize = 50

# Number of rotated log files to retain (0 keeps all)
# Default: 3
#logMaxBackups = 3

# Database file
# Default: archivarr.db next to this file
#databasePath = "/var/db/archivarr/archivarr.db"

# Poster cache directory
# Default: posters next to this file
#posterDir = ""

# Prometheus metrics on a separate listener
#metricsEnabled = false
#metricsHost = "127.0.0.1"
#metricsPort = 9074
# Comma separated user:bcrypt-hash pairs
#metricsBasicAuthUsers = ""

# Scanning
#scanOnStart = false
# Delete file rows of a scanned drive whose path no longer exists
#pruneMissing = false
#watchEnabled = false
#watchDebounceSeconds = 30

# Enrichment
#enrichWorkers = 2
#enrichQueueSize = 1024
#providerTimeoutSeconds = 10
#posterTimeoutSeconds = 15

#sonarrUrl = "http://localhost:8989"
#sonarrApiKey = ""
#radarrUrl = "http://localhost:7878"
#radarrApiKey = ""
#tmdbApiKey = ""
#tmdbRequestsPerSecond = 4

# Drives to index
#[[scanRoots]]
#name = "Archive A"
#path = "/mnt/archive-a"
#device = "/dev/sdb1"
#brand = ""
#model = ""
#serial = ""
#totalSize = "4 TB"

# Sonarr/Radarr instances mirrored into the archive
#[[connectors]]
#appType = "radarr"
#baseUrl = "http://localhost:7878"
#apiKey = ""
`))
