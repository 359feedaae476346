// Package config loads the YAML configuration of the media-fetch tools.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	media_fetch "github.com/alanbriolat/media-fetch"
	"github.com/alanbriolat/media-fetch/download"
	"github.com/alanbriolat/media-fetch/resolve"
)

const (
	ConfigFileName = "config.yml"
	AppDirName     = "media-fetch"
)

const (
	HistoryDriverSQLite = "sqlite"
	HistoryDriverBolt   = "bolt"
	HistoryDriverNone   = "none"
)

var ErrUnknownPlatform = errors.New("unknown platform")

// ConfigDir returns the standard config directory.
// Windows: %APPDATA%\media-fetch\
// macOS/Linux: ~/.config/media-fetch/
func ConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, AppDirName), nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppDirName), nil
}

// ConfigPath returns the path to the config file, e.g. ~/.config/media-fetch/config.yml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

type Config struct {
	// Directory downloads are saved into
	OutputDir string `yaml:"output_dir,omitempty"`
	// Directory for partial downloads; empty means beside the destination
	TempDir string `yaml:"temp_dir,omitempty"`
	// text/template for file names, see media_fetch.TargetArgs
	FileTemplate string `yaml:"file_template,omitempty"`
	// Whether this device can decode high-efficiency codecs (HEVC-class)
	EfficientCodec bool `yaml:"efficient_codec,omitempty"`

	Resolve  ResolveConfig  `yaml:"resolve,omitempty"`
	Download DownloadConfig `yaml:"download,omitempty"`
	History  HistoryConfig  `yaml:"history,omitempty"`

	// Per-platform request overrides, keyed by platform name (e.g. "douyin"). Example YAML:
	//   platforms:
	//     douyin:
	//       user_agent: "..."
	//       headers:
	//         Cookie: "..."
	Platforms map[string]PlatformConfig `yaml:"platforms,omitempty"`
}

type ResolveConfig struct {
	MaxRedirects int           `yaml:"max_redirects,omitempty"`
	CacheSize    int           `yaml:"cache_size,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	// Path of the bolt database remembering resolved links; "-" disables it
	LinkStore string `yaml:"link_store,omitempty"`
}

type DownloadConfig struct {
	Timeout           time.Duration `yaml:"timeout,omitempty"`
	ChunkSize         int           `yaml:"chunk_size,omitempty"`
	ProgressThreshold int64         `yaml:"progress_threshold,omitempty"`
}

type HistoryConfig struct {
	// One of "sqlite", "bolt" or "none"
	Driver string `yaml:"driver,omitempty"`
	Path   string `yaml:"path,omitempty"`
}

type PlatformConfig struct {
	UserAgent     string            `yaml:"user_agent,omitempty"`
	Referer       string            `yaml:"referer,omitempty"`
	ResolveMethod string            `yaml:"resolve_method,omitempty"`
	Headers       map[string]string `yaml:"headers,omitempty"`
}

// DefaultDownloadDir returns ~/Downloads/media-fetch, or ./downloads if there is no home directory.
func DefaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./downloads"
	}
	return filepath.Join(home, "Downloads", AppDirName)
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	dir, err := ConfigDir()
	if err != nil {
		dir = "."
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultDownloadDir()
	}
	if c.FileTemplate == "" {
		c.FileTemplate = media_fetch.DefaultTargetFileTemplate
	}
	if c.Resolve.MaxRedirects == 0 {
		c.Resolve.MaxRedirects = resolve.DefaultMaxRedirects
	}
	if c.Resolve.CacheSize == 0 {
		c.Resolve.CacheSize = resolve.DefaultCacheSize
	}
	if c.Resolve.Timeout == 0 {
		c.Resolve.Timeout = resolve.DefaultTimeout
	}
	if c.Resolve.LinkStore == "" {
		c.Resolve.LinkStore = filepath.Join(dir, "links.db")
	}
	if c.Download.Timeout == 0 {
		c.Download.Timeout = download.DefaultTimeout
	}
	if c.Download.ChunkSize == 0 {
		c.Download.ChunkSize = download.DefaultChunkSize
	}
	if c.Download.ProgressThreshold == 0 {
		c.Download.ProgressThreshold = download.DefaultProgressThreshold
	}
	if c.History.Driver == "" {
		c.History.Driver = HistoryDriverSQLite
	}
	if c.History.Path == "" {
		switch c.History.Driver {
		case HistoryDriverBolt:
			c.History.Path = filepath.Join(dir, "history.db")
		default:
			c.History.Path = filepath.Join(dir, "history.sqlite3")
		}
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.History.Driver {
	case HistoryDriverSQLite, HistoryDriverBolt, HistoryDriverNone:
	default:
		return fmt.Errorf("unknown history driver %q", c.History.Driver)
	}
	for name := range c.Platforms {
		if _, err := parsePlatform(name); err != nil {
			return err
		}
	}
	if c.Resolve.CacheSize < 0 || c.Resolve.MaxRedirects < 0 {
		return errors.New("resolve limits must not be negative")
	}
	return nil
}

func parsePlatform(name string) (media_fetch.Platform, error) {
	p := media_fetch.Platform(strings.ToLower(name))
	if p == media_fetch.PlatformUnknown {
		return p, nil
	}
	for _, known := range media_fetch.Platforms() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %v", ErrUnknownPlatform, name)
}

// Profiles returns the built-in request profiles with the configured overrides applied.
func (c *Config) Profiles() (media_fetch.Profiles, error) {
	overrides := make(map[media_fetch.Platform]media_fetch.Profile, len(c.Platforms))
	for name, pc := range c.Platforms {
		p, err := parsePlatform(name)
		if err != nil {
			return nil, err
		}
		overrides[p] = media_fetch.Profile{
			UserAgent:     pc.UserAgent,
			Referer:       pc.Referer,
			ResolveMethod: strings.ToUpper(pc.ResolveMethod),
			Headers:       pc.Headers,
		}
	}
	return media_fetch.DefaultProfiles().With(overrides), nil
}

// Load reads the config from path, or from ConfigPath() if path is empty. Missing values get defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = ConfigPath(); err != nil {
			return nil, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.OutputDir = expandPath(cfg.OutputDir)
	cfg.TempDir = expandPath(cfg.TempDir)
	cfg.Resolve.LinkStore = expandPath(cfg.Resolve.LinkStore)
	cfg.History.Path = expandPath(cfg.History.Path)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads config if it exists, otherwise returns defaults. A config that exists but cannot be parsed is
// still an error.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// Save writes the config to path, or to ConfigPath() if path is empty.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if path == "" {
		if path, err = ConfigPath(); err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	header := "# media-fetch configuration file\n\n"
	return os.WriteFile(path, []byte(header+string(data)), 0644)
}

// expandPath expands a leading "~", "~/" or "~\" to the user's home directory.
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	if len(path) > 1 && path[1] != '/' && path[1] != '\\' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	subPath := path[1:]
	if len(subPath) > 0 {
		subPath = subPath[1:]
	}
	return filepath.Join(home, subPath)
}
