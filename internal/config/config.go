// Package config handles TOML-based configuration loading and validation.
// Provider hostnames and credentials live here as injected data, never as
// inline literals in adapter code.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration.
type Config struct {
	Player       string `toml:"player"`
	AudioTrack   string `toml:"audio_track"`
	CacheTTLDays int    `toml:"cache_ttl_days"`
	Debug        bool   `toml:"debug"`

	Providers Providers `toml:"providers"`
	Serve     Serve     `toml:"serve"`
}

// Providers carries the third-party surface configuration for each adapter.
type Providers struct {
	CatalogHost     string   `toml:"catalog_host"`
	InlineHosts     []string `toml:"inline_hosts"` // base-domain variants, tried in order
	MultiServerHost string   `toml:"multi_server_host"`
	GatewayHost     string   `toml:"gateway_host"`
	FeedHost        string   `toml:"feed_host"`
	FeedAPIKey      string   `toml:"feed_api_key"`
	AltEmbedHost    string   `toml:"alt_embed_host"`

	// TimeoutSeconds overrides the per-adapter deadline, keyed by adapter id.
	TimeoutSeconds map[string]int `toml:"timeout_seconds"`

	// DiscoveryMaxPages caps slug-discovery pagination.
	DiscoveryMaxPages int `toml:"discovery_max_pages"`
}

// Serve configures the interception proxy server.
type Serve struct {
	Listen       string `toml:"listen"`
	PublicOrigin string `toml:"public_origin"` // Origin the websocket upgrader accepts
	LogFile      string `toml:"log_file"`
	LogMaxSize   int    `toml:"log_max_size"` // megabytes
	LogMaxAge    int    `toml:"log_max_age"`  // days
	LogBackups   int    `toml:"log_backups"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Player:       "mpv",
		AudioTrack:   "legendado",
		CacheTTLDays: 7,
		Debug:        false,
		Providers: Providers{
			CatalogHost:       "maxiflix.sbs",
			InlineHosts:       []string{"watchbr.cc", "watchbr.org"},
			MultiServerHost:   "megaplayer.cam",
			GatewayHost:       "fastembed.vip",
			FeedHost:          "playerfeed.top",
			AltEmbedHost:      "embedalt.site",
			DiscoveryMaxPages: 40,
		},
		Serve: Serve{
			Listen:     "127.0.0.1:8970",
			LogMaxSize: 20,
			LogMaxAge:  14,
			LogBackups: 3,
		},
	}
}

// CacheTTL returns the cache time-to-live as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLDays) * 24 * time.Hour
}

// AdapterTimeout returns the configured deadline for an adapter id, or def.
func (c *Config) AdapterTimeout(id string, def time.Duration) time.Duration {
	if secs, ok := c.Providers.TimeoutSeconds[id]; ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "moray"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "moray"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DatabasePath returns the path to the cache/log SQLite database.
func DatabasePath() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "moray", "moray.db"), nil
}

// Load reads the config file and merges with defaults.
// If the config file doesn't exist, defaults are returned.
func Load() (*Config, error) {
	cfg := Default()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	validPlayers := map[string]bool{
		"mpv": true, "vlc": true, "iina": true, "celluloid": true,
	}
	if !validPlayers[strings.ToLower(c.Player)] {
		return fmt.Errorf("unsupported player %q (valid: mpv, vlc, iina, celluloid)", c.Player)
	}

	if c.AudioTrack == "" {
		return fmt.Errorf("audio_track cannot be empty")
	}

	if c.CacheTTLDays <= 0 {
		return fmt.Errorf("cache_ttl_days must be positive, got %d", c.CacheTTLDays)
	}

	p := &c.Providers
	if p.CatalogHost == "" || p.MultiServerHost == "" || p.GatewayHost == "" ||
		p.FeedHost == "" || p.AltEmbedHost == "" || len(p.InlineHosts) == 0 {
		return fmt.Errorf("all provider hosts must be configured")
	}

	if p.DiscoveryMaxPages <= 0 {
		return fmt.Errorf("discovery_max_pages must be positive, got %d", p.DiscoveryMaxPages)
	}

	for id, secs := range p.TimeoutSeconds {
		if secs <= 0 || secs > 120 {
			return fmt.Errorf("timeout_seconds[%s] out of range: %d", id, secs)
		}
	}

	return nil
}
