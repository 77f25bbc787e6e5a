// Package config handles configuration management using Viper
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Backend selects how the compositor is reached
	Backend BackendConfig `mapstructure:"backend"`

	// Canvas tunes the arrangement canvas
	Canvas CanvasConfig `mapstructure:"canvas"`

	// Profiles configures the profile store
	Profiles ProfilesConfig `mapstructure:"profiles"`

	// Watch configures the hotplug daemon
	Watch WatchConfig `mapstructure:"watch"`

	// Rescue configures the SSH rescue server
	Rescue RescueConfig `mapstructure:"rescue"`

	// Log configures logging
	Log LogConfig `mapstructure:"log"`
}

// BackendConfig selects and tunes the display backend
type BackendConfig struct {
	Name         string        `mapstructure:"name"`           // "auto", "wlr" or "wlr-randr"
	WlrRandrPath string        `mapstructure:"wlr_randr_path"` // Override wlr-randr binary location
	PollInterval time.Duration `mapstructure:"poll_interval"`  // wlr-randr change poll interval
}

// CanvasConfig tunes the arrangement canvas. Thresholds are in desktop
// pixels; scale is canvas units per desktop pixel.
type CanvasConfig struct {
	Scale         float64 `mapstructure:"scale"`
	SnapThreshold int     `mapstructure:"snap_threshold"`
	GridSize      int     `mapstructure:"grid_size"`
	BoundsMargin  int     `mapstructure:"bounds_margin"` // 0 derives from the largest display
}

// ProfilesConfig configures where profiles are stored
type ProfilesConfig struct {
	Dir string `mapstructure:"dir"` // Empty means ~/.config/wayrange/profiles
}

// WatchConfig configures the hotplug daemon
type WatchConfig struct {
	DebounceMs int  `mapstructure:"debounce_ms"` // Quiet window after a change burst
	AutoApply  bool `mapstructure:"auto_apply"`  // Apply the matching profile unattended
}

// RescueConfig configures the SSH rescue server
type RescueConfig struct {
	Enabled            bool   `mapstructure:"enabled"` // Start alongside the watch daemon
	Port               int    `mapstructure:"port"`
	BindAddress        string `mapstructure:"bind_address"`
	HostKeyPath        string `mapstructure:"host_key_path"`
	AuthorizedKeysPath string `mapstructure:"authorized_keys_path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level string `mapstructure:"level"` // Override LOG_LEVEL env var
	File  string `mapstructure:"file"`  // Log file for the daemon; empty means stderr
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Backend: BackendConfig{
			Name:         "auto",
			WlrRandrPath: "",
			PollInterval: 2 * time.Second,
		},
		Canvas: CanvasConfig{
			Scale:         0.1,
			SnapThreshold: 24,
			GridSize:      50,
			BoundsMargin:  0,
		},
		Profiles: ProfilesConfig{
			Dir: "",
		},
		Watch: WatchConfig{
			DebounceMs: 800,
			AutoApply:  true,
		},
		Rescue: RescueConfig{
			Enabled:            false,
			Port:               52525,
			BindAddress:        "0.0.0.0",
			HostKeyPath:        defaultRescuePath("host_key"),
			AuthorizedKeysPath: defaultRescuePath("authorized_keys"),
		},
		Log: LogConfig{
			Level: "",
			File:  "",
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("wayrange")
	viper.SetConfigType("toml")

	// If a specific path is set, use only that
	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		if dir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(filepath.Join(dir, "wayrange"))
		}
		viper.AddConfigPath(".") // Current directory (lowest priority)
	}

	// WAYRANGE_WATCH_AUTO_APPLY=false style overrides
	viper.SetEnvPrefix("wayrange")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults - need to set individual fields for proper merging
	viper.SetDefault("backend.name", DefaultConfig.Backend.Name)
	viper.SetDefault("backend.wlr_randr_path", DefaultConfig.Backend.WlrRandrPath)
	viper.SetDefault("backend.poll_interval", DefaultConfig.Backend.PollInterval)

	viper.SetDefault("canvas.scale", DefaultConfig.Canvas.Scale)
	viper.SetDefault("canvas.snap_threshold", DefaultConfig.Canvas.SnapThreshold)
	viper.SetDefault("canvas.grid_size", DefaultConfig.Canvas.GridSize)
	viper.SetDefault("canvas.bounds_margin", DefaultConfig.Canvas.BoundsMargin)

	viper.SetDefault("profiles.dir", DefaultConfig.Profiles.Dir)

	viper.SetDefault("watch.debounce_ms", DefaultConfig.Watch.DebounceMs)
	viper.SetDefault("watch.auto_apply", DefaultConfig.Watch.AutoApply)

	viper.SetDefault("rescue.enabled", DefaultConfig.Rescue.Enabled)
	viper.SetDefault("rescue.port", DefaultConfig.Rescue.Port)
	viper.SetDefault("rescue.bind_address", DefaultConfig.Rescue.BindAddress)
	viper.SetDefault("rescue.host_key_path", DefaultConfig.Rescue.HostKeyPath)
	viper.SetDefault("rescue.authorized_keys_path", DefaultConfig.Rescue.AuthorizedKeysPath)

	viper.SetDefault("log.level", DefaultConfig.Log.Level)
	viper.SetDefault("log.file", DefaultConfig.Log.File)

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	// If override is set, use that
	if configPathOverride != "" {
		return configPathOverride
	}

	// Check if config file is already loaded
	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "wayrange.toml")
	}
	return filepath.Join(dir, "wayrange", "wayrange.toml")
}

// UpdateWatch updates the watch section and persists it
func UpdateWatch(watchCfg WatchConfig) error {
	viper.Set("watch", watchCfg)
	cfg.Watch = watchCfg
	return Save()
}

// UpdateRescue updates the rescue section and persists it
func UpdateRescue(rescueCfg RescueConfig) error {
	viper.Set("rescue", rescueCfg)
	cfg.Rescue = rescueCfg
	return Save()
}

func defaultRescuePath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", name)
	}
	return filepath.Join(dir, "wayrange", name)
}
