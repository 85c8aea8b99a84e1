package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "whowhatwhere"

// Hotkey action identifiers
const (
	ActionWatchdog = "watchdog"
	ActionMute     = "mute"
)

type Config struct {
	LogLevel string                  `json:"log_level"`
	Watchdog WatchdogConfig          `json:"watchdog"`
	Hotkeys  map[string]HotkeyConfig `json:"hotkeys"`
	Speech   SpeechConfig            `json:"speech"`
	Sound    SoundConfig             `json:"sound"`
	Feed     FeedConfig              `json:"feed"`

	path string
}

type WatchdogConfig struct {
	Interface       string `json:"interface"`  // empty picks the first interface with an address
	BPFFilter       string `json:"bpf_filter"` // e.g. "tcp or udp"
	Snaplen         int    `json:"snaplen"`
	Promiscuous     bool   `json:"promiscuous"`
	CooldownSeconds int    `json:"cooldown_seconds"` // floored at 3
	CooldownScope   string `json:"cooldown_scope"`   // "global" or "per_rule"
	StopAfterMatch  bool   `json:"stop_after_match"`
	Preset          string `json:"preset"` // preset loaded at startup
}

type HotkeyConfig struct {
	Binding string `json:"binding"` // e.g. "Ctrl+Alt+F9"
	Enabled bool   `json:"enabled"`
}

type SpeechConfig struct {
	Command string `json:"command"` // overrides the platform TTS command
	Muted   bool   `json:"muted"`
}

type SoundConfig struct {
	Frequency  float64 `json:"frequency"`
	DurationMS int     `json:"duration_ms"`
}

type FeedConfig struct {
	Addr string `json:"addr"` // empty disables the WebSocket feed
}

// DefaultHotkeys are the bindings used when nothing is configured.
func DefaultHotkeys() map[string]HotkeyConfig {
	return map[string]HotkeyConfig{
		ActionWatchdog: {Binding: "Ctrl+Alt+F9", Enabled: true},
		ActionMute:     {Binding: "Ctrl+Alt+F10", Enabled: true},
	}
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Watchdog: WatchdogConfig{
			Snaplen:         262144,
			CooldownSeconds: 5,
			CooldownScope:   "global",
			StopAfterMatch:  false,
			Preset:          "default",
		},
		Hotkeys: DefaultHotkeys(),
		Sound: SoundConfig{
			Frequency:  880,
			DurationMS: 200,
		},
		path: configPath(),
	}
}

// Load reads the config from disk or returns defaults
func Load() (*Config, error) {
	return LoadFrom(configPath())
}

// LoadFrom reads the config at path, merging it over the defaults
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	// Load existing config if it exists
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	// keep defaults for actions the file does not mention
	for id, hk := range DefaultHotkeys() {
		if _, ok := cfg.Hotkeys[id]; !ok {
			if cfg.Hotkeys == nil {
				cfg.Hotkeys = make(map[string]HotkeyConfig)
			}
			cfg.Hotkeys[id] = hk
		}
	}

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		path = configPath()
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Path returns the file this config is loaded from and saved to
func (c *Config) Path() string { return c.path }

// Hotkey returns the configured binding for an action, falling back to the
// default binding.
func (c *Config) Hotkey(id string) HotkeyConfig {
	if hk, ok := c.Hotkeys[id]; ok && hk.Binding != "" {
		return hk
	}
	return DefaultHotkeys()[id]
}

// SetHotkey records a binding for an action
func (c *Config) SetHotkey(id string, hk HotkeyConfig) {
	if c.Hotkeys == nil {
		c.Hotkeys = make(map[string]HotkeyConfig)
	}
	c.Hotkeys[id] = hk
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, appName, "config.json")
}

// dataPath returns the platform-specific data directory
func dataPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, appName)
}

// PresetsPath returns the directory holding watchdog presets
func PresetsPath() string {
	return filepath.Join(dataPath(), "presets")
}

// HistoryPath returns the alert history database path
func HistoryPath() string {
	return filepath.Join(dataPath(), "history.db")
}
