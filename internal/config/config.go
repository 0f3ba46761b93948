package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for nanobot.
type Config struct {
	General       GeneralConfig       `json:"general" yaml:"general"`
	Channels      ChannelsConfig      `json:"channels" yaml:"channels"`
	Transcription TranscriptionConfig `json:"transcription" yaml:"transcription"`
}

type GeneralConfig struct {
	Workspace string `json:"workspace" yaml:"workspace"`
	LogLevel  string `json:"logLevel" yaml:"logLevel"` // "debug" | "info" | "warn" | "error"
}

type ChannelsConfig struct {
	Zalo ZaloConfig `json:"zalo" yaml:"zalo"`
}

// ZaloConfig configures the Zalo bridge channel.
// Cookie, IMEI and UserAgent are the login material forwarded verbatim
// to the bridge process after every (re)connect.
type ZaloConfig struct {
	Enabled   bool       `json:"enabled" yaml:"enabled"`
	BridgeURL string     `json:"bridgeUrl" yaml:"bridgeUrl"` // e.g. "ws://localhost:8787"
	Cookie    FlexCookie `json:"cookie" yaml:"cookie"`
	IMEI      string     `json:"imei" yaml:"imei"`
	UserAgent string     `json:"userAgent" yaml:"userAgent"`
	AllowFrom []string   `json:"allowFrom,omitempty" yaml:"allowFrom,omitempty"` // sender IDs (empty = allow all)

	// DisconnectOnAuthFailure forces a reconnect when the bridge reports a
	// failed login. Off by default: the bridge may still deliver data on a
	// half-valid session, and an invalid one fails on its own soon enough.
	DisconnectOnAuthFailure bool `json:"disconnectOnAuthFailure,omitempty" yaml:"disconnectOnAuthFailure,omitempty"`
}

// TranscriptionConfig configures the speech-to-text provider used for
// inbound voice attachments. An empty APIKey disables transcription only;
// other attachment handling is unaffected.
type TranscriptionConfig struct {
	APIBase  string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	APIKey   string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
}

// FlexCookie is a cookie value that can be either a plain string or a JSON
// array of cookie objects (the bridge accepts both; exports from browser
// extensions are usually arrays).
type FlexCookie struct {
	raw string
}

// NewFlexCookie wraps a raw cookie string.
func NewFlexCookie(s string) FlexCookie { return FlexCookie{raw: s} }

func (c FlexCookie) String() string { return c.raw }

// IsEmpty reports whether no cookie material is configured.
func (c FlexCookie) IsEmpty() bool { return strings.TrimSpace(c.raw) == "" }

// Value returns the cookie in the shape the bridge expects: a decoded JSON
// array when the string holds one, the raw string otherwise.
func (c FlexCookie) Value() any {
	trimmed := strings.TrimSpace(c.raw)
	if strings.HasPrefix(trimmed, "[") {
		var arr []any
		if err := json.Unmarshal([]byte(trimmed), &arr); err == nil {
			return arr
		}
	}
	return c.raw
}

func (c *FlexCookie) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.raw = s
		return nil
	}
	// Array form: keep the original JSON text so Value() can re-decode it.
	var arr []any
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	c.raw = string(data)
	return nil
}

func (c FlexCookie) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.raw)
}

func (c *FlexCookie) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	c.raw = s
	return nil
}

func (c FlexCookie) MarshalYAML() (any, error) {
	return c.raw, nil
}

// DefaultConfigDir returns the default config directory (~/.nanobot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nanobot"
	}
	return filepath.Join(home, ".nanobot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// MediaDir returns the per-process directory for downloaded attachments.
func (c *Config) MediaDir() string {
	return filepath.Join(c.General.Workspace, "media")
}

// Load reads a config file (JSON by default, YAML for .yaml/.yml paths),
// substitutes environment variables, applies defaults and validates.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.Workspace = ExpandPath(cfg.General.Workspace)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	z := cfg.Channels.Zalo
	if z.Enabled {
		if z.BridgeURL == "" {
			errs = append(errs, "channels.zalo.bridgeUrl is required when the channel is enabled")
		} else if !strings.HasPrefix(z.BridgeURL, "ws://") && !strings.HasPrefix(z.BridgeURL, "wss://") {
			errs = append(errs, "channels.zalo.bridgeUrl must be a ws:// or wss:// URL")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
