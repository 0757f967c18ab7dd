package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// QueueScope selects which key pending changes are grouped under.
type QueueScope string

// QueueScope values.
const (
	QueueScopeUser      QueueScope = "user"
	QueueScopeComplaint QueueScope = "complaint"
)

// Config holds all runtime settings loaded from TOML.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	API      APIConfig      `toml:"api"`
	Auth     AuthConfig     `toml:"auth"`
	AutoSave AutoSaveConfig `toml:"autosave"`
	History  HistoryConfig  `toml:"history"`
	Offline  OfflineConfig  `toml:"offline"`
	Serve    ServeConfig    `toml:"serve"`
	Form     FormConfig     `toml:"form"`
	Logging  LoggingConfig  `toml:"logging"`
	Keys     KeyConfig      `toml:"keys"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type APIConfig struct {
	BaseURL        string  `toml:"base_url"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RateLimit      float64 `toml:"rate_limit"`
	RateBurst      int     `toml:"rate_burst"`
}

type AuthConfig struct {
	TokenFile string `toml:"token_file"`
	TokenEnv  string `toml:"token_env"`
	// UserID is used when the token carries no readable subject.
	UserID string `toml:"user_id"`
}

type AutoSaveConfig struct {
	Enabled         bool `toml:"enabled"`
	IntervalSeconds int  `toml:"interval_seconds"`
}

type HistoryConfig struct {
	MaxDepth int `toml:"max_depth"`
}

type OfflineConfig struct {
	QueueScope           QueueScope `toml:"queue_scope"`
	ProbeIntervalSeconds int        `toml:"probe_interval_seconds"`
	FailureThreshold     int        `toml:"failure_threshold"`
}

type ServeConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

type FormConfig struct {
	DefinitionPath string `toml:"definition_path"`
	PreviewStyle   string `toml:"preview_style"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type KeyConfig struct {
	Undo           string `toml:"undo"`
	Redo           string `toml:"redo"`
	Save           string `toml:"save"`
	ToggleAutoSave string `toml:"toggle_autosave"`
	Replay         string `toml:"replay"`
	Copy           string `toml:"copy"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		API: APIConfig{
			BaseURL:        "http://127.0.0.1:8000/api",
			TimeoutSeconds: 15,
			RateLimit:      5,
			RateBurst:      5,
		},
		Auth: AuthConfig{
			TokenEnv: "COMPLAINTDESK_TOKEN",
		},
		AutoSave: AutoSaveConfig{
			Enabled:         true,
			IntervalSeconds: 30,
		},
		History: HistoryConfig{
			MaxDepth: 100,
		},
		Offline: OfflineConfig{
			QueueScope:           QueueScopeUser,
			ProbeIntervalSeconds: 5,
			FailureThreshold:     2,
		},
		Serve: ServeConfig{
			HTTPBind:    "127.0.0.1:5437",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".complaintdesk/log",
			},
		},
		Keys: KeyConfig{
			Undo:           "u",
			Redo:           "U",
			Save:           "s",
			ToggleAutoSave: "a",
			Replay:         "r",
			Copy:           "y",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	base, err := url.Parse(strings.TrimSpace(c.API.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("invalid api.base_url: %q", c.API.BaseURL)
	}
	if c.API.TimeoutSeconds <= 0 {
		return errors.New("api.timeout_seconds must be > 0")
	}
	if c.API.RateLimit < 0 {
		return errors.New("api.rate_limit must be >= 0")
	}
	if c.API.RateBurst < 0 {
		return errors.New("api.rate_burst must be >= 0")
	}

	if c.AutoSave.IntervalSeconds <= 0 {
		return errors.New("autosave.interval_seconds must be > 0")
	}
	if c.History.MaxDepth <= 0 {
		return errors.New("history.max_depth must be > 0")
	}

	switch c.Offline.QueueScope {
	case QueueScopeUser, QueueScopeComplaint:
	default:
		return fmt.Errorf("invalid offline.queue_scope: %q", c.Offline.QueueScope)
	}
	if c.Offline.ProbeIntervalSeconds <= 0 {
		return errors.New("offline.probe_interval_seconds must be > 0")
	}
	if c.Offline.FailureThreshold <= 0 {
		return errors.New("offline.failure_threshold must be > 0")
	}

	if strings.TrimSpace(c.Serve.HTTPBind) == "" {
		return errors.New("serve.http_bind is required")
	}
	for name, endpoint := range map[string]string{"serve.api_endpoint": c.Serve.APIEndpoint, "serve.mcp_endpoint": c.Serve.MCPEndpoint} {
		if !strings.HasPrefix(strings.TrimSpace(endpoint), "/") {
			return fmt.Errorf("%s must start with /: %q", name, endpoint)
		}
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	seenKeys := map[string]string{}
	for name, binding := range map[string]string{
		"undo":            c.Keys.Undo,
		"redo":            c.Keys.Redo,
		"save":            c.Keys.Save,
		"toggle_autosave": c.Keys.ToggleAutoSave,
		"replay":          c.Keys.Replay,
		"copy":            c.Keys.Copy,
	} {
		binding = strings.TrimSpace(binding)
		if binding == "" {
			return fmt.Errorf("keys.%s is required", name)
		}
		if other, ok := seenKeys[binding]; ok {
			return fmt.Errorf("keys.%s duplicates keys.%s: %q", name, other, binding)
		}
		seenKeys[binding] = name
	}

	return nil
}

// APITimeout returns the request timeout as a duration.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// AutoSaveInterval returns the auto-save interval as a duration.
func (c Config) AutoSaveInterval() time.Duration {
	return time.Duration(c.AutoSave.IntervalSeconds) * time.Second
}

// ProbeInterval returns the connectivity probe interval as a duration.
func (c Config) ProbeInterval() time.Duration {
	return time.Duration(c.Offline.ProbeIntervalSeconds) * time.Second
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
