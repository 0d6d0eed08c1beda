package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all EngineerHub client configuration.
type Config struct {
	// REST API
	API APIConfig `yaml:"api"`

	// Real-time chat channel
	Chat ChatConfig `yaml:"chat"`

	// Query cache defaults
	Query QueryConfig `yaml:"query"`

	// Paginated lists
	Paging PagingConfig `yaml:"paging"`

	// Local state
	Storage StorageConfig `yaml:"storage"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the REST client.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token,omitempty"`
	Timeout string `yaml:"timeout"`
}

// ChatConfig configures the WebSocket channel.
type ChatConfig struct {
	URL                  string `yaml:"url"` // ws(s) root; rooms live under /ws/chat/<id>/
	ReconnectInterval    string `yaml:"reconnect_interval"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
}

// QueryConfig holds the query engine defaults.
type QueryConfig struct {
	CacheTime          string `yaml:"cache_time"`
	StaleTime          string `yaml:"stale_time"`
	RetryCount         int    `yaml:"retry_count"`
	RetryDelay         string `yaml:"retry_delay"`
	DebounceDelay      string `yaml:"debounce_delay"`
	RefetchOnFocus     bool   `yaml:"refetch_on_focus"`
	RefetchOnReconnect bool   `yaml:"refetch_on_reconnect"`
	SweepInterval      string `yaml:"sweep_interval"`
}

// PagingConfig configures paginated lists.
type PagingConfig struct {
	PageSize int `yaml:"page_size"`
}

// StorageConfig locates local state.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000/api",
			Timeout: "30s",
		},

		Chat: ChatConfig{
			URL:                  "ws://localhost:8000",
			ReconnectInterval:    "3s",
			MaxReconnectAttempts: 10,
		},

		Query: QueryConfig{
			CacheTime:          "5m",
			StaleTime:          "30s",
			RetryCount:         3,
			RetryDelay:         "1s",
			DebounceDelay:      "300ms",
			RefetchOnFocus:     true,
			RefetchOnReconnect: true,
			SweepInterval:      "60s",
		},

		Paging: PagingConfig{
			PageSize: 20,
		},

		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".engineerhub"
	}
	return filepath.Join(home, ".engineerhub")
}

// DefaultPath returns ~/.engineerhub/config.yaml.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if u := os.Getenv("ENGINEERHUB_API_URL"); u != "" {
		c.API.BaseURL = u
	}
	if u := os.Getenv("ENGINEERHUB_WS_URL"); u != "" {
		c.Chat.URL = u
	}
	if tok := os.Getenv("ENGINEERHUB_TOKEN"); tok != "" {
		c.API.Token = tok
	}
	if dir := os.Getenv("ENGINEERHUB_DATA_DIR"); dir != "" {
		c.Storage.DataDir = dir
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetAPITimeout returns the REST request timeout.
func (c *Config) GetAPITimeout() time.Duration {
	return parseDuration(c.API.Timeout, 30*time.Second)
}

// GetReconnectInterval returns the chat redial interval.
func (c *Config) GetReconnectInterval() time.Duration {
	return parseDuration(c.Chat.ReconnectInterval, 3*time.Second)
}

// GetCacheTime returns the hard expiry of cached queries.
func (c *Config) GetCacheTime() time.Duration {
	return parseDuration(c.Query.CacheTime, 5*time.Minute)
}

// GetStaleTime returns the age after which cached queries revalidate.
func (c *Config) GetStaleTime() time.Duration {
	return parseDuration(c.Query.StaleTime, 30*time.Second)
}

// GetRetryDelay returns the fixed delay between query retries.
func (c *Config) GetRetryDelay() time.Duration {
	return parseDuration(c.Query.RetryDelay, time.Second)
}

// GetDebounceDelay returns the query trigger debounce delay.
func (c *Config) GetDebounceDelay() time.Duration {
	return parseDuration(c.Query.DebounceDelay, 300*time.Millisecond)
}

// GetSweepInterval returns the cache expiry sweep interval.
func (c *Config) GetSweepInterval() time.Duration {
	return parseDuration(c.Query.SweepInterval, 60*time.Second)
}

// PrefsPath returns the preference database path.
func (c *Config) PrefsPath() string {
	return filepath.Join(c.Storage.DataDir, "prefs.db")
}

// ChatRoomURL returns the WebSocket URL of a conversation.
func (c *Config) ChatRoomURL(conversationID int) string {
	return fmt.Sprintf("%s/ws/chat/%d/", strings.TrimRight(c.Chat.URL, "/"), conversationID)
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration. Every problem is reported, joined
// under ErrInvalid.
func (c *Config) Validate() error {
	var errs []error

	if err := checkURL(c.API.BaseURL, "http", "https"); err != nil {
		errs = append(errs, fmt.Errorf("api.base_url: %w", err))
	}
	if err := checkURL(c.Chat.URL, "ws", "wss"); err != nil {
		errs = append(errs, fmt.Errorf("chat.url: %w", err))
	}

	durations := []struct {
		name, value string
	}{
		{"api.timeout", c.API.Timeout},
		{"chat.reconnect_interval", c.Chat.ReconnectInterval},
		{"query.cache_time", c.Query.CacheTime},
		{"query.stale_time", c.Query.StaleTime},
		{"query.retry_delay", c.Query.RetryDelay},
		{"query.debounce_delay", c.Query.DebounceDelay},
		{"query.sweep_interval", c.Query.SweepInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
		} else if v < 0 {
			errs = append(errs, fmt.Errorf("%s: must not be negative", d.name))
		}
	}
	if c.GetStaleTime() >= c.GetCacheTime() {
		errs = append(errs, fmt.Errorf("query.stale_time (%s) must be shorter than query.cache_time (%s)",
			c.Query.StaleTime, c.Query.CacheTime))
	}

	if c.Query.RetryCount < 0 {
		errs = append(errs, fmt.Errorf("query.retry_count: must not be negative"))
	}
	if c.Chat.MaxReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("chat.max_reconnect_attempts: must not be negative"))
	}
	if c.Paging.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("paging.page_size: must be positive"))
	}

	validLevel := false
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		errs = append(errs, fmt.Errorf("logging.level: %q (valid: %v)", c.Logging.Level, ValidLogLevels))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%q: want %s URL", raw, strings.Join(schemes, " or "))
}
