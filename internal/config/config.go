package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "config/ideasync.yaml"

// Config is the root configuration structure. It is read-only after Load
// returns.
type Config struct {
	Notion      NotionConfig      `yaml:"notion"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Inbox       InboxConfig       `yaml:"inbox"`
	Server      ServerConfig      `yaml:"server"`
	Relay       RelayConfig       `yaml:"relay"`
	Log         LogConfig         `yaml:"log"`
}

// NotionConfig controls how records are written.
type NotionConfig struct {
	// RelayURL is the CORS relay base URL. Empty means calling the Notion
	// API directly.
	RelayURL      string   `yaml:"relay_url"`
	APIVersion    string   `yaml:"api_version"`
	Timeout       Duration `yaml:"timeout"`
	TitleProperty string   `yaml:"title_property"`
	TagProperty   string   `yaml:"tag_property"`

	APIKey     string `yaml:"-"` // env-only, never in YAML
	DatabaseID string `yaml:"-"` // env-only, never in YAML
}

type CredentialsConfig struct {
	DSN string `yaml:"dsn"`
}

type InboxConfig struct {
	Dir          string   `yaml:"dir"`
	Debounce     Duration `yaml:"debounce"`
	PollInterval Duration `yaml:"poll_interval"`
}

// ServerConfig contains the local HTTP API settings.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes"`

	APIKey string `yaml:"-"` // env-only, never in YAML
}

type RelayConfig struct {
	Addr         string   `yaml:"addr"`
	Upstream     string   `yaml:"upstream"`
	Timeout      Duration `yaml:"timeout"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// The file path comes from IDEASYNC_CONFIG_PATH; a missing file is not an error.
func Load() (*Config, error) {
	return LoadPath(getEnv("IDEASYNC_CONFIG_PATH", DefaultConfigPath), false)
}

// LoadPath loads configuration from path. When required is true the file
// must exist.
func LoadPath(path string, required bool) (*Config, error) {
	cfg := newDefaults()

	if err := loadYAMLFile(cfg, path, required); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newDefaults() *Config {
	return &Config{
		Notion: NotionConfig{
			APIVersion:    "2022-06-28",
			Timeout:       Duration(20 * time.Second),
			TitleProperty: "Nom",
			TagProperty:   "Tags",
		},
		Credentials: CredentialsConfig{
			DSN: "file://data/credentials.json",
		},
		Inbox: InboxConfig{
			Dir:      "data/inbox",
			Debounce: Duration(500 * time.Millisecond),
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
			MaxBodyBytes:    1 << 20,
		},
		Relay: RelayConfig{
			Addr:         ":8787",
			Upstream:     "https://api.notion.com",
			Timeout:      Duration(30 * time.Second),
			MaxBodyBytes: 1 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func loadYAMLFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Notion
	if v := os.Getenv("IDEASYNC_RELAY_URL"); v != "" {
		cfg.Notion.RelayURL = v
	}
	if v := os.Getenv("IDEASYNC_NOTION_VERSION"); v != "" {
		cfg.Notion.APIVersion = v
	}
	if v := os.Getenv("IDEASYNC_NOTION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Notion.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("NOTION_API_KEY"); v != "" {
		cfg.Notion.APIKey = v
	}
	if v := os.Getenv("NOTION_DATABASE_ID"); v != "" {
		cfg.Notion.DatabaseID = v
	}

	// Credentials
	if v := os.Getenv("IDEASYNC_CREDENTIALS_DSN"); v != "" {
		cfg.Credentials.DSN = v
	}

	// Inbox
	if v := os.Getenv("IDEASYNC_INBOX_DIR"); v != "" {
		cfg.Inbox.Dir = v
	}
	if v := os.Getenv("IDEASYNC_INBOX_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Inbox.Debounce = Duration(d)
		}
	}
	if v := os.Getenv("IDEASYNC_INBOX_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Inbox.PollInterval = Duration(d)
		}
	}

	// Server
	if v := os.Getenv("IDEASYNC_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("IDEASYNC_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("IDEASYNC_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MaxBodyBytes = n
		}
	}

	// Relay
	if v := os.Getenv("IDEASYNC_RELAY_ADDR"); v != "" {
		cfg.Relay.Addr = v
	}
	if v := os.Getenv("IDEASYNC_RELAY_UPSTREAM"); v != "" {
		cfg.Relay.Upstream = v
	}

	// Log
	if v := os.Getenv("IDEASYNC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("IDEASYNC_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q is not one of json, text", c.Log.Format)
	}
	if strings.TrimSpace(c.Notion.RelayURL) != "" {
		if err := validateHTTPURL("notion.relay_url", c.Notion.RelayURL); err != nil {
			return err
		}
	}
	if err := validateHTTPURL("relay.upstream", c.Relay.Upstream); err != nil {
		return err
	}
	if c.Notion.Timeout <= 0 || c.Relay.Timeout <= 0 {
		return errors.New("notion.timeout and relay.timeout must be positive")
	}
	if strings.TrimSpace(c.Inbox.Dir) == "" {
		return errors.New("inbox.dir is required")
	}
	if c.Inbox.PollInterval < 0 {
		return errors.New("inbox.poll_interval must not be negative")
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%s %q must be an http(s) URL", field, raw)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
