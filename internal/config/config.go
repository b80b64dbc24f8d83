package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

type PromptConfig struct {
	Canonicalize string `toml:"canonicalize"`
	Starters     string `toml:"starters"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type SQLiteConfig struct {
	Path string `toml:"path"`
}

type StoreConfig struct {
	Backend string `toml:"backend" validate:"oneof=memgraph sqlite memory"`
}

type SlackConfig struct {
	BotToken      string `toml:"bot_token"`
	SigningSecret string `toml:"signing_secret"`
	APIURL        string `toml:"api_url"`
	// PrivateRooms creates invite-only conversations.
	PrivateRooms  bool   `toml:"private_rooms"`
}

type RedisConfig struct {
	URL     string   `toml:"url"`
	LockTTL Duration `toml:"lock_ttl"`
}

type MatchingConfig struct {
	MaxGroupSize     int      `toml:"max_group_size" validate:"gte=2"`
	Workers          int      `toml:"workers" validate:"gte=1"`
	OracleTimeout    Duration `toml:"oracle_timeout"`
	TransportTimeout Duration `toml:"transport_timeout"`
	RatePerSecond    float64  `toml:"rate_per_second" validate:"gte=0"`
	StartersCount    int      `toml:"starters_count" validate:"gte=0"`
	NotifyUnmatched  bool     `toml:"notify_unmatched"`
	ClearResponses   bool     `toml:"clear_responses"`
}

type ServerConfig struct {
	Port      string `toml:"port" validate:"required"`
	CronToken string `toml:"cron_token"`
	// RunTimeout bounds a triggered cycle independently of the caller.
	RunTimeout Duration `toml:"run_timeout"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `toml:"format" validate:"omitempty,oneof=console json"`
	File   string `toml:"file"`
}

type Config struct {
	LLM      LLMConfig      `toml:"llm"`
	Memgraph MemgraphConfig `toml:"memgraph"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Store    StoreConfig    `toml:"store"`
	Slack    SlackConfig    `toml:"slack"`
	Redis    RedisConfig    `toml:"redis"`
	Matching MatchingConfig `toml:"matching"`
	Prompts  PromptConfig   `toml:"prompts"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// Duration lets TOML files say "30s" instead of nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() *Config {
	return &Config{
		Memgraph: MemgraphConfig{URI: "bolt://localhost:7687"},
		SQLite:   SQLiteConfig{Path: "data/responses.db"},
		Store:    StoreConfig{Backend: "memgraph"},
		Slack:    SlackConfig{PrivateRooms: true},
		Redis:    RedisConfig{LockTTL: Duration{15 * time.Minute}},
		Matching: MatchingConfig{
			MaxGroupSize:     10,
			Workers:          4,
			OracleTimeout:    Duration{30 * time.Second},
			TransportTimeout: Duration{10 * time.Second},
			RatePerSecond:    1,
			StartersCount:    3,
			NotifyUnmatched:  true,
		},
		Server: ServerConfig{Port: "8080", RunTimeout: Duration{30 * time.Minute}},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads the TOML file on top of Default. A missing file is not an error;
// the defaults plus environment overrides are enough to boot.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides file values with environment variables when set.
func (c *Config) ApplyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.Memgraph.URI, "MEMGRAPH_URI")
	setString(&c.Memgraph.User, "MEMGRAPH_USER")
	setString(&c.Memgraph.Password, "MEMGRAPH_PASSWORD")
	setString(&c.SQLite.Path, "SQLITE_PATH")
	setString(&c.Store.Backend, "STORE_BACKEND")
	setString(&c.Slack.BotToken, "SLACK_BOT_TOKEN")
	setString(&c.Slack.SigningSecret, "SLACK_SIGNING_SECRET")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Server.Port, "PORT")
	setString(&c.Server.CronToken, "CRON_TOKEN")
	setString(&c.Log.Level, "LOG_LEVEL")

	if v := os.Getenv("MATCH_MAX_GROUP_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Matching.MaxGroupSize = n
		}
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
