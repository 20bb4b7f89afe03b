// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Stability StabilityConfig `mapstructure:"stability" yaml:"stability"`
	Oracle    OracleConfig    `mapstructure:"oracle" yaml:"oracle"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Task      TaskConfig      `mapstructure:"task" yaml:"task"`
	Guide     GuideConfig     `mapstructure:"guide" yaml:"guide"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Registry  RegistryConfig  `mapstructure:"registry" yaml:"registry"`
}

// LoggerConfig defines settings for application logging.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig allows customizing the console color per log level.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the managed Chrome instance.
type BrowserConfig struct {
	Headless     bool     `mapstructure:"headless" yaml:"headless"`
	Debug        bool     `mapstructure:"debug" yaml:"debug"`
	UserAgent    string   `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth  int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int      `mapstructure:"window_height" yaml:"window_height"`
	MaxSessions  int      `mapstructure:"max_sessions" yaml:"max_sessions"`
	ExtraFlags   []string `mapstructure:"extra_flags" yaml:"extra_flags"`
}

// NetworkConfig holds page-level timing settings.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	QuiescenceTimeout time.Duration `mapstructure:"quiescence_timeout" yaml:"quiescence_timeout"`
	PostLoadSettle    time.Duration `mapstructure:"post_load_settle" yaml:"post_load_settle"`
}

// StabilityConfig tunes the DOM settlement poller that runs between actions.
type StabilityConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxPolls          int           `mapstructure:"max_polls" yaml:"max_polls"`
	StableThreshold   int           `mapstructure:"stable_threshold" yaml:"stable_threshold"`
	QuiescenceTimeout time.Duration `mapstructure:"quiescence_timeout" yaml:"quiescence_timeout"`
}

// OracleConfig configures the vision model that decides the next action.
type OracleConfig struct {
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	Temperature       float32       `mapstructure:"temperature" yaml:"temperature"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxElements       int           `mapstructure:"max_elements" yaml:"max_elements"`
	HistoryWindow     int           `mapstructure:"history_window" yaml:"history_window"`
	RequestsPerMinute float64       `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// AuthConfig tunes the login state machine.
type AuthConfig struct {
	MaxSteps          int           `mapstructure:"max_steps" yaml:"max_steps"`
	StuckThreshold    int           `mapstructure:"stuck_threshold" yaml:"stuck_threshold"`
	HumanWaitTimeout  time.Duration `mapstructure:"human_wait_timeout" yaml:"human_wait_timeout"`
	HumanPollInterval time.Duration `mapstructure:"human_poll_interval" yaml:"human_poll_interval"`
}

// TaskConfig bounds the goal-directed action loop.
type TaskConfig struct {
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
}

// GuideConfig controls screenshot capture and guide generation output.
type GuideConfig struct {
	OutputDir string   `mapstructure:"output_dir" yaml:"output_dir"`
	Formats   []string `mapstructure:"formats" yaml:"formats"`
}

// PostgresConfig holds the connection details for a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DSN renders the config as a pgx-compatible connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// StoreConfig specifies the optional run persistence backend.
type StoreConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// RegistryConfig points at the credential source for known applications.
type RegistryConfig struct {
	EnvFile string `mapstructure:"env_file" yaml:"env_file"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "guidecap")
	v.SetDefault("logger.log_file", "guidecap.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.max_sessions", 4)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "30s")
	v.SetDefault("network.quiescence_timeout", "10s")
	v.SetDefault("network.post_load_settle", "1s")

	// -- Stability --
	v.SetDefault("stability.poll_interval", "300ms")
	v.SetDefault("stability.max_polls", 10)
	v.SetDefault("stability.stable_threshold", 3)
	v.SetDefault("stability.quiescence_timeout", "5s")

	// -- Oracle --
	v.SetDefault("oracle.model", "gemini-2.5-flash")
	v.SetDefault("oracle.temperature", 0.2)
	v.SetDefault("oracle.api_timeout", "90s")
	v.SetDefault("oracle.max_elements", 50)
	v.SetDefault("oracle.history_window", 10)
	v.SetDefault("oracle.requests_per_minute", 30.0)

	// -- Auth --
	v.SetDefault("auth.max_steps", 10)
	v.SetDefault("auth.stuck_threshold", 2)
	v.SetDefault("auth.human_wait_timeout", "300s")
	v.SetDefault("auth.human_poll_interval", "2s")

	// -- Task --
	v.SetDefault("task.max_steps", 50)

	// -- Guide --
	v.SetDefault("guide.output_dir", "guides")
	v.SetDefault("guide.formats", []string{"markdown", "json", "html"})

	// -- Store --
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "postgres")
	v.SetDefault("store.postgres.password", "") // Should be set via env var
	v.SetDefault("store.postgres.dbname", "guidecap")
	v.SetDefault("store.postgres.sslmode", "disable")

	// -- Registry --
	v.SetDefault("registry.env_file", ".env")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("oracle.api_key", "GUIDECAP_ORACLE_API_KEY")
	v.BindEnv("store.postgres.password", "GUIDECAP_DB_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Browser.MaxSessions <= 0 {
		return fmt.Errorf("browser.max_sessions must be a positive integer")
	}
	if c.Task.MaxSteps <= 0 {
		return fmt.Errorf("task.max_steps must be a positive integer")
	}
	if c.Auth.MaxSteps <= 0 {
		return fmt.Errorf("auth.max_steps must be a positive integer")
	}
	if err := c.Stability.Validate(); err != nil {
		return fmt.Errorf("stability configuration invalid: %w", err)
	}
	if c.Oracle.Model == "" {
		return fmt.Errorf("oracle.model is a required configuration field")
	}
	if c.Oracle.MaxElements <= 0 {
		return fmt.Errorf("oracle.max_elements must be a positive integer")
	}
	if c.Store.Enabled && c.Store.Postgres.DBName == "" {
		return fmt.Errorf("store.postgres.dbname is required when the store is enabled")
	}
	return nil
}

// Validate checks the stability poller settings.
func (s *StabilityConfig) Validate() error {
	if s.MaxPolls <= 0 {
		return fmt.Errorf("max_polls must be greater than 0")
	}
	if s.StableThreshold <= 0 || s.StableThreshold > s.MaxPolls {
		return fmt.Errorf("stable_threshold must be between 1 and max_polls")
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	return nil
}
