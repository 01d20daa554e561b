package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	xdgAppName = "taskdeck"
	configFile = "config.json"

	BackendSupabase = "supabase"
	BackendLocal    = "local"
)

type Config struct {
	Backend  string         `mapstructure:"backend" json:"backend"`
	Supabase SupabaseConfig `mapstructure:"supabase" json:"supabase"`
	Local    LocalConfig    `mapstructure:"local" json:"local"`
	Gateway  GatewayConfig  `mapstructure:"gateway" json:"gateway"`
	AI       AIConfig       `mapstructure:"ai" json:"ai"`
	Weather  WeatherConfig  `mapstructure:"weather" json:"weather"`
	Calendar CalendarConfig `mapstructure:"calendar" json:"calendar"`
}

type SupabaseConfig struct {
	URL           string `mapstructure:"url" json:"url"`
	AnonKey       string `mapstructure:"anon_key" json:"anon_key"`
	TasksTable    string `mapstructure:"tasks_table" json:"tasks_table"`
	ProfilesTable string `mapstructure:"profiles_table" json:"profiles_table"`
}

type LocalConfig struct {
	DBPath string `mapstructure:"db_path" json:"db_path"`
	UserID string `mapstructure:"user_id" json:"user_id"`
	Email  string `mapstructure:"email" json:"email"`
	Role   string `mapstructure:"role" json:"role"`
}

type GatewayConfig struct {
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout"`
	RetryMax int           `mapstructure:"retry_max" json:"retry_max"`
}

type AIConfig struct {
	APIKey    string        `mapstructure:"api_key" json:"api_key,omitempty"`
	Model     string        `mapstructure:"model" json:"model"`
	Timeout   time.Duration `mapstructure:"timeout" json:"timeout"`
	StepDelay time.Duration `mapstructure:"step_delay" json:"step_delay"`
}

type WeatherConfig struct {
	DefaultCity string  `mapstructure:"default_city" json:"default_city"`
	Latitude    float64 `mapstructure:"latitude" json:"latitude"`
	Longitude   float64 `mapstructure:"longitude" json:"longitude"`
	Language    string  `mapstructure:"language" json:"language"`
}

type CalendarConfig struct {
	Name string `mapstructure:"name" json:"name"`
}

func defaults(v *viper.Viper, home string) {
	v.SetDefault("backend", BackendSupabase)
	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.anon_key", "")
	v.SetDefault("supabase.tasks_table", "todos")
	v.SetDefault("supabase.profiles_table", "profiles")
	v.SetDefault("local.db_path", filepath.Join(home, "taskdeck.db"))
	v.SetDefault("local.user_id", "local")
	v.SetDefault("local.email", "")
	v.SetDefault("local.role", "user")
	v.SetDefault("gateway.timeout", 10*time.Second)
	v.SetDefault("gateway.retry_max", 2)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gemini-2.5-flash")
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("ai.step_delay", 300*time.Millisecond)
	v.SetDefault("weather.default_city", "Prague")
	v.SetDefault("weather.latitude", 55.75)
	v.SetDefault("weather.longitude", 37.61)
	v.SetDefault("weather.language", "en")
	v.SetDefault("calendar.name", "Tasks")
}

// GetXdgHome returns the directory holding config, session and index files.
func GetXdgHome() (string, error) {
	if dir := os.Getenv("TASKDECK_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := GetXdgHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads the config file at path (empty means the default location),
// applies TASKDECK_* environment overrides and fills in defaults. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	home, err := GetXdgHome()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = filepath.Join(home, configFile)
	}

	v := viper.New()
	defaults(v, home)
	v.SetEnvPrefix("TASKDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("ai.api_key", "TASKDECK_AI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("supabase.url", "TASKDECK_SUPABASE_URL", "SUPABASE_URL")
	_ = v.BindEnv("supabase.anon_key", "TASKDECK_SUPABASE_ANON_KEY", "SUPABASE_ANON_KEY")

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, cfg.Validate()
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSupabase, BackendLocal:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendSupabase, BackendLocal)
	}
	if c.Gateway.RetryMax < 0 {
		return fmt.Errorf("gateway.retry_max must not be negative")
	}
	if c.AI.StepDelay < 0 {
		return fmt.Errorf("ai.step_delay must not be negative")
	}
	return nil
}

// Save writes cfg to path (empty means the default location). The AI key is
// never written back; it belongs in the environment.
func Save(path string, cfg *Config) error {
	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return err
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file for writing: %w", err)
	}
	defer f.Close()

	out := *cfg
	out.AI.APIKey = ""
	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&out)
}
