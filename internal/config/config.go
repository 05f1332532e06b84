// Package config provides YAML-based configuration loading for QueryDesk.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/querydesk/internal/models"
	"github.com/zulandar/querydesk/internal/role"
	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the top-level QueryDesk configuration, loaded from querydesk.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Telegraph TelegraphConfig `yaml:"telegraph"`
	Branches  []BranchConfig  `yaml:"branches"`
	Users     []UserConfig    `yaml:"users"`
}

// DatabaseConfig holds connection settings for the backing SQL store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Path     string `yaml:"path"` // sqlite file, ":memory:" allowed
	Debug    bool   `yaml:"debug"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
	GinMode   string `yaml:"gin_mode"`
}

// RedisConfig enables the decision lock when URL is set.
type RedisConfig struct {
	URL     string        `yaml:"url"`
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"otlp_endpoint"`
	Insecure    bool   `yaml:"insecure"`
}

// TelegraphConfig configures approval notifications. Every adapter is optional.
type TelegraphConfig struct {
	Slack        SlackConfig   `yaml:"slack"`
	Discord      DiscordConfig `yaml:"discord"`
	Mail         MailConfig    `yaml:"mail"`
	DigestCron   string        `yaml:"digest_cron"`
	DigestMinAge time.Duration `yaml:"digest_min_age"`
}

// SlackConfig holds the Slack bot token and target channel.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds the Discord bot token and target channel.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// MailConfig holds SMTP settings. Recipients are resolved per event.
type MailConfig struct {
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	From     string            `yaml:"from"`
	Contacts map[string]string `yaml:"contacts"` // assignee name -> email
}

// BranchConfig seeds a Branch row.
type BranchConfig struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// UserConfig seeds a directory entry.
type UserConfig struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Role           string   `yaml:"role"`
	Team           string   `yaml:"team"`
	DecidableTypes []string `yaml:"decidable_types"`
	Inactive       bool     `yaml:"inactive"`
}

// Load reads a YAML config file from path, applies environment overrides,
// and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return parse(data, true)
}

// Parse unmarshals YAML bytes into a validated Config. The environment is
// not consulted.
func Parse(data []byte) (*Config, error) {
	return parse(data, false)
}

func parse(data []byte, withEnv bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if withEnv {
		cfg.applyEnv()
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides secrets from the environment so they can stay out of
// the YAML file.
func (c *Config) applyEnv() {
	overrides := []struct {
		key string
		dst *string
	}{
		{"QD_DB_PASSWORD", &c.Database.Password},
		{"QD_JWT_SECRET", &c.Server.JWTSecret},
		{"QD_REDIS_URL", &c.Redis.URL},
		{"QD_SLACK_BOT_TOKEN", &c.Telegraph.Slack.BotToken},
		{"QD_DISCORD_BOT_TOKEN", &c.Telegraph.Discord.BotToken},
		{"QD_SMTP_PASSWORD", &c.Telegraph.Mail.Password},
		{"OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.Endpoint},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			*o.dst = v
		}
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverMySQL
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case DriverPostgres:
			c.Database.Port = 5432
		default:
			c.Database.Port = 3306
		}
	}
	if c.Database.User == "" && c.Database.Driver == DriverMySQL {
		c.Database.User = "root"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 30 * time.Second
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "querydesk"
	}
	if c.Telegraph.Mail.Port == 0 {
		c.Telegraph.Mail.Port = 587
	}
	if c.Telegraph.DigestMinAge == 0 {
		c.Telegraph.DigestMinAge = 24 * time.Hour
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres:
		if c.Database.Name == "" {
			errs = append(errs, "database.name is required")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}

	if c.Telegraph.DigestCron != "" {
		if _, err := cron.ParseStandard(c.Telegraph.DigestCron); err != nil {
			errs = append(errs, fmt.Sprintf("telegraph.digest_cron: %v", err))
		}
	}

	seen := make(map[string]bool)
	for i, b := range c.Branches {
		if b.Code == "" {
			errs = append(errs, fmt.Sprintf("branches[%d].code is required", i))
			continue
		}
		if seen[b.Code] {
			errs = append(errs, fmt.Sprintf("branches[%d].code %q is duplicated", i, b.Code))
		}
		seen[b.Code] = true
	}

	for i, u := range c.Users {
		if u.ID == "" {
			errs = append(errs, fmt.Sprintf("users[%d].id is required", i))
		}
		if _, ok := role.Parse(u.Role); !ok {
			errs = append(errs, fmt.Sprintf("users[%d].role %q is not a known role", i, u.Role))
		}
		if u.Team != "" && !role.IsTeam(u.Team) {
			errs = append(errs, fmt.Sprintf("users[%d].team %q is not a known team", i, u.Team))
		}
		for _, t := range u.DecidableTypes {
			if t != models.RequestApprove && t != models.RequestDeferral && t != models.RequestOTC {
				errs = append(errs, fmt.Sprintf("users[%d].decidable_types: unknown type %q", i, t))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
