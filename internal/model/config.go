package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Remote table drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverREST     = "rest"
	DriverMongo    = "mongo"
)

// RemoteConfig selects and configures the backend that holds the leads table.
type RemoteConfig struct {
	// Driver is one of sqlite, postgres, rest, mongo.
	Driver string `mapstructure:"driver" yaml:"driver"`

	// Table is the name of the leads table (or collection).
	Table string `mapstructure:"table" yaml:"table"`

	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`

	// RESTURL is the project URL of a PostgREST/Supabase compatible API.
	// The API key is read from the keyring (see credential.KeyRemoteAPIKey)
	// or CRM_REMOTE_API_KEY.
	RESTURL string `mapstructure:"rest_url" yaml:"rest_url"`

	MongoURI      string `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database"`
}

// FeedConfig configures the optional Redis relay for change events.
type FeedConfig struct {
	RedisURL string `mapstructure:"redis_url" yaml:"redis_url"`
	Channel  string `mapstructure:"channel" yaml:"channel"`
}

// S3Config locates CSV imports stored in S3 or an S3-compatible service.
type S3Config struct {
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	PathStyle bool   `mapstructure:"path_style" yaml:"path_style"`
}

// ImportConfig holds import source settings.
type ImportConfig struct {
	S3 S3Config `mapstructure:"s3" yaml:"s3"`
}

// InboxConfig describes the IMAP mailbox that receives trip inquiries.
// The password is read from the keyring (credential.KeyInboxPassword).
type InboxConfig struct {
	Host      string `mapstructure:"host" yaml:"host"`
	Port      string `mapstructure:"port" yaml:"port"`
	Username  string `mapstructure:"username" yaml:"username"`
	TLS       bool   `mapstructure:"tls" yaml:"tls"`
	Mailbox   string `mapstructure:"mailbox" yaml:"mailbox"`
	SinceDays int    `mapstructure:"since_days" yaml:"since_days"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Console bool   `mapstructure:"console" yaml:"console"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// RemindersConfig controls the due-reminder poller.
type RemindersConfig struct {
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Remote    RemoteConfig    `mapstructure:"remote" yaml:"remote"`
	Feed      FeedConfig      `mapstructure:"feed" yaml:"feed"`
	Import    ImportConfig    `mapstructure:"import" yaml:"import"`
	Inbox     InboxConfig     `mapstructure:"inbox" yaml:"inbox"`
	Users     []User          `mapstructure:"users" yaml:"users"`
	Display   DisplayConfig   `mapstructure:"display" yaml:"display"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Reminders RemindersConfig `mapstructure:"reminders" yaml:"reminders"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/travelcrm/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "travelcrm", "config.yaml")
}

// DefaultDataPath returns the default location of the embedded SQLite table.
func DefaultDataPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "travelcrm.db")
	}
	return filepath.Join(home, ".local", "share", "travelcrm", "travelcrm.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Remote: RemoteConfig{
			Driver:        DriverSQLite,
			Table:         "leads",
			SQLitePath:    DefaultDataPath(),
			MongoDatabase: "travelcrm",
		},
		Feed: FeedConfig{
			Channel: "travelcrm:leads",
		},
		Import: ImportConfig{
			S3: S3Config{Region: "us-east-1"},
		},
		Inbox: InboxConfig{
			Port:      "993",
			TLS:       true,
			Mailbox:   "INBOX",
			SinceDays: 7,
		},
		Users: []User{
			{Name: "Admin", Role: RoleAdmin, Passcode: "0000"},
		},
		Display: DisplayConfig{
			Theme: "default",
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		Reminders: RemindersConfig{
			PollIntervalSec: 60,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with CRM_ override file values
// (e.g. CRM_REMOTE_DRIVER). If the file does not exist, defaults are used.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults must be registered for AutomaticEnv to see nested keys.
	def := defaultAppConfig()
	v.SetDefault("remote.driver", def.Remote.Driver)
	v.SetDefault("remote.table", def.Remote.Table)
	v.SetDefault("remote.sqlite_path", def.Remote.SQLitePath)
	v.SetDefault("remote.postgres_dsn", "")
	v.SetDefault("remote.rest_url", "")
	v.SetDefault("remote.mongo_uri", "")
	v.SetDefault("remote.mongo_database", def.Remote.MongoDatabase)
	v.SetDefault("feed.redis_url", "")
	v.SetDefault("feed.channel", def.Feed.Channel)
	v.SetDefault("import.s3.bucket", "")
	v.SetDefault("import.s3.region", def.Import.S3.Region)
	v.SetDefault("import.s3.endpoint", "")
	v.SetDefault("import.s3.path_style", false)
	v.SetDefault("inbox.host", "")
	v.SetDefault("inbox.port", def.Inbox.Port)
	v.SetDefault("inbox.username", "")
	v.SetDefault("inbox.tls", def.Inbox.TLS)
	v.SetDefault("inbox.mailbox", def.Inbox.Mailbox)
	v.SetDefault("inbox.since_days", def.Inbox.SinceDays)
	v.SetDefault("display.theme", def.Display.Theme)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.console", def.Log.Console)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("reminders.poll_interval_sec", def.Reminders.PollIntervalSec)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Reminders.PollIntervalSec <= 0 {
		cfg.Reminders.PollIntervalSec = 60
	}
	if cfg.Remote.Table == "" {
		cfg.Remote.Table = "leads"
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("remote", cfg.Remote)
	v.Set("feed", cfg.Feed)
	v.Set("import", cfg.Import)
	v.Set("inbox", cfg.Inbox)
	v.Set("users", cfg.Users)
	v.Set("display", cfg.Display)
	v.Set("log", cfg.Log)
	v.Set("metrics", cfg.Metrics)
	v.Set("reminders", cfg.Reminders)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
