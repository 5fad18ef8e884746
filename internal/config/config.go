package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Storage   StorageConfig  `mapstructure:"storage"`
	Discord   DiscordConfig  `mapstructure:"discord"`
	Pushover  PushoverConfig `mapstructure:"pushover"`
	Announcer QueueConfig    `mapstructure:"announcer"`
	Reminders QueueConfig    `mapstructure:"reminders"`
	Worker    WorkerConfig   `mapstructure:"worker"`
	Logging   LoggingConfig  `mapstructure:"logging"`
	Schedule  ScheduleConfig `mapstructure:"schedule"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	APIToken string `mapstructure:"api_token"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"` // json or badger
	Dir     string `mapstructure:"dir"`
}

type DiscordConfig struct {
	Token         string `mapstructure:"token"`
	CommandPrefix string `mapstructure:"command_prefix"`
}

type PushoverConfig struct {
	Token  string `mapstructure:"token"`
	APIURL string `mapstructure:"api_url"`
}

// QueueConfig configures one delivery queue and its ticker.
type QueueConfig struct {
	Name       string        `mapstructure:"name"`
	TickPeriod time.Duration `mapstructure:"tick_period"`
}

type WorkerConfig struct {
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

type ScheduleConfig struct {
	Timezone   string `mapstructure:"timezone"`
	TimeLayout string `mapstructure:"time_layout"`
}

// Location resolves the configured timezone. Validation guarantees it loads.
func (c ScheduleConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("SCHEDULER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.api_token", "")

	v.SetDefault("storage.backend", "json")
	v.SetDefault("storage.dir", "./data")

	v.SetDefault("discord.token", "")
	v.SetDefault("discord.command_prefix", "!")

	v.SetDefault("pushover.token", "")
	v.SetDefault("pushover.api_url", "https://api.pushover.net/1/messages.json")

	v.SetDefault("announcer.name", "announcements")
	v.SetDefault("announcer.tick_period", "60s")
	v.SetDefault("reminders.name", "reminders")
	v.SetDefault("reminders.tick_period", "30s")

	v.SetDefault("worker.delivery_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("schedule.timezone", "UTC")
	v.SetDefault("schedule.time_layout", "2006-01-02_15:04")
}

func (c *Config) Validate() error {
	for _, q := range []QueueConfig{c.Announcer, c.Reminders} {
		if q.Name == "" {
			return fmt.Errorf("queue name must not be empty")
		}
		if q.TickPeriod <= 0 {
			return fmt.Errorf("%s.tick_period must be positive", q.Name)
		}
	}
	if c.Announcer.Name == c.Reminders.Name {
		return fmt.Errorf("announcer and reminders must use different queue names")
	}
	switch c.Storage.Backend {
	case "json", "badger":
	default:
		return fmt.Errorf("storage.backend must be json or badger, got %q", c.Storage.Backend)
	}
	if c.Worker.DeliveryTimeout <= 0 {
		return fmt.Errorf("worker.delivery_timeout must be positive")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	return nil
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
