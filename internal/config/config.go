// Package config loads the bot configuration from defaults, an optional YAML
// file and TPMB_* environment variables, then validates it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const envPrefix = "TPMB"

// Config is the root configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Broadcast   BroadcastConfig   `mapstructure:"broadcast"`
	TimeSource  TimeSourceConfig  `mapstructure:"time_source"`
	Session     SessionConfig     `mapstructure:"session"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Owner       OwnerConfig       `mapstructure:"owner"`
	Messages    MessagesConfig    `mapstructure:"messages"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig seeds the encrypted credential store on first start. Once
// credentials are stored they take precedence over these values.
type TelegramConfig struct {
	Token          string        `mapstructure:"token"`
	OperatorID     int64         `mapstructure:"operator_id" validate:"gte=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=1s,max=5m"`
}

type BroadcastConfig struct {
	DefaultInterval    time.Duration `mapstructure:"default_interval" validate:"gtefield=MinInterval"`
	MinInterval        time.Duration `mapstructure:"min_interval" validate:"min=1s"`
	SendTimeout        time.Duration `mapstructure:"send_timeout" validate:"min=1s,max=5m"`
	MaxConcurrentSends int           `mapstructure:"max_concurrent_sends" validate:"min=1,max=64"`
	AutoStart          bool          `mapstructure:"auto_start"`
	DefaultMessage     string        `mapstructure:"default_message"`
}

type TimeSourceConfig struct {
	Servers      []string      `mapstructure:"servers" validate:"required,min=1,dive,required"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"min=100ms,max=1m"`
	MaxOffsetAge time.Duration `mapstructure:"max_offset_age" validate:"min=1m"`
}

type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl" validate:"min=1m"`
	RelayInterval time.Duration `mapstructure:"relay_interval" validate:"min=0"`
	RelayBurst    int           `mapstructure:"relay_burst" validate:"min=1"`
}

type CredentialsConfig struct {
	KeySource      string `mapstructure:"key_source" validate:"oneof=keyring file"`
	KeyFile        string `mapstructure:"key_file" validate:"required_if=KeySource file"`
	KeyringService string `mapstructure:"keyring_service" validate:"required_if=KeySource keyring"`
	KeyringAccount string `mapstructure:"keyring_account" validate:"required_if=KeySource keyring"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

// SchedulerConfig maps task names to their schedule.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig runs a task every Interval, or on the cron Schedule when set.
type TaskConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval" validate:"min=0"`
	Schedule string        `mapstructure:"schedule"`
}

type OwnerConfig struct {
	Username       string `mapstructure:"username"`
	Description    string `mapstructure:"description"`
	AdditionalInfo string `mapstructure:"additional_info"`
}

// MessagesConfig holds user-facing texts. Texts are Telegram HTML.
type MessagesConfig struct {
	Welcome          string `mapstructure:"welcome"`
	Help             string `mapstructure:"help"`
	NoMessage        string `mapstructure:"no_message"`
	PreviewHeader    string `mapstructure:"preview_header"`
	RelayPrompt      string `mapstructure:"relay_prompt"`
	RelaySent        string `mapstructure:"relay_sent"`
	RelayLimited     string `mapstructure:"relay_limited"`
	RelayUnavailable string `mapstructure:"relay_unavailable"`
	TryAgain         string `mapstructure:"try_again"`
	InfoButton       string `mapstructure:"info_button"`
	MessageButton    string `mapstructure:"message_button"`
	ChatButton       string `mapstructure:"chat_button"`
	HelpButton       string `mapstructure:"help_button"`
	BackButton       string `mapstructure:"back_button"`
}

// LoadConfig reads configuration from path. A missing file is not an error;
// defaults and environment variables still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and cross-field rules.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for name, task := range cfg.Scheduler.Tasks {
		if task.Enabled && task.Interval == 0 && task.Schedule == "" {
			return fmt.Errorf("invalid configuration: task %q is enabled but has neither interval nor schedule", name)
		}
	}
	if cfg.Broadcast.DefaultInterval%time.Second != 0 {
		return fmt.Errorf("invalid configuration: broadcast.default_interval must be whole seconds")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", false)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.operator_id", 0)
	v.SetDefault("telegram.request_timeout", 30*time.Second)

	v.SetDefault("broadcast.default_interval", 60*time.Minute)
	v.SetDefault("broadcast.min_interval", time.Minute)
	v.SetDefault("broadcast.send_timeout", 15*time.Second)
	v.SetDefault("broadcast.max_concurrent_sends", 4)
	v.SetDefault("broadcast.auto_start", false)
	v.SetDefault("broadcast.default_message", "")

	v.SetDefault("time_source.servers", []string{"pool.ntp.org", "time.nist.gov", "time.google.com", "time.cloudflare.com"})
	v.SetDefault("time_source.timeout", 5*time.Second)
	v.SetDefault("time_source.max_offset_age", time.Hour)

	v.SetDefault("session.ttl", 30*time.Minute)
	v.SetDefault("session.relay_interval", 3*time.Second)
	v.SetDefault("session.relay_burst", 3)

	v.SetDefault("credentials.key_source", "file")
	v.SetDefault("credentials.key_file", "./tpmb.key")
	v.SetDefault("credentials.keyring_service", "tpmb2")
	v.SetDefault("credentials.keyring_account", "bot")

	v.SetDefault("database.path", "tpmb.db")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("scheduler.tasks.broadcast_tick.enabled", true)
	v.SetDefault("scheduler.tasks.broadcast_tick.interval", 5*time.Second)
	v.SetDefault("scheduler.tasks.session_sweep.enabled", true)
	v.SetDefault("scheduler.tasks.session_sweep.interval", time.Minute)
	v.SetDefault("scheduler.tasks.time_sync.enabled", true)
	v.SetDefault("scheduler.tasks.time_sync.interval", 10*time.Minute)
	v.SetDefault("scheduler.tasks.sql_maintenance.enabled", true)
	v.SetDefault("scheduler.tasks.sql_maintenance.schedule", "0 3 * * *")

	v.SetDefault("owner.username", "")
	v.SetDefault("owner.description", "")
	v.SetDefault("owner.additional_info", "")

	v.SetDefault("messages.welcome", "<b>Welcome!</b>\n\nChoose an option below to continue.")
	v.SetDefault("messages.help", "<b>Help</b>\n\nThis bot posts messages to its groups on a schedule.\nUse the buttons to learn more or to write to the operator.")
	v.SetDefault("messages.no_message", "<i>No message has been configured yet.</i>")
	v.SetDefault("messages.preview_header", "<b>Message preview:</b>")
	v.SetDefault("messages.relay_prompt", "<b>Chat with the operator</b>\n\nYour request was sent. Type your message and it will be forwarded.")
	v.SetDefault("messages.relay_sent", "Message delivered to the operator.")
	v.SetDefault("messages.relay_limited", "You are sending messages too quickly. Please wait a moment.")
	v.SetDefault("messages.relay_unavailable", "<b>No operator is available right now.</b>")
	v.SetDefault("messages.try_again", "Something went wrong. Please try again later.")
	v.SetDefault("messages.info_button", "Owner info")
	v.SetDefault("messages.message_button", "View message")
	v.SetDefault("messages.chat_button", "Chat with operator")
	v.SetDefault("messages.help_button", "Help")
	v.SetDefault("messages.back_button", "<< Back")
}
