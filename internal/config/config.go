package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Platform PlatformConfig `yaml:"platform" mapstructure:"platform"`
	Mailer   MailerConfig   `yaml:"mailer" mapstructure:"mailer"`
	Dispatch DispatchConfig `yaml:"dispatch" mapstructure:"dispatch"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// PlatformConfig holds survey platform credentials and the study's survey
// and field names.
type PlatformConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	ClientID       string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret   string `yaml:"client_secret" mapstructure:"client_secret"`
	SurveyStartID  string `yaml:"survey_start_id" mapstructure:"survey_start_id"`
	SurveyWeeklyID string `yaml:"survey_weekly_id" mapstructure:"survey_weekly_id"`
	EmailFieldName string `yaml:"email_field_name" mapstructure:"email_field_name"`
	Timezone       string `yaml:"timezone" mapstructure:"timezone"`
}

// MailerConfig holds mail provider credentials and the reminder sender.
type MailerConfig struct {
	Domain        string `yaml:"domain" mapstructure:"domain"`
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SenderAddress string `yaml:"sender_address" mapstructure:"sender_address"`
}

// DispatchConfig paces reminder sends.
type DispatchConfig struct {
	MinIntervalSecs int `yaml:"min_interval_secs" mapstructure:"min_interval_secs"`
	SendTimeoutSecs int `yaml:"send_timeout_secs" mapstructure:"send_timeout_secs"`
}

// PipelineConfig tunes the classification pipeline.
type PipelineConfig struct {
	// WeekShiftHours moves the study-week boundary off the ISO Monday;
	// 81 hours puts it at Thursday 09:00.
	WeekShiftHours        int `yaml:"week_shift_hours" mapstructure:"week_shift_hours"`
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions" mapstructure:"max_concurrent_sessions"`
}

// StoreConfig configures the snapshot database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the status API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COHORTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("platform.base_url", "https://api.formr.org")
	v.SetDefault("platform.email_field_name", "contact_email")
	v.SetDefault("platform.timezone", "UTC")
	v.SetDefault("mailer.base_url", "https://api.mailgun.net")
	v.SetDefault("dispatch.min_interval_secs", 5)
	v.SetDefault("dispatch.send_timeout_secs", 30)
	v.SetDefault("pipeline.week_shift_hours", 81)
	v.SetDefault("pipeline.max_concurrent_sessions", 8)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "cohortwatch.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings a command depends on are present.
// Mode is "status" for read-only evaluation or "remind" for dispatching.
func (c *Config) Validate(mode string) error {
	if c.Platform.ClientID == "" || c.Platform.ClientSecret == "" {
		return eris.New("config: platform client_id and client_secret are required")
	}
	if c.Platform.SurveyStartID == "" || c.Platform.SurveyWeeklyID == "" {
		return eris.New("config: platform survey_start_id and survey_weekly_id are required")
	}

	if mode == "remind" {
		if c.Mailer.Domain == "" || c.Mailer.Key == "" {
			return eris.New("config: mailer domain and key are required for remind")
		}
		if c.Mailer.SenderAddress == "" {
			return eris.New("config: mailer sender_address is required for remind")
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
