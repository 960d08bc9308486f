package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Eggs      EggsConfig      `yaml:"eggs" mapstructure:"eggs"`
	Detector  DetectorConfig  `yaml:"detector" mapstructure:"detector"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Retention RetentionConfig `yaml:"retention" mapstructure:"retention"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the account database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AuthConfig configures token issuance and the bootstrap admin account.
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours" mapstructure:"token_ttl_hours"`
	AdminUsername string `yaml:"admin_username" mapstructure:"admin_username"`
	AdminPassword string `yaml:"admin_password" mapstructure:"admin_password"`
	AdminName     string `yaml:"admin_name" mapstructure:"admin_name"`
	AdminPhone    string `yaml:"admin_phone" mapstructure:"admin_phone"`
}

// EggsConfig configures the change detector and its on-disk layout.
type EggsConfig struct {
	DataDir          string `yaml:"data_dir" mapstructure:"data_dir"`
	ImagesDir        string `yaml:"images_dir" mapstructure:"images_dir"`
	ProcessedDir     string `yaml:"processed_dir" mapstructure:"processed_dir"`
	DebounceSecs     int    `yaml:"debounce_secs" mapstructure:"debounce_secs"`
	BoxJumpThreshold int    `yaml:"box_jump_threshold" mapstructure:"box_jump_threshold"`
	MaxRawImages     int    `yaml:"max_raw_images" mapstructure:"max_raw_images"`
	TZOffsetHours    int    `yaml:"tz_offset_hours" mapstructure:"tz_offset_hours"`
	PayerName        string `yaml:"payer_name" mapstructure:"payer_name"`
	PayerPix         string `yaml:"payer_pix" mapstructure:"payer_pix"`
}

// Debounce returns the confirmation window as a duration.
func (c EggsConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceSecs) * time.Second
}

// Timezone returns the fixed zone the box lives in. Timestamps in the log
// carry this offset so lexicographic order matches chronological order.
func (c EggsConfig) Timezone() *time.Location {
	return time.FixedZone("", c.TZOffsetHours*3600)
}

// DetectorConfig configures the external detection sidecar.
type DetectorConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// IngestConfig configures the upload ingress.
type IngestConfig struct {
	SpoolDir   string  `yaml:"spool_dir" mapstructure:"spool_dir"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst      int     `yaml:"burst" mapstructure:"burst"`
}

// RetentionConfig configures the processed-image sweeper.
type RetentionConfig struct {
	Enabled       bool `yaml:"enabled" mapstructure:"enabled"`
	IntervalHours int  `yaml:"interval_hours" mapstructure:"interval_hours"`
	MaxAgeDays    int  `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SABRINATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/accounts.db")
	v.SetDefault("auth.jwt_secret", "dev-secret-change-me")
	v.SetDefault("auth.token_ttl_hours", 72)
	v.SetDefault("auth.admin_username", "admin")
	v.SetDefault("auth.admin_password", "admin123")
	v.SetDefault("auth.admin_name", "Admin")
	v.SetDefault("auth.admin_phone", "+00 00 00000-0000")
	v.SetDefault("eggs.data_dir", "data")
	v.SetDefault("eggs.images_dir", "images")
	v.SetDefault("eggs.processed_dir", "processed")
	v.SetDefault("eggs.debounce_secs", 10)
	v.SetDefault("eggs.box_jump_threshold", 10)
	v.SetDefault("eggs.max_raw_images", 30)
	v.SetDefault("eggs.tz_offset_hours", -3)
	v.SetDefault("eggs.payer_name", "Gustavo")
	v.SetDefault("eggs.payer_pix", "gumartins2001@gmail.com")
	v.SetDefault("detector.base_url", "http://localhost:8600")
	v.SetDefault("detector.timeout_secs", 30)
	v.SetDefault("ingest.rate_per_sec", 2)
	v.SetDefault("ingest.burst", 5)
	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.interval_hours", 24)
	v.SetDefault("retention.max_age_days", 30)

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
