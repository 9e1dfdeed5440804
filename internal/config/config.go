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
	OSRM   OSRMConfig   `yaml:"osrm" mapstructure:"osrm"`
	OTP    OTPConfig    `yaml:"otp" mapstructure:"otp"`
	Matrix MatrixConfig `yaml:"matrix" mapstructure:"matrix"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Score  ScoreConfig  `yaml:"score" mapstructure:"score"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// OSRMConfig configures the road/bike/foot routing engine client.
type OSRMConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxTableDim  int     `yaml:"max_table_dim" mapstructure:"max_table_dim"`
}

// OTPConfig configures the transit trip-planning engine client.
type OTPConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	NumItins     int     `yaml:"num_itineraries" mapstructure:"num_itineraries"`
}

// MatrixConfig configures the routing matrix service.
type MatrixConfig struct {
	MaxInFlight int    `yaml:"max_in_flight" mapstructure:"max_in_flight"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	DataVersion string `yaml:"data_version" mapstructure:"data_version"`
}

// CacheConfig configures the travel-leg cache backend and per-mode TTLs.
type CacheConfig struct {
	Driver      string         `yaml:"driver" mapstructure:"driver"` // memory, sqlite, postgres
	Path        string         `yaml:"path" mapstructure:"path"`     // sqlite file path
	DatabaseURL string         `yaml:"database_url" mapstructure:"database_url"`
	TTLHours    map[string]int `yaml:"ttl_hours" mapstructure:"ttl_hours"` // keyed by mode
}

// TTL returns the cache TTL for a mode, defaulting to one week.
func (c CacheConfig) TTL(mode string) time.Duration {
	if h, ok := c.TTLHours[mode]; ok && h > 0 {
		return time.Duration(h) * time.Hour
	}
	return 168 * time.Hour
}

// ScoreConfig configures scoring runs.
type ScoreConfig struct {
	ParamsPath string `yaml:"params_path" mapstructure:"params_path"`
	Workers    int    `yaml:"workers" mapstructure:"workers"`
}

// ServerConfig configures the HTTP query server.
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
	v.SetEnvPrefix("ACCESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("osrm.base_url", "http://localhost:5000")
	v.SetDefault("osrm.rate_limit_rps", 20)
	v.SetDefault("osrm.timeout_secs", 30)
	v.SetDefault("osrm.max_table_dim", 100)
	v.SetDefault("otp.base_url", "http://localhost:8081/otp/routers/default")
	v.SetDefault("otp.rate_limit_rps", 10)
	v.SetDefault("otp.timeout_secs", 30)
	v.SetDefault("otp.num_itineraries", 3)
	v.SetDefault("matrix.max_in_flight", 8)
	v.SetDefault("matrix.max_attempts", 3)
	v.SetDefault("matrix.data_version", "v1")
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.path", "access-cache.db")
	v.SetDefault("cache.ttl_hours", map[string]int{
		"car": 168, "bike": 168, "foot": 720, "transit": 72,
	})
	v.SetDefault("score.params_path", "params.yaml")
	v.SetDefault("score.workers", 4)

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
