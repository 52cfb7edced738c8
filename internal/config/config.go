package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Port      string `yaml:"port"`
	DBPath    string `yaml:"db_path"`
	TimeZone  string `yaml:"time_zone"`
	ZonesFile string `yaml:"zones_file"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | console
	} `yaml:"log"`

	Redis struct {
		Addr         string `yaml:"addr"` // empty disables redis
		Password     string `yaml:"password"`
		DB           int    `yaml:"db"`
		AlertStream  string `yaml:"alert_stream"`
		StreamMaxLen int64  `yaml:"stream_max_len"`
	} `yaml:"redis"`

	Window struct {
		MaxSamples int           `yaml:"max_samples"`
		MaxAge     time.Duration `yaml:"max_age"`
	} `yaml:"window"`

	Scoring struct {
		SpeedMediumKmh float64 `yaml:"speed_medium_kmh"`
		SpeedHighKmh   float64 `yaml:"speed_high_kmh"`
	} `yaml:"scoring"`

	Training TrainingConfig `yaml:"training"`

	Assessment struct {
		FetchTimeout  time.Duration `yaml:"fetch_timeout"`
		AlertCooldown time.Duration `yaml:"alert_cooldown"`
	} `yaml:"assessment"`

	RateLimit struct {
		Requests int           `yaml:"requests"`
		Window   time.Duration `yaml:"window"`
	} `yaml:"rate_limit"`
}

// TrainingConfig 训练调度配置
type TrainingConfig struct {
	Interval          time.Duration `yaml:"interval"`
	Lookback          time.Duration `yaml:"lookback"`
	MinSamples        int           `yaml:"min_samples"`
	Trees             int           `yaml:"trees"`
	SampleSize        int           `yaml:"sample_size"`
	Seed              int64         `yaml:"seed"`
	Contamination     float64       `yaml:"contamination"`
	Generations       int           `yaml:"generations"`
	BaselineRetention time.Duration `yaml:"baseline_retention"`
	FetchAttempts     int           `yaml:"fetch_attempts"`
	FetchBackoff      time.Duration `yaml:"fetch_backoff"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	OnStart           bool          `yaml:"on_start"`
}

// Load 加载配置: environment first, then the optional CONFIG_FILE overlay
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Port = getEnv("PORT", ":8080")
	cfg.DBPath = getEnv("DB_PATH", "./data/safety/safety.db")
	cfg.TimeZone = getEnv("TIME_ZONE", "UTC")
	cfg.ZonesFile = getEnv("ZONES_FILE", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.AlertStream = getEnv("ALERT_STREAM", "safety:alerts")
	cfg.Redis.StreamMaxLen = int64(getEnvInt("ALERT_STREAM_MAXLEN", 10000))

	cfg.Window.MaxSamples = getEnvInt("WINDOW_MAX_SAMPLES", 10)
	cfg.Window.MaxAge = getEnvDuration("WINDOW_MAX_AGE", 2*time.Hour)

	cfg.Scoring.SpeedMediumKmh = getEnvFloat("SPEED_MEDIUM_KMH", 40)
	cfg.Scoring.SpeedHighKmh = getEnvFloat("SPEED_HIGH_KMH", 80)

	cfg.Training = TrainingConfig{
		Interval:          getEnvDuration("TRAIN_INTERVAL", 60*time.Second),
		Lookback:          getEnvDuration("TRAIN_LOOKBACK", 7*24*time.Hour),
		MinSamples:        getEnvInt("TRAIN_MIN_SAMPLES", 10),
		Trees:             getEnvInt("IFOREST_TREES", 100),
		SampleSize:        getEnvInt("IFOREST_SAMPLE_SIZE", 256),
		Seed:              int64(getEnvInt("IFOREST_SEED", 42)),
		Contamination:     getEnvFloat("IFOREST_CONTAMINATION", 0.1),
		Generations:       getEnvInt("SNAPSHOT_GENERATIONS", 5),
		BaselineRetention: getEnvDuration("BASELINE_RETENTION", 72*time.Hour),
		FetchAttempts:     getEnvInt("TRAIN_FETCH_ATTEMPTS", 3),
		FetchBackoff:      getEnvDuration("TRAIN_FETCH_BACKOFF", 500*time.Millisecond),
		FetchTimeout:      getEnvDuration("TRAIN_FETCH_TIMEOUT", 10*time.Second),
		OnStart:           getEnvBool("TRAIN_ON_START", true),
	}

	cfg.Assessment.FetchTimeout = getEnvDuration("ASSESS_FETCH_TIMEOUT", 500*time.Millisecond)
	cfg.Assessment.AlertCooldown = getEnvDuration("ALERT_COOLDOWN", 5*time.Minute)

	cfg.RateLimit.Requests = getEnvInt("RATE_LIMIT_REQUESTS", 600)
	cfg.RateLimit.Window = getEnvDuration("RATE_LIMIT_WINDOW", time.Minute)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error

	if c.Window.MaxSamples <= 0 {
		errs = append(errs, errors.New("window.max_samples must be positive"))
	}
	if c.Window.MaxAge <= 0 {
		errs = append(errs, errors.New("window.max_age must be positive"))
	}
	if c.Scoring.SpeedMediumKmh <= 0 || c.Scoring.SpeedHighKmh <= c.Scoring.SpeedMediumKmh {
		errs = append(errs, fmt.Errorf("speed thresholds must satisfy 0 < medium (%.1f) < high (%.1f)",
			c.Scoring.SpeedMediumKmh, c.Scoring.SpeedHighKmh))
	}

	t := c.Training
	if t.Interval <= 0 || t.Lookback <= 0 || t.FetchTimeout <= 0 {
		errs = append(errs, errors.New("training interval, lookback and fetch timeout must be positive"))
	}
	if t.MinSamples < 1 || t.Trees < 1 || t.SampleSize < 2 || t.Generations < 1 || t.FetchAttempts < 1 {
		errs = append(errs, errors.New("training counts must be positive (sample_size >= 2)"))
	}
	if t.Contamination <= 0 || t.Contamination >= 0.5 {
		errs = append(errs, fmt.Errorf("training.contamination must be in (0, 0.5), got %v", t.Contamination))
	}
	if c.Assessment.FetchTimeout <= 0 {
		errs = append(errs, errors.New("assessment.fetch_timeout must be positive"))
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("time_zone: %w", err))
	}

	return errors.Join(errs...)
}

// Location 返回配置的时区
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
