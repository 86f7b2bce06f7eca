package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerAddr string `yaml:"server_addr"`
	LogLevel   string `yaml:"log_level"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	DatabaseDSN string `yaml:"database_dsn"`

	EngineURL         string        `yaml:"engine_url"`
	EngineModel       string        `yaml:"engine_model"`
	EngineAPIKey      string        `yaml:"engine_api_key"`
	EngineTimeout     time.Duration `yaml:"engine_timeout"`
	EngineMaxAttempts int           `yaml:"engine_max_attempts"`
	EngineHealthAddr  string        `yaml:"engine_health_addr"`
	EngineStub        bool          `yaml:"engine_stub"`

	SampleRate        int           `yaml:"sample_rate"`
	BufferSeconds     int           `yaml:"buffer_seconds"`
	WindowSeconds     float64       `yaml:"window_seconds"`
	MaxContextLength  int           `yaml:"max_context_length"`
	Debounce          time.Duration `yaml:"debounce"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	ReceiveTimeout    time.Duration `yaml:"receive_timeout"`
	FinalTimeout      time.Duration `yaml:"final_timeout"`
	SupersedeInterim  bool          `yaml:"supersede_interim"`
	WorkerStopTimeout time.Duration `yaml:"worker_stop_timeout"`
}

func defaultConfig() *Config {
	return &Config{
		ServerAddr: ":36430",
		LogLevel:   "info",

		RedisAddr: "localhost:6379",

		EngineModel:       "small",
		EngineTimeout:     60 * time.Second,
		EngineMaxAttempts: 3,

		SampleRate:        16000,
		BufferSeconds:     60,
		WindowSeconds:     10,
		MaxContextLength:  150,
		Debounce:          500 * time.Millisecond,
		KeepaliveInterval: 30 * time.Second,
		ReceiveTimeout:    100 * time.Millisecond,
		FinalTimeout:      10 * time.Second,
		SupersedeInterim:  true,
		WorkerStopTimeout: 2 * time.Second,
	}
}

// LoadConfig applies defaults, then the optional YAML file named by
// CONFIG_FILE, then environment variables.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.ServerAddr = getEnv("SERVER_ADDR", cfg.ServerAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)

	cfg.DatabaseDSN = getEnv("DATABASE_DSN", cfg.DatabaseDSN)

	cfg.EngineURL = getEnv("ENGINE_URL", cfg.EngineURL)
	cfg.EngineModel = getEnv("ENGINE_MODEL", cfg.EngineModel)
	cfg.EngineAPIKey = getEnv("ENGINE_API_KEY", cfg.EngineAPIKey)
	cfg.EngineTimeout = getEnvDuration("ENGINE_TIMEOUT", cfg.EngineTimeout)
	cfg.EngineMaxAttempts = getEnvInt("ENGINE_MAX_ATTEMPTS", cfg.EngineMaxAttempts)
	cfg.EngineHealthAddr = getEnv("ENGINE_HEALTH_ADDR", cfg.EngineHealthAddr)
	cfg.EngineStub = getEnvBool("ENGINE_STUB", cfg.EngineStub)

	cfg.SampleRate = getEnvInt("SAMPLE_RATE", cfg.SampleRate)
	cfg.BufferSeconds = getEnvInt("BUFFER_SECONDS", cfg.BufferSeconds)
	cfg.WindowSeconds = getEnvFloat("WINDOW_SECONDS", cfg.WindowSeconds)
	cfg.MaxContextLength = getEnvInt("MAX_CONTEXT_LENGTH", cfg.MaxContextLength)
	cfg.Debounce = getEnvDuration("DEBOUNCE", cfg.Debounce)
	cfg.KeepaliveInterval = getEnvDuration("KEEPALIVE_INTERVAL", cfg.KeepaliveInterval)
	cfg.ReceiveTimeout = getEnvDuration("RECEIVE_TIMEOUT", cfg.ReceiveTimeout)
	cfg.FinalTimeout = getEnvDuration("FINAL_TIMEOUT", cfg.FinalTimeout)
	cfg.SupersedeInterim = getEnvBool("SUPERSEDE_INTERIM", cfg.SupersedeInterim)
	cfg.WorkerStopTimeout = getEnvDuration("WORKER_STOP_TIMEOUT", cfg.WorkerStopTimeout)
}

func (c *Config) Validate() error {
	var errs []error
	if !c.EngineStub && c.EngineURL == "" {
		errs = append(errs, errors.New("ENGINE_URL is required unless ENGINE_STUB is set"))
	}
	if c.SampleRate < 8000 || c.SampleRate > 48000 {
		errs = append(errs, fmt.Errorf("SAMPLE_RATE %d out of range 8000-48000", c.SampleRate))
	}
	if c.BufferSeconds <= 0 {
		errs = append(errs, errors.New("BUFFER_SECONDS must be positive"))
	}
	if c.WindowSeconds <= 0 || c.WindowSeconds > float64(c.BufferSeconds) {
		errs = append(errs, errors.New("WINDOW_SECONDS must be positive and no larger than BUFFER_SECONDS"))
	}
	if c.MaxContextLength <= 0 {
		errs = append(errs, errors.New("MAX_CONTEXT_LENGTH must be positive"))
	}
	if c.ReceiveTimeout <= 0 || c.KeepaliveInterval <= 0 || c.FinalTimeout <= 0 {
		errs = append(errs, errors.New("RECEIVE_TIMEOUT, KEEPALIVE_INTERVAL and FINAL_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
