// config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config contains application configuration parameters
type Config struct {
	Port               string  `json:"port"`
	Token              string  `json:"token"`
	DBName             string  `json:"db_name"`
	PhotoDir           string  `json:"photo_dir"`
	AdminTelegramID    int64   `json:"admin_telegram_id"`
	AdminAPIToken      string  `json:"-"`
	RedisAddr          string  `json:"redis_addr"`
	RedisPassword      string  `json:"-"`
	RedisDB            int     `json:"redis_db"`
	LogLevel           string  `json:"log_level"`
	LogFile            string  `json:"log_file"`
	LowStockThreshold  int     `json:"low_stock_threshold"`
	LogRetentionDays   int     `json:"log_retention_days"`
	StaleOrderDays     int     `json:"stale_order_days"`
	RateLimitPerSecond float64 `json:"rate_limit_per_second"`
	Env                string  `json:"env"`
}

// NewConfig creates and returns a new configuration instance.
// Values from a .env file in the working directory are loaded first when it exists.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Port:               ":8080",
		DBName:             "maxxpharm.db",
		PhotoDir:           "./photo",
		RedisAddr:          "localhost:6379",
		LogLevel:           "info",
		LogFile:            "logs/maxxpharm.log",
		LowStockThreshold:  10,
		LogRetentionDays:   90,
		StaleOrderDays:     3,
		RateLimitPerSecond: 2,
		Env:                "development",
	}

	// Override with environment variables if set
	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = ":" + port
	}

	if token := os.Getenv("BOT_TOKEN"); token != "" {
		cfg.Token = token
	}

	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.DBName = dbName
	}

	if photoDir := os.Getenv("PHOTO_DIR"); photoDir != "" {
		cfg.PhotoDir = photoDir
	}

	cfg.AdminAPIToken = os.Getenv("ADMIN_API_TOKEN")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if file, ok := os.LookupEnv("LOG_FILE"); ok {
		cfg.LogFile = file
	}

	if env := os.Getenv("MAXX_ENV"); env != "" {
		cfg.Env = env
	}

	var err error
	if cfg.AdminTelegramID, err = int64Env("ADMIN_TELEGRAM_ID", 0); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.LowStockThreshold, err = intEnv("LOW_STOCK_THRESHOLD", cfg.LowStockThreshold); err != nil {
		return nil, err
	}
	if cfg.LogRetentionDays, err = intEnv("LOG_RETENTION_DAYS", cfg.LogRetentionDays); err != nil {
		return nil, err
	}
	if cfg.StaleOrderDays, err = intEnv("STALE_ORDER_DAYS", cfg.StaleOrderDays); err != nil {
		return nil, err
	}

	if raw := os.Getenv("RATE_LIMIT_PER_SECOND"); raw != "" {
		rps, err := strconv.ParseFloat(raw, 64)
		if err != nil || rps <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_PER_SECOND %q", raw)
		}
		cfg.RateLimitPerSecond = rps
	}

	return cfg, nil
}

// Production reports whether the bot runs against real customers
func (c *Config) Production() bool {
	return c.Env == "production"
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func int64Env(key string, fallback int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
