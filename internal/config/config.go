// Package config 提供应用配置的加载与校验，所有配置项来源于环境变量（支持 .env 文件）。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 应用基础配置
type AppConfig struct {
	Name            string
	Env             string // dev | test | prod
	Version         string
	Port            int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// LogConfig 日志配置
type LogConfig struct {
	Level    string // debug | info | warn | error
	Encoding string // json | console
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string // mysql | memory
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enabled bool
	Type    string // redis | memory
	TTL     time.Duration
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// MQConfig 消息队列配置
type MQConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	VHost    string
}

// CatalogConfig 商品目录协作方配置
type CatalogConfig struct {
	BaseURL string
	Timeout time.Duration
}

// InventoryConfig 库存业务配置
type InventoryConfig struct {
	// 乐观锁冲突时的最大重试次数
	MaxRetryAttempts int
	// 新建库存项的默认低库存阈值
	DefaultLowStockThreshold int64
	// 预留接口的限流配置；算法可选 token_bucket/sliding_window/fixed_window/sliding_log
	ReserveRateLimit     int64
	ReserveRateBurst     int64
	ReserveRateAlgorithm string
}

// MigrationsConfig 迁移配置
type MigrationsConfig struct {
	Dir string
}

// Config 聚合所有配置项
type Config struct {
	App        AppConfig
	Log        LogConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Cache      CacheConfig
	CORS       CORSConfig
	MQ         MQConfig
	Catalog    CatalogConfig
	Inventory  InventoryConfig
	Migrations MigrationsConfig
}

// Load 从环境变量加载配置；若存在 .env 文件则先读入。
func Load() (*Config, error) {
	// .env 不存在时忽略错误，生产环境直接依赖真实环境变量
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Name:            getEnv("APP_NAME", "stock-ledger"),
			Env:             getEnv("APP_ENV", "dev"),
			Version:         getEnv("APP_VERSION", "0.1.0"),
			Port:            getEnvInt("APP_PORT", 8080),
			RequestTimeout:  getEnvDuration("APP_REQUEST_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DATABASE_DRIVER", "mysql"),
			Host:     getEnv("DATABASE_HOST", "127.0.0.1"),
			Port:     getEnvInt("DATABASE_PORT", 3306),
			User:     getEnv("DATABASE_USER", "root"),
			Password: getEnv("DATABASE_PASSWORD", ""),
			DBName:   getEnv("DATABASE_NAME", "stock_ledger"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "127.0.0.1"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled: getEnvBool("CACHE_ENABLED", false),
			Type:    getEnv("CACHE_TYPE", "memory"),
			TTL:     getEnvDuration("CACHE_TTL", 5*time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvList("CORS_ALLOWED_HEADERS", []string{"Content-Type", "X-Request-ID", "X-Idempotency-Key"}),
		},
		MQ: MQConfig{
			Enabled:  getEnvBool("MQ_ENABLED", false),
			Host:     getEnv("MQ_HOST", "127.0.0.1"),
			Port:     getEnvInt("MQ_PORT", 5672),
			Username: getEnv("MQ_USERNAME", "guest"),
			Password: getEnv("MQ_PASSWORD", "guest"),
			VHost:    getEnv("MQ_VHOST", "/"),
		},
		Catalog: CatalogConfig{
			BaseURL: getEnv("CATALOG_BASE_URL", "http://127.0.0.1:8081"),
			Timeout: getEnvDuration("CATALOG_TIMEOUT", 3*time.Second),
		},
		Inventory: InventoryConfig{
			MaxRetryAttempts:         getEnvInt("INVENTORY_MAX_RETRY_ATTEMPTS", 3),
			DefaultLowStockThreshold: int64(getEnvInt("INVENTORY_DEFAULT_LOW_STOCK_THRESHOLD", 5)),
			ReserveRateLimit:         int64(getEnvInt("INVENTORY_RESERVE_RATE_LIMIT", 200)),
			ReserveRateBurst:         int64(getEnvInt("INVENTORY_RESERVE_RATE_BURST", 50)),
			ReserveRateAlgorithm:     getEnv("INVENTORY_RESERVE_RATE_ALGORITHM", "token_bucket"),
		},
		Migrations: MigrationsConfig{
			Dir: getEnv("MIGRATIONS_DIR", "migrations"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate 校验关键配置项
func (c *Config) validate() error {
	switch c.App.Env {
	case "dev", "test", "prod":
	default:
		return fmt.Errorf("invalid APP_ENV: %s", c.App.Env)
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid APP_PORT: %d", c.App.Port)
	}
	switch c.Database.Driver {
	case "mysql", "memory":
	default:
		return fmt.Errorf("invalid DATABASE_DRIVER: %s", c.Database.Driver)
	}
	if c.Inventory.MaxRetryAttempts < 1 {
		return fmt.Errorf("INVENTORY_MAX_RETRY_ATTEMPTS must be >= 1")
	}
	if c.Inventory.DefaultLowStockThreshold < 0 {
		return fmt.Errorf("INVENTORY_DEFAULT_LOW_STOCK_THRESHOLD must be >= 0")
	}
	switch c.Inventory.ReserveRateAlgorithm {
	case "token_bucket", "sliding_window", "fixed_window", "sliding_log":
	default:
		return fmt.Errorf("invalid INVENTORY_RESERVE_RATE_ALGORITHM: %s", c.Inventory.ReserveRateAlgorithm)
	}
	return nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
