package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MonitorConfig 监控服务特定配置
type MonitorConfig struct {
	KPIInterval      time.Duration // KPI 刷新轮询间隔，默认 5 秒
	CriticalInterval time.Duration // 临床报警轮询间隔，默认 15 秒
	FreshnessWindow  time.Duration // KPI 聚合新鲜度窗口，默认 2 小时
	CriticalWindow   time.Duration // 报警分级取样窗口，默认 1 分钟
	BucketSize       time.Duration // 降采样桶宽，默认 2 分钟

	// Redis 缓存配置
	Cache struct {
		KeyPrefix string // 缓存键前缀，如 "vitals:patient:"
		TTL       int    // 缓存 TTL（秒）
	}
}

// Config 医生实时监控服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig

	HTTP struct {
		Addr        string // 监听地址，如 ":8080"
		EnablePprof bool   // 暴露 /debug/pprof/（默认关闭）
	}

	Monitor MonitorConfig

	Log struct {
		Level  string
		Format string
		File   string // 非空时同时写入滚动日志文件
	}
}

// Load 加载配置（.env 可选，环境变量优先）
func Load() (*Config, error) {
	// .env 不存在不算错误
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "health_records")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")
	cfg.HTTP.EnablePprof = getEnv("ENABLE_PPROF", "false") == "true"

	cfg.Monitor.KPIInterval = time.Duration(getEnvInt("KPI_INTERVAL_SECONDS", 5)) * time.Second
	cfg.Monitor.CriticalInterval = time.Duration(getEnvInt("CRITICAL_INTERVAL_SECONDS", 15)) * time.Second
	cfg.Monitor.FreshnessWindow = time.Duration(getEnvInt("KPI_FRESHNESS_HOURS", 2)) * time.Hour
	cfg.Monitor.CriticalWindow = time.Duration(getEnvInt("CRITICAL_WINDOW_MINUTES", 1)) * time.Minute
	cfg.Monitor.BucketSize = time.Duration(getEnvInt("BUCKET_MINUTES", 2)) * time.Minute

	cfg.Monitor.Cache.KeyPrefix = getEnv("CACHE_KEY_PREFIX", "vitals:patient:")
	cfg.Monitor.Cache.TTL = getEnvInt("CACHE_TTL_SECONDS", 100)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")
	cfg.Log.File = getEnv("LOG_FILE", "")

	if cfg.Monitor.KPIInterval <= 0 || cfg.Monitor.CriticalInterval <= 0 {
		return nil, fmt.Errorf("poll intervals must be positive")
	}
	if cfg.Monitor.BucketSize <= 0 {
		return nil, fmt.Errorf("bucket size must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
