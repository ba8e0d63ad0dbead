package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string

	// DBDriver 选择 mysql（生产）或 sqlite（本地开发）。
	DBDriver      string
	DBPath        string
	MySQLUser     string
	MySQLPassword string
	MySQLHost     string
	MySQLPort     string
	MySQLDatabase string
	MySQLParams   string

	RedisAddr string
	RedisDB   int

	// Kafka 集群地址（逗号分隔）、Topic、消费者组
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Redis Stream outbox（服务原子入流，Relay 异步转 Kafka）
	OrderEventStream   string
	OrderEventGroup    string
	OrderEventConsumer string

	// 支付网关（Xendit invoice API）
	XenditSecretKey    string
	XenditWebhookToken string
	FrontendURL        string

	// 下单接口限流与桌位状态预检缓存
	OrderRateLimit      int
	OrderRateWindow     time.Duration
	TableStatusCacheTTL time.Duration

	// 桌位锁回收：pending 超过 StaleAfter 视为过期，SweepInterval 为扫描周期
	StaleAfter    time.Duration
	SweepInterval time.Duration
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DBDriver:            getEnv("DB_DRIVER", "sqlite"),
		DBPath:              getEnv("DB_PATH", "menu_digital.db"),
		MySQLUser:           getEnv("MYSQL_USER", "menu"),
		MySQLPassword:       getEnv("MYSQL_PASSWORD", "menu"),
		MySQLHost:           getEnv("MYSQL_HOST", "127.0.0.1"),
		MySQLPort:           getEnv("MYSQL_PORT", "3306"),
		MySQLDatabase:       getEnv("MYSQL_DATABASE", "menu_digital"),
		MySQLParams:         getEnv("MYSQL_PARAMS", "charset=utf8mb4&parseTime=True&loc=Local"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:             0,
		KafkaBrokers:        splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "menu-digital-order-events"),
		KafkaGroupID:        getEnv("KAFKA_GROUP_ID", "menu-digital-notifier"),
		OrderEventStream:    getEnv("ORDER_EVENT_STREAM", "menu_digital:order_events"),
		OrderEventGroup:     getEnv("ORDER_EVENT_GROUP", "menu-digital-relay-group"),
		OrderEventConsumer:  getEnv("ORDER_EVENT_CONSUMER", "menu-digital-relay-1"),
		XenditSecretKey:     getEnv("XENDIT_SECRET_KEY", ""),
		XenditWebhookToken:  getEnv("XENDIT_WEBHOOK_TOKEN", "dev-webhook-token"),
		FrontendURL:         getEnv("FRONTEND_URL", "http://localhost:5173"),
		OrderRateLimit:      30,
		OrderRateWindow:     time.Second,
		TableStatusCacheTTL: 3 * time.Second,
		StaleAfter:          15 * time.Minute,
		SweepInterval:       time.Minute,
	}

	if cfg.DBDriver != "mysql" && cfg.DBDriver != "sqlite" {
		return AppConfig{}, fmt.Errorf("DB_DRIVER must be mysql or sqlite")
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	rateLimit, err := getEnvInt("ORDER_RATE_LIMIT", cfg.OrderRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid ORDER_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("ORDER_RATE_LIMIT must be > 0")
	}
	cfg.OrderRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("ORDER_RATE_WINDOW_SEC", int(cfg.OrderRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid ORDER_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("ORDER_RATE_WINDOW_SEC must be > 0")
	}
	cfg.OrderRateWindow = time.Duration(rateWindowSec) * time.Second

	cacheTTLSec, err := getEnvInt("TABLE_STATUS_CACHE_TTL_SEC", int(cfg.TableStatusCacheTTL.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid TABLE_STATUS_CACHE_TTL_SEC: %w", err)
	}
	if cacheTTLSec < 0 {
		return AppConfig{}, fmt.Errorf("TABLE_STATUS_CACHE_TTL_SEC must be >= 0")
	}
	cfg.TableStatusCacheTTL = time.Duration(cacheTTLSec) * time.Second

	staleMin, err := getEnvInt("STALE_AFTER_MIN", int(cfg.StaleAfter.Minutes()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid STALE_AFTER_MIN: %w", err)
	}
	if staleMin <= 0 {
		return AppConfig{}, fmt.Errorf("STALE_AFTER_MIN must be > 0")
	}
	cfg.StaleAfter = time.Duration(staleMin) * time.Minute

	sweepSec, err := getEnvInt("SWEEP_INTERVAL_SEC", int(cfg.SweepInterval.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid SWEEP_INTERVAL_SEC: %w", err)
	}
	if sweepSec <= 0 {
		return AppConfig{}, fmt.Errorf("SWEEP_INTERVAL_SEC must be > 0")
	}
	cfg.SweepInterval = time.Duration(sweepSec) * time.Second

	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}
	if cfg.KafkaGroupID == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
	}
	if cfg.OrderEventStream == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_STREAM must not be empty")
	}
	if cfg.OrderEventGroup == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_GROUP must not be empty")
	}
	if cfg.OrderEventConsumer == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_CONSUMER must not be empty")
	}
	if cfg.XenditWebhookToken == "" {
		return AppConfig{}, fmt.Errorf("XENDIT_WEBHOOK_TOKEN must not be empty")
	}

	return cfg, nil
}

// MySQLDSN 拼接 go-sql-driver 格式的连接串。
func (c AppConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?%s",
		c.MySQLUser, c.MySQLPassword, c.MySQLHost, c.MySQLPort, c.MySQLDatabase, c.MySQLParams)
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
