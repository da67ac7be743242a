package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	Env            string
	LogLevel       string
	Debug          bool
	TrustedProxies []string
	AllowedOrigins []string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	JWTSecret string

	// Общий секрет для внутренних эндпоинтов (планировщик, бот)
	InternalSecret string

	// Уведомления
	AdminPhone       string
	PhoneCountryCode string
	CloudMsgURL      string
	CloudMsgToken    string
	CloudMsgTimeout  time.Duration

	// Сверка платежей
	ExtractorCmd       []string
	ExtractorTimeout   time.Duration
	ReconcileInterval  time.Duration
	ReconcileOnStart   bool
	SuccessMarkers     []string
	OutboxPingURL      string
	OutboxPingInterval time.Duration

	// Реферальная программа
	MinPayout int64

	// Опциональная инфраструктура: пустое значение отключает
	RedisAddr     string
	RedisPassword string
	StatsCacheTTL time.Duration
	KafkaBrokers  []string
}

func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Debug:          getEnvAsBool("DEBUG", false),
		TrustedProxies: []string{},
		AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "mengundang"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret: getEnv("JWT_ACCESS_SECRET", "default-access-secret"),

		InternalSecret: getEnv("INTERNAL_SECRET", ""),

		AdminPhone:       getEnv("ADMIN_PHONE", ""),
		PhoneCountryCode: getEnv("PHONE_COUNTRY_CODE", "62"),
		CloudMsgURL:      getEnv("CLOUD_MSG_URL", ""),
		CloudMsgToken:    getEnv("CLOUD_MSG_TOKEN", ""),
		CloudMsgTimeout:  getEnvAsDuration("CLOUD_MSG_TIMEOUT", 15*time.Second),

		ExtractorCmd:       getEnvAsFields("EXTRACTOR_CMD", []string{"node", "scripts/extract-mutations.js"}),
		ExtractorTimeout:   getEnvAsDuration("EXTRACTOR_TIMEOUT", 2*time.Minute),
		ReconcileInterval:  getEnvAsDuration("RECONCILE_INTERVAL", 5*time.Minute),
		ReconcileOnStart:   getEnvAsBool("RECONCILE_ON_START", false),
		SuccessMarkers:     getEnvAsSlice("SUCCESS_MARKERS", []string{"settlement", "success"}),
		OutboxPingURL:      getEnv("OUTBOX_PING_URL", "http://localhost:3001/process-notifications"),
		OutboxPingInterval: getEnvAsDuration("OUTBOX_PING_INTERVAL", 15*time.Second),

		MinPayout: int64(getEnvAsInt("MIN_PAYOUT", 50000)),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		StatsCacheTTL: getEnvAsDuration("STATS_CACHE_TTL", 30*time.Second),
		KafkaBrokers:  getEnvAsSlice("KAFKA_BROKERS", nil),
	}

	if proxies := getEnv("TRUSTED_PROXIES", ""); proxies != "" {
		cfg.TrustedProxies = strings.Split(proxies, ",")
	}

	if cfg.InternalSecret == "" {
		log.Println("⚠️ INTERNAL_SECRET не задан – внутренние эндпоинты будут отклонять все запросы")
	}

	log.Printf("📋 Конфигурация загружена: порт=%s, режим=%s, БД=%s, интервал сверки=%s, cloud=%v, redis=%v, kafka=%v",
		cfg.Port, cfg.Env, cfg.DBName, cfg.ReconcileInterval, cfg.CloudMsgURL != "", cfg.RedisAddr != "", len(cfg.KafkaBrokers) > 0)
	return cfg
}

// IsRelease сообщает, запущен ли сервис в боевом режиме
func (c *Config) IsRelease() bool {
	return c.Env == "release"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	strVal := getEnv(key, "")
	if val, err := strconv.ParseBool(strVal); err == nil {
		return val
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	strVal := getEnv(key, "")
	if val, err := strconv.Atoi(strVal); err == nil {
		return val
	}
	return defaultValue
}

// getEnvAsDuration принимает только положительные значения: нулевой интервал уронил бы тикер
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	strVal := getEnv(key, "")
	val, err := time.ParseDuration(strVal)
	if err != nil {
		return defaultValue
	}
	if val <= 0 {
		log.Printf("⚠️ %s=%s не положительный, используется %s", key, strVal, defaultValue)
		return defaultValue
	}
	return val
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	val := getEnv(key, "")
	if val == "" {
		return defaultValue
	}
	parts := strings.Split(val, ",")
	out := parts[:0]
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvAsFields разбивает команду по пробелам: "node scripts/x.js --headless"
func getEnvAsFields(key string, defaultValue []string) []string {
	val := getEnv(key, "")
	if val == "" {
		return defaultValue
	}
	return strings.Fields(val)
}
