package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ServerPort string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	RedisURL   string
	JWTSecret  string

	EventsDriver string
	KafkaBrokers []string
	KafkaTopic   string
	AMQPURL      string
	AMQPExchange string

	OTELEndpoint    string
	OTELServiceName string
	OTELSampleRatio float64

	LogLevel  string
	LogPretty bool

	RateLimitPerMinute int
	AllowedOrigins     []string
}

func Load() *Config {
	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "pulse"),
		DBPassword: getEnv("DB_PASSWORD", "pulse_dev_password"),
		DBName:     getEnv("DB_NAME", "pulse"),
		RedisURL:   getEnv("REDIS_URL", ""),
		JWTSecret:  getEnv("JWT_SECRET", "dev-secret-change-me"),

		EventsDriver: getEnv("EVENTS_DRIVER", "noop"),
		KafkaBrokers: getList("KAFKA_BROKERS", "localhost:9092"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "pulsechat.messages"),
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "pulsechat.events"),

		OTELEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELServiceName: getEnv("OTEL_SERVICE_NAME", "pulsechat"),
		OTELSampleRatio: getFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getBool("LOG_PRETTY", false),

		RateLimitPerMinute: getInt("RATE_LIMIT_PER_MINUTE", 120),
		AllowedOrigins:     getList("CORS_ALLOWED_ORIGINS", "*"),
	}
}

// ClientConfig configures the terminal client.
type ClientConfig struct {
	ServerURL     string
	Email         string
	Password      string
	PageSize      int
	Notifications string
	LogLevel      string
}

func LoadClient() *ClientConfig {
	return &ClientConfig{
		ServerURL:     getEnv("PULSECHAT_SERVER", "http://localhost:8080"),
		Email:         getEnv("PULSECHAT_EMAIL", ""),
		Password:      getEnv("PULSECHAT_PASSWORD", ""),
		PageSize:      getInt("PULSECHAT_PAGE_SIZE", 20),
		Notifications: getEnv("PULSECHAT_NOTIFY", "default"),
		LogLevel:      getEnv("LOG_LEVEL", "warn"),
	}
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil || f < 0 || f > 1 {
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return b
}

func getList(key, fallback string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, fallback), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
