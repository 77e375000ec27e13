package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Shop is the configuration of the shop API.
type Shop struct {
	Port         string
	PostgresURL  string
	RedisAddr    string
	RedisTTL     time.Duration
	KafkaBrokers []string
	OrderTopic   string

	JWTSecret    string
	JWTExpiresIn time.Duration
	BcryptCost   int

	OrderMaxAttempts int
	OrderTxTimeout   time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	Telemetry Telemetry
}

type Telemetry struct {
	Enabled        bool
	OTLPEndpoint   string
	ServiceName    string
	ServiceVersion string
}

// Worker is the configuration of the notification worker.
type Worker struct {
	KafkaBrokers    []string
	OrderTopic      string
	GroupID         string
	EmailServiceURL string
	Telemetry       Telemetry
}

// LoadDotEnv reads .env into the environment when the file exists. Variables
// already set win.
func LoadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func LoadShop() (Shop, error) {
	p := &parser{}

	cfg := Shop{
		Port:         getenv("PORT", "8080"),
		PostgresURL:  p.required("POSTGRES_URL"),
		RedisAddr:    getenv("REDIS_ADDR", ""),
		RedisTTL:     p.duration("REDIS_TTL", 60*time.Second),
		KafkaBrokers: splitCSV(getenv("KAFKA_BROKERS", "")),
		OrderTopic:   getenv("ORDER_TOPIC", "order.placed"),

		JWTSecret:    p.required("JWT_SECRET"),
		JWTExpiresIn: p.duration("JWT_EXPIRES_IN", time.Hour),
		BcryptCost:   p.integer("BCRYPT_COST", 10),

		OrderMaxAttempts: p.integer("ORDER_MAX_ATTEMPTS", 3),
		OrderTxTimeout:   p.duration("ORDER_TX_TIMEOUT", 10*time.Second),

		RateLimitRPS:   p.float("RATE_LIMIT_RPS", 10),
		RateLimitBurst: p.integer("RATE_LIMIT_BURST", 20),

		Telemetry: loadTelemetry(p, "shop"),
	}

	if cfg.OrderMaxAttempts < 1 {
		p.errs = append(p.errs, errors.New("ORDER_MAX_ATTEMPTS must be at least 1"))
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		p.errs = append(p.errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if cfg.RateLimitRPS <= 0 {
		p.errs = append(p.errs, errors.New("RATE_LIMIT_RPS must be greater than 0"))
	}
	if cfg.RateLimitBurst < 1 {
		p.errs = append(p.errs, errors.New("RATE_LIMIT_BURST must be at least 1"))
	}

	return cfg, p.err()
}

func LoadWorker() (Worker, error) {
	p := &parser{}

	cfg := Worker{
		KafkaBrokers:    splitCSV(p.required("KAFKA_BROKERS")),
		OrderTopic:      getenv("ORDER_TOPIC", "order.placed"),
		GroupID:         getenv("KAFKA_GROUP_ID", "notification-worker"),
		EmailServiceURL: p.required("EMAIL_SERVICE_URL"),
		Telemetry:       loadTelemetry(p, "notification-worker"),
	}

	return cfg, p.err()
}

func loadTelemetry(p *parser, defaultName string) Telemetry {
	return Telemetry{
		Enabled:        p.boolean("OTEL_ENABLED", false),
		OTLPEndpoint:   getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		ServiceName:    getenv("SERVICE_NAME", defaultName),
		ServiceVersion: getenv("SERVICE_VERSION", "0.1.0"),
	}
}

// parser collects every bad variable so they are reported together.
type parser struct {
	errs []error
}

func (p *parser) err() error {
	return errors.Join(p.errs...)
}

func (p *parser) required(key string) string {
	v := os.Getenv(key)
	if v == "" {
		p.errs = append(p.errs, fmt.Errorf("%s environment variable is required", key))
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		p.errs = append(p.errs, fmt.Errorf("%s must be a positive duration, got %q", key, v))
		return def
	}
	return d
}

func (p *parser) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a number, got %q", key, v))
		return def
	}
	return f
}

func (p *parser) boolean(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
		return def
	}
	return b
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
