package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadShop_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://localhost/shop")
	t.Setenv("JWT_SECRET", "s3cret")
	for _, key := range []string{"PORT", "KAFKA_BROKERS", "REDIS_ADDR", "ORDER_TOPIC", "ORDER_MAX_ATTEMPTS", "ORDER_TX_TIMEOUT", "OTEL_ENABLED", "BCRYPT_COST", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadShop()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Port)
	}
	if cfg.OrderMaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", cfg.OrderMaxAttempts)
	}
	if cfg.OrderTxTimeout != 10*time.Second {
		t.Errorf("expected 10s tx timeout, got %s", cfg.OrderTxTimeout)
	}
	if cfg.OrderTopic != "order.placed" {
		t.Errorf("expected topic order.placed, got %s", cfg.OrderTopic)
	}
	if len(cfg.KafkaBrokers) != 0 || cfg.RedisAddr != "" {
		t.Errorf("expected kafka and redis disabled by default, got %v and %q", cfg.KafkaBrokers, cfg.RedisAddr)
	}
	if cfg.Telemetry.Enabled {
		t.Error("expected telemetry export disabled by default")
	}
}

func TestLoadShop_Overrides(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://localhost/shop")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("ORDER_MAX_ATTEMPTS", "5")
	t.Setenv("ORDER_TX_TIMEOUT", "2s")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := LoadShop()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := []string{"k1:9092", "k2:9092"}; !reflect.DeepEqual(cfg.KafkaBrokers, want) {
		t.Errorf("expected brokers %v, got %v", want, cfg.KafkaBrokers)
	}
	if cfg.OrderMaxAttempts != 5 || cfg.OrderTxTimeout != 2*time.Second {
		t.Errorf("unexpected order settings: %d, %s", cfg.OrderMaxAttempts, cfg.OrderTxTimeout)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Errorf("expected 2.5 rps, got %v", cfg.RateLimitRPS)
	}
	if !cfg.Telemetry.Enabled {
		t.Error("expected telemetry enabled")
	}
}

func TestLoadShop_ReportsEveryProblem(t *testing.T) {
	t.Setenv("POSTGRES_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ORDER_TX_TIMEOUT", "soon")
	t.Setenv("ORDER_MAX_ATTEMPTS", "0")

	_, err := LoadShop()
	if err == nil {
		t.Fatal("expected an error")
	}

	for _, want := range []string{"POSTGRES_URL", "JWT_SECRET", "ORDER_TX_TIMEOUT", "ORDER_MAX_ATTEMPTS"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got %v", want, err)
		}
	}
}

func TestLoadShop_RejectsOutOfRangeValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"RATE_LIMIT_RPS", "0"},
		{"RATE_LIMIT_RPS", "-1"},
		{"RATE_LIMIT_BURST", "0"},
		{"BCRYPT_COST", "3"},
		{"BCRYPT_COST", "32"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv("POSTGRES_URL", "postgres://localhost/shop")
			t.Setenv("JWT_SECRET", "s3cret")
			for _, key := range []string{"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BCRYPT_COST", "ORDER_MAX_ATTEMPTS", "ORDER_TX_TIMEOUT"} {
				t.Setenv(key, "")
			}
			t.Setenv(tt.key, tt.value)

			_, err := LoadShop()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("expected error to mention %s, got %v", tt.key, err)
			}
		})
	}
}

func TestLoadWorker(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("EMAIL_SERVICE_URL", "")
	if _, err := LoadWorker(); err == nil {
		t.Fatal("expected an error when brokers and email url are missing")
	}

	t.Setenv("KAFKA_BROKERS", "kafka:9092")
	t.Setenv("EMAIL_SERVICE_URL", "http://email:8080")
	cfg, err := LoadWorker()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GroupID != "notification-worker" || cfg.Telemetry.ServiceName != "notification-worker" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
