package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Stripe    StripeConfig
	Booking   BookingConfig
	Tickets   TicketConfig
	Auth      AuthConfig
	Telemetry TelemetryConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port         string
	GatePort     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	DSN           string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	AutoSchema    bool
	MigrationsDir string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	BookingCreated   string
	BookingCancelled string
	BookingExpired   string
	OrderConfirmed   string
	OrderRefunded    string
	SeatStatus       string
	TicketScanned    string
}

// All returns every topic the marketplace publishes to.
func (t TopicConfig) All() []string {
	return []string{
		t.BookingCreated,
		t.BookingCancelled,
		t.BookingExpired,
		t.OrderConfirmed,
		t.OrderRefunded,
		t.SeatStatus,
		t.TicketScanned,
	}
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type BookingConfig struct {
	HoldTTL          time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
	MaxSeats         int
	Currency         string
	// MinChargeCents is the smallest total the payment processor accepts.
	MinChargeCents int64
}

type TicketConfig struct {
	QRSecret string
}

type AuthConfig struct {
	OIDCIssuer   string
	DeviceSecret string
	DeviceIssuer string
}

type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
	Insecure     bool
}

type LogConfig struct {
	Level string
	Dir   string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8084"),
			GatePort:     getEnv("GATE_PORT", ":8085"),
			ReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			DSN:           getEnv("POSTGRES_DSN", ""),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoSchema:    getEnvBool("AUTO_SCHEMA", false),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", "marketplace-notify"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				BookingCreated:   getEnv("KAFKA_TOPIC_BOOKING_CREATED", "marketplace.booking.created"),
				BookingCancelled: getEnv("KAFKA_TOPIC_BOOKING_CANCELLED", "marketplace.booking.cancelled"),
				BookingExpired:   getEnv("KAFKA_TOPIC_BOOKING_EXPIRED", "marketplace.booking.expired"),
				OrderConfirmed:   getEnv("KAFKA_TOPIC_ORDER_CONFIRMED", "marketplace.order.confirmed"),
				OrderRefunded:    getEnv("KAFKA_TOPIC_ORDER_REFUNDED", "marketplace.order.refunded"),
				SeatStatus:       getEnv("KAFKA_TOPIC_SEAT_STATUS", "marketplace.seats.status"),
				TicketScanned:    getEnv("KAFKA_TOPIC_TICKET_SCANNED", "marketplace.tickets.scanned"),
			},
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Booking: BookingConfig{
			HoldTTL:          getEnvDuration("SEAT_HOLD_TTL", 10*time.Minute),
			CleanupInterval:  getEnvDuration("CLEANUP_INTERVAL", time.Minute),
			CleanupBatchSize: getEnvInt("CLEANUP_BATCH_SIZE", 100),
			MaxSeats:         getEnvInt("MAX_SEATS_PER_BOOKING", 10),
			Currency:         strings.ToLower(getEnv("CURRENCY", "usd")),
			MinChargeCents:   int64(getEnvInt("MIN_CHARGE_CENTS", 50)),
		},
		Tickets: TicketConfig{
			QRSecret: getEnv("QR_SECRET_KEY", ""),
		},
		Auth: AuthConfig{
			OIDCIssuer:   getEnv("OIDC_ISSUER", ""),
			DeviceSecret: getEnv("GATE_JWT_SECRET", ""),
			DeviceIssuer: getEnv("GATE_JWT_ISSUER", "marketplace-gate"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "ms-marketplace"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:     getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "INFO"),
			Dir:   getEnv("LOG_DIR", "logs"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
