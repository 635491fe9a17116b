package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Billing BillingConfig
	Fraud   FraudConfig
	Payout  PayoutConfig
}

// BillingConfig carries the marketplace money rules.
type BillingConfig struct {
	// GiftReceiverShareBps is the share of a gift price credited to the
	// receiver, in basis points. The remainder is platform revenue.
	GiftReceiverShareBps int64
}

// FraudConfig carries rolling-window detection thresholds.
type FraudConfig struct {
	Window              time.Duration
	MaxWithdrawals      int64
	MaxWithdrawalAmount int64
	MaxDeposits         int64
	LargeGiftAmount     int64
}

// PayoutConfig controls the deferred payout sweep.
type PayoutConfig struct {
	MaturationWindow time.Duration
	GatewayTimeout   time.Duration
	DueDelay         time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "minutepay"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "minutepay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Billing: BillingConfig{
			GiftReceiverShareBps: getenvInt64("GIFT_RECEIVER_SHARE_BPS", 8000),
		},
		Fraud: FraudConfig{
			Window:              getenvDuration("FRAUD_WINDOW", 24*time.Hour),
			MaxWithdrawals:      getenvInt64("FRAUD_MAX_WITHDRAWALS", 5),
			MaxWithdrawalAmount: getenvInt64("FRAUD_MAX_WITHDRAWAL_AMOUNT", 500_000),
			MaxDeposits:         getenvInt64("FRAUD_MAX_DEPOSITS", 10),
			LargeGiftAmount:     getenvInt64("FRAUD_LARGE_GIFT_AMOUNT", 100_000),
		},
		Payout: PayoutConfig{
			MaturationWindow: getenvDuration("PAYOUT_MATURATION_WINDOW", 30*24*time.Hour),
			GatewayTimeout:   getenvDuration("PAYOUT_GATEWAY_TIMEOUT", 15*time.Second),
			DueDelay:         getenvDuration("PAYOUT_DUE_DELAY", 24*time.Hour),
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
