package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"

	OTPStoreDatabase = "database"
	OTPStoreRedis    = "redis"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	DynamoDB DynamoDBConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	OTP      OTPConfig
	SMS      SMSConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StorageConfig selects where users and one-time passwords live. OTPStore
// "database" keeps OTP records next to the users in Backend.
type StorageConfig struct {
	Backend  string
	OTPStore string
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type PostgresConfig struct {
	URL      string
	MaxConns int
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type OTPConfig struct {
	// Validity is how long an issued code can be verified.
	Validity time.Duration
	// Period is the step window of the time-based code algorithm.
	Period time.Duration
	// Retention keeps records past Validity in stores with native expiry so
	// late verification attempts still report an expired code.
	Retention     time.Duration
	SecretSalt    string
	EncryptionKey string

	// TODO: enforce RequestLimit per phone number within RequestWindow once the
	// throttling policy is confirmed; both values are loaded but unused.
	RequestLimit  int
	RequestWindow time.Duration
}

type SMSConfig struct {
	URL            string
	APIKey         string
	TemplateID     int
	SuccessMessage string
	Timeout        time.Duration
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			Backend:  strings.ToLower(getEnv("STORAGE_BACKEND", BackendDynamoDB)),
			OTPStore: strings.ToLower(getEnv("OTP_STORE", OTPStoreDatabase)),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "TherapyCenterUsers"),
		},
		Postgres: PostgresConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvAsInt("DATABASE_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		OTP: OTPConfig{
			Validity:      getEnvAsDuration("OTP_VALIDITY", 2*time.Minute),
			Period:        getEnvAsDuration("OTP_PERIOD", 120*time.Second),
			Retention:     getEnvAsDuration("OTP_RETENTION", 24*time.Hour),
			SecretSalt:    getEnv("SECRET_SALT", ""),
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
			RequestLimit:  getEnvAsInt("OTP_REQUEST_LIMIT", 5),
			RequestWindow: getEnvAsDuration("OTP_REQUEST_WINDOW", 30*time.Second),
		},
		SMS: SMSConfig{
			URL:            getEnv("SMS_IR_URL", "https://api.sms.ir/v1/send/verify"),
			APIKey:         getEnv("SMS_IR_API_KEY", ""),
			TemplateID:     getEnvAsInt("SMS_TEMPLATE_ID", 238824),
			SuccessMessage: getEnv("SMS_SUCCESS_MESSAGE", "موفق"),
			Timeout:        getEnvAsDuration("SMS_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level: strings.ToLower(getEnv("LOG_LEVEL", "info")),
		},
	}

	if cfg.OTP.SecretSalt == "" {
		return nil, fmt.Errorf("SECRET_SALT environment variable is required")
	}

	if cfg.OTP.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY environment variable is required")
	}

	if cfg.SMS.APIKey == "" {
		return nil, fmt.Errorf("SMS_IR_API_KEY environment variable is required")
	}

	switch cfg.Storage.Backend {
	case BackendDynamoDB, BackendMemory:
	case BackendPostgres:
		if cfg.Postgres.URL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required for the postgres backend")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q", cfg.Storage.Backend)
	}

	switch cfg.Storage.OTPStore {
	case OTPStoreDatabase, OTPStoreRedis:
	default:
		return nil, fmt.Errorf("unsupported OTP_STORE %q", cfg.Storage.OTPStore)
	}

	if cfg.OTP.Validity <= 0 {
		return nil, fmt.Errorf("OTP_VALIDITY must be positive")
	}

	if cfg.OTP.Period < time.Second {
		return nil, fmt.Errorf("OTP_PERIOD must be at least one second")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
