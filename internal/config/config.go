package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "CERTINTAKE"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	DB       DBConfig
	JWT      JWTConfig
	S3       S3Config
	Log      LogConfig
	Email    EmailConfig
	Intake   IntakeConfig
	Shipment ShipmentConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
	// CORSOrigins is space separated when set through the environment.
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// DBConfig holds document repository connection settings.
type DBConfig struct {
	Driver         string        `mapstructure:"driver"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	Name           string        `mapstructure:"name"`
	SSLMode        string        `mapstructure:"sslmode"`
	MaxOpen        int           `mapstructure:"max_open"`
	MaxIdle        int           `mapstructure:"max_idle"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// UsesMemory reports whether the in-memory repository is configured.
func (d *DBConfig) UsesMemory() bool {
	return strings.EqualFold(d.Driver, "memory")
}

// JWTConfig holds API token validation settings.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// S3Config holds object storage settings for raw messages and receipts.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKey       string `mapstructure:"access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	PendingPrefix   string `mapstructure:"pending_prefix"`
	TechnicalPrefix string `mapstructure:"technical_prefix"`
	ReceiptsPrefix  string `mapstructure:"receipts_prefix"`
	WhitelistKey    string `mapstructure:"whitelist_key"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EmailConfig holds notification delivery settings.
type EmailConfig struct {
	Provider string `mapstructure:"provider"`
	Region   string `mapstructure:"region"`
	FromName string `mapstructure:"from_name"`
}

// IntakeConfig holds settings for the intake worker and reconciliation.
type IntakeConfig struct {
	DocumentType     string `mapstructure:"document_type"`
	PollIntervalSecs int    `mapstructure:"poll_interval_secs"`
	Concurrency      int    `mapstructure:"concurrency"`
	BatchSize        int    `mapstructure:"batch_size"`
	TimeoutSecs      int    `mapstructure:"timeout_secs"`
}

// ShipmentConfig holds settings for the shipment system-of-record client.
type ShipmentConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	TokenIssuer string        `mapstructure:"token_issuer"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
}

// Load reads configuration from environment variables with the CERTINTAKE_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	// DB defaults
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "certintake")
	v.SetDefault("db.password", "certintake_secret")
	v.SetDefault("db.name", "certintake_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 10)
	v.SetDefault("db.max_idle", 5)
	v.SetDefault("db.connect_timeout", "10s")

	// JWT defaults
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.issuer", "certintake")

	// S3 defaults
	v.SetDefault("s3.region", "eu-west-1")
	v.SetDefault("s3.bucket", "certintake-mail")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.pending_prefix", "to_process/import_iqc/")
	v.SetDefault("s3.technical_prefix", "technical_errors/import_iqc/")
	v.SetDefault("s3.receipts_prefix", "receipts/import_iqc/")
	v.SetDefault("s3.whitelist_key", "config/broker_whitelist.xlsx")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Email defaults
	v.SetDefault("email.provider", "noop")
	v.SetDefault("email.region", "eu-west-1")
	v.SetDefault("email.from_name", "Certificate Intake")

	// Intake defaults
	v.SetDefault("intake.document_type", "IQC_CERTIFICATE")
	v.SetDefault("intake.poll_interval_secs", 30)
	v.SetDefault("intake.concurrency", 2)
	v.SetDefault("intake.batch_size", 20)
	v.SetDefault("intake.timeout_secs", 300)

	// Shipment defaults
	v.SetDefault("shipment.base_url", "")
	v.SetDefault("shipment.timeout", "20s")
	v.SetDefault("shipment.token_issuer", "certintake")
	v.SetDefault("shipment.token_ttl", "5m")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":               "CERTINTAKE_SERVER_PORT",
		"server.read_timeout":       "CERTINTAKE_SERVER_READ_TIMEOUT",
		"server.write_timeout":      "CERTINTAKE_SERVER_WRITE_TIMEOUT",
		"server.environment":        "CERTINTAKE_SERVER_ENVIRONMENT",
		"server.cors_origins":       "CERTINTAKE_SERVER_CORS_ORIGINS",
		"db.driver":                 "CERTINTAKE_DB_DRIVER",
		"db.host":                   "CERTINTAKE_DB_HOST",
		"db.port":                   "CERTINTAKE_DB_PORT",
		"db.user":                   "CERTINTAKE_DB_USER",
		"db.password":               "CERTINTAKE_DB_PASSWORD",
		"db.name":                   "CERTINTAKE_DB_NAME",
		"db.sslmode":                "CERTINTAKE_DB_SSLMODE",
		"db.max_open":               "CERTINTAKE_DB_MAX_OPEN",
		"db.max_idle":               "CERTINTAKE_DB_MAX_IDLE",
		"db.connect_timeout":        "CERTINTAKE_DB_CONNECT_TIMEOUT",
		"jwt.secret":                "CERTINTAKE_JWT_SECRET",
		"jwt.issuer":                "CERTINTAKE_JWT_ISSUER",
		"s3.region":                 "CERTINTAKE_S3_REGION",
		"s3.bucket":                 "CERTINTAKE_S3_BUCKET",
		"s3.endpoint":               "CERTINTAKE_S3_ENDPOINT",
		"s3.access_key":             "CERTINTAKE_S3_ACCESS_KEY",
		"s3.secret_key":             "CERTINTAKE_S3_SECRET_KEY",
		"s3.pending_prefix":         "CERTINTAKE_S3_PENDING_PREFIX",
		"s3.technical_prefix":       "CERTINTAKE_S3_TECHNICAL_PREFIX",
		"s3.receipts_prefix":        "CERTINTAKE_S3_RECEIPTS_PREFIX",
		"s3.whitelist_key":          "CERTINTAKE_S3_WHITELIST_KEY",
		"log.level":                 "CERTINTAKE_LOG_LEVEL",
		"log.format":                "CERTINTAKE_LOG_FORMAT",
		"email.provider":            "CERTINTAKE_EMAIL_PROVIDER",
		"email.region":              "CERTINTAKE_EMAIL_REGION",
		"email.from_name":           "CERTINTAKE_EMAIL_FROM_NAME",
		"intake.document_type":      "CERTINTAKE_INTAKE_DOCUMENT_TYPE",
		"intake.poll_interval_secs": "CERTINTAKE_INTAKE_POLL_INTERVAL_SECS",
		"intake.concurrency":        "CERTINTAKE_INTAKE_CONCURRENCY",
		"intake.batch_size":         "CERTINTAKE_INTAKE_BATCH_SIZE",
		"intake.timeout_secs":       "CERTINTAKE_INTAKE_TIMEOUT_SECS",
		"shipment.base_url":         "CERTINTAKE_SHIPMENT_BASE_URL",
		"shipment.timeout":          "CERTINTAKE_SHIPMENT_TIMEOUT",
		"shipment.token_issuer":     "CERTINTAKE_SHIPMENT_TOKEN_ISSUER",
		"shipment.token_ttl":        "CERTINTAKE_SHIPMENT_TOKEN_TTL",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Container platforms set PORT. Use it if CERTINTAKE_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("CERTINTAKE_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
		CORSOrigins:  v.GetStringSlice("server.cors_origins"),
	}
	cfg.DB = DBConfig{
		Driver:         v.GetString("db.driver"),
		Host:           v.GetString("db.host"),
		Port:           v.GetInt("db.port"),
		User:           v.GetString("db.user"),
		Password:       v.GetString("db.password"),
		Name:           v.GetString("db.name"),
		SSLMode:        v.GetString("db.sslmode"),
		MaxOpen:        v.GetInt("db.max_open"),
		MaxIdle:        v.GetInt("db.max_idle"),
		ConnectTimeout: v.GetDuration("db.connect_timeout"),
	}
	cfg.JWT = JWTConfig{
		Secret: v.GetString("jwt.secret"),
		Issuer: v.GetString("jwt.issuer"),
	}
	cfg.S3 = S3Config{
		Region:          v.GetString("s3.region"),
		Bucket:          v.GetString("s3.bucket"),
		Endpoint:        v.GetString("s3.endpoint"),
		AccessKey:       v.GetString("s3.access_key"),
		SecretKey:       v.GetString("s3.secret_key"),
		PendingPrefix:   v.GetString("s3.pending_prefix"),
		TechnicalPrefix: v.GetString("s3.technical_prefix"),
		ReceiptsPrefix:  v.GetString("s3.receipts_prefix"),
		WhitelistKey:    v.GetString("s3.whitelist_key"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.Email = EmailConfig{
		Provider: v.GetString("email.provider"),
		Region:   v.GetString("email.region"),
		FromName: v.GetString("email.from_name"),
	}
	cfg.Intake = IntakeConfig{
		DocumentType:     v.GetString("intake.document_type"),
		PollIntervalSecs: v.GetInt("intake.poll_interval_secs"),
		Concurrency:      v.GetInt("intake.concurrency"),
		BatchSize:        v.GetInt("intake.batch_size"),
		TimeoutSecs:      v.GetInt("intake.timeout_secs"),
	}
	cfg.Shipment = ShipmentConfig{
		BaseURL:     v.GetString("shipment.base_url"),
		Timeout:     v.GetDuration("shipment.timeout"),
		TokenIssuer: v.GetString("shipment.token_issuer"),
		TokenTTL:    v.GetDuration("shipment.token_ttl"),
	}

	if cfg.Intake.Concurrency < 1 {
		return nil, fmt.Errorf("intake.concurrency must be at least 1, got %d", cfg.Intake.Concurrency)
	}
	if cfg.Intake.PollIntervalSecs < 1 {
		return nil, fmt.Errorf("intake.poll_interval_secs must be at least 1, got %d", cfg.Intake.PollIntervalSecs)
	}

	return cfg, nil
}
