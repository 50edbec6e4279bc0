package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      *DatabaseConfig // Optional: only the audit trail uses a database
	Cognito       CognitoConfig
	Authorization AuthorizationConfig
	CORS          CORSConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// CognitoConfig holds the user pool and token verification settings
type CognitoConfig struct {
	Region         string
	UserPoolID     string
	JWKSURL        string // Overrides the URL derived from Region and UserPoolID
	Issuer         string // Overrides the issuer derived from Region and UserPoolID
	Discovery      bool   // Resolve jwks_uri from the OpenID configuration document
	ClientIDs      []string
	TokenUse       []string
	AllowedAlgs    []string
	Leeway         time.Duration
	JWKSTimeout    time.Duration
	JWKSMinRefresh time.Duration
	PrefetchKeys   bool
}

// AuthorizationConfig holds the rule table source
type AuthorizationConfig struct {
	PolicyFile string // Empty means the built-in rule table
}

// CORSConfig holds cross-origin settings
type CORSConfig struct {
	AllowedOrigins []string
}

// AuditConfig holds access decision audit settings
type AuditConfig struct {
	Enabled     bool
	DenialsOnly bool
	BufferSize  int
	Workers     int
	BatchSize   int
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Cognito: CognitoConfig{
			Region:         getEnv("COGNITO_REGION", "us-east-1"),
			UserPoolID:     getEnv("COGNITO_USER_POOL_ID", ""),
			JWKSURL:        getEnv("COGNITO_JWKS_URL", ""),
			Issuer:         getEnv("COGNITO_ISSUER", ""),
			Discovery:      getEnvAsBool("COGNITO_DISCOVERY", false),
			ClientIDs:      getEnvAsSlice("COGNITO_CLIENT_IDS", nil),
			TokenUse:       getEnvAsSlice("COGNITO_TOKEN_USE", nil),
			AllowedAlgs:    getEnvAsSlice("COGNITO_ALLOWED_ALGS", []string{"RS256"}),
			Leeway:         getEnvAsDuration("COGNITO_LEEWAY", 30*time.Second),
			JWKSTimeout:    getEnvAsDuration("COGNITO_JWKS_TIMEOUT", 5*time.Second),
			JWKSMinRefresh: getEnvAsDuration("COGNITO_JWKS_MIN_REFRESH", 30*time.Second),
			PrefetchKeys:   getEnvAsBool("COGNITO_JWKS_PREFETCH", true),
		},
		Authorization: AuthorizationConfig{
			PolicyFile: getEnv("AUTHZ_POLICY_FILE", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Audit: AuditConfig{
			Enabled:     getEnvAsBool("AUDIT_ENABLED", false),
			DenialsOnly: getEnvAsBool("AUDIT_DENIALS_ONLY", true),
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 10000),
			Workers:     getEnvAsInt("AUDIT_WORKERS", 2),
			BatchSize:   getEnvAsInt("AUDIT_BATCH_SIZE", 50),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Cognito validation (a key source is required in production)
	if c.IsProduction() && c.Cognito.UserPoolID == "" && c.Cognito.JWKSURL == "" {
		return fmt.Errorf("cognito user pool ID or JWKS URL is required in production")
	}
	if c.Cognito.UserPoolID != "" && c.Cognito.Region == "" {
		return fmt.Errorf("cognito region is required with a user pool ID")
	}
	if c.Cognito.Leeway < 0 {
		return fmt.Errorf("cognito leeway must not be negative")
	}
	if c.Cognito.JWKSTimeout <= 0 {
		return fmt.Errorf("cognito JWKS timeout must be positive")
	}

	// Audit validation (the trail is stored in PostgreSQL)
	if c.Audit.Enabled {
		if c.Database == nil {
			return fmt.Errorf("database configuration required for audit: set DATABASE_URL or DB_HOST")
		}
		if c.Audit.BufferSize <= 0 || c.Audit.Workers <= 0 || c.Audit.BatchSize <= 0 {
			return fmt.Errorf("audit buffer size, workers and batch size must be positive")
		}
	}

	if c.Database != nil && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Returns nil when neither DATABASE_URL nor DB_HOST is set.
func loadDatabaseConfig() *DatabaseConfig {
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		return &DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	host := getEnv("DB_HOST", "")
	if host == "" {
		return nil
	}
	return &DatabaseConfig{
		Host:            host,
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "gateway"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "gateway_audit"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice splits a comma-separated value, dropping blank entries
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
