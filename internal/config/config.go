// Package config provides environment configuration for the API server and
// the headless client.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/guardforce/messaging-platform/internal/model"
)

// Call signal backends.
const (
	SignalBackendSQLite = "sqlite"
	SignalBackendNATS   = "nats"
)

// Config holds all configuration for the API server.
type Config struct {
	// Environment name; "development" switches to console logging.
	Env string

	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Storage
	DatabasePath string

	// Call signalling
	CallSignalBackend   string
	CallSignalRetention time.Duration
	CallRoomBaseURL     string

	// NATS settings, used when CallSignalBackend is "nats"
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string
	NATSTimeout  time.Duration

	// JWT settings
	JWTSecret     string
	JWTExpiration time.Duration

	// Contact directory
	DirectoryFile     string
	DirectoryURL      string
	DirectoryToken    string
	DirectoryCacheTTL time.Duration

	// Roles allowed to send broadcasts
	BroadcastRoles []model.Role

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// CORS
	CORSAllowedOrigins []string

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Env: getEnv("ENV", "production"),

		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),

		// Storage
		DatabasePath: getEnv("DATABASE_PATH", "messaging.db"),

		// Call signalling
		CallSignalBackend:   getEnv("CALL_SIGNAL_BACKEND", SignalBackendSQLite),
		CallSignalRetention: getDurationEnv("CALL_SIGNAL_RETENTION", 5*time.Minute),
		CallRoomBaseURL:     getEnv("CALL_ROOM_BASE_URL", "https://meet.guardforce.local/rooms"),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),
		NATSTimeout:  getDurationEnv("NATS_CONNECT_TIMEOUT", 5*time.Second),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 12*time.Hour),

		// Directory
		DirectoryFile:     getEnv("DIRECTORY_FILE", ""),
		DirectoryURL:      getEnv("DIRECTORY_URL", ""),
		DirectoryToken:    getEnv("DIRECTORY_TOKEN", ""),
		DirectoryCacheTTL: getDurationEnv("DIRECTORY_CACHE_TTL", time.Minute),

		BroadcastRoles: getRolesEnv("BROADCAST_ROLES",
			[]model.Role{model.RoleAdmin, model.RoleDirector, model.RoleOperationsManager}),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 300),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		CORSAllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"https://*", "http://*"}),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate reports configuration that the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.CallSignalBackend {
	case SignalBackendSQLite, SignalBackendNATS:
	default:
		errs = append(errs, fmt.Errorf("unknown CALL_SIGNAL_BACKEND %q", c.CallSignalBackend))
	}
	if c.CallSignalRetention <= 0 {
		errs = append(errs, errors.New("CALL_SIGNAL_RETENTION must be positive"))
	}
	if c.DirectoryFile == "" && c.DirectoryURL == "" {
		errs = append(errs, errors.New("one of DIRECTORY_FILE or DIRECTORY_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	for _, r := range c.BroadcastRoles {
		if !r.Valid() {
			errs = append(errs, fmt.Errorf("unknown role %q in BROADCAST_ROLES", r))
		}
	}
	return errors.Join(errs...)
}

// SessionConfig holds configuration for the headless messaging client.
type SessionConfig struct {
	APIURL string
	Token  string
	UserID string

	ListInterval    time.Duration
	MessageInterval time.Duration
	SignalInterval  time.Duration
	RingTimeout     time.Duration

	FailureThreshold int
	ScrollThreshold  int

	LogLevel string
}

// LoadSession reads the client configuration from environment variables.
func LoadSession() *SessionConfig {
	_ = godotenv.Load()

	return &SessionConfig{
		APIURL: getEnv("COMMS_API_URL", "http://localhost:8080"),
		Token:  getEnv("COMMS_TOKEN", ""),
		UserID: getEnv("COMMS_USER_ID", ""),

		ListInterval:    getDurationEnv("COMMS_LIST_INTERVAL", 10*time.Second),
		MessageInterval: getDurationEnv("COMMS_MESSAGE_INTERVAL", 2*time.Second),
		SignalInterval:  getDurationEnv("COMMS_SIGNAL_INTERVAL", 2*time.Second),
		RingTimeout:     getDurationEnv("COMMS_RING_TIMEOUT", 30*time.Second),

		FailureThreshold: getIntEnv("COMMS_FAILURE_THRESHOLD", 5),
		ScrollThreshold:  getIntEnv("COMMS_SCROLL_THRESHOLD", 80),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getListEnv splits a comma separated value, dropping empty items.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getRolesEnv(key string, defaultValue []model.Role) []model.Role {
	items := getListEnv(key, nil)
	if items == nil {
		return defaultValue
	}
	roles := make([]model.Role, 0, len(items))
	for _, item := range items {
		roles = append(roles, model.Role(strings.ToUpper(item)))
	}
	return roles
}
