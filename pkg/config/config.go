package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Settings Settings
	Database DatabaseConfig
	Redis    RedisConfig
	Lock     LockConfig
	OTEL     OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	SettingsPath   string
	AllowedOrigins []string
}

// Settings is the service settings file. JSON is accepted since it is valid YAML.
type Settings struct {
	SessionCookieSecret  string `yaml:"sessionCookieSecret"`
	FHIRClientID         string `yaml:"fhirClientId"`
	FHIRStore            string `yaml:"fhirStore"`
	DebugLogging         bool   `yaml:"debugLogging"`
	CalendarClientID     string `yaml:"calendarClientId"`
	CalendarClientSecret string `yaml:"calendarClientSecret"`
	OAuthRedirectURL     string `yaml:"oauthRedirectUrl"`
	CalendarID           string `yaml:"calendarId"`
	StaticDir            string `yaml:"staticDir"`
	FHIRClientDir        string `yaml:"fhirClientDir"`
	JQueryDir            string `yaml:"jqueryDir"`
}

// DatabaseConfig holds database configuration for the meeting event ledger
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// LockConfig controls per-encounter locking around meeting creation
type LockConfig struct {
	TTL time.Duration
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from the settings file and environment variables.
// Environment values win over the settings file.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("PORT", 8080),
			Env:            getEnv("ENV", "development"),
			SettingsPath:   getEnv("SETTINGS_PATH", "settings.json"),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvAsBool("DB_ENABLED", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "telehealth_meet"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Lock: LockConfig{
			TTL: getEnvAsDuration("ENCOUNTER_LOCK_TTL", 30*time.Second),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "telehealth-meet"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}

	settings, err := LoadSettings(cfg.Server.SettingsPath)
	if err != nil {
		return nil, err
	}
	settings.applyEnv()
	settings.normalize()
	cfg.Settings = settings

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSettings reads the settings file at path. A missing file yields empty
// settings so deployments can rely on the environment alone.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("read settings %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

func (s *Settings) applyEnv() {
	s.SessionCookieSecret = getEnv("SESSION_COOKIE_SECRET", s.SessionCookieSecret)
	s.FHIRClientID = getEnv("FHIR_CLIENT_ID", s.FHIRClientID)
	s.FHIRStore = getEnv("FHIR_STORE", s.FHIRStore)
	s.DebugLogging = getEnvAsBool("DEBUG_LOGGING", s.DebugLogging)
	s.CalendarClientID = getEnv("CALENDAR_CLIENT_ID", s.CalendarClientID)
	s.CalendarClientSecret = getEnv("CALENDAR_CLIENT_SECRET", s.CalendarClientSecret)
	s.OAuthRedirectURL = getEnv("OAUTH_REDIRECT_URL", s.OAuthRedirectURL)
	s.CalendarID = getEnv("CALENDAR_ID", s.CalendarID)
}

func (s *Settings) normalize() {
	s.FHIRStore = strings.TrimRight(s.FHIRStore, "/")
	if s.CalendarID == "" {
		s.CalendarID = "primary"
	}
	if s.StaticDir == "" {
		s.StaticDir = "static"
	}
	if s.FHIRClientDir == "" {
		s.FHIRClientDir = "node_modules/fhirclient/build"
	}
	if s.JQueryDir == "" {
		s.JQueryDir = "node_modules/jquery/dist"
	}
}

// Validate reports missing settings the service cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.Settings.SessionCookieSecret == "" {
		missing = append(missing, "sessionCookieSecret")
	}
	if c.Settings.FHIRStore == "" {
		missing = append(missing, "fhirStore")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.Lock.TTL <= 0 {
		return fmt.Errorf("ENCOUNTER_LOCK_TTL must be positive, got %s", c.Lock.TTL)
	}
	return nil
}

// IsDev reports whether the service runs in development mode
func (c *Config) IsDev() bool {
	return c.Server.Env == "development"
}

// CalendarOAuthConfigured reports whether Google OAuth credentials are present
func (s Settings) CalendarOAuthConfigured() bool {
	return s.CalendarClientID != "" && s.CalendarClientSecret != ""
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
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
