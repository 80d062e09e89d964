package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Create a new instance of the logger
// Configure it to log at the desired level
// and format it as JSON for structured logging
var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.JSONFormatter{})
	environment := GetEnvWithDefault("APP_ENV", "development")
	switch environment {
	case "development":
		log.SetLevel(logrus.DebugLevel)
	case "production":
		log.SetLevel(logrus.ErrorLevel)
	default:
		// Default to info level for other environments
		log.SetLevel(logrus.InfoLevel)
	}
}

// Config used for the application configuration, loading the input from environment variables
type Config struct {
	// Server Configuration
	Port int    `json:"port"`
	Host string `json:"host"`

	// Database configuration. Empty DatabaseURL selects the local sqlite file.
	DatabaseURL string `json:"database_url"`

	// GoHighLevel OAuth app credentials
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`

	// Upstream endpoints
	TokenURL     string `json:"token_url"`
	APIBase      string `json:"api_base"`
	AuthorizeURL string `json:"authorize_url"`

	// Scopes requested when building an install URL
	OAuthScopes string `json:"oauth_scopes"`

	// Token lifecycle tuning
	RefreshInterval time.Duration `json:"refresh_interval"`
	RefreshPadding  time.Duration `json:"refresh_padding"`
	UpstreamTimeout time.Duration `json:"upstream_timeout"`

	// Frontend pages the OAuth callback redirects to
	SuccessRedirect string `json:"success_redirect"`
	ErrorRedirect   string `json:"error_redirect"`

	// Logging configuration
	LogLevel string `json:"log_level"`
}

// String returns a string representation of Config with sensitive data masked
func (c *Config) String() string {
	return fmt.Sprintf("Config{Port: %d, Host: %s, DatabaseURL: %s, ClientID: %s, ClientSecret: [REDACTED], RedirectURI: %s, TokenURL: %s, APIBase: %s, RefreshInterval: %s, RefreshPadding: %s, UpstreamTimeout: %s, LogLevel: %s}",
		c.Port, c.Host, maskValue(c.DatabaseURL), c.ClientID, c.RedirectURI, c.TokenURL, c.APIBase, c.RefreshInterval, c.RefreshPadding, c.UpstreamTimeout, c.LogLevel)
}

// maskValue hides a value entirely while still signalling whether it was set
func maskValue(v string) string {
	if v == "" {
		return ""
	}
	return "[REDACTED]"
}

// LoadConfig reads the proper configuration from environment variables and returns a Config struct.
// The OAuth client credentials and redirect URI are required; the process must not start
// without them, so their absence is an error rather than a default.
func LoadConfig() (*Config, error) {
	log.Info("Loading configuration from environment variables")
	port, err := strconv.Atoi(GetEnvWithDefault("APP_PORT", "8080"))
	if err != nil {
		return nil, err
	}

	clientID := os.Getenv("GHL_CLIENT_ID")
	if clientID == "" {
		return nil, errors.New("GHL_CLIENT_ID environment variable is required")
	}
	clientSecret := os.Getenv("GHL_CLIENT_SECRET")
	if clientSecret == "" {
		return nil, errors.New("GHL_CLIENT_SECRET environment variable is required")
	}
	redirectURI := os.Getenv("GHL_REDIRECT_URI")
	if redirectURI == "" {
		return nil, errors.New("GHL_REDIRECT_URI environment variable is required")
	}

	refreshInterval, err := getEnvDuration("REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	refreshPadding, err := getEnvDuration("REFRESH_PADDING", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	upstreamTimeout, err := getEnvDuration("UPSTREAM_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Port:            port,
		Host:            GetEnvWithDefault("APP_HOST", "0.0.0.0"),
		DatabaseURL:     GetEnvWithDefault("DATABASE_URL", ""),
		ClientID:        clientID,
		ClientSecret:    clientSecret,
		RedirectURI:     redirectURI,
		TokenURL:        GetEnvWithDefault("GHL_TOKEN_URL", "https://services.leadconnectorhq.com/oauth/token"),
		APIBase:         GetEnvWithDefault("GHL_API_BASE", "https://services.leadconnectorhq.com"),
		AuthorizeURL:    GetEnvWithDefault("GHL_AUTHORIZE_URL", "https://marketplace.leadconnectorhq.com/oauth/chooselocation"),
		OAuthScopes:     GetEnvWithDefault("GHL_OAUTH_SCOPES", "products/prices.write products/prices.readonly products/collection.write products/collection.readonly medias.write medias.readonly locations.readonly contacts.readonly contacts.write"),
		RefreshInterval: refreshInterval,
		RefreshPadding:  refreshPadding,
		UpstreamTimeout: upstreamTimeout,
		SuccessRedirect: GetEnvWithDefault("OAUTH_SUCCESS_REDIRECT", "/oauth-success"),
		ErrorRedirect:   GetEnvWithDefault("OAUTH_ERROR_REDIRECT", "/oauth-error"),
		LogLevel:        GetEnvWithDefault("LOG_LEVEL", "info"),
	}
	log.Infof("Configuration loaded: %s", config.String())
	return config, nil
}

// Helper to get environment with default values
func GetEnvWithDefault(key, defaultValue string) string {
	log.Tracef("Getting environment variable: %s", key)
	value := os.Getenv(key)
	if value == "" {
		log.Warnf("Environment variable %s not set, using default value: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvDuration reads a duration-formatted environment variable ("5m", "15s")
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration in %s: %w", key, err)
	}
	return d, nil
}

// GetEnvAsType retrieves an environment variable and converts it to the specified type
// using generic type handling.
func GetEnvAsType[T any](key string, defaultValue T) T {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result T
	switch any(result).(type) {
	case int:
		intValue, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return any(intValue).(T)
	case string:
		return any(value).(T)
	case bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return any(boolValue).(T)
	default:
		return defaultValue // Fallback for unsupported types
	}
}
