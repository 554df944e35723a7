package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pilab-dev/frigg/modules"
)

// Storage backends.
const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

// ServerConfig holds all configuration for the server and the CLI.
// Tags use mapstructure for Viper unmarshalling; keys double as environment
// variable names.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	Storage     string `mapstructure:"STORAGE"`

	// Empty RedisAddr keeps authorization states in memory.
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`
	StateTTL      time.Duration `mapstructure:"STATE_TTL"`

	HTTPTimeout     time.Duration `mapstructure:"HTTP_TIMEOUT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	LogPretty       bool          `mapstructure:"LOG_PRETTY"`
	OtelServiceName string        `mapstructure:"OTEL_SERVICE_NAME"`

	// Outgoing requests per second and burst of every module without its
	// own limit. Zero disables limiting.
	RateLimit float64 `mapstructure:"RATE_LIMIT"`
	RateBurst int     `mapstructure:"RATE_BURST"`

	// Credential encryption. Empty AESKey stores tokens in plaintext.
	AESKeyID           string `mapstructure:"AES_KEY_ID"`
	AESKey             string `mapstructure:"AES_KEY"`
	DeprecatedAESKeyID string `mapstructure:"DEPRECATED_AES_KEY_ID"`
	DeprecatedAESKey   string `mapstructure:"DEPRECATED_AES_KEY"`

	// RedirectURI is the base of the per-module redirect, <RedirectURI>/<module>.
	RedirectURI string `mapstructure:"REDIRECT_URI"`

	HubSpotClientID     string `mapstructure:"HUBSPOT_CLIENT_ID"`
	HubSpotClientSecret string `mapstructure:"HUBSPOT_CLIENT_SECRET"`
	HubSpotScope        string `mapstructure:"HUBSPOT_SCOPE"`
	// HubSpot allows 100 requests per 10 seconds to an OAuth app.
	HubSpotRateLimit float64 `mapstructure:"HUBSPOT_RATE_LIMIT"`
	HubSpotRateBurst int     `mapstructure:"HUBSPOT_RATE_BURST"`

	SharePointClientID     string `mapstructure:"SHAREPOINT_CLIENT_ID"`
	SharePointClientSecret string `mapstructure:"SHAREPOINT_CLIENT_SECRET"`
	SharePointScope        string `mapstructure:"SHAREPOINT_SCOPE"`
	SharePointTenantID     string `mapstructure:"SHAREPOINT_TENANT_ID"`

	QBOOAuthKey         string `mapstructure:"QBO_OAUTH_KEY"`
	QBOOAuthSecret      string `mapstructure:"QBO_OAUTH_SECRET"`
	QBOOAuthEnv         string `mapstructure:"QBO_OAUTH_ENV"`
	QBOOAuthRedirectURI string `mapstructure:"QBO_OAUTH_REDIRECT_URI"`

	AttentiveClientID     string `mapstructure:"ATTENTIVE_CLIENT_ID"`
	AttentiveClientSecret string `mapstructure:"ATTENTIVE_CLIENT_SECRET"`
	AttentiveScopes       string `mapstructure:"ATTENTIVE_SCOPES"`
	AttentiveBaseURL      string `mapstructure:"ATTENTIVE_BASE_URL"`

	FastSpringIQClientID     string `mapstructure:"FASTSPRING_IQ_CLIENT_ID"`
	FastSpringIQClientSecret string `mapstructure:"FASTSPRING_IQ_CLIENT_SECRET"`
	FastSpringIQBaseURL      string `mapstructure:"FASTSPRING_IQ_BASE_URL"`
	FastSpringIQRedirectURI  string `mapstructure:"FASTSPRING_IQ_REDIRECT_URI"`
	FastSpringIQAPIKey       string `mapstructure:"FASTSPRING_IQ_API_KEY"`
}

var defaults = map[string]interface{}{
	"HTTP_PORT":                   "8080",
	"MONGO_URI":                   "mongodb://localhost:27017",
	"MONGO_DB_NAME":               "frigg",
	"STORAGE":                     StorageMongo,
	"REDIS_ADDR":                  "",
	"REDIS_PASSWORD":              "",
	"REDIS_DB":                    0,
	"STATE_TTL":                   "10m",
	"HTTP_TIMEOUT":                "30s",
	"RATE_LIMIT":                  0,
	"RATE_BURST":                  0,
	"LOG_LEVEL":                   "info",
	"LOG_PRETTY":                  false,
	"OTEL_SERVICE_NAME":           "frigg",
	"AES_KEY_ID":                  "",
	"AES_KEY":                     "",
	"DEPRECATED_AES_KEY_ID":       "",
	"DEPRECATED_AES_KEY":          "",
	"REDIRECT_URI":                "http://localhost:3000/redirect",
	"HUBSPOT_CLIENT_ID":           "",
	"HUBSPOT_CLIENT_SECRET":       "",
	"HUBSPOT_SCOPE":               "",
	"HUBSPOT_RATE_LIMIT":          10,
	"HUBSPOT_RATE_BURST":          100,
	"SHAREPOINT_CLIENT_ID":        "",
	"SHAREPOINT_CLIENT_SECRET":    "",
	"SHAREPOINT_SCOPE":            "",
	"SHAREPOINT_TENANT_ID":        "common",
	"QBO_OAUTH_KEY":               "",
	"QBO_OAUTH_SECRET":            "",
	"QBO_OAUTH_ENV":               "sandbox",
	"QBO_OAUTH_REDIRECT_URI":      "",
	"ATTENTIVE_CLIENT_ID":         "",
	"ATTENTIVE_CLIENT_SECRET":     "",
	"ATTENTIVE_SCOPES":            "",
	"ATTENTIVE_BASE_URL":          "https://api.attentivemobile.com/v1",
	"FASTSPRING_IQ_CLIENT_ID":     "",
	"FASTSPRING_IQ_CLIENT_SECRET": "",
	"FASTSPRING_IQ_BASE_URL":      "",
	"FASTSPRING_IQ_REDIRECT_URI":  "",
	"FASTSPRING_IQ_API_KEY":       "",
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	return LoadConfigFile("")
}

// LoadConfigFile is LoadConfig reading path instead of searching for
// config.yaml. An empty path searches.
func LoadConfigFile(path string) (*ServerConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/frigg/")
		v.AddConfigPath("$HOME/.frigg")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// every key needs a default so AutomaticEnv picks it up on Unmarshal
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if cfg.Storage != StorageMongo && cfg.Storage != StorageMemory {
		return nil, fmt.Errorf("unknown STORAGE %q, want %q or %q", cfg.Storage, StorageMongo, StorageMemory)
	}
	return &cfg, nil
}

func (c *ServerConfig) redirect(module string) string {
	if c.RedirectURI == "" {
		return ""
	}
	return strings.TrimRight(c.RedirectURI, "/") + "/" + module
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// ModuleSettings returns the client registration of module. Unknown
// modules get zero Settings.
func (c *ServerConfig) ModuleSettings(module string) modules.Settings {
	switch module {
	case "hubspot":
		return modules.Settings{
			ClientID:     c.HubSpotClientID,
			ClientSecret: c.HubSpotClientSecret,
			RedirectURI:  c.redirect(module),
			Scope:        c.HubSpotScope,
			RateLimit:    c.HubSpotRateLimit,
			RateBurst:    c.HubSpotRateBurst,
		}
	case "sharepoint":
		return modules.Settings{
			ClientID:     c.SharePointClientID,
			ClientSecret: c.SharePointClientSecret,
			RedirectURI:  c.redirect(module),
			Scope:        c.SharePointScope,
			TenantID:     c.SharePointTenantID,
			RateLimit:    c.RateLimit,
			RateBurst:    c.RateBurst,
		}
	case "qbo":
		return modules.Settings{
			ClientID:     c.QBOOAuthKey,
			ClientSecret: c.QBOOAuthSecret,
			RedirectURI:  orDefault(c.QBOOAuthRedirectURI, c.redirect(module)),
			Environment:  c.QBOOAuthEnv,
			RateLimit:    c.RateLimit,
			RateBurst:    c.RateBurst,
		}
	case "attentive":
		return modules.Settings{
			ClientID:     c.AttentiveClientID,
			ClientSecret: c.AttentiveClientSecret,
			RedirectURI:  c.redirect(module),
			Scope:        c.AttentiveScopes,
			BaseURL:      c.AttentiveBaseURL,
			RateLimit:    c.RateLimit,
			RateBurst:    c.RateBurst,
		}
	case "fastspringiq":
		return modules.Settings{
			ClientID:     c.FastSpringIQClientID,
			ClientSecret: c.FastSpringIQClientSecret,
			RedirectURI:  orDefault(c.FastSpringIQRedirectURI, c.redirect(module)),
			BaseURL:      c.FastSpringIQBaseURL,
			APIKey:       c.FastSpringIQAPIKey,
			RateLimit:    c.RateLimit,
			RateBurst:    c.RateBurst,
		}
	default:
		return modules.Settings{}
	}
}
