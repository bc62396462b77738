// Package config loads server configuration from defaults, an optional YAML
// file and XPERTLY_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DevWaitTokenSecret signs wait tokens when no secret is configured. It only
// exists so a local server starts without any setup; deployments must set
// XPERTLY_WAIT_TOKEN_SECRET.
const DevWaitTokenSecret = "wow much secret"

// Config holds everything the server binary needs.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// WaitTokenSecret signs the HS256 wait tokens handed to suspended runs.
	WaitTokenSecret string        `yaml:"waitTokenSecret"`
	WaitTokenTTL    time.Duration `yaml:"waitTokenTTL"`

	// PersistBaseURL is the elastic gateway used for run logs and suspended
	// payloads (post_to_elastic / get_handler_payload).
	PersistBaseURL string `yaml:"persistBaseUrl"`
	// CoreAPIBaseURL serves integrations and assets-by-tags.
	CoreAPIBaseURL string `yaml:"coreApiBaseUrl"`
	// UserAPIBaseURL resolves the triggering user.
	UserAPIBaseURL string `yaml:"userApiBaseUrl"`

	HTTPTimeout       time.Duration `yaml:"httpTimeout"`
	InsecureVendorTLS bool          `yaml:"insecureVendorTls"`

	AllowedOrigins []string `yaml:"allowedOrigins"`
}

func defaults() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            8000,
		LogLevel:        "info",
		WaitTokenSecret: DevWaitTokenSecret,
		WaitTokenTTL:    24 * time.Hour,
		PersistBaseURL:  "https://api.dev.xpertly.io",
		CoreAPIBaseURL:  "http://localhost:8000",
		UserAPIBaseURL:  "https://api.dev.avicenna.io",
		HTTPTimeout:     60 * time.Second,
		AllowedOrigins:  []string{"*"},
	}
}

// Load builds a Config. path may be empty; when set it names a YAML file.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("XPERTLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("wait_token_secret", cfg.WaitTokenSecret)
	v.SetDefault("wait_token_ttl", cfg.WaitTokenTTL)
	v.SetDefault("persist_base_url", cfg.PersistBaseURL)
	v.SetDefault("core_api_base_url", cfg.CoreAPIBaseURL)
	v.SetDefault("user_api_base_url", cfg.UserAPIBaseURL)
	v.SetDefault("http_timeout", cfg.HTTPTimeout)
	v.SetDefault("insecure_vendor_tls", cfg.InsecureVendorTLS)
	v.SetDefault("allowed_origins", strings.Join(cfg.AllowedOrigins, ","))

	cfg.Host = v.GetString("host")
	cfg.Port = v.GetInt("port")
	cfg.LogLevel = v.GetString("log_level")
	cfg.WaitTokenSecret = v.GetString("wait_token_secret")
	cfg.WaitTokenTTL = v.GetDuration("wait_token_ttl")
	cfg.PersistBaseURL = strings.TrimRight(v.GetString("persist_base_url"), "/")
	cfg.CoreAPIBaseURL = strings.TrimRight(v.GetString("core_api_base_url"), "/")
	cfg.UserAPIBaseURL = strings.TrimRight(v.GetString("user_api_base_url"), "/")
	cfg.HTTPTimeout = v.GetDuration("http_timeout")
	cfg.InsecureVendorTLS = v.GetBool("insecure_vendor_tls")
	if origins := v.GetString("allowed_origins"); origins != "" {
		parts := strings.Split(origins, ",")
		cfg.AllowedOrigins = cfg.AllowedOrigins[:0]
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.WaitTokenSecret == "" {
		return fmt.Errorf("wait token secret must not be empty")
	}
	if c.WaitTokenTTL <= 0 {
		return fmt.Errorf("wait token ttl must be positive")
	}
	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UsingDevSecret reports whether the built-in dev signing secret is active.
func (c *Config) UsingDevSecret() bool {
	return c.WaitTokenSecret == DevWaitTokenSecret
}
