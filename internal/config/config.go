package config

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"

	AccountsStoreJsonDB = "jsondb"
	AccountsStoreMemory = "memory"
)

type Config struct {
	Host        string
	Port        int
	Environment string

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// session store backend: redis | memory
	SessionStore string `toml:"session_store"`
	RedisHost    string `toml:"redis_host"`
	RedisPort    string `toml:"redis_port"`

	// accounts store backend: jsondb | memory
	AccountsStore string `toml:"accounts_store"`
	DataDirPath   string `toml:"data_dir_path"`

	// theme settings + static site
	ThemeSettingsPath string `toml:"theme_settings_path"`
	StaticDirPath     string `toml:"static_dir_path"`

	// session cookie
	CookieDomain   string `toml:"cookie_domain"`
	CookieSecure   bool   `toml:"cookie_secure"`
	CookieSameSite string `toml:"cookie_same_site"` // strict | lax

	// cross-origin clients allowed to call the api
	AllowedOrigins []string `toml:"allowed_origins"`

	// login brute force protection
	LoginRateLimitAttempts      int `toml:"login_rate_limit_attempts"`
	LoginRateLimitWindowMinutes int `toml:"login_rate_limit_window_minutes"`

	// prometheus
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`
}

// CookieSameSiteMode maps the configured policy to the http package
// constant; strict is the default, matching the original deployment
func (c *Config) CookieSameSiteMode() http.SameSite {
	switch strings.ToLower(c.CookieSameSite) {
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteStrictMode
	}
}

func (c *Config) applyDefaults() {
	if c.SessionStore == "" {
		c.SessionStore = SessionStoreMemory
	}
	if c.AccountsStore == "" {
		c.AccountsStore = AccountsStoreMemory
	}
	if c.LoginRateLimitAttempts <= 0 {
		c.LoginRateLimitAttempts = 5
	}
	if c.LoginRateLimitWindowMinutes <= 0 {
		c.LoginRateLimitWindowMinutes = 15
	}
	if c.ThemeSettingsPath == "" {
		c.ThemeSettingsPath = "./theme-settings.json"
	}
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

func Load(env, path string) (*Config, error) {
	var tomlConfig Toml
	if _, err := toml.DecodeFile(path, &tomlConfig); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	cfg, err := tomlConfig.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config file %s has no section for env: %s", path, env)
	}

	cfg.Environment = env
	cfg.applyDefaults()

	return cfg, nil
}
