package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Backend    BackendConfig
	Server     ServerConfig
	Logging    LogConfig
	RateLimit  RateLimitConfig
	Tree       TreeConfig
	Editor     EditorConfig
	DevBackend DevBackendConfig
}

// BackendConfig holds the remote workspace backend connection settings.
type BackendConfig struct {
	URL           string        `envconfig:"BACKEND_URL" default:"http://localhost:5051"`
	APIPrefix     string        `envconfig:"BACKEND_API_PREFIX" default:"/api"`
	PreviewPrefix string        `envconfig:"BACKEND_PREVIEW_PREFIX" default:"/preview"`
	WorkspaceID   string        `envconfig:"WORKSPACE_ID"`
	Timeout       time.Duration `envconfig:"BACKEND_TIMEOUT" default:"30s"`
	RetryMax      int           `envconfig:"BACKEND_RETRY_MAX" default:"3"`
	RetryWaitMin  time.Duration `envconfig:"BACKEND_RETRY_WAIT_MIN" default:"250ms"`
	RetryWaitMax  time.Duration `envconfig:"BACKEND_RETRY_WAIT_MAX" default:"5s"`
	RateLimitRPS  float64       `envconfig:"BACKEND_RATE_LIMIT_RPS" default:"0"`
	AuthToken     string        `envconfig:"BACKEND_AUTH_TOKEN"`
}

// ServerConfig holds the control API listener configuration.
type ServerConfig struct {
	Port        string   `envconfig:"PORT" default:"8000"`
	Host        string   `envconfig:"HOST" default:"127.0.0.1"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds control API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// TreeConfig holds file explorer settings.
type TreeConfig struct {
	Ignore []string `envconfig:"TREE_IGNORE" default:"build/**,.dart_tool/**,.git/**"`
}

// EditorConfig holds editor bridge settings.
type EditorConfig struct {
	LanguagesFile string `envconfig:"EDITOR_LANGUAGES_FILE"`
	// TabClose is "left" (select the left neighbour) or "first".
	TabClose string `envconfig:"EDITOR_TAB_CLOSE" default:"left"`
}

// DevBackendConfig holds the local development backend settings.
type DevBackendConfig struct {
	Root     string   `envconfig:"DEV_ROOT" default:"./workspaces"`
	Template string   `envconfig:"DEV_TEMPLATE"`
	BuildCmd []string `envconfig:"DEV_BUILD_CMD" default:"flutter pub get,flutter build web --release --pwa-strategy=none"`
	Port     string   `envconfig:"DEV_PORT" default:"5051"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:           "http://localhost:5051",
			APIPrefix:     "/api",
			PreviewPrefix: "/preview",
			Timeout:       30 * time.Second,
			RetryMax:      3,
			RetryWaitMin:  250 * time.Millisecond,
			RetryWaitMax:  5 * time.Second,
		},
		Server: ServerConfig{
			Port:        "8000",
			Host:        "127.0.0.1",
			CORSOrigins: []string{"*"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Tree: TreeConfig{
			Ignore: []string{"build/**", ".dart_tool/**", ".git/**"},
		},
		Editor: EditorConfig{
			TabClose: "left",
		},
		DevBackend: DevBackendConfig{
			Root: "./workspaces",
			BuildCmd: []string{
				"flutter pub get",
				"flutter build web --release --pwa-strategy=none",
			},
			Port: "5051",
		},
	}
}
