package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ListenAddr string
	BaseURL    string

	DB struct {
		DSN string
	}

	Google struct {
		ClientID     string
		ClientSecret string
		RedirectPath string
	}

	Session struct {
		Secret string
	}

	Sync struct {
		Workers       int
		QueueCapacity int
		WindowDays    int
	}

	PrometheusEnabled bool
	TrustedProxies    []string
}

// RedirectURL is the absolute OAuth callback address registered with Google.
func (c *Config) RedirectURL() string {
	return strings.TrimRight(c.BaseURL, "/") + c.Google.RedirectPath
}

// WebhookURL is the absolute address Google delivers push notifications to.
func (c *Config) WebhookURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/api/calendar/webhook"
}

func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddr = getenvDefault("APP_LISTEN_ADDR", ":8080")
	cfg.BaseURL = getenvDefault("APP_BASE_URL", "http://localhost:8080")
	cfg.DB.DSN = os.Getenv("APP_DB_DSN")

	if cfg.DB.DSN == "" {
		host := os.Getenv("APP_DB_HOST")
		name := os.Getenv("APP_DB_NAME")
		user := os.Getenv("APP_DB_USER")
		password := os.Getenv("APP_DB_PASSWORD")
		port := getenvDefault("APP_DB_PORT", "5432")
		sslmode := getenvDefault("APP_DB_SSLMODE", "disable")

		var missing []string
		if host == "" {
			missing = append(missing, "APP_DB_HOST")
		}
		if name == "" {
			missing = append(missing, "APP_DB_NAME")
		}
		if user == "" {
			missing = append(missing, "APP_DB_USER")
		}
		if password == "" {
			missing = append(missing, "APP_DB_PASSWORD")
		}

		if len(missing) == 0 {
			cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)
		}
	}

	cfg.Google.ClientID = os.Getenv("APP_GOOGLE_CLIENT_ID")
	cfg.Google.ClientSecret = os.Getenv("APP_GOOGLE_CLIENT_SECRET")
	cfg.Google.RedirectPath = getenvDefault("APP_GOOGLE_REDIRECT_PATH", "/api/calendar/callback")
	cfg.Session.Secret = os.Getenv("APP_SESSION_SECRET")
	cfg.Sync.Workers = getenvInt("APP_SYNC_WORKERS", 4)
	cfg.Sync.QueueCapacity = getenvInt("APP_SYNC_QUEUE_CAPACITY", 256)
	cfg.Sync.WindowDays = getenvInt("APP_SYNC_WINDOW_DAYS", 90)
	cfg.PrometheusEnabled = getenvBool("APP_PROMETHEUS_ENDPOINT_ENABLED", false)
	cfg.TrustedProxies = getenvList("APP_TRUSTED_PROXIES")

	if cfg.DB.DSN == "" {
		return nil, errors.New("APP_DB_DSN is required (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
	}
	if cfg.Google.ClientID == "" || cfg.Google.ClientSecret == "" {
		return nil, errors.New("google oauth configuration is required: APP_GOOGLE_CLIENT_ID and APP_GOOGLE_CLIENT_SECRET")
	}
	if cfg.Session.Secret == "" {
		return nil, errors.New("APP_SESSION_SECRET is required")
	}
	if len(cfg.Session.Secret) < 32 {
		return nil, fmt.Errorf("APP_SESSION_SECRET must be at least 32 characters long (got %d)", len(cfg.Session.Secret))
	}
	if cfg.Sync.Workers <= 0 || cfg.Sync.QueueCapacity <= 0 {
		return nil, errors.New("APP_SYNC_WORKERS and APP_SYNC_QUEUE_CAPACITY must be positive")
	}
	if cfg.Sync.WindowDays <= 0 {
		return nil, errors.New("APP_SYNC_WINDOW_DAYS must be positive")
	}

	if len(cfg.TrustedProxies) == 0 {
		fmt.Println("WARNING: No APP_TRUSTED_PROXIES configured. CalSync will trust all proxies - Not recommended for public environments.")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvList(key string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}
