package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr       string
	AllowedOrigin    string
	DatabasePath     string
	SessionPath      string
	BackendURL       string
	HTTPTimeout      time.Duration
	AutoSyncInterval time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisChannel     string
	ManagerPIN       string
	LogLevel         string
	LogFormat        string
	LogOutput        string
}

// MemoryDatabase as database_path keeps the cache and queue in process memory.
const MemoryDatabase = ":memory:"

var defaults = map[string]any{
	"listen_addr":        "127.0.0.1:8765",
	"allowed_origin":     "http://127.0.0.1:8765",
	"database_path":      "posclient.db",
	"session_path":       "posclient.session.json",
	"backend_url":        "https://www.cashboi.com.bd/api",
	"http_timeout":       "15s",
	"auto_sync_interval": "60s",
	"redis_addr":         "",
	"redis_password":     "",
	"redis_db":           0,
	"redis_channel":      "posclient:signals",
	"manager_pin":        "",
	"log_level":          "info",
	"log_format":         "console",
	"log_output":         "stderr",
}

// Load reads configuration with this priority:
// environment variables with the POS_ prefix (POS_BACKEND_URL),
// then posclient.toml in the working directory, then built-in defaults.
func Load() (Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("posclient")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("POS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		ListenAddr:       strings.TrimSpace(v.GetString("listen_addr")),
		AllowedOrigin:    strings.TrimSpace(v.GetString("allowed_origin")),
		DatabasePath:     strings.TrimSpace(v.GetString("database_path")),
		SessionPath:      strings.TrimSpace(v.GetString("session_path")),
		BackendURL:       strings.TrimRight(strings.TrimSpace(v.GetString("backend_url")), "/"),
		HTTPTimeout:      v.GetDuration("http_timeout"),
		AutoSyncInterval: v.GetDuration("auto_sync_interval"),
		RedisAddr:        strings.TrimSpace(v.GetString("redis_addr")),
		RedisPassword:    v.GetString("redis_password"),
		RedisDB:          v.GetInt("redis_db"),
		RedisChannel:     strings.TrimSpace(v.GetString("redis_channel")),
		ManagerPIN:       strings.TrimSpace(v.GetString("manager_pin")),
		LogLevel:         v.GetString("log_level"),
		LogFormat:        v.GetString("log_format"),
		LogOutput:        v.GetString("log_output"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	host, _, err := net.SplitHostPort(c.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen_addr: %w", err)
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return fmt.Errorf("listen_addr must be a loopback address, got %q", c.ListenAddr)
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("backend_url must be an absolute http(s) URL, got %q", c.BackendURL)
	}
	if c.DatabasePath == "" {
		return errors.New("database_path is required")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("http_timeout must be positive")
	}
	if c.AutoSyncInterval < 0 {
		return errors.New("auto_sync_interval must not be negative")
	}
	return nil
}

// AutoSyncEnabled reports whether the background drain loop should run.
func (c Config) AutoSyncEnabled() bool {
	return c.AutoSyncInterval > 0
}
