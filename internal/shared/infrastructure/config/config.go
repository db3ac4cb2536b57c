package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/saransh1220/tableside-sync/internal/shared/infrastructure/database"
	"github.com/spf13/viper"
)

const (
	TransportStomp = "stomp"
	TransportRedis = "redis"
)

// Config holds all configuration for the agent
type Config struct {
	Server   ServerConfig         `mapstructure:"server"`
	Backend  BackendConfig        `mapstructure:"backend"`
	Realtime RealtimeConfig       `mapstructure:"realtime"`
	Redis    database.RedisConfig `mapstructure:"redis"`
	Auth     AuthConfig           `mapstructure:"auth"`
	Feeds    FeedsConfig          `mapstructure:"feeds"`
}

// ServerConfig holds the local API settings
type ServerConfig struct {
	Port           string `mapstructure:"port"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// BackendConfig points at the restaurant REST API. Either credentials or a
// pre-issued session cookie ("name=value") must be supplied.
type BackendConfig struct {
	URL            string        `mapstructure:"url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	SessionCookie  string        `mapstructure:"session_cookie"`
	UserID         string        `mapstructure:"user_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RealtimeConfig selects and configures the push transport
type RealtimeConfig struct {
	Transport      string        `mapstructure:"transport"`
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	HeartBeat      time.Duration `mapstructure:"heart_beat"`
}

// AuthConfig protects the local API. An empty secret leaves it open.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type FeedsConfig struct {
	NotificationPageSize int `mapstructure:"notification_page_size"`
	OrderPageSize        int `mapstructure:"order_page_size"`
}

var envBindings = map[string]string{
	"server.port":                  "PORT",
	"server.allowed_origins":       "ALLOWED_ORIGINS",
	"backend.url":                  "BACKEND_URL",
	"backend.username":             "BACKEND_USERNAME",
	"backend.password":             "BACKEND_PASSWORD",
	"backend.session_cookie":       "BACKEND_SESSION_COOKIE",
	"backend.user_id":              "BACKEND_USER_ID",
	"backend.request_timeout":      "REQUEST_TIMEOUT",
	"realtime.transport":           "REALTIME_TRANSPORT",
	"realtime.url":                 "REALTIME_URL",
	"realtime.reconnect_delay":     "REALTIME_RECONNECT_DELAY",
	"realtime.heart_beat":          "REALTIME_HEART_BEAT",
	"redis.host":                   "REDIS_HOST",
	"redis.port":                   "REDIS_PORT",
	"redis.password":               "REDIS_PASSWORD",
	"redis.db":                     "REDIS_DB",
	"auth.jwt_secret":              "JWT_SECRET",
	"auth.token_ttl":               "JWT_EXPIRATION",
	"feeds.notification_page_size": "NOTIFICATION_PAGE_SIZE",
	"feeds.order_page_size":        "ORDER_PAGE_SIZE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8090")
	v.SetDefault("server.allowed_origins", "http://localhost:4200")
	v.SetDefault("backend.url", "http://localhost:8080")
	v.SetDefault("backend.request_timeout", "15s")
	v.SetDefault("realtime.transport", TransportStomp)
	v.SetDefault("realtime.url", "ws://localhost:8080/ws")
	v.SetDefault("realtime.reconnect_delay", "5s")
	v.SetDefault("realtime.heart_beat", "10s")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("feeds.notification_page_size", 10)
	v.SetDefault("feeds.order_page_size", 10)
}

// Load reads defaults, then the optional YAML file named by SYNC_CONFIG,
// then environment variables, each overriding the previous.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if path := os.Getenv("SYNC_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) {
				return Config{}, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Realtime.Transport = strings.ToLower(strings.TrimSpace(cfg.Realtime.Transport))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Realtime.Transport {
	case TransportStomp, TransportRedis:
	default:
		return fmt.Errorf("unsupported realtime transport %q", c.Realtime.Transport)
	}
	if c.Backend.URL == "" {
		return errors.New("backend url is required")
	}
	if c.Feeds.NotificationPageSize <= 0 || c.Feeds.OrderPageSize <= 0 {
		return errors.New("page sizes must be positive")
	}
	return nil
}

// Origins splits AllowedOrigins on commas.
func (s ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
