package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type GRPC struct {
	Addr string `yaml:"addr"` // пусто — gRPC не поднимается
}

type HTTP struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	IdleTimeout    time.Duration `yaml:"idleTimeout"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // meet-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

// Postgres: пустой DSN — хранилище в памяти.
type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
	Migrate           bool          `yaml:"migrate"`
}

type Store struct {
	Timeout time.Duration `yaml:"timeout"`
}

type Chat struct {
	MaxLength int `yaml:"maxLength"`
}

type WS struct {
	PingPeriod time.Duration `yaml:"pingPeriod"`
	ReadLimit  int64         `yaml:"readLimit"`
	SendBuffer int           `yaml:"sendBuffer"`
}

// RateLimit: кадров на сессию за окно; redisAddr — общий лимит для нескольких экземпляров.
type RateLimit struct {
	Limit     int           `yaml:"limit"`
	Window    time.Duration `yaml:"window"`
	RedisAddr string        `yaml:"redisAddr"`
	KeyPrefix string        `yaml:"keyPrefix"`
}

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

type WebRTC struct {
	ICEServers []ICEServer `yaml:"iceServers"`
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	GRPC      GRPC      `yaml:"grpc"`
	Logging   Logging   `yaml:"logging"`
	Postgres  Postgres  `yaml:"postgres"`
	Store     Store     `yaml:"store"`
	Chat      Chat      `yaml:"chat"`
	WS        WS        `yaml:"ws"`
	RateLimit RateLimit `yaml:"rateLimit"`
	WebRTC    WebRTC    `yaml:"webrtc"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse разбирает YAML, применяет переопределения из окружения и дефолты.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv — секреты и адреса удобнее передавать через окружение.
func (c *Config) applyEnv() {
	if v := os.Getenv("MEET_PG_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("MEET_REDIS_ADDR"); v != "" {
		c.RateLimit.RedisAddr = v
	}
	if v := os.Getenv("MEET_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("MEET_STORE_TIMEOUT"); v != "" {
		c.Store.Timeout = parseDurationOr(c.Store.Timeout, v)
	}
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Chat.MaxLength < 0 {
		return errors.New("chat.maxLength must not be negative")
	}
	if c.RateLimit.Limit < 0 {
		return errors.New("rateLimit.limit must not be negative")
	}
	for i, s := range c.WebRTC.ICEServers {
		if len(s.URLs) == 0 {
			return fmt.Errorf("webrtc.iceServers[%d].urls is required", i)
		}
	}

	// установка дефолтов, если значения не указаны
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"*"}
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "meet-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Postgres.ApplicationName == "" {
		c.Postgres.ApplicationName = c.Logging.Service
	}
	if c.Store.Timeout == 0 {
		c.Store.Timeout = 5 * time.Second
	}
	if c.Chat.MaxLength == 0 {
		c.Chat.MaxLength = 2000
	}
	if c.WS.PingPeriod == 0 {
		c.WS.PingPeriod = 15 * time.Second
	}
	if c.WS.ReadLimit == 0 {
		c.WS.ReadLimit = 64 << 10
	}
	if c.WS.SendBuffer == 0 {
		c.WS.SendBuffer = 64
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Second
	}
	if c.RateLimit.KeyPrefix == "" {
		c.RateLimit.KeyPrefix = "meet:ratelimit:"
	}
	if len(c.WebRTC.ICEServers) == 0 {
		c.WebRTC.ICEServers = []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}}}
	}
	return nil
}

// UseMemoryStore — без DSN сервис работает на хранилище в памяти.
func (c *Config) UseMemoryStore() bool {
	return strings.TrimSpace(c.Postgres.DSN) == ""
}

// helper для парсинга timeout-ов
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
