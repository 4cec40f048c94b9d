package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	URL string `yaml:"url"` // базовый ws-эндпоинт, например ws://127.0.0.1:8081/ws
}

type Relay struct {
	Addr string `yaml:"addr"`
}

// Client — тайминги транспорта и протокола код-шаринга.
// Все интервалы в формате time.ParseDuration.
type Client struct {
	HeartbeatEvery string `yaml:"heartbeatEvery"` // default 30s
	ReconnectEvery string `yaml:"reconnectEvery"` // default 3s
	MaxReconnects  int    `yaml:"maxReconnects"`  // default 3
	DialTimeout    string `yaml:"dialTimeout"`    // default 10s
	DiffDebounce   string `yaml:"diffDebounce"`   // default 300ms
	SyncApplyDelay string `yaml:"syncApplyDelay"` // default 150ms
	DecorationTTL  string `yaml:"decorationTTL"`  // default 5s
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // collab-client
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"`
	Debug     bool   `yaml:"debug"`
}

type Config struct {
	Server  Server  `yaml:"server"`
	Relay   Relay   `yaml:"relay"`
	Client  Client  `yaml:"client"`
	Logging Logging `yaml:"logging"`
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

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.URL == "" {
		return errors.New("server.url is required")
	}
	if c.Relay.Addr == "" {
		c.Relay.Addr = ":8081"
	}
	if c.Client.MaxReconnects <= 0 {
		c.Client.MaxReconnects = 3
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "collab-client"
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
	return nil
}

func (c *Client) HeartbeatInterval() time.Duration {
	return parseDurationOr(30*time.Second, c.HeartbeatEvery)
}

func (c *Client) ReconnectInterval() time.Duration {
	return parseDurationOr(3*time.Second, c.ReconnectEvery)
}

func (c *Client) DialTimeoutD() time.Duration {
	return parseDurationOr(10*time.Second, c.DialTimeout)
}

func (c *Client) DiffDebounceD() time.Duration {
	return parseDurationOr(300*time.Millisecond, c.DiffDebounce)
}

func (c *Client) SyncApplyDelayD() time.Duration {
	return parseDurationOr(150*time.Millisecond, c.SyncApplyDelay)
}

func (c *Client) DecorationTTLD() time.Duration {
	return parseDurationOr(5*time.Second, c.DecorationTTL)
}

// helper для парсинга timeout-ов
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
