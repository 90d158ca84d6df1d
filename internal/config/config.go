// Package config loads the YAML configuration shared by the gateway, backend
// and status binaries. Secrets (Redis password, database DSN) are usually
// injected through the environment instead of the file; see Load.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Status   StatusConfig   `yaml:"status"`
	Backend  BackendConfig  `yaml:"backend"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Token    TokenConfig    `yaml:"token"`
}

type GatewayConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// AdminToken guards the kick endpoint. Empty disables it.
	AdminToken        string `yaml:"admin_token"`
	MaxCallsPerMinute int    `yaml:"max_calls_per_minute"`
	// SnowflakeWorkerID must differ between gateway instances or uid
	// collisions become possible.
	SnowflakeWorkerID uint32 `yaml:"snowflake_worker_id"`
	MetricsAddr       string `yaml:"metrics_addr"`
}

type StatusConfig struct {
	RPCAddr     string `yaml:"rpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type BackendConfig struct {
	ServerID   uint32 `yaml:"server_id"`
	ListenAddr string `yaml:"listen_addr"`
	// AdvertiseAddr is what clients are told to dial; defaults to ListenAddr.
	AdvertiseAddr string `yaml:"advertise_addr"`
	MetricsAddr   string `yaml:"metrics_addr"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DatabaseConfig struct {
	DSN         string `yaml:"dsn"`
	PoolInitial int    `yaml:"pool_initial"`
	PoolMax     int    `yaml:"pool_max"`
}

type TokenConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

func (t TokenConfig) TTL() time.Duration {
	return time.Duration(t.TTLSeconds) * time.Second
}

// Load reads the YAML file at path, then lets a handful of environment
// variables override the secret-bearing fields so config files can be
// committed without credentials.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.Gateway.AdminToken = v
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Gateway.ListenAddr == "" {
		c.Gateway.ListenAddr = ":8090"
	}
	if c.Gateway.MaxCallsPerMinute == 0 {
		c.Gateway.MaxCallsPerMinute = 120
	}
	if c.Status.RPCAddr == "" {
		c.Status.RPCAddr = ":9190"
	}
	if c.Backend.ListenAddr == "" {
		c.Backend.ListenAddr = ":1235"
	}
	if c.Backend.AdvertiseAddr == "" {
		c.Backend.AdvertiseAddr = c.Backend.ListenAddr
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Database.PoolInitial == 0 {
		c.Database.PoolInitial = 2
	}
	if c.Database.PoolMax == 0 {
		c.Database.PoolMax = 4
	}
	if c.Token.TTLSeconds == 0 {
		c.Token.TTLSeconds = 50
	}
}
