package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file whose path comes from LANCEDESK_CONFIG
// (default ./config.yaml). All fields are optional; defaults are applied by
// the accessor methods.
//
// Example:
//
// server:
//   host: 127.0.0.1
//   port: 8090
// database:
//   driver: sqlite          # sqlite or postgres
//   dsn: lancedesk.db       # file path for sqlite, DSN for postgres
// redis:
//   addr: ""                # empty disables the directory cache
// storage:
//   backend: disk           # disk or s3
//   dir: ./uploads
//   base_url: /uploads
//   s3_bucket: ""
//   s3_prefix: ""
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - Port must be between 1 and 65535.

type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

type DatabaseConfig struct {
	Driver *string `yaml:"driver"`
	DSN    *string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     *string `yaml:"addr"`
	Password *string `yaml:"password"`
	DB       *int    `yaml:"db"`
}

type StorageConfig struct {
	Backend  *string `yaml:"backend"`
	Dir      *string `yaml:"dir"`
	BaseURL  *string `yaml:"base_url"`
	S3Bucket *string `yaml:"s3_bucket"`
	S3Prefix *string `yaml:"s3_prefix"`
}

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8090

	DefaultDBDriver = "sqlite"
	DefaultDBDSN    = "lancedesk.db"

	DefaultStorageBackend = "disk"
	DefaultStorageDir     = "./uploads"
	DefaultStorageBaseURL = "/uploads"
)

// ConfigPath returns the config file path, honoring LANCEDESK_CONFIG.
func ConfigPath() string {
	if v := strings.TrimSpace(os.Getenv("LANCEDESK_CONFIG")); v != "" {
		return v
	}
	return "config.yaml"
}

// Load reads the config file. If the file doesn't exist, it returns a
// default config and nil error.
func Load() (*AppConfig, string, error) {
	configFile := ConfigPath()

	cfg := &AppConfig{}
	// Defaults are applied via the accessor methods.

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, configFile, nil
		}
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	// Validate
	host := cfg.Host()
	if strings.TrimSpace(host) == "" {
		return nil, "", fmt.Errorf("invalid server.host (empty) in %s", configFile)
	}

	port := cfg.Port()
	if port < 1 || port > 65535 {
		return nil, "", fmt.Errorf("invalid server.port %d in %s", port, configFile)
	}

	switch cfg.DBDriver() {
	case "sqlite", "postgres":
	default:
		return nil, "", fmt.Errorf("invalid database.driver %q in %s", cfg.DBDriver(), configFile)
	}

	switch cfg.StorageBackend() {
	case "disk":
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket()) == "" {
			return nil, "", fmt.Errorf("storage.s3_bucket is required with the s3 backend in %s", configFile)
		}
	default:
		return nil, "", fmt.Errorf("invalid storage.backend %q in %s", cfg.StorageBackend(), configFile)
	}

	return cfg, configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil || c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil || c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

func (c *AppConfig) DBDriver() string {
	if c == nil || c.Database.Driver == nil {
		return DefaultDBDriver
	}
	v := strings.TrimSpace(*c.Database.Driver)
	if v == "" {
		return DefaultDBDriver
	}
	return strings.ToLower(v)
}

func (c *AppConfig) DBDSN() string {
	if c == nil || c.Database.DSN == nil {
		return DefaultDBDSN
	}
	v := strings.TrimSpace(*c.Database.DSN)
	if v == "" {
		return DefaultDBDSN
	}
	return v
}

func (c *AppConfig) RedisAddr() string {
	if c == nil || c.Redis.Addr == nil {
		return ""
	}
	return strings.TrimSpace(*c.Redis.Addr)
}

func (c *AppConfig) RedisPassword() string {
	if c == nil || c.Redis.Password == nil {
		return ""
	}
	return *c.Redis.Password
}

func (c *AppConfig) RedisDB() int {
	if c == nil || c.Redis.DB == nil {
		return 0
	}
	return *c.Redis.DB
}

func (c *AppConfig) StorageBackend() string {
	if c == nil || c.Storage.Backend == nil {
		return DefaultStorageBackend
	}
	v := strings.TrimSpace(*c.Storage.Backend)
	if v == "" {
		return DefaultStorageBackend
	}
	return strings.ToLower(v)
}

func (c *AppConfig) StorageDir() string {
	if c == nil || c.Storage.Dir == nil {
		return DefaultStorageDir
	}
	v := strings.TrimSpace(*c.Storage.Dir)
	if v == "" {
		return DefaultStorageDir
	}
	return v
}

func (c *AppConfig) StorageBaseURL() string {
	if c == nil || c.Storage.BaseURL == nil {
		return DefaultStorageBaseURL
	}
	v := strings.TrimSpace(*c.Storage.BaseURL)
	if v == "" {
		return DefaultStorageBaseURL
	}
	return v
}

func (c *AppConfig) S3Bucket() string {
	if c == nil || c.Storage.S3Bucket == nil {
		return ""
	}
	return strings.TrimSpace(*c.Storage.S3Bucket)
}

func (c *AppConfig) S3Prefix() string {
	if c == nil || c.Storage.S3Prefix == nil {
		return ""
	}
	return strings.Trim(strings.TrimSpace(*c.Storage.S3Prefix), "/")
}
