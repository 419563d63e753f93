package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Reader   ReaderConfig   `yaml:"reader"`
	Engine   EngineConfig   `yaml:"engine"`
	Policy   PolicyConfig   `yaml:"policy"`
	Seed     SeedConfig     `yaml:"seed"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
	Path     string `yaml:"path"` // sqlite file
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL            string        `yaml:"url"`
	ControlTimeout time.Duration `yaml:"control_timeout"`
}

type MinIOConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type ReaderConfig struct {
	Source     string `yaml:"source"`  // tcp, stdin, none
	Address    string `yaml:"address"` // host:port of the serial bridge
	DeviceID   string `yaml:"device_id"`
	AutoStart  bool   `yaml:"auto_start"`
	MaxRetries int    `yaml:"max_retries"`
}

type EngineConfig struct {
	Timezone      string        `yaml:"timezone"`
	ScanTimeout   time.Duration `yaml:"scan_timeout"`
	PublishBuffer int           `yaml:"publish_buffer"`
}

// Location resolves the configured timezone.
func (e EngineConfig) Location() (*time.Location, error) {
	if e.Timezone == "" || e.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", e.Timezone, err)
	}
	return loc, nil
}

// PolicyConfig seeds system_config on first start. The live policy is read
// from the store afterwards.
type PolicyConfig struct {
	CheckinStart  string `yaml:"checkin_start"`
	CheckinEnd    string `yaml:"checkin_end"`
	CheckoutStart string `yaml:"checkout_start"`
	CheckoutEnd   string `yaml:"checkout_end"`
	ScanCooldown  int    `yaml:"scan_cooldown"` // seconds
	DeviceID      string `yaml:"device_id"`
}

// Values returns the seed as system_config key/value pairs.
func (p PolicyConfig) Values() map[string]string {
	return map[string]string{
		"checkin_start":  p.CheckinStart,
		"checkin_end":    p.CheckinEnd,
		"checkout_start": p.CheckoutStart,
		"checkout_end":   p.CheckoutEnd,
		"scan_cooldown":  strconv.Itoa(p.ScanCooldown),
		"reader_id":      p.DeviceID,
	}
}

// SeedConfig lists employees created on ingestor start when their code is
// not stored yet. Tags are (re)assigned on every start.
type SeedConfig struct {
	Employees []SeedEmployee `yaml:"employees"`
}

type SeedEmployee struct {
	Code string   `yaml:"code"`
	Name string   `yaml:"name"`
	Tags []string `yaml:"tags"`
	// Active deactivates or reactivates the employee when set.
	Active *bool `yaml:"active"`
}

type MetricsConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// A .env file next to the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Reader.Source {
	case "tcp", "stdin", "none":
	default:
		return fmt.Errorf("unsupported reader source %q", c.Reader.Source)
	}
	if c.Reader.Source == "tcp" && c.Reader.Address == "" {
		return fmt.Errorf("reader.address is required for tcp source")
	}
	if _, err := c.Engine.Location(); err != nil {
		return err
	}
	for i, e := range c.Seed.Employees {
		if e.Code == "" || e.Name == "" {
			return fmt.Errorf("seed.employees[%d]: code and name are required", i)
		}
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "checkins.db"
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.ControlTimeout == 0 {
		cfg.NATS.ControlTimeout = 5 * time.Second
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "attendance-archive"
	}
	if cfg.Reader.Source == "" {
		cfg.Reader.Source = "tcp"
	}
	if cfg.Reader.MaxRetries == 0 {
		cfg.Reader.MaxRetries = 3
	}
	if cfg.Engine.ScanTimeout == 0 {
		cfg.Engine.ScanTimeout = 3 * time.Second
	}
	if cfg.Engine.PublishBuffer == 0 {
		cfg.Engine.PublishBuffer = 256
	}
	if cfg.Policy.CheckinStart == "" {
		cfg.Policy.CheckinStart = "08:45"
	}
	if cfg.Policy.CheckinEnd == "" {
		cfg.Policy.CheckinEnd = "09:15"
	}
	if cfg.Policy.CheckoutStart == "" {
		cfg.Policy.CheckoutStart = "17:45"
	}
	if cfg.Policy.CheckoutEnd == "" {
		cfg.Policy.CheckoutEnd = "18:15"
	}
	if cfg.Policy.ScanCooldown == 0 {
		cfg.Policy.ScanCooldown = 10
	}
	if cfg.Policy.DeviceID == "" {
		cfg.Policy.DeviceID = "MAIN_ENTRANCE"
	}
	if cfg.Reader.DeviceID == "" {
		cfg.Reader.DeviceID = cfg.Policy.DeviceID
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 8081
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ATT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ATT_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("ATT_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("ATT_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("ATT_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("ATT_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("ATT_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("ATT_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("ATT_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ATT_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("ATT_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("ATT_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("ATT_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("ATT_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("ATT_READER_SOURCE"); v != "" {
		cfg.Reader.Source = v
	}
	if v := os.Getenv("ATT_READER_ADDRESS"); v != "" {
		cfg.Reader.Address = v
	}
	if v := os.Getenv("ATT_TIMEZONE"); v != "" {
		cfg.Engine.Timezone = v
	}
}
