package env

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"time"

	"github.com/ghodss/yaml"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 6379
	DefaultReadChunkSize = 4096
	DefaultDialTimeout   = 5 * time.Second
	DefaultGatewayHost   = "0.0.0.0"
	DefaultGatewayPort   = 7380
	DefaultLogLevel      = "info"
)

type Config struct {
	Host          string        `env:"REDISCLIENT_HOST"`
	Port          int           `env:"REDISCLIENT_PORT"`
	Password      string        `env:"REDISCLIENT_PASSWORD"`
	DB            int           `env:"REDISCLIENT_DB"`
	ReadChunkSize int           `env:"REDISCLIENT_READ_CHUNK_SIZE"`
	DialTimeout   time.Duration `env:"REDISCLIENT_DIAL_TIMEOUT"`

	GatewayHost string `env:"REDISCLIENT_GATEWAY_HOST"`
	GatewayPort int    `env:"REDISCLIENT_GATEWAY_PORT"`
	DebugHTTP   bool   `env:"REDISCLIENT_DEBUG_HTTP"`

	LogLevel string `env:"REDISCLIENT_LOG_LEVEL"`
}

// fileConfig is the YAML layout of Config.
type fileConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Password      string `json:"password"`
	DB            int    `json:"db"`
	ReadChunkSize int    `json:"readChunkSize"`
	DialTimeout   string `json:"dialTimeout"`
	GatewayHost   string `json:"gatewayHost"`
	GatewayPort   int    `json:"gatewayPort"`
	DebugHTTP     bool   `json:"debugHTTP"`
	LogLevel      string `json:"logLevel"`
}

// LoadConfig reads the environment (and .env.local), then fills whatever it
// left unset from the YAML file at path, then from the defaults. path may be
// empty.
func LoadConfig(ctx context.Context, path string) (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return LoadConfigWith(ctx, path, envconfig.OsLookuper())
}

// LoadConfigWith is LoadConfig reading the environment from lookuper.
func LoadConfigWith(ctx context.Context, path string, lookuper envconfig.Lookuper) (*Config, error) {
	config := Config{}

	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		return nil, err
	}

	if path != "" {
		file, err := readFile(path)
		if err != nil {
			return nil, err
		}

		if err := config.merge(file, lookuper); err != nil {
			return nil, fmt.Errorf("Invalid config file %s: %w", path, err)
		}
	}

	config.applyDefaults()

	return &config, nil
}

func readFile(path string) (*fileConfig, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	file := &fileConfig{}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("Failed to parse %s: %w", path, err)
	}

	return file, nil
}

// merge takes each value from file unless the environment set it, even to a
// zero value.
func (c *Config) merge(file *fileConfig, lookuper envconfig.Lookuper) error {
	fromFile := func(key string) bool {
		_, set := lookuper.Lookup(key)
		return !set
	}

	if fromFile("REDISCLIENT_HOST") {
		c.Host = file.Host
	}
	if fromFile("REDISCLIENT_PORT") {
		c.Port = file.Port
	}
	if fromFile("REDISCLIENT_PASSWORD") {
		c.Password = file.Password
	}
	if fromFile("REDISCLIENT_DB") {
		c.DB = file.DB
	}
	if fromFile("REDISCLIENT_READ_CHUNK_SIZE") {
		c.ReadChunkSize = file.ReadChunkSize
	}
	if fromFile("REDISCLIENT_DIAL_TIMEOUT") && file.DialTimeout != "" {
		d, err := time.ParseDuration(file.DialTimeout)
		if err != nil {
			return err
		}
		c.DialTimeout = d
	}
	if fromFile("REDISCLIENT_GATEWAY_HOST") {
		c.GatewayHost = file.GatewayHost
	}
	if fromFile("REDISCLIENT_GATEWAY_PORT") {
		c.GatewayPort = file.GatewayPort
	}
	if fromFile("REDISCLIENT_DEBUG_HTTP") {
		c.DebugHTTP = file.DebugHTTP
	}
	if fromFile("REDISCLIENT_LOG_LEVEL") {
		c.LogLevel = file.LogLevel
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ReadChunkSize == 0 {
		c.ReadChunkSize = DefaultReadChunkSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.GatewayHost == "" {
		c.GatewayHost = DefaultGatewayHost
	}
	if c.GatewayPort == 0 {
		c.GatewayPort = DefaultGatewayPort
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}
