// Package config loads client and relay settings from defaults, an optional
// YAML file, a .env file, the environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envVarPrefix = "CHAT"

// UI modes for the chat client.
const (
	UITUI     = "tui"
	UIConsole = "console"
)

// Config holds every setting used by cmd/chat and cmd/relay.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Client ClientConfig `mapstructure:"client"`
	Log    LogConfig    `mapstructure:"log"`
	Relay  RelayConfig  `mapstructure:"relay"`
}

// ServerConfig describes the relay the client connects to.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// tcp or ws.
	Transport   string        `mapstructure:"transport"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type ClientConfig struct {
	// tui or console.
	UI              string `mapstructure:"ui"`
	QueueSize       int    `mapstructure:"queue_size"`
	MaxNameAttempts int    `mapstructure:"max_name_attempts"`
}

type LogConfig struct {
	// debug, info, warn or error.
	Level string `mapstructure:"level"`
	// Blank writes to stderr.
	File string `mapstructure:"file"`
}

type RelayConfig struct {
	Listen        string        `mapstructure:"listen"`
	RememberHosts bool          `mapstructure:"remember_hosts"`
	RegistryTTL   time.Duration `mapstructure:"registry_ttl"`
	RegistryFile  string        `mapstructure:"registry_file"`
}

var defaults = map[string]any{
	"server.host":              "localhost",
	"server.port":              6066,
	"server.transport":         "tcp",
	"server.dial_timeout":      5 * time.Second,
	"client.ui":                UITUI,
	"client.queue_size":        64,
	"client.max_name_attempts": 0,
	"log.level":                "info",
	"log.file":                 "",
	"relay.listen":             ":6066",
	"relay.remember_hosts":     false,
	"relay.registry_ttl":       24 * time.Hour,
	"relay.registry_file":      "",
}

// Legacy variable names honoured next to the CHAT_ prefixed ones.
var envAliases = map[string]string{
	"server.host": "SERVER_HOST",
	"server.port": "SERVER_PORT",
}

// New returns a viper instance with defaults and environment bindings in
// place. Flags can be bound to it before Load.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(envVarPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Nested keys need explicit bindings to be found through the
	// environment, e.g. server.host as CHAT_SERVER_HOST.
	for k := range defaults {
		names := []string{envVarPrefix + "_" + strings.ToUpper(strings.ReplaceAll(k, ".", "_"))}
		if alias, ok := envAliases[k]; ok {
			names = append(names, alias)
		}
		_ = v.BindEnv(append([]string{k}, names...)...)
	}
	return v
}

// LoadDotEnv reads .env from the working directory into the process
// environment. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Load reads the config file (path, or chat.yaml in the usual locations
// when path is blank) and decodes the merged settings.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("chat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "relay-chat"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the client or relay cannot run with.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case "tcp", "ws":
	default:
		return fmt.Errorf("invalid server.transport %q: want tcp or ws", c.Server.Transport)
	}
	switch c.Client.UI {
	case UITUI, UIConsole:
	default:
		return fmt.Errorf("invalid client.ui %q: want %s or %s", c.Client.UI, UITUI, UIConsole)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Client.QueueSize < 0 {
		return fmt.Errorf("invalid client.queue_size %d", c.Client.QueueSize)
	}
	if c.Client.MaxNameAttempts < 0 {
		return fmt.Errorf("invalid client.max_name_attempts %d", c.Client.MaxNameAttempts)
	}
	return nil
}

// ServerAddress is the host:port the client dials.
func (c *Config) ServerAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
