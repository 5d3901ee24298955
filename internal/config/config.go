package config

import (
	"fmt"
	"net"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Keys shared by viper, environment bindings and command-line flags.
const (
	KeyServerName    = "server_name"
	KeyServerVersion = "server_version"
	KeyTransport     = "transport"
	KeyHost          = "host"
	KeyPort          = "port"
	KeyWorkers       = "workers"
	KeyConfigFile    = "config_file"
	KeySecretRules   = "secret_rules"
	KeyLogLevel      = "log_level"
)

const maxAutoWorkers = 16

type TransportMode string

const (
	TransportStdio TransportMode = "stdio"
	TransportHTTP  TransportMode = "http"
	TransportBoth  TransportMode = "both"
)

// ParseTransport validates a transport selector value.
func ParseTransport(s string) (TransportMode, error) {
	switch m := TransportMode(strings.ToLower(strings.TrimSpace(s))); m {
	case TransportStdio, TransportHTTP, TransportBoth:
		return m, nil
	default:
		return "", fmt.Errorf("invalid transport mode %q: must be one of stdio, http, both", s)
	}
}

type Config struct {
	ServerName    string
	ServerVersion string
	Transport     TransportMode
	Host          string
	Port          int
	Workers       int    // 0 selects min(NumCPU, 16)
	ConfigFile    string // tool configuration, YAML with a top-level "tools" map
	SecretRules   string // gitleaks TOML rules; empty uses the built-in set
	LogLevel      string
}

// NewViper returns a viper instance with defaults and environment bindings.
// Callers may bind command-line flags on top before calling NewConfig.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyServerName, "mcp-server")
	v.SetDefault(KeyServerVersion, "0.1.0")
	v.SetDefault(KeyTransport, string(TransportBoth))
	v.SetDefault(KeyHost, "0.0.0.0")
	v.SetDefault(KeyPort, 3000)
	v.SetDefault(KeyWorkers, 0)
	v.SetDefault(KeyConfigFile, "kmcp.yaml")
	v.SetDefault(KeySecretRules, "")
	v.SetDefault(KeyLogLevel, "info")

	_ = v.BindEnv(KeyServerName, "SERVER_NAME")
	_ = v.BindEnv(KeyServerVersion, "SERVER_VERSION")
	_ = v.BindEnv(KeyTransport, "MCP_TRANSPORT_MODE")
	_ = v.BindEnv(KeyHost, "HOST")
	_ = v.BindEnv(KeyPort, "PORT")
	_ = v.BindEnv(KeyWorkers, "WORKER_THREADS")
	_ = v.BindEnv(KeyConfigFile, "MCP_CONFIG_FILE")
	_ = v.BindEnv(KeySecretRules, "GITLEAKS_CONFIG")
	_ = v.BindEnv(KeyLogLevel, "LOG_LEVEL")

	return v
}

// NewConfig reads the resolved settings out of v. An unknown transport mode
// is the only hard error; malformed numbers fall back to their defaults.
func NewConfig(v *viper.Viper) (*Config, error) {
	mode, err := ParseTransport(v.GetString(KeyTransport))
	if err != nil {
		return nil, err
	}

	return &Config{
		ServerName:    v.GetString(KeyServerName),
		ServerVersion: v.GetString(KeyServerVersion),
		Transport:     mode,
		Host:          v.GetString(KeyHost),
		Port:          getInt(v, KeyPort, 3000),
		Workers:       getInt(v, KeyWorkers, 0),
		ConfigFile:    v.GetString(KeyConfigFile),
		SecretRules:   v.GetString(KeySecretRules),
		LogLevel:      v.GetString(KeyLogLevel),
	}, nil
}

// Addr is the HTTP bind address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// WorkerCount resolves the HTTP worker pool size.
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return max(1, min(runtime.NumCPU(), maxAutoWorkers))
}

// Helper function to read integers with a fallback for unparsable values
func getInt(v *viper.Viper, key string, defaultVal int) int {
	if intVal, err := strconv.Atoi(strings.TrimSpace(v.GetString(key))); err == nil {
		return intVal
	}
	return defaultVal
}
