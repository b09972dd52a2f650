// Package config provides configuration management for statecraftd, the
// daemon that hosts the compiler's control API and MCP surface.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the service configuration.
type Config struct {
	Service      ServiceConfig      `toml:"service"`
	API          APIConfig          `toml:"api"`
	MCP          MCPConfig          `toml:"mcp"`
	Compiler     CompilerConfig     `toml:"compiler"`
	Environments EnvironmentsConfig `toml:"environments"`
	Grains       SeedConfig         `toml:"grains"`
	Pillar       SeedConfig         `toml:"pillar"`
	Logging      LoggingConfig      `toml:"logging"`
	Security     SecurityConfig     `toml:"security"`
}

// ServiceConfig contains service-level settings.
type ServiceConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	DataDir         string `toml:"data_dir"`
	PIDFile         string `toml:"pid_file"`
	ShutdownTimeout int    `toml:"shutdown_timeout_seconds"`
	MaxRequestSize  int64  `toml:"max_request_size_bytes"`
}

// APIConfig contains API settings.
type APIConfig struct {
	Enabled        bool     `toml:"enabled"`
	APIKey         string   `toml:"api_key"`
	RateLimit      int      `toml:"rate_limit_per_minute"`
	AllowedOrigins []string `toml:"allowed_origins"`
	RequestTimeout int      `toml:"request_timeout_seconds"`
}

// MCPConfig contains MCP server settings.
type MCPConfig struct {
	Enabled bool `toml:"enabled"`
}

// CompilerConfig mirrors §6's "Configuration recognized by the core"
// table. Both binaries copy these fields into engine.Options, with two
// exceptions: AggregateModules is copied by statecraftd only, and
// TestModeDefault (`test`) is loaded but not consulted; a run's test mode
// comes only from the command or request that starts it.
type CompilerConfig struct {
	AutoOrder                   bool   `toml:"state_auto_order"`
	TopFileMergingStrategy      string `toml:"top_file_merging_strategy"`
	DefaultTop                  string `toml:"default_top"`
	StateTopSaltenv             string `toml:"state_top_saltenv"`
	FailhardGlobal              bool   `toml:"failhard"`
	AggregateEnabled            bool   `toml:"state_aggregate"`
	AggregateModules            []string `toml:"state_aggregate_modules"`
	MaxConcurrency              int    `toml:"max_concurrency"`
	TestModeDefault              bool   `toml:"test"`
	ExcludeBeforeDuplicateCheck bool   `toml:"exclude_before_duplicate_check"`
	TopUnitName                 string `toml:"top_unit_name"`
}

// EnvironmentsConfig maps an environment name to its ordered list of
// filesystem source roots (§4.2 "a sequence of source roots").
type EnvironmentsConfig struct {
	Roots   map[string][]string `toml:"roots"`
	EnvOrder []string           `toml:"env_order"`
}

// SeedConfig names the static TOML file seeding grains or pillar data
// (internal/seed.Load's input), for a standalone run with no live grains/
// pillar provider wired in.
type SeedConfig struct {
	File string `toml:"file"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string      `toml:"level"`
	Format     string      `toml:"format"`
	Output     StringSlice `toml:"output"`
	TimeFormat string      `toml:"time_format"`
	MaxSizeMB  int         `toml:"max_size_mb"`
	MaxBackups int         `toml:"max_backups"`
	MaxAgeDays int         `toml:"max_age_days"`
	Compress   bool        `toml:"compress"`
}

// StringSlice is a custom type that can unmarshal from either a string or []string.
type StringSlice []string

// UnmarshalTOML implements toml.Unmarshaler for flexible config parsing.
func (s *StringSlice) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		*s = []string{v}
	case []interface{}:
		result := make([]string, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return fmt.Errorf("expected string in array, got %T", item)
			}
			result[i] = str
		}
		*s = result
	default:
		return fmt.Errorf("expected string or array, got %T", data)
	}
	return nil
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	TLSEnabled  bool   `toml:"tls_enabled"`
	TLSCertFile string `toml:"tls_cert_file"`
	TLSKeyFile  string `toml:"tls_key_file"`
	CORSEnabled bool   `toml:"cors_enabled"`
}

// DefaultConfig returns the default configuration with all values set.
// Environment variables STATECRAFT_HOST and STATECRAFT_PORT can override defaults.
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()

	host := "127.0.0.1"
	if envHost := os.Getenv("STATECRAFT_HOST"); envHost != "" {
		host = envHost
	}

	port := 8420
	if envPort := os.Getenv("STATECRAFT_PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			port = p
		}
	}

	return &Config{
		Service: ServiceConfig{
			Host:            host,
			Port:            port,
			DataDir:         dataDir,
			PIDFile:         filepath.Join(dataDir, "statecraftd.pid"),
			ShutdownTimeout: 30,
			MaxRequestSize:  10 * 1024 * 1024,
		},
		API: APIConfig{
			Enabled:        true,
			APIKey:         "",
			RateLimit:      100,
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
			RequestTimeout: 60,
		},
		MCP: MCPConfig{
			Enabled: true,
		},
		Compiler: CompilerConfig{
			AutoOrder:              true,
			TopFileMergingStrategy: "merge",
			DefaultTop:             "base",
			MaxConcurrency:         4,
			TopUnitName:            "top",
		},
		Environments: EnvironmentsConfig{
			Roots: map[string][]string{
				"base": {filepath.Join(dataDir, "srv", "salt", "base")},
			},
		},
		Grains: SeedConfig{File: filepath.Join(dataDir, "grains.toml")},
		Pillar: SeedConfig{File: filepath.Join(dataDir, "pillar.toml")},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     StringSlice{"file"},
			TimeFormat: "15:04:05.000",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Security: SecurityConfig{
			TLSEnabled:  false,
			CORSEnabled: true,
		},
	}
}

// DefaultDataDir returns the default data directory based on OS.
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "statecraftd")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "statecraftd")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "statecraftd")
	default:
		xdgData := os.Getenv("XDG_DATA_HOME")
		if xdgData != "" {
			return filepath.Join(xdgData, "statecraftd")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".statecraftd")
	}
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.toml")
}

// Load loads configuration from a file, merging with defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.expandPaths()
	return cfg, nil
}

// LoadFromString loads configuration from a TOML string, merging with defaults.
func LoadFromString(tomlStr string) (*Config, error) {
	cfg := DefaultConfig()

	expanded := os.ExpandEnv(tomlStr)

	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse config string: %w", err)
	}

	cfg.expandPaths()
	return cfg, nil
}

// expandPaths expands tilde in path fields.
func (c *Config) expandPaths() {
	home, _ := os.UserHomeDir()

	expandTilde := func(path string) string {
		if strings.HasPrefix(path, "~/") {
			return filepath.Join(home, path[2:])
		}
		return path
	}

	c.Service.DataDir = expandTilde(c.Service.DataDir)
	c.Service.PIDFile = expandTilde(c.Service.PIDFile)
	c.Security.TLSCertFile = expandTilde(c.Security.TLSCertFile)
	c.Security.TLSKeyFile = expandTilde(c.Security.TLSKeyFile)
	c.Grains.File = expandTilde(c.Grains.File)
	c.Pillar.File = expandTilde(c.Pillar.File)
	for env, roots := range c.Environments.Roots {
		for i, r := range roots {
			roots[i] = expandTilde(r)
		}
		c.Environments.Roots[env] = roots
	}
}

// Save saves the configuration to a file in TOML format.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	return nil
}

// WriteExampleConfig writes an example config file with comments.
func WriteExampleConfig(path string) error {
	example := `# statecraftd configuration file
# All values shown are defaults - uncomment and modify as needed

[service]
host = "127.0.0.1"
port = 8420
# data_dir = "~/.statecraftd"
shutdown_timeout_seconds = 30
max_request_size_bytes = 10485760

[api]
enabled = true
api_key = ""
rate_limit_per_minute = 100
allowed_origins = ["http://localhost:*", "http://127.0.0.1:*"]
request_timeout_seconds = 60

[mcp]
enabled = true

[compiler]
# Enable definition-order assignment (§4.4); false falls back to
# lexicographic (module, id, function) ordering.
state_auto_order = true
# "merge" or "same" (§4.2).
top_file_merging_strategy = "merge"
default_top = "base"
# state_top_saltenv = "base"
failhard = false
state_aggregate = false
max_concurrency = 4
test = false
top_unit_name = "top"

[environments.roots]
base = ["~/.statecraftd/srv/salt/base"]

[grains]
file = "~/.statecraftd/grains.toml"

[pillar]
file = "~/.statecraftd/pillar.toml"

[logging]
level = "info"
format = "text"
output = ["file"]
time_format = "15:04:05.000"
max_size_mb = 100
max_backups = 5
max_age_days = 30
compress = true

[security]
tls_enabled = false
cors_enabled = true
`

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	return os.WriteFile(path, []byte(example), 0644)
}

// Address returns the full address string for the HTTP server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Service.Host, c.Service.Port)
}

// LogPath returns the path to the service log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Service.DataDir, "logs", "service.log")
}

// PIDPath returns the path to the PID file.
func (c *Config) PIDPath() string {
	if c.Service.PIDFile != "" {
		return c.Service.PIDFile
	}
	return filepath.Join(c.Service.DataDir, "statecraftd.pid")
}

// EnsureDirectories creates all necessary directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Service.DataDir,
		filepath.Dir(c.LogPath()),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Service.Port)
	}
	if c.Service.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout_seconds must be at least 1")
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("rate_limit_per_minute cannot be negative")
	}
	if c.Compiler.TopFileMergingStrategy != "merge" && c.Compiler.TopFileMergingStrategy != "same" {
		return fmt.Errorf("top_file_merging_strategy must be \"merge\" or \"same\"")
	}
	if c.Security.TLSEnabled {
		if c.Security.TLSCertFile == "" || c.Security.TLSKeyFile == "" {
			return fmt.Errorf("TLS enabled but cert/key files not specified")
		}
	}
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c

	clone.API.AllowedOrigins = make([]string, len(c.API.AllowedOrigins))
	copy(clone.API.AllowedOrigins, c.API.AllowedOrigins)

	clone.Environments.Roots = make(map[string][]string, len(c.Environments.Roots))
	for env, roots := range c.Environments.Roots {
		rc := make([]string, len(roots))
		copy(rc, roots)
		clone.Environments.Roots[env] = rc
	}

	clone.Logging.Output = make(StringSlice, len(c.Logging.Output))
	copy(clone.Logging.Output, c.Logging.Output)

	return &clone
}
