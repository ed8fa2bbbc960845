package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.xide/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 8000
//   static_dir: ./web
// remote:
//   base_url: http://127.0.0.1:8000
//   timeout_seconds: 15
// storage:
//   backend: sftp
//   sftp:
//     host: build.example.com
//     user: dev
//     key_file: ~/.ssh/id_ed25519
// log:
//   level: debug
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - Port must be between 1 and 65535.
// - XIDE_PORT overrides server.port.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Remote   RemoteConfig   `yaml:"remote"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Client   ClientConfig   `yaml:"client"`
}

type ServerConfig struct {
	Host      *string `yaml:"host"`
	Port      *int    `yaml:"port"`
	StaticDir string  `yaml:"static_dir,omitempty"`
	// CommandTimeoutSeconds bounds /api/command/execute.
	CommandTimeoutSeconds *int `yaml:"command_timeout_seconds,omitempty"`
}

// RemoteConfig is used by clients of the companion file service.
type RemoteConfig struct {
	BaseURL                 string `yaml:"base_url,omitempty"`
	TimeoutSeconds          *int   `yaml:"timeout_seconds,omitempty"`
	WatchReconnectSeconds   *int   `yaml:"watch_reconnect_seconds,omitempty"`
	DefaultWorkingDirectory string `yaml:"default_working_directory,omitempty"`
}

// StorageConfig selects what the companion file service serves.
type StorageConfig struct {
	Backend string     `yaml:"backend,omitempty"` // local | sftp
	SFTP    SFTPConfig `yaml:"sftp,omitempty"`
}

type SFTPConfig struct {
	Host           string `yaml:"host,omitempty"`
	Port           int    `yaml:"port,omitempty"`
	User           string `yaml:"user,omitempty"`
	Password       string `yaml:"password,omitempty"`
	KeyFile        string `yaml:"key_file,omitempty"`
	KeyPassphrase  string `yaml:"key_passphrase,omitempty"`
	KnownHostsFile string `yaml:"known_hosts,omitempty"`
}

type DatabaseConfig struct {
	Path string `yaml:"path,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// ClientConfig tunes the interactive shell.
type ClientConfig struct {
	BackendOverride string `yaml:"backend_override,omitempty"` // local | remote
}

const (
	DefaultHost             = "127.0.0.1"
	DefaultPort             = 8000
	DefaultRequestTimeout   = 15 * time.Second
	DefaultWatchReconnect   = 5 * time.Second
	DefaultCommandTimeout   = 60 * time.Second
	StorageLocal            = "local"
	StorageSFTP             = "sftp"
	portEnv                 = "XIDE_PORT"
	configDirName           = ".xide"
	defaultDatabaseFileName = "xide.db"
	defaultSFTPPort         = 22
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, configDirName)
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.xide/config.yaml.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}
	cfg, err := LoadFile(configFile)
	if err != nil {
		return nil, "", err
	}
	return cfg, configFile, nil
}

// LoadFile reads and validates the config at configFile.
func LoadFile(configFile string) (*AppConfig, error) {
	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config file %s: %w", configFile, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config %s: %w", configFile, err)
		}
	}

	if v := strings.TrimSpace(os.Getenv(portEnv)); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q", portEnv, v)
		}
		cfg.Server.Port = ptr(p)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w in %s", err, configFile)
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Host()) == "" {
		return fmt.Errorf("invalid server.host (empty)")
	}
	if port := c.Port(); port < 1 || port > 65535 {
		return fmt.Errorf("invalid server.port %d", port)
	}
	switch c.StorageBackend() {
	case StorageLocal:
	case StorageSFTP:
		if strings.TrimSpace(c.Storage.SFTP.Host) == "" {
			return fmt.Errorf("storage.sftp.host is required for the sftp backend")
		}
	default:
		return fmt.Errorf("invalid storage.backend %q", c.Storage.Backend)
	}
	switch strings.ToLower(c.Client.BackendOverride) {
	case "", "local", "remote":
	default:
		return fmt.Errorf("invalid client.backend_override %q", c.Client.BackendOverride)
	}
	return nil
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{
		Server: ServerConfig{Host: ptr(DefaultHost), Port: ptr(DefaultPort)},
		Remote: RemoteConfig{TimeoutSeconds: ptr(int(DefaultRequestTimeout / time.Second))},
	}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	// Write with restrictive permissions.
	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil {
		return DefaultHost
	}
	if c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil {
		return DefaultPort
	}
	if c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

func (c *AppConfig) CommandTimeout() time.Duration {
	if c == nil || c.Server.CommandTimeoutSeconds == nil || *c.Server.CommandTimeoutSeconds <= 0 {
		return DefaultCommandTimeout
	}
	return time.Duration(*c.Server.CommandTimeoutSeconds) * time.Second
}

// RemoteBaseURL defaults to the local companion service address.
func (c *AppConfig) RemoteBaseURL() string {
	if c != nil {
		if v := strings.TrimSpace(c.Remote.BaseURL); v != "" {
			return strings.TrimSuffix(v, "/")
		}
	}
	return fmt.Sprintf("http://%s:%d", c.Host(), c.Port())
}

func (c *AppConfig) RequestTimeout() time.Duration {
	if c == nil || c.Remote.TimeoutSeconds == nil || *c.Remote.TimeoutSeconds <= 0 {
		return DefaultRequestTimeout
	}
	return time.Duration(*c.Remote.TimeoutSeconds) * time.Second
}

func (c *AppConfig) WatchReconnectDelay() time.Duration {
	if c == nil || c.Remote.WatchReconnectSeconds == nil || *c.Remote.WatchReconnectSeconds <= 0 {
		return DefaultWatchReconnect
	}
	return time.Duration(*c.Remote.WatchReconnectSeconds) * time.Second
}

func (c *AppConfig) StorageBackend() string {
	if c == nil {
		return StorageLocal
	}
	v := strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if v == "" {
		return StorageLocal
	}
	return v
}

// SFTPAddr returns host:port of the SFTP storage endpoint.
func (c *AppConfig) SFTPAddr() string {
	port := c.Storage.SFTP.Port
	if port <= 0 {
		port = defaultSFTPPort
	}
	return fmt.Sprintf("%s:%d", c.Storage.SFTP.Host, port)
}

// DatabasePath defaults to ~/.xide/xide.db.
func (c *AppConfig) DatabasePath() (string, error) {
	if c != nil && strings.TrimSpace(c.Database.Path) != "" {
		return ExpandHome(c.Database.Path)
	}
	configDir, _, err := DefaultPaths()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, defaultDatabaseFileName), nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get user home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

func ptr[T any](v T) *T { return &v }
