package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/gerente/internal/session"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// SessionStorageType represents the different storage types supported for session credentials.
type SessionStorageType string

const (
	SessionStorageTypeMemory  SessionStorageType = "memory"
	SessionStorageTypeFile    SessionStorageType = "file"
	SessionStorageTypeEnv     SessionStorageType = "env"
	SessionStorageTypeKeyring SessionStorageType = "keyring"
	SessionStorageTypeBolt    SessionStorageType = "bolt"
)

// TelemetryExporter selects where OpenTelemetry logs are shipped.
type TelemetryExporter string

const (
	TelemetryExporterNone     TelemetryExporter = "none"
	TelemetryExporterStdout   TelemetryExporter = "stdout"
	TelemetryExporterOTLPHTTP TelemetryExporter = "otlp-http"
	TelemetryExporterOTLPGRPC TelemetryExporter = "otlp-grpc"
)

// Default configuration values
const (
	DefaultConfigLogFormat         = LogFormatText
	DefaultConfigAPIBaseURL        = "http://localhost:8000/api"
	DefaultConfigAPILoginPath      = "/token/"
	DefaultConfigAPIRefreshPath    = "/token/refresh/"
	DefaultConfigAPITimeout        = 30 * time.Second
	DefaultConfigRenewalCoalesce   = true
	DefaultConfigServerHost        = "127.0.0.1"
	DefaultConfigServerPort        = 4000
	DefaultConfigShutdownTimeout   = 5 * time.Second
	DefaultConfigSessionStorage    = SessionStorageTypeFile
	DefaultConfigSessionEnvAccess  = "ERP_ACCESS_TOKEN"
	DefaultConfigSessionEnvRefresh = "ERP_REFRESH_TOKEN"
	DefaultConfigTelemetryExporter = TelemetryExporterNone
)

// keyringService names the OS credential store entry of the session.
const keyringService = "gerente-session"

// ServerConfig holds gateway server configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// APIConfig locates the backend API.
type APIConfig struct {
	BaseURL     string        `json:"base_url" validate:"required,url"`
	LoginPath   string        `json:"login_path" validate:"required,startswith=/"`
	RefreshPath string        `json:"refresh_path" validate:"required,startswith=/"`
	Timeout     time.Duration `json:"timeout" validate:"gte=0"`
}

// RefreshURL is the absolute URL of the token renewal endpoint.
func (a APIConfig) RefreshURL() string {
	return strings.TrimRight(a.BaseURL, "/") + a.RefreshPath
}

// RenewalConfig tunes access token renewal.
type RenewalConfig struct {
	// Coalesce lets concurrent 401s share one in-flight renewal.
	Coalesce *bool `json:"coalesce"`
}

// SessionConfig describes how to construct the session store.
type SessionConfig struct {
	Storage SessionStorageType `json:"storage" validate:"required,oneof=memory file env keyring bolt"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File          string `json:"file,omitempty"`            // For file storage: path to session file
	KeyringUser   string `json:"keyring_user,omitempty"`    // For keyring storage: user identifier
	BoltPath      string `json:"bolt_path,omitempty"`       // For bolt storage: database path
	EnvAccessKey  string `json:"env_access_key,omitempty"`  // For env storage: access token variable
	EnvRefreshKey string `json:"env_refresh_key,omitempty"` // For env storage: refresh token variable
}

// NewStore creates the session store described by the configuration.
// Stores holding resources implement io.Closer.
func (s *SessionConfig) NewStore() (session.Store, error) {
	switch s.Storage {
	case SessionStorageTypeMemory:
		return session.NewMemoryStore(session.Credentials{}), nil
	case SessionStorageTypeFile:
		return session.NewFileStore(s.File)
	case SessionStorageTypeEnv:
		return session.NewEnvStore(s.EnvAccessKey, s.EnvRefreshKey)
	case SessionStorageTypeKeyring:
		return session.NewKeyringStore(keyringService, s.KeyringUser)
	case SessionStorageTypeBolt:
		return session.NewBoltStore(s.BoltPath)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", s.Storage)
	}
}

// TelemetryConfig holds OpenTelemetry log export configuration.
type TelemetryConfig struct {
	Exporter TelemetryExporter `json:"exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
	Endpoint string            `json:"endpoint,omitempty" validate:"omitempty,url"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level      `json:"log_level"`
	LogFormat LogFormat       `json:"log_format" validate:"oneof=text json"`
	API       APIConfig       `json:"api"`
	Renewal   RenewalConfig   `json:"renewal"`
	Session   SessionConfig   `json:"session"`
	Server    ServerConfig    `json:"server"`
	Shutdown  ShutdownConfig  `json:"shutdown"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultConfigAPIBaseURL
	}
	if c.API.LoginPath == "" {
		c.API.LoginPath = DefaultConfigAPILoginPath
	}
	if c.API.RefreshPath == "" {
		c.API.RefreshPath = DefaultConfigAPIRefreshPath
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultConfigAPITimeout
	}
	if c.Renewal.Coalesce == nil {
		coalesce := DefaultConfigRenewalCoalesce
		c.Renewal.Coalesce = &coalesce
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Session.Storage == "" {
		c.Session.Storage = DefaultConfigSessionStorage
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = DefaultConfigTelemetryExporter
	}

	// Dynamic defaults based on storage type
	switch c.Session.Storage {
	case SessionStorageTypeFile:
		if c.Session.File == "" {
			dir, err := configDir()
			if err != nil {
				return fmt.Errorf("session.file required (auto-detect failed: %w)", err)
			}
			c.Session.File = filepath.Join(dir, "session.json")
		}
	case SessionStorageTypeBolt:
		if c.Session.BoltPath == "" {
			dir, err := configDir()
			if err != nil {
				return fmt.Errorf("session.bolt_path required (auto-detect failed: %w)", err)
			}
			c.Session.BoltPath = filepath.Join(dir, "session.db")
		}
	case SessionStorageTypeKeyring:
		if c.Session.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("session.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Session.KeyringUser = currentUser.Username
		}
	case SessionStorageTypeEnv:
		if c.Session.EnvAccessKey == "" {
			c.Session.EnvAccessKey = DefaultConfigSessionEnvAccess
		}
		if c.Session.EnvRefreshKey == "" {
			c.Session.EnvRefreshKey = DefaultConfigSessionEnvRefresh
		}
	case SessionStorageTypeMemory:
		// nothing to locate
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Session.Storage {
	case SessionStorageTypeFile:
		if c.Session.File == "" {
			return errors.New("file path required for file storage")
		}
	case SessionStorageTypeBolt:
		if c.Session.BoltPath == "" {
			return errors.New("bolt_path required for bolt storage")
		}
	case SessionStorageTypeKeyring:
		if c.Session.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	case SessionStorageTypeEnv:
		if c.Session.EnvRefreshKey == "" {
			return errors.New("env_refresh_key required for env storage")
		}
	}

	if c.Telemetry.Exporter == TelemetryExporterNone && c.Telemetry.Endpoint != "" {
		return errors.New("telemetry.endpoint set without an exporter")
	}

	return nil
}

// CoalesceRenewals reports whether concurrent renewals are shared.
func (c *Config) CoalesceRenewals() bool {
	if c.Renewal.Coalesce == nil {
		return DefaultConfigRenewalCoalesce
	}
	return *c.Renewal.Coalesce
}

func configDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "gerente"), nil
}
