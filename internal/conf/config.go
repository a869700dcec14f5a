// Package conf loads hsetrack settings from config.yaml, environment
// variables and command-line flags.
package conf

import (
	"crypto/rand"
	"embed"
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sitesafe/hsetrack/internal/errors"
	"github.com/sitesafe/hsetrack/internal/logger"
	"github.com/sitesafe/hsetrack/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

// Database drivers
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Settings is the complete application configuration.
type Settings struct {
	Debug bool `yaml:"debug"`

	WebServer   WebServerSettings    `yaml:"webserver"`
	Security    SecuritySettings     `yaml:"security"`
	Database    DatabaseSettings     `yaml:"database"`
	Attachments AttachmentSettings   `yaml:"attachments"`
	Reporting   ReportingSettings    `yaml:"reporting"`
	Sentry      SentrySettings       `yaml:"sentry"`
	Logging     logger.LoggingConfig `yaml:"logging"`
}

// WebServerSettings configures the HTTP API listener.
type WebServerSettings struct {
	Host            string            `yaml:"host"`
	Port            int               `yaml:"port"`
	ReadTimeout     time.Duration     `yaml:"readtimeout"`
	WriteTimeout    time.Duration     `yaml:"writetimeout"`
	ShutdownTimeout time.Duration     `yaml:"shutdowntimeout"`
	BodyLimit       string            `yaml:"bodylimit"` // echo body limit, e.g. "110M"
	RateLimit       RateLimitSettings `yaml:"ratelimit"`
	Metrics         bool              `yaml:"metrics"` // expose /metrics
}

// RateLimitSettings throttles mutating API requests per client IP.
type RateLimitSettings struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestspersecond"`
	Burst             int     `yaml:"burst"`
}

// SecuritySettings configures bearer token verification. Tokens are issued
// by the login service; hsetrack only verifies them.
type SecuritySettings struct {
	JWTSecret     string        `yaml:"jwtsecret"`     // literal or ${VAR}
	JWTSecretFile string        `yaml:"jwtsecretfile"` // e.g. /run/secrets/hse_jwt, wins over jwtsecret
	Issuer        string        `yaml:"issuer"`        // expected iss claim, empty accepts any
	ClockSkew     time.Duration `yaml:"clockskew"`     // leeway for exp/nbf checks
}

// DatabaseSettings selects and configures the finding store.
type DatabaseSettings struct {
	Driver             string         `yaml:"driver"`
	SlowQueryThreshold time.Duration  `yaml:"slowquerythreshold"`
	SQLite             SQLiteSettings `yaml:"sqlite"`
	MySQL              MySQLSettings  `yaml:"mysql"`
}

// SQLiteSettings configures the embedded SQLite backend.
type SQLiteSettings struct {
	Path string `yaml:"path"`
}

// MySQLSettings configures the MySQL backend.
type MySQLSettings struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	PasswordFile    string        `yaml:"passwordfile"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"maxopenconns"`
	MaxIdleConns    int           `yaml:"maxidleconns"`
	ConnMaxLifetime time.Duration `yaml:"connmaxlifetime"`
}

// AttachmentSettings configures evidence file storage.
type AttachmentSettings struct {
	Path        string `yaml:"path"`        // upload root, files land in <path>/temuan
	URLPrefix   string `yaml:"urlprefix"`   // public prefix of stored references
	MaxFileSize int64  `yaml:"maxfilesize"` // bytes per file
	MinFreeMB   uint64 `yaml:"minfreemb"`   // refuse writes below this much free space, 0 disables
	Workers     int    `yaml:"workers"`     // parallel writes per upload
}

// ReportingSettings configures the summary aggregator.
type ReportingSettings struct {
	CacheTTL time.Duration `yaml:"cachettl"` // 0 disables caching
}

// SentrySettings configures optional error telemetry.
type SentrySettings struct {
	Enabled     bool    `yaml:"enabled"`
	DSN         string  `yaml:"dsn"`
	Environment string  `yaml:"environment"`
	SampleRate  float64 `yaml:"samplerate"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper registers defaults and env bindings, then reads config.yaml.
// A missing file is created from the embedded template.
func initViper() error {
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		return err
	}

	// --config flag sets the file explicitly
	if viper.ConfigFileUsed() == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return fmt.Errorf("error getting default config paths: %w", err)
		}
		for _, path := range configPaths {
			viper.AddConfigPath(path)
		}
	}

	err := viper.ReadInConfig()
	if err == nil {
		return nil
	}
	var configFileNotFoundError viper.ConfigFileNotFoundError
	if errors.As(err, &configFileNotFoundError) {
		return createDefaultConfig()
	}
	return fmt.Errorf("fatal error reading config file: %w", err)
}

// createDefaultConfig writes the embedded template to the first config path.
// A random token secret is generated so the server can start; it must be
// shared with the token issuer.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	defaultConfig, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, defaultConfig, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))

	viper.SetConfigFile(configPath)
	if err := viper.ReadInConfig(); err != nil {
		return err
	}

	if viper.GetString("security.jwtsecret") == "" {
		viper.Set("security.jwtsecret", GenerateRandomSecret())
		if err := viper.WriteConfigAs(configPath); err != nil {
			return fmt.Errorf("error persisting generated secret: %w", err)
		}
	}
	return nil
}

// resolveSecrets replaces credential settings with their file or
// environment values.
func resolveSecrets(s *Settings) error {
	var err error
	if s.Security.JWTSecret, err = secrets.Resolve(s.Security.JWTSecretFile, s.Security.JWTSecret); err != nil {
		return fmt.Errorf("security.jwtsecret: %w", err)
	}
	if s.Database.MySQL.Password, err = secrets.Resolve(s.Database.MySQL.PasswordFile, s.Database.MySQL.Password); err != nil {
		return fmt.Errorf("database.mysql.password: %w", err)
	}
	return nil
}

// GetSettings returns the most recently loaded settings
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GenerateRandomSecret returns 256 bits of URL-safe base64 encoded randomness.
func GenerateRandomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		GetLogger().Error("failed to generate random secret", logger.Error(err))
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

const redacted = "[REDACTED]"

// RedactedYAML renders the settings as YAML with secrets masked.
func (s *Settings) RedactedYAML() ([]byte, error) {
	masked := *s
	if masked.Security.JWTSecret != "" {
		masked.Security.JWTSecret = redacted
	}
	if masked.Database.MySQL.Password != "" {
		masked.Database.MySQL.Password = redacted
	}
	if masked.Sentry.DSN != "" {
		masked.Sentry.DSN = redacted
	}
	return yaml.Marshal(&masked)
}

// GetLogger returns the configuration module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("conf")
}
