// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "HSE_DEBUG", validateEnvBool},

		{"webserver.host", "HSE_HOST", nil},
		{"webserver.port", "HSE_PORT", validateEnvPort},

		// Secrets are expected from the environment in container deployments
		{"security.jwtsecret", "HSE_JWT_SECRET", nil},
		{"security.jwtsecretfile", "HSE_JWT_SECRET_FILE", nil},
		{"security.issuer", "HSE_JWT_ISSUER", nil},

		{"database.driver", "HSE_DB_DRIVER", validateEnvDriver},
		{"database.sqlite.path", "HSE_SQLITE_PATH", nil},
		{"database.mysql.host", "HSE_MYSQL_HOST", nil},
		{"database.mysql.port", "HSE_MYSQL_PORT", validateEnvPort},
		{"database.mysql.username", "HSE_MYSQL_USER", nil},
		{"database.mysql.password", "HSE_MYSQL_PASSWORD", nil},
		{"database.mysql.passwordfile", "HSE_MYSQL_PASSWORD_FILE", nil},
		{"database.mysql.database", "HSE_MYSQL_DATABASE", nil},

		{"attachments.path", "HSE_UPLOAD_PATH", nil},

		{"sentry.enabled", "HSE_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "HSE_SENTRY_DSN", nil},

		{"logging.default_level", "HSE_LOG_LEVEL", validateEnvLogLevel},
	}
}

// bindEnvVars binds every variable and validates the ones that are set
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}
		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}

func validateEnvDriver(value string) error {
	switch value {
	case DriverSQLite, DriverMySQL:
		return nil
	default:
		return fmt.Errorf("must be %q or %q", DriverSQLite, DriverMySQL)
	}
}

func validateEnvLogLevel(value string) error {
	switch value {
	case "trace", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("must be one of trace, debug, info, warn, error")
	}
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars()
}
