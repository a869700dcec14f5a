// conf/validate.go

package conf

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4/middleware"
)

// minSecretLength is the shortest accepted HMAC secret (256 bits of base64)
const minSecretLength = 32

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct and reports every
// problem at once.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, validate := range []func(*Settings) error{
		validateWebServerSettings,
		validateSecuritySettings,
		validateDatabaseSettings,
		validateAttachmentSettings,
		validateSentrySettings,
	} {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateWebServerSettings(s *Settings) error {
	ws := &s.WebServer
	if ws.Port < 1 || ws.Port > 65535 {
		return fmt.Errorf("webserver.port %d is out of range", ws.Port)
	}
	if ws.BodyLimit != "" {
		// echo parses the same format; reject values it would panic on
		if err := validateBodyLimit(ws.BodyLimit); err != nil {
			return err
		}
	}
	if ws.RateLimit.Enabled && (ws.RateLimit.RequestsPerSecond <= 0 || ws.RateLimit.Burst < 1) {
		return fmt.Errorf("webserver.ratelimit requires requestspersecond > 0 and burst >= 1")
	}
	return nil
}

func validateBodyLimit(limit string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("webserver.bodylimit %q is invalid", limit)
		}
	}()
	_ = middleware.BodyLimit(limit)
	return nil
}

func validateSecuritySettings(s *Settings) error {
	if len(s.Security.JWTSecret) < minSecretLength {
		return fmt.Errorf("security.jwtsecret must be at least %d characters (set HSE_JWT_SECRET)", minSecretLength)
	}
	if s.Security.ClockSkew < 0 {
		return fmt.Errorf("security.clockskew must not be negative")
	}
	return nil
}

func validateDatabaseSettings(s *Settings) error {
	db := &s.Database
	switch db.Driver {
	case DriverSQLite:
		if db.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case DriverMySQL:
		var missing []string
		if db.MySQL.Host == "" {
			missing = append(missing, "host")
		}
		if db.MySQL.Username == "" {
			missing = append(missing, "username")
		}
		if db.MySQL.Database == "" {
			missing = append(missing, "database")
		}
		if len(missing) > 0 {
			return fmt.Errorf("database.mysql is missing %s", strings.Join(missing, ", "))
		}
		if db.MySQL.Port < 1 || db.MySQL.Port > 65535 {
			return fmt.Errorf("database.mysql.port %d is out of range", db.MySQL.Port)
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", db.Driver)
	}
	return nil
}

func validateAttachmentSettings(s *Settings) error {
	a := &s.Attachments
	if a.Path == "" {
		return fmt.Errorf("attachments.path is required")
	}
	if !strings.HasPrefix(a.URLPrefix, "/") {
		return fmt.Errorf("attachments.urlprefix must start with /")
	}
	if a.MaxFileSize <= 0 {
		return fmt.Errorf("attachments.maxfilesize must be positive")
	}
	if a.Workers < 1 {
		return fmt.Errorf("attachments.workers must be at least 1")
	}
	return nil
}

func validateSentrySettings(s *Settings) error {
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		return fmt.Errorf("sentry.dsn is required when sentry is enabled")
	}
	if s.Sentry.SampleRate < 0 || s.Sentry.SampleRate > 1 {
		return fmt.Errorf("sentry.samplerate must be between 0 and 1")
	}
	return nil
}
