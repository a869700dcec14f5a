// Package secrets resolves credentials that may be given literally, as
// ${VAR} environment references, or as files mounted by Docker or
// Kubernetes (/run/secrets/*). Secret values are never logged.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sitesafe/hsetrack/internal/errors"
	"github.com/sitesafe/hsetrack/internal/logger"
)

const (
	// secrets are tokens and passwords, not documents
	maxSecretFileSize = 64 * 1024
)

// GetLogger returns the secrets module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("secrets")
}

func secretError(msg, field string) error {
	return errors.Newf("%s", msg).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Context("field", field).
		Build()
}

// ExpandString expands ${VAR} and ${VAR:-default} references. A reference
// without a default to an unset variable is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, def, hasDefault := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		missing = append(missing, name)
		return ""
	})
	if len(missing) > 0 {
		return "", errors.Newf("missing required environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret file. Trailing newlines are dropped; files that
// are empty, oversized or not regular are rejected.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", secretError("secret file path is empty", "path")
	}
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		return "", errors.New(err).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Context("path", cleanPath).
			Build()
	}
	if !info.Mode().IsRegular() {
		return "", secretError("secret path is not a regular file: "+cleanPath, "path")
	}
	if info.Size() > maxSecretFileSize {
		return "", secretError("secret file too large: "+cleanPath, "path")
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		GetLogger().Warn("secret file is readable by group or others",
			logger.String("path", cleanPath),
			logger.String("mode", perm.String()))
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", errors.New(err).
			Component("secrets").
			Category(errors.CategoryFileIO).
			Context("path", cleanPath).
			Build()
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", secretError("secret file is empty: "+cleanPath, "path")
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return ExpandString(value)
}
