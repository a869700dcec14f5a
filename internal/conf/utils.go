package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/sitesafe/hsetrack/internal/errors"
)

// ConfigDirEnv overrides the config search path with a single directory.
const ConfigDirEnv = "HSE_CONFIG_DIR"

// GetDefaultConfigPaths returns the directories searched for config.yaml.
// When one of them already holds a config.yaml, only that directory is
// returned.
func GetDefaultConfigPaths() ([]string, error) {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return []string{dir}, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	switch runtime.GOOS {
	case "windows":
		configPaths = []string{filepath.Join(homeDir, "AppData", "Roaming", "hsetrack")}
	default:
		configPaths = []string{
			filepath.Join(homeDir, ".config", "hsetrack"),
			"/etc/hsetrack",
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}
	return configPaths, nil
}
