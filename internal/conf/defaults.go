// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/sitesafe/hsetrack/internal/logger"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("webserver.host", "")
	viper.SetDefault("webserver.port", 5000)
	viper.SetDefault("webserver.readtimeout", 30*time.Second)
	viper.SetDefault("webserver.writetimeout", 60*time.Second)
	viper.SetDefault("webserver.shutdowntimeout", 10*time.Second)
	viper.SetDefault("webserver.bodylimit", "110M")
	viper.SetDefault("webserver.metrics", true)
	viper.SetDefault("webserver.ratelimit.enabled", true)
	viper.SetDefault("webserver.ratelimit.requestspersecond", 5.0)
	viper.SetDefault("webserver.ratelimit.burst", 20)

	viper.SetDefault("security.jwtsecret", "")
	viper.SetDefault("security.jwtsecretfile", "")
	viper.SetDefault("security.issuer", "")
	viper.SetDefault("security.clockskew", 30*time.Second)

	viper.SetDefault("database.driver", DriverSQLite)
	viper.SetDefault("database.slowquerythreshold", 200*time.Millisecond)
	viper.SetDefault("database.sqlite.path", "data/hsetrack.db")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", 3306)
	viper.SetDefault("database.mysql.username", "")
	viper.SetDefault("database.mysql.password", "")
	viper.SetDefault("database.mysql.passwordfile", "")
	viper.SetDefault("database.mysql.database", "hsetrack")
	viper.SetDefault("database.mysql.maxopenconns", 25)
	viper.SetDefault("database.mysql.maxidleconns", 5)
	viper.SetDefault("database.mysql.connmaxlifetime", 5*time.Minute)

	viper.SetDefault("attachments.path", "uploads")
	viper.SetDefault("attachments.urlprefix", "/uploads")
	viper.SetDefault("attachments.maxfilesize", 10<<20)
	viper.SetDefault("attachments.minfreemb", 200)
	viper.SetDefault("attachments.workers", 4)

	viper.SetDefault("reporting.cachettl", 30*time.Second)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
	viper.SetDefault("sentry.samplerate", 1.0)

	viper.SetDefault("logging.default_level", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.enabled", true)
	viper.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("logging.file_output.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.max_size", logger.DefaultMaxSize)
	viper.SetDefault("logging.file_output.max_age", logger.DefaultMaxAge)
	viper.SetDefault("logging.file_output.max_rotated_files", logger.DefaultMaxRotatedFiles)
	viper.SetDefault("logging.file_output.compress", false)
}
