package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// resetViper isolates each test from viper's global state
func resetViper(t *testing.T) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	t.Setenv(ConfigDirEnv, dir)
	return dir
}

func validSettings() *Settings {
	return &Settings{
		WebServer: WebServerSettings{Port: 5000, BodyLimit: "10M"},
		Security:  SecuritySettings{JWTSecret: testSecret},
		Database: DatabaseSettings{
			Driver: DriverSQLite,
			SQLite: SQLiteSettings{Path: "x.db"},
		},
		Attachments: AttachmentSettings{Path: "uploads", URLPrefix: "/uploads", MaxFileSize: 1, Workers: 1},
	}
}

func TestLoadCreatesDefaultConfigWithGeneratedSecret(t *testing.T) {
	dir := resetViper(t)

	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, settings.Database.Driver)
	assert.Equal(t, 5000, settings.WebServer.Port)
	assert.Equal(t, 30*time.Second, settings.Reporting.CacheTTL)
	assert.GreaterOrEqual(t, len(settings.Security.JWTSecret), minSecretLength)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), settings.Security.JWTSecret, "generated secret must be persisted")
	assert.Same(t, settings, GetSettings())
}

func TestLoadReadsFileAndEnvOverrides(t *testing.T) {
	dir := resetViper(t)
	cfg := `
webserver:
  port: 8080
security:
  jwtsecret: ` + testSecret + `
database:
  driver: sqlite
  sqlite:
    path: /tmp/findings.db
reporting:
  cachettl: 5s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o600))
	t.Setenv("HSE_PORT", "9090")
	t.Setenv("HSE_UPLOAD_PATH", "/srv/evidence")

	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, settings.WebServer.Port, "env wins over file")
	assert.Equal(t, "/srv/evidence", settings.Attachments.Path)
	assert.Equal(t, "/tmp/findings.db", settings.Database.SQLite.Path)
	assert.Equal(t, 5*time.Second, settings.Reporting.CacheTTL)
	assert.Equal(t, testSecret, settings.Security.JWTSecret)
}

func TestLoadResolvesSecretSources(t *testing.T) {
	dir := resetViper(t)
	secretPath := filepath.Join(dir, "jwt")
	require.NoError(t, os.WriteFile(secretPath, []byte(testSecret+"\n"), 0o600))
	cfg := `
security:
  jwtsecret: ignored-when-file-is-set
  jwtsecretfile: ` + secretPath + `
database:
  mysql:
    password: ${HSE_TEST_DB_PASSWORD}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o600))
	t.Setenv("HSE_TEST_DB_PASSWORD", "db-pass")

	settings, err := Load()
	require.NoError(t, err)
	assert.Equal(t, testSecret, settings.Security.JWTSecret)
	assert.Equal(t, "db-pass", settings.Database.MySQL.Password)
}

func TestLoadRejectsUnreadableSecretFile(t *testing.T) {
	dir := resetViper(t)
	t.Setenv("HSE_JWT_SECRET_FILE", filepath.Join(dir, "missing"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "security.jwtsecret")
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	resetViper(t)
	t.Setenv("HSE_DB_DRIVER", "postgres")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HSE_DB_DRIVER")
}

func TestValidateSettingsCollectsAllErrors(t *testing.T) {
	t.Parallel()

	s := validSettings()
	require.NoError(t, ValidateSettings(s))

	s.WebServer.Port = 0
	s.Security.JWTSecret = "short"
	s.Database.Driver = DriverMySQL
	s.Attachments.Workers = 0
	s.Sentry = SentrySettings{Enabled: true}

	err := ValidateSettings(s)
	require.Error(t, err)
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 5)
	assert.Contains(t, err.Error(), "database.mysql is missing host, username")
}

func TestValidateBodyLimit(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.WebServer.BodyLimit = "lots"
	err := ValidateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bodylimit")
}

func TestValidateRateLimit(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.WebServer.RateLimit = RateLimitSettings{Enabled: true, RequestsPerSecond: 0, Burst: 1}
	require.Error(t, ValidateSettings(s))

	s.WebServer.RateLimit.RequestsPerSecond = 2
	require.NoError(t, ValidateSettings(s))
}

func TestRedactedYAMLMasksSecrets(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Database.MySQL.Password = "hunter2"
	s.Sentry.DSN = "https://key@sentry.example/1"

	out, err := s.RedactedYAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), testSecret)
	assert.NotContains(t, string(out), "hunter2")
	assert.NotContains(t, string(out), "sentry.example")

	var roundTrip map[string]any
	require.NoError(t, yaml.Unmarshal(out, &roundTrip))
	assert.Contains(t, roundTrip, "database")

	assert.Equal(t, testSecret, s.Security.JWTSecret, "original settings untouched")
}

func TestGenerateRandomSecret(t *testing.T) {
	t.Parallel()

	a, b := GenerateRandomSecret(), GenerateRandomSecret()
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}
