// Package telemetry forwards unexpected errors to Sentry. It is opt-in and
// strips identifying data from every event before it leaves the process.
package telemetry

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/sitesafe/hsetrack/internal/conf"
	"github.com/sitesafe/hsetrack/internal/errors"
	"github.com/sitesafe/hsetrack/internal/logger"
)

var initialized atomic.Bool

// GetLogger returns the telemetry module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

// Init configures the Sentry SDK and installs it as the error reporter.
// It is a no-op when Sentry is disabled.
func Init(settings *conf.SentrySettings, release string) error {
	if !settings.Enabled {
		GetLogger().Info("sentry telemetry is disabled")
		return nil
	}
	return initWithOptions(sentry.ClientOptions{
		Dsn:         settings.DSN,
		Environment: settings.Environment,
		SampleRate:  settings.SampleRate,
		Release:     "hsetrack@" + release,
	})
}

func initWithOptions(opts sentry.ClientOptions) error {
	opts.AttachStacktrace = false
	opts.ServerName = ""
	opts.SendDefaultPII = false
	opts.BeforeSend = func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
		return applyPrivacyFilters(event)
	}

	if err := sentry.Init(opts); err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized.Store(true)
	GetLogger().Info("sentry telemetry enabled",
		logger.String("environment", opts.Environment),
		logger.Float64("sample_rate", opts.SampleRate))
	return nil
}

// applyPrivacyFilters removes user, host and runtime details from event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Request = nil

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}

// Flush waits for queued events, for use during shutdown.
func Flush(timeout time.Duration) {
	if !initialized.Load() {
		return
	}
	if !sentry.Flush(timeout) {
		GetLogger().Warn("sentry flush timed out", logger.Duration("timeout", timeout))
	}
}
