// Package app assembles hsetrack from its settings: storage, domain
// services, the access gate and the HTTP server.
package app

import (
	"context"

	"github.com/sitesafe/hsetrack/internal/access"
	v2 "github.com/sitesafe/hsetrack/internal/api/v2"
	"github.com/sitesafe/hsetrack/internal/attachments"
	"github.com/sitesafe/hsetrack/internal/buildinfo"
	"github.com/sitesafe/hsetrack/internal/conf"
	"github.com/sitesafe/hsetrack/internal/datastore"
	"github.com/sitesafe/hsetrack/internal/errors"
	"github.com/sitesafe/hsetrack/internal/findings"
	"github.com/sitesafe/hsetrack/internal/httpserver"
	"github.com/sitesafe/hsetrack/internal/logger"
	"github.com/sitesafe/hsetrack/internal/observability"
	"github.com/sitesafe/hsetrack/internal/reporting"
	"github.com/sitesafe/hsetrack/internal/verification"
)

// findingsTable labels datastore metrics.
const findingsTable = "findings"

// GetLogger returns the app module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}

// App holds the wired components. Close releases them in reverse order.
type App struct {
	Settings   *conf.Settings
	Metrics    *observability.Metrics
	DB         datastore.Manager
	Repo       datastore.FindingRepository
	Store      *attachments.Store
	Findings   *findings.Service
	Verifier   *verification.Engine
	Uploader   *attachments.Uploader
	Aggregator *reporting.Aggregator
	Gate       *access.Gate

	build   buildinfo.BuildInfo
	closers []func() error
}

// New opens the database and the upload root and builds every service.
func New(settings *conf.Settings, build buildinfo.BuildInfo) (_ *App, err error) {
	a := &App{Settings: settings, build: build}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.Metrics, err = observability.NewMetrics(); err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("operation", "init_metrics").
			Build()
	}

	if a.DB, err = datastore.NewManager(&settings.Database); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.DB.Close)
	if err = a.DB.Initialize(); err != nil {
		return nil, err
	}
	a.Repo = datastore.NewFindingRepository(a.DB.DB(), a.Metrics.Datastore.ForTable(findingsTable))

	a.Store, err = attachments.NewStore(attachments.StoreConfig{
		Root:        settings.Attachments.Path,
		URLPrefix:   settings.Attachments.URLPrefix,
		MaxFileSize: settings.Attachments.MaxFileSize,
		MinFreeMB:   settings.Attachments.MinFreeMB,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Store.Close)

	fm := a.Metrics.Findings
	a.Aggregator = reporting.NewAggregator(a.Repo, settings.Reporting.CacheTTL, fm)
	a.Findings = findings.NewService(a.Repo,
		findings.WithMetrics(fm),
		findings.WithOnChange(a.Aggregator.Invalidate))
	a.Verifier = verification.NewEngine(a.Repo,
		verification.WithMetrics(fm),
		verification.WithOnChange(a.Aggregator.Invalidate))
	a.Uploader = attachments.NewUploader(a.Repo, a.Store,
		attachments.WithWorkers(settings.Attachments.Workers),
		attachments.WithMetrics(fm))

	verifier, err := access.NewJWTVerifier(settings.Security.JWTSecret, settings.Security.Issuer, settings.Security.ClockSkew)
	if err != nil {
		return nil, err
	}
	a.Gate = access.NewGate(verifier, a.Metrics.HTTP)

	GetLogger().Info("components initialized",
		logger.String("database", a.DB.Path()),
		logger.Bool("mysql", a.DB.IsMySQL()),
		logger.String("uploads", a.Store.FS().BaseDir()),
		logger.Duration("summary_cache_ttl", settings.Reporting.CacheTTL))
	return a, nil
}

// NewServer builds the HTTP server over the app's services.
func (a *App) NewServer() (*httpserver.Server, error) {
	return httpserver.New(a.Settings.WebServer, v2.Services{
		Findings:   a.Findings,
		Verifier:   a.Verifier,
		Uploader:   a.Uploader,
		Aggregator: a.Aggregator,
		DB:         a.DB,
	}, a.Gate,
		httpserver.WithMetrics(a.Metrics),
		httpserver.WithAttachmentStore(a.Store),
		httpserver.WithBuildInfo(a.build))
}

// Serve runs the HTTP server until ctx is canceled or the listener fails,
// then shuts it down gracefully.
func (a *App) Serve(ctx context.Context) error {
	srv, err := a.NewServer()
	if err != nil {
		return err
	}
	errCh, err := srv.Start()
	if err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		GetLogger().Info("shutdown signal received")
	case serveErr = <-errCh:
	}

	// the parent context is already canceled
	if err := srv.Shutdown(context.WithoutCancel(ctx)); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// Close releases the upload root and the database.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
