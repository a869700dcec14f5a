// Package serve provides the command that runs the HTTP API.
package serve

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sitesafe/hsetrack/internal/app"
	"github.com/sitesafe/hsetrack/internal/buildinfo"
	"github.com/sitesafe/hsetrack/internal/conf"
	"github.com/sitesafe/hsetrack/internal/logger"
)

// Command creates the serve command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HSE finding API",
		Long:  "Serve the findings, verification, attachment and summary API until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, settings, build)
		},
	}

	cmd.Flags().String("host", "", "Address to bind")
	cmd.Flags().Int("port", 0, "Port to listen on")
	_ = viper.BindPFlag("webserver.host", cmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("webserver.port", cmd.Flags().Lookup("port"))

	return cmd
}

func run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	log := logger.Global().Module("main")
	log.Info("starting hsetrack",
		logger.String("version", build.GetVersion()),
		logger.String("build_date", build.GetBuildDate()))

	a, err := app.New(settings, build)
	if err != nil {
		log.Error("initialization failed", logger.Error(err))
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("error closing resources", logger.Error(err))
		}
	}()

	if err := a.Serve(ctx); err != nil {
		log.Error("server stopped with error", logger.Error(err))
		return err
	}
	log.Info("hsetrack stopped")
	return nil
}
