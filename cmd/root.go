// Package cmd defines the hsetrack command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	configcmd "github.com/sitesafe/hsetrack/cmd/config"
	"github.com/sitesafe/hsetrack/cmd/findings"
	"github.com/sitesafe/hsetrack/cmd/serve"
	"github.com/sitesafe/hsetrack/cmd/token"
	"github.com/sitesafe/hsetrack/internal/buildinfo"
	"github.com/sitesafe/hsetrack/internal/conf"
	"github.com/sitesafe/hsetrack/internal/logger"
	"github.com/sitesafe/hsetrack/internal/telemetry"
)

// RootCommand creates the root command. settings is filled in before any
// subcommand runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:          "hsetrack",
		Short:        "HSE finding tracker",
		Long:         "hsetrack records HSE findings, verifies them and reports open work.",
		Version:      build.String(),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config.yaml")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(fmt.Sprintf("error binding flags: %v", err))
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			viper.SetConfigFile(configFile)
		}
		loaded, err := conf.Load()
		if err != nil {
			return err
		}
		*settings = *loaded
		return initialize(settings, build)
	}

	rootCmd.AddCommand(
		serve.Command(settings, build),
		findings.Command(settings, build),
		token.Command(settings),
		configcmd.Command(settings),
	)
	return rootCmd
}

// initialize sets up logging and telemetry once configuration is loaded.
func initialize(settings *conf.Settings, build *buildinfo.Context) error {
	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
	}
	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)

	if err := telemetry.Init(&settings.Sentry, build.GetVersion()); err != nil {
		// telemetry is optional
		logger.Global().Module("main").Warn("sentry initialization failed", logger.Error(err))
	}
	return nil
}
