package main

import (
	"os"
	"time"

	"github.com/sitesafe/hsetrack/cmd"
	"github.com/sitesafe/hsetrack/internal/buildinfo"
	"github.com/sitesafe/hsetrack/internal/conf"
	"github.com/sitesafe/hsetrack/internal/logger"
	"github.com/sitesafe/hsetrack/internal/telemetry"
)

// set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = ""
)

func main() {
	settings := &conf.Settings{}
	err := cmd.RootCommand(settings, &buildinfo.Context{Version: version, BuildDate: buildDate}).Execute()

	telemetry.Flush(2 * time.Second)
	_ = logger.Global().Flush()
	if err != nil {
		os.Exit(1)
	}
}
