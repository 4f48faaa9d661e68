package main

import (
	"fmt"
	"os"
	"time"

	"github.com/nameatlas/nameatlas/cmd"
	"github.com/nameatlas/nameatlas/internal/conf"
	"github.com/nameatlas/nameatlas/internal/logging"
	"github.com/nameatlas/nameatlas/internal/telemetry"
)

// version and buildDate are injected at build time via ldflags.
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	os.Exit(run())
}

// run keeps os.Exit out of the way of deferred cleanup.
func run() int {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		return 1
	}
	settings.Version = version
	settings.BuildDate = buildDate

	if err := telemetry.InitSentry(settings); err != nil {
		// Telemetry is optional; a broken DSN should not keep the tool
		// from running.
		logging.Warn("Telemetry initialization failed", "error", err)
	} else if settings.Sentry.Enabled {
		telemetry.InitializeErrorIntegration()
		defer telemetry.Flush(3 * time.Second)
	}

	if err := cmd.RootCommand(settings).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	return 0
}
