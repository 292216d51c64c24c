package main

import (
	"context"
	"embed"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/tigerroll/chunkbatch/example/order/internal/app"
	"github.com/tigerroll/chunkbatch/example/order/internal/cli"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// embeddedConfig is the application configuration. ${VAR:-default} placeholders are expanded at load time.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// resourcesFS bundles the migrations of every supported database and the sample customers file.
//
//go:embed all:resources/migrations resources/data
var resourcesFS embed.FS

func main() {
	resources, err := fs.Sub(resourcesFS, "resources")
	if err != nil {
		logger.Fatalf("Failed to open embedded resources: %v", err)
	}

	// SIGINT/SIGTERM cancel a running job, which then ends as STOPPED and can be restarted.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.BuildCLI(app.Options{
		Config:     embeddedConfig,
		Resources:  resources,
		DBAdaptors: app.DBAdaptorsFromEnv(),
	})
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}
