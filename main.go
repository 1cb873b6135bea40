package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hbomb79/Iris/internal"
	"github.com/hbomb79/Iris/pkg/logger"
	"github.com/mitchellh/go-homedir"
)

var log = logger.Get("Main")

// main is the entry point to the program. The user's configuration is
// loaded (from the path provided, or the default beneath their home
// directory), validated, and used to bootstrap the Iris daemon. The
// daemon runs until a SIGINT/SIGTERM arrives, at which point in-flight
// transfers are allowed to settle before the process exits.
func main() {
	configPath := flag.String("config", "", "path to the Iris configuration file")
	flag.Parse()

	path := *configPath
	if path == "" {
		home, err := homedir.Dir()
		if err != nil {
			log.Emit(logger.FATAL, "Failed to derive user home directory for default config path: %s\n", err.Error())
			os.Exit(1)
		}
		path = filepath.Join(home, ".config", "iris", "config.yaml")
	}

	config := internal.IrisConfig{}
	if err := config.LoadFromFile(path); err != nil {
		log.Emit(logger.FATAL, "Configuration is unusable: %s\n", err.Error())
		os.Exit(1)
	}

	iris, err := internal.New(config)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to initialise Iris: %s\n", err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := iris.Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Iris stopped with error: %s\n", err.Error())
		os.Exit(1)
	}
}
