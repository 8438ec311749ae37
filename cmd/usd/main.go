package main

import (
	"context"
	"fmt"
	"os"
	"usd/internal/di"
	"usd/internal/structures"

	"github.com/spf13/pflag"
)

func main() {
	var flags structures.CliFlags
	pflag.StringVarP(&flags.ConfigPath, "config", "c", "config/config.yaml", "path to the YAML config file")
	pflag.BoolVarP(&flags.DebugMode, "debug", "d", false, "log to the console as well as to files")
	pflag.Parse()

	app, err := di.InitApp(&flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %s\n", err)
		os.Exit(1)
	}

	if err = app.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "run: %s\n", err)
		os.Exit(1)
	}
}
