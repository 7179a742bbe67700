package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/SakuraUO/thcrap/internal/runconfig"
)

var runConfigFlag string

var rootCmd = &cobra.Command{
	Use:   "thcrap-update",
	Short: "Resolve and update a layered patch stack",
}

func init() {
	// Best-effort: a missing .env is normal outside of telemetry use.
	_ = godotenv.Overload(".env")
	rootCmd.PersistentFlags().StringVar(&runConfigFlag, "config", "run.js", "path to the run configuration")
}

func mustLoadRunConfig() *runconfig.RunConfig {
	rc, err := runconfig.Load(runConfigFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return rc
}
