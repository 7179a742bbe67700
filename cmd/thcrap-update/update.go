package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/SakuraUO/thcrap/internal/runconfig"
	"github.com/SakuraUO/thcrap/internal/telemetry"
	"github.com/SakuraUO/thcrap/internal/updater"
)

var (
	telemetryProjectFlag string
	telemetryKeyFlag     string
	blobCacheDirFlag     string
)

func init() {
	for _, c := range []*cobra.Command{updateCmd, globalUpdateCmd} {
		c.Flags().StringVar(&telemetryProjectFlag, "telemetry-project", os.Getenv("THCRAP_TELEMETRY_PROJECT"), "GCP project id to record run history to (optional)")
		c.Flags().StringVar(&telemetryKeyFlag, "telemetry-key", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"), "service account key for telemetry (optional, uses ADC if unset)")
		c.Flags().StringVar(&blobCacheDirFlag, "blob-cache", "", "directory for the cross-patch dedup cache (disabled if unset)")
	}
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(globalUpdateCmd)
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update every patch in the configured run's stack",
	Run: func(cmd *cobra.Command, args []string) {
		rc := mustLoadRunConfig()
		runID := uuid.NewString()
		maybeEnableBlobCache()

		start := time.Now()
		statuses := updater.StackUpdate(context.Background(), rc, nil, printStackProgress)
		finish := time.Now()

		printSummary(rc.Patches, statuses)
		recordTelemetry(runID, "stack", rc.Game, start, finish, patchIDs(rc.Patches), patchArchives(rc.Patches), statuses)
	},
}

var globalUpdateCmd = &cobra.Command{
	Use:   "global-update",
	Short: "Update every patch referenced by any run configuration in this directory",
	Run: func(cmd *cobra.Command, args []string) {
		rc := mustLoadRunConfig()
		runID := uuid.NewString()
		maybeEnableBlobCache()

		start := time.Now()
		statuses, err := updater.GlobalUpdate(context.Background(), rc, printStackProgress)
		finish := time.Now()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		recordTelemetry(runID, "global", rc.Game, start, finish, nil, nil, statuses)
	},
}

func maybeEnableBlobCache() {
	if blobCacheDirFlag != "" {
		updater.SetBlobCache(blobCacheDirFlag)
	}
}

func printStackProgress(stackIdx, stackTotal int, p *runconfig.Patch, fn, status string, fileIdx, fileTotal int, done, total int64) {
	switch status {
	case "ok", "deleted":
		pterm.Success.Printf("[%d/%d] %s: %s (%d/%d)\n", stackIdx, stackTotal, p.ID, fn, fileIdx, fileTotal)
	case "error":
		pterm.Error.Printf("[%d/%d] %s: %s failed\n", stackIdx, stackTotal, p.ID, fn)
	}
}

func printSummary(patches []*runconfig.Patch, statuses []updater.Status) {
	for i, p := range patches {
		if i >= len(statuses) {
			break
		}
		pterm.Info.Printf("%s: %s\n", p.ID, statuses[i])
	}
}

func patchIDs(patches []*runconfig.Patch) []string {
	ids := make([]string, len(patches))
	for i, p := range patches {
		ids[i] = p.ID
	}
	return ids
}

func patchArchives(patches []*runconfig.Patch) []string {
	archives := make([]string, len(patches))
	for i, p := range patches {
		archives[i] = p.Archive
	}
	return archives
}

func recordTelemetry(runID, kind, game string, start, finish time.Time, ids, archives []string, statuses []updater.Status) {
	if telemetryProjectFlag == "" {
		return
	}
	ctx := context.Background()
	store, err := telemetry.NewStore(ctx, telemetry.Config{
		GCPProjectID:      telemetryProjectFlag,
		ServiceAccountKey: telemetryKeyFlag,
	})
	if err != nil {
		pterm.Warning.Printf("telemetry: %v\n", err)
		return
	}
	defer store.Close()

	run := telemetry.NewRun(runID, kind, game, start.Unix(), finish.Unix(), ids, archives, statuses)
	if err := store.RecordRun(ctx, run); err != nil {
		pterm.Warning.Printf("telemetry: %v\n", err)
	}
}
