package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/SakuraUO/thcrap/internal/watch"
)

var watchDebounceFlag time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch every patch's archive tree and report changes as they settle",
	Long: `Watches the archive directory of every patch in the configured run and
prints a line each time a file finishes changing, for patch authors
iterating locally. Runs until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		rc := mustLoadRunConfig()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		onChange := func(ev watch.ChangeEvent) {
			pterm.Info.Printf("%s: %s changed\n", ev.Patch.ID, ev.Path)
		}

		done := make(chan struct{})
		running := 0
		for _, p := range rc.Patches {
			p := p
			if p.Archive == "" {
				continue
			}
			running++
			go func() {
				defer func() { done <- struct{}{} }()
				if err := watch.Archive(ctx, p, watchDebounceFlag, onChange); err != nil && ctx.Err() == nil {
					pterm.Warning.Printf("%s: %v\n", p.ID, err)
				}
			}()
		}

		if running == 0 {
			pterm.Warning.Println("no patches with a local archive to watch")
			return
		}

		for i := 0; i < running; i++ {
			<-done
		}
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounceFlag, "debounce", 300*time.Millisecond, "how long to wait after the last event before reporting a change")
	rootCmd.AddCommand(watchCmd)
}
