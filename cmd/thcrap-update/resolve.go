package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SakuraUO/thcrap/internal/pathsynth"
	"github.com/SakuraUO/thcrap/internal/resolve"
)

var (
	resolveJSONFlag bool
	resolvePathFlag bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <relative-path>",
	Short: "Resolve one path against the configured patch stack",
	Long: `Walks the patch stack for a single relative path and prints the
winning content: backward (first hit wins) for plain files, forward
merge for --json fragments.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rc := mustLoadRunConfig()
		fn := args[0]
		variants := append(pathsynth.Generic(fn, rc.Build), pathsynth.GameScoped(fn, rc.Build, rc.Game)...)

		if resolveJSONFlag {
			v, _, err := resolve.JSON(rc.Patches, variants, nil)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			if v == nil {
				fmt.Fprintf(os.Stderr, "no JSON fragment found for %s\n", fn)
				os.Exit(1)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(v)
			return
		}

		if resolvePathFlag {
			p, err := resolve.AbsolutePath(rc.Patches, variants)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Println(p)
			return
		}

		b, err := resolve.File(rc.Patches, variants)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Stdout.Write(b)
	},
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveJSONFlag, "json", false, "resolve as a JSON overlay fragment instead of a binary file")
	resolveCmd.Flags().BoolVar(&resolvePathFlag, "path", false, "print the winning patch's absolute path instead of its contents")
	rootCmd.AddCommand(resolveCmd)
}
