package commands

import (
	"context"
	"fmt"
	"os"
	"xsheet-companion/lib/telemetry"

	"github.com/spf13/cobra"
)

var verbose *bool
var configPath *string

func init() {
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output and dump every api exchange.")
	configPath = rootCmd.PersistentFlags().String("config", "xsheet.json5", "The config file to read, a .local variant overrides it.")
}

var rootCmd = &cobra.Command{
	Use:   "xsheet",
	Short: "xsheet files posts from your feed into X-Sheet sheets.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
