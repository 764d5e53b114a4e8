// Command mwalib inspects MWA observations: metafits summaries, correlator
// data file inventories and visibility extraction.
//
// The only log handler is built here, on stderr. Library code receives the
// logger through mwalib.WithLogger.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/go-mwalib/internal/logging"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries state shared by every subcommand.
type app struct {
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: logging.Discard()}

	rootCmd := &cobra.Command{
		Use:          "mwalib",
		Short:        "Read MWA metafits and correlator visibilities",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			a.logger = logging.NewText(cmd.ErrOrStderr(), verbose)
			return nil
		},
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug events")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	rootCmd.AddCommand(
		a.metafitsCmd(),
		a.infoCmd(),
		a.extractCmd(),
		a.simulateCmd(),
		versionCmd,
	)
	return rootCmd
}
