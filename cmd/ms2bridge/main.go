package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ms2bridge",
		Short: "Publish media backends as MediaServer2 services on D-Bus",
		Long: `ms2bridge exposes media backends (local directories, S3 buckets,
static catalogs) over the org.gnome.UPnP.MediaServer2 D-Bus interface,
so that UPnP/DLNA servers and media players can browse and search them.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newStartCmd(),
		newInitCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ms2bridge %s (commit %s)\n", version, commit)
		},
	}
}
