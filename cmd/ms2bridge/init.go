package main

import (
	"fmt"

	"github.com/marmos91/ms2bridge/pkg/config"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		Long: `Write a commented sample configuration file.

By default the file is written to $XDG_CONFIG_HOME/ms2bridge/config.yaml
(or ~/.config/ms2bridge/config.yaml). An existing file is only replaced
with --force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path != "" {
				if err := config.InitConfigToPath(path, force); err != nil {
					return err
				}
			} else {
				written, err := config.InitConfig(force)
				if err != nil {
					return err
				}
				path = written
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), "\nEdit the backends section, then run 'ms2bridge start'.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	cmd.Flags().StringVar(&path, "path", "", "Write the configuration to this path instead of the default location")

	return cmd
}
