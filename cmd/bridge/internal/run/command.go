package run

import (
	"github.com/spf13/cobra"
)

// NewRunCommand builds the "run" subcommand that starts every configured
// adapter and blocks until interrupted.
func NewRunCommand() *cobra.Command {
	var debug bool
	var configPath string

	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"start"},
		Short:   "Start the bridge",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runCmd(configPath, debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.json", "Path to config.json")

	return cmd
}
