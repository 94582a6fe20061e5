package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/picoclaw-bridge/bridge/cmd/bridge/internal/run"
)

func main() {
	root := &cobra.Command{
		Use:   "bridge",
		Short: "Relay chat messages across Discord, Telegram, QQ and the command channel",
	}
	root.AddCommand(run.NewRunCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
