// Command vidforge runs the upload server and its companion tools.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := submain(ctx)
	stop()
	os.Exit(code)
}

func submain(ctx context.Context) int {
	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "vidforge",
		Short:         "Video upload and processing server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: $XDG_CONFIG_HOME/vidforge/config.yaml)")

	cmd.AddCommand(
		newServeCommand(&configPath),
		newInitCommand(&configPath),
		newSendCommand(),
		newJobsCommand(&configPath),
		newVersionCommand(),
	)
	return cmd
}
