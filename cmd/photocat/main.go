// Command photocat ingests photo libraries into the catalog: content-hash
// identity, metadata resolution, renditions, embeddings and face clusters.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/your-org/photocat/internal/config"
	"github.com/your-org/photocat/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "photocat: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "photocat",
		Short:         "Photo catalog ingestion and face clustering",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "path to config file")

	rootCmd.AddCommand(newUploadCommand(&configFlag))
	rootCmd.AddCommand(newBatchCommand(&configFlag))
	rootCmd.AddCommand(newClusterCommand(&configFlag))
	rootCmd.AddCommand(newLockCommand(&configFlag))
	return rootCmd
}

// loadConfig reads the config (defaults only when no path is given) and
// installs the logger before anything else runs.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg = config.Default()
	} else if cfg, err = config.Load(path); err != nil {
		return nil, err
	}
	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}
