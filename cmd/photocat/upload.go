package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/your-org/photocat/internal/ingest"
)

func newUploadCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Ingest individual files with live existence checks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			pipe, err := a.pipeline()
			if err != nil {
				return err
			}

			var tally ingest.Tally
			for _, path := range args {
				outcome, err := pipe.ProcessFile(ctx, path)
				switch {
				case err != nil:
					tally.Errors++
					slog.Error("file failed", "file", path, "error", err)
				case outcome == ingest.OutcomeSkipped:
					tally.Skipped++
					slog.Info("already processed", "file", path)
				default:
					tally.Processed++
					slog.Info("processed", "file", path)
				}
			}
			if tally.Errors > 0 {
				return fmt.Errorf("%d of %d files failed", tally.Errors, len(args))
			}
			return nil
		},
	}
}
