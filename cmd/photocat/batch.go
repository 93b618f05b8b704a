package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newBatchCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <dir>",
		Short: "Ingest a directory tree using pre-fetched existence snapshots",
		Args:  cobra.ExactArgs(1),
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

			if cfg.Ingest.MetricsAddr != "" {
				go serveMetrics(cfg.Ingest.MetricsAddr)
			}

			pipe, err := a.pipeline()
			if err != nil {
				return err
			}

			tally, err := pipe.RunBatch(ctx, args[0], cfg.Ingest.Extensions)
			if err != nil {
				return err
			}
			if tally.Errors > 0 {
				return fmt.Errorf("batch finished with %d failed files", tally.Errors)
			}
			return nil
		},
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	slog.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server error", "error", err)
	}
}
