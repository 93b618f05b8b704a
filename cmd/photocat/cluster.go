package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/your-org/photocat/internal/cluster"
	"github.com/your-org/photocat/internal/storage"
)

func newClusterCommand(configFlag *string) *cobra.Command {
	var (
		eps        float64
		minSamples int
	)

	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Group face embeddings into identity clusters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			db, err := storage.NewPostgresStore(cfg.Database)
			if err != nil {
				return fmt.Errorf("connect to postgres: %w", err)
			}
			defer db.Close()

			faces, err := db.AllFaceEmbeddings(ctx)
			if err != nil {
				return err
			}
			if len(faces) == 0 {
				slog.Info("no face embeddings to cluster")
				return nil
			}

			vectors := make([][]float32, len(faces))
			for i, f := range faces {
				vectors[i] = f.Embedding
			}
			labels := cluster.Assign(vectors, eps, minSamples)

			updates := make([]storage.FaceClusterLabel, len(faces))
			clustered := 0
			for i, f := range faces {
				updates[i] = storage.FaceClusterLabel{FaceID: f.ID, ClusterID: labels[i]}
				if labels[i] != nil {
					clustered++
				}
			}
			if err := db.UpdateFaceClusters(ctx, updates); err != nil {
				return err
			}

			slog.Info("face clustering complete",
				"faces", len(faces), "clustered", clustered, "noise", len(faces)-clustered)
			return nil
		},
	}

	cmd.Flags().Float64Var(&eps, "eps", 0.4, "DBSCAN cosine-distance neighborhood radius")
	cmd.Flags().IntVar(&minSamples, "min-samples", 2, "minimum neighborhood size for a core point")
	return cmd
}
