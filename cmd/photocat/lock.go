package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/your-org/photocat/internal/models"
	"github.com/your-org/photocat/internal/storage"
)

func newLockCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "lock <photo-id> <date|place>",
		Short: "Mark a field group as manually curated, excluding it from resolution",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			field := models.FieldType(args[1])
			if field != models.FieldDate && field != models.FieldPlace {
				return fmt.Errorf("unknown field type %q (want date or place)", args[1])
			}

			db, err := storage.NewPostgresStore(cfg.Database)
			if err != nil {
				return fmt.Errorf("connect to postgres: %w", err)
			}
			defer db.Close()

			photo, err := db.GetPhoto(ctx, args[0])
			if err != nil {
				return err
			}
			if photo == nil {
				return fmt.Errorf("photo %s not found", args[0])
			}

			locks, err := db.GetEditLocks(ctx, photo.ID)
			if err != nil {
				return err
			}
			if locks[field] {
				slog.Info("field already locked", "photo", photo.ID, "field", field)
				return nil
			}

			if err := db.RecordEdit(ctx, photo.ID, field); err != nil {
				return err
			}
			slog.Info("field locked", "photo", photo.ID, "field", field)
			return nil
		},
	}
}
