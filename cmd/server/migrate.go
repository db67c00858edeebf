package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/session-auth/internal/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the users and refresh_tokens tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := database.Migrate(ctx, a.db); err != nil {
				return err
			}
			a.log.Info("schema up to date")
			return nil
		},
	}
}
