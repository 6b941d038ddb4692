package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"TripMate/config"
	"TripMate/internal/repository"
	"TripMate/pkg/logger"
	"TripMate/pkg/token"
	"TripMate/storage/database"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tripmate-admin",
		Short: "Operational commands for the TripMate itinerary service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(); err != nil {
				return err
			}
			logger.Init()
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.AddCommand(newMigrateCmd(), newSeedCmd(), newTokenCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the itinerary tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func() error {
				return database.Migrate()
			})
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the demo trip, members, preferences and places",
		Long: `Insert a demo trip with an owner, an editor and a viewer.

Rows that already exist are left untouched, so the command can be re-run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func() error {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()

				if err := repository.SeedDatabase(ctx, database.DB(), repository.NewDemoData()); err != nil {
					return err
				}
				logger.Logger.Info("Demo data seeded", zap.Int64("trip_id", repository.DemoTripID))
				fmt.Fprintf(cmd.OutOrStdout(), "seeded demo trip %d\n", repository.DemoTripID)
				return nil
			})
		},
	}
}

func newTokenCmd() *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access/refresh token pair for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user must be a positive user id")
			}
			if err := token.Init(); err != nil {
				return err
			}

			access, refresh, expiresIn, err := token.GenerateTokenPair(userID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"access_token":  access,
				"refresh_token": refresh,
				"expires_in":    expiresIn,
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id written into the uid claim")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func withDatabase(fn func() error) error {
	if err := database.Init(); err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := database.Close(ctx); err != nil {
			logger.Logger.Warn("Failed to close database", zap.Error(err))
		}
	}()
	return fn()
}
