package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"sitecms/api/internal/config"
	"sitecms/api/internal/store"
)

type migrationStatus struct {
	Directory string   `json:"directory" yaml:"directory"`
	Pending   []string `json:"pending" yaml:"pending"`
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or apply database migrations",
		Long:  `Uses DATABASE_URL and SITECMS_MIGRATIONS_DIR, read the same way the API reads them.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "List migrations not yet applied",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				db, err := store.Open(cmd.Context(), cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer db.Close()

				pending, err := store.PendingMigrations(cmd.Context(), db, os.DirFS(cfg.MigrationsDir))
				if err != nil {
					return err
				}
				status := migrationStatus{Directory: cfg.MigrationsDir, Pending: pending}
				format, _ := cmd.Flags().GetString("output")
				return writeResult(cmd.OutOrStdout(), format, status, func(w io.Writer) error {
					if len(pending) == 0 {
						_, err := fmt.Fprintln(w, "database is up to date")
						return err
					}
					for _, version := range pending {
						fmt.Fprintf(w, "pending  %s\n", version)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				db, err := store.Open(cmd.Context(), cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer db.Close()

				if err := store.ApplyMigrations(cmd.Context(), db, cfg.MigrationsDir); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			},
		},
	)
	return cmd
}
