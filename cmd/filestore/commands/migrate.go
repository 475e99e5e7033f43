package commands

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/marmos91/filestore/pkg/config"
	"github.com/marmos91/filestore/pkg/metadatastore/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply every pending metadata-store migration against the database
configured in the configuration file. Safe to run from several
instances at once: golang-migrate holds a Postgres advisory lock for
the duration.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(cfgFile)
	if err != nil {
		return err
	}
	return postgres.RunMigrations(context.Background(), cfg.Database.DSN, slog.Default())
}
