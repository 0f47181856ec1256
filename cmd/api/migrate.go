package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	conn, dialect, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.Info("schema migrated", zap.String("driver", dialect.String()))
	return nil
}
