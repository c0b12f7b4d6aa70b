package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the run log schema",
	Long:  "Creates the load_runs table in the configured store. Dataset tables are replaced on every load and need no migration.",
	RunE: func(cmd *cobra.Command, args []string) error {
		gw, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer gw.Close() //nolint:errcheck

		zap.L().Info("store schema is current", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
