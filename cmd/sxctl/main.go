// Command sxctl administers scheduled transactions from the terminal.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sxledger/internal/cli"
	"sxledger/internal/config"
	"sxledger/internal/log"
	"sxledger/internal/storage"
)

type app struct {
	dbPath string
	logger *log.Logger
	repo   *storage.SQLiteRepository
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "sxctl",
		Short:         "Manage scheduled transactions",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cli.LoadEnvFile()
			a.logger = cli.SetupLogger(log.ComponentApp)
			if a.dbPath == "" {
				a.dbPath = config.Load().SQLiteDBPath
			}
			repo, err := storage.NewSQLiteRepository(a.dbPath)
			if err != nil {
				return fmt.Errorf("open %s: %w", a.dbPath, err)
			}
			a.repo = repo
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.repo != nil {
				return a.repo.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (defaults to SQLITE_DB_PATH)")

	root.AddCommand(
		newImportCmd(a),
		newExportCmd(a),
		newListCmd(a),
		newNeededCmd(a),
		newRunCmd(a),
		newICSCmd(a),
		newCashflowCmd(a),
	)
	return root
}
