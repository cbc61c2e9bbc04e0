package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/knowledge-engine/movierec/internal/datasource"
)

func newImportCmd(root *rootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "import <csv>",
		Short: "Load a CSV dataset into a SQLite database",
		Long: `Load a CSV dataset into the movies table of a SQLite database.

Rows with a movie_id replace the existing row with that id. Use the
database afterwards with --driver sqlite --dataset <db>.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open dataset: %w", err)
			}
			defer f.Close()

			items, skipped, err := datasource.ReadCSV(f)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			db, err := datasource.OpenSQLite(dbPath, logger.WithField("component", "sqlite_source"))
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := db.Import(cmd.Context(), items)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d movies into %s (%d rows without a title skipped)\n", n, dbPath, skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "dataset/movies.db", "SQLite database to write")
	return cmd
}
