package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"exambank/internal/engine"
)

func (c *cli) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Drop every table in the database and recreate the exam bank schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, closeDB, err := c.openDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			confirm := engine.PromptConfirmer{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()}
			err = db.ResetAll(ctx, confirm)
			if errors.Is(err, engine.ErrResetAborted) {
				return nil
			}
			if err != nil {
				return err
			}

			tables, _ := db.Tables()
			fmt.Fprintf(cmd.OutOrStdout(), "Recreated %d tables.\n", len(tables))
			return nil
		},
	}
}
