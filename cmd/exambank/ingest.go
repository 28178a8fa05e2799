package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"exambank/internal/engine"
	"exambank/internal/pipeline"
)

func (c *cli) ingestCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "ingest <pdf>...",
		Short: "Store exam PDFs and classify them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, closeDB, err := c.openDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			if reset {
				confirm := engine.PromptConfirmer{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()}
				if err := db.ResetAll(ctx, confirm); err != nil {
					return err
				}
			} else if err := db.Migrate(ctx); err != nil {
				return err
			}

			p, err := c.newPipeline(db)
			if err != nil {
				return err
			}

			var failed int
			for _, path := range args {
				exam, err := p.Ingest(ctx, path)
				switch {
				case errors.Is(err, pipeline.ErrNoText):
					failed++
					c.log.Warn("ingest.skipped", zap.String("path", path), zap.Error(err))
				case err != nil:
					failed++
					c.log.Error("ingest.failed", zap.String("path", path), zap.Error(err))
				default:
					var codes []string
					if exam.Subject != nil {
						codes = exam.Subject.Code
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Exam created with id=%d, version=%s, subject=%s\n",
						exam.ID, exam.Version, strings.Join(codes, ", "))
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "reset the database before ingesting (asks for confirmation)")
	return cmd
}
