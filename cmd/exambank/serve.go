package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"exambank/internal/api"
	"exambank/internal/engine"
	"exambank/internal/model"
	"exambank/internal/storage"
)

// disabledIngester answers uploads when the pipeline is not configured.
type disabledIngester struct {
	reason error
}

func (d disabledIngester) Ingest(context.Context, string) (*model.Exam, error) {
	return nil, engine.NewAppError("INGEST_DISABLED", fiber.StatusServiceUnavailable,
		"Exam ingestion is not configured: "+d.reason.Error())
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the exam bank over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, closeDB, err := c.openDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := db.Migrate(ctx); err != nil {
				return err
			}

			var ingester api.Ingester
			if p, err := c.newPipeline(db); err != nil {
				c.log.Warn("serve.ingest_disabled", zap.Error(err))
				ingester = disabledIngester{reason: err}
			} else {
				ingester = p
			}

			files := storage.NewLocalStorage(c.cfg.Storage.LocalPath, c.cfg.Storage.MaxFileSize)
			h := api.NewHandler(db, ingester, files, c.log)
			app := api.NewApp(h, api.Options{
				JWTSecret: c.cfg.JWTSecret,
				BodyLimit: int(c.cfg.Storage.MaxFileSize) + 1<<20,
				Logger:    c.log,
			})

			errCh := make(chan error, 1)
			addr := fmt.Sprintf(":%d", c.cfg.Server.Port)
			go func() {
				c.log.Info("serve.start", zap.String("addr", addr))
				errCh <- app.Listen(addr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				c.log.Info("serve.shutdown")
				return app.ShutdownWithTimeout(10 * time.Second)
			}
		},
	}
}
