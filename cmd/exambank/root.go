package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"exambank/internal/catalog"
	"exambank/internal/config"
	"exambank/internal/engine"
	"exambank/internal/llm"
	"exambank/internal/logging"
	"exambank/internal/model"
	"exambank/internal/ocr"
	"exambank/internal/pdf"
	"exambank/internal/pipeline"
	"exambank/internal/store"
)

type cli struct {
	cfgPath string
	cfg     *config.Config
	log     *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "exambank",
		Short:         "Store exam PDFs and classify them by subject and topic",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.log = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.cfgPath, "config", "", "config file (default ./app.yaml)")

	root.AddCommand(
		c.resetCmd(),
		c.ingestCmd(),
		c.serveCmd(),
		c.exportCmd(),
		c.tokenCmd(),
	)
	return root
}

// openDB connects to the configured database and builds the gateway over
// the registered model.
func (c *cli) openDB(ctx context.Context) (*engine.DB, func(), error) {
	s, err := store.New(ctx, c.cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	reg, err := model.NewRegistry(c.log)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	c.log.Info("db.connected",
		zap.String("driver", s.Dialect.Name()),
		zap.String("name", c.cfg.Database.Name),
	)
	return engine.New(s, reg, c.log), s.Close, nil
}

func (c *cli) newPipeline(db *engine.DB) (*pipeline.Pipeline, error) {
	if err := c.cfg.ValidateIngest(); err != nil {
		return nil, err
	}

	categories, err := catalog.LoadCategories(c.cfg.Catalog.CategoriesPath)
	if err != nil {
		return nil, err
	}
	rule, err := pipeline.NewTopicRule(c.cfg.Classification.CoreTopicRule)
	if err != nil {
		return nil, err
	}
	client, err := llm.NewClient(c.cfg.LLM, c.log)
	if err != nil {
		return nil, err
	}

	runner := ocr.NewExecRunner(c.log)
	opts := pipeline.Options{
		DB:         db,
		Reader:     pdf.NewReader(c.cfg.PDF, runner, c.log),
		OCR:        ocr.New(c.cfg.OCR, runner, c.log),
		LLM:        client,
		Categories: categories,
		Rule:       rule,
		SampleSize: c.cfg.Catalog.SampleSize,
		Logger:     c.log,
	}

	subjects, err := catalog.LoadSubjects(c.cfg.Catalog.SubjectsPath)
	if err != nil {
		c.log.Warn("catalog.subjects.unavailable", zap.String("path", c.cfg.Catalog.SubjectsPath), zap.Error(err))
	} else {
		opts.Subjects = subjects
	}

	p, err := pipeline.New(opts)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return p, nil
}
