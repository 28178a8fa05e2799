package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"exambank/internal/config"
)

// Engine recognizes text in page images with the tesseract CLI.
type Engine struct {
	runner  Runner
	bin     string
	lang    string
	workers int
	log     *zap.Logger
}

func New(cfg config.OCRConfig, runner Runner, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	bin := cfg.Tesseract
	if bin == "" {
		bin = "tesseract"
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Engine{runner: runner, bin: bin, lang: cfg.Lang, workers: workers, log: logger.Named("ocr")}
}

// Image returns the text tesseract finds in one PNG image.
func (e *Engine) Image(ctx context.Context, img []byte) (string, error) {
	if len(img) == 0 {
		return "", nil
	}
	f, err := os.CreateTemp("", "exambank-page-*.png")
	if err != nil {
		return "", fmt.Errorf("create temp image: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(img); err != nil {
		f.Close()
		return "", fmt.Errorf("write temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp image: %w", err)
	}

	// tesseract <file> stdout -l <lang>
	args := []string{f.Name(), "stdout"}
	if e.lang != "" {
		args = append(args, "-l", e.lang)
	}
	out, errb, err := e.runner.Run(ctx, e.bin, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(string(errb)))
	}
	return strings.TrimSpace(string(out)), nil
}

// Pages recognizes every image concurrently, at most workers at a time.
// Result i belongs to images[i]. A page that fails to recognize is logged and
// left empty; only cancellation aborts the batch.
func (e *Engine) Pages(ctx context.Context, images [][]byte) ([]string, error) {
	texts := make([]string, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, img := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			txt, err := e.Image(gctx, img)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				e.log.Warn("ocr.page.failed", zap.Int("page", i), zap.Error(err))
				return nil
			}
			texts[i] = txt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.log.Debug("ocr.pages.done", zap.Int("pages", len(images)))
	return texts, nil
}
