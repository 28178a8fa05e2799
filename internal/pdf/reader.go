package pdf

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"exambank/internal/config"
	"exambank/internal/model"
	"exambank/internal/ocr"
)

// Document is the layout of one PDF file. Page numbers start at 0.
type Document struct {
	Path  string
	Pages []Page
}

type Page struct {
	Number int
	Width  float64
	Height float64
	Blocks []Block
	Image  []byte // PNG rendering of the whole page
}

type Block struct {
	Number int
	Type   int // model.BlockText or model.BlockImage
	Text   string
	BBox   []float64
}

// Reader extracts text blocks with pdftotext and page images with pdftoppm.
type Reader struct {
	runner    ocr.Runner
	pdftotext string
	pdftoppm  string
	dpi       int
	log       *zap.Logger
}

func NewReader(cfg config.PDFConfig, runner ocr.Runner, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		runner = ocr.NewExecRunner(logger)
	}
	r := &Reader{
		runner:    runner,
		pdftotext: cfg.PdfToText,
		pdftoppm:  cfg.PdfToPPM,
		dpi:       cfg.DPI,
		log:       logger.Named("pdf"),
	}
	if r.pdftotext == "" {
		r.pdftotext = "pdftotext"
	}
	if r.pdftoppm == "" {
		r.pdftoppm = "pdftoppm"
	}
	if r.dpi <= 0 {
		r.dpi = 144
	}
	return r
}

// Open reads the layout and page images of the PDF at path. A page without a
// text layer gets a single image block spanning the page.
func (r *Reader) Open(ctx context.Context, path string) (*Document, error) {
	// pdftotext -bbox-layout -enc UTF-8 <path> -
	out, errb, err := r.runner.Run(ctx, r.pdftotext, "-bbox-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext %s: %w: %s", path, err, strings.TrimSpace(string(errb)))
	}
	doc, err := ParseLayout(out)
	if err != nil {
		return nil, fmt.Errorf("parse layout of %s: %w", path, err)
	}
	doc.Path = path

	images, err := r.render(ctx, path)
	if err != nil {
		return nil, err
	}
	for i := range doc.Pages {
		if i < len(images) {
			doc.Pages[i].Image = images[i]
		}
	}

	r.log.Info("pdf.opened",
		zap.String("path", path),
		zap.Int("pages", len(doc.Pages)),
		zap.Int("images", len(images)),
	)
	return doc, nil
}

// render produces one PNG per page, in page order.
func (r *Reader) render(ctx context.Context, path string) ([][]byte, error) {
	tmpDir, err := os.MkdirTemp("", "exambank-pp-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.log.Warn("pdf.tmp.cleanup_failed", zap.String("dir", tmpDir), zap.Error(err))
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r <dpi> -png <in.pdf> <tmp/page>
	_, errb, err := r.runner.Run(ctx, r.pdftoppm, "-r", strconv.Itoa(r.dpi), "-png", path, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm %s: %w: %s", path, err, strings.TrimSpace(string(errb)))
	}

	// prefix-1.png ... or zero padded prefix-01.png for longer documents
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)

	images := make([][]byte, 0, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return nil, fmt.Errorf("read rendered page: %w", err)
		}
		images = append(images, data)
	}
	return images, nil
}

type layoutDoc struct {
	Pages []layoutPage `xml:"body>doc>page"`
}

type layoutPage struct {
	Width  float64       `xml:"width,attr"`
	Height float64       `xml:"height,attr"`
	Blocks []layoutBlock `xml:"flow>block"`
}

type layoutBlock struct {
	XMin  float64      `xml:"xMin,attr"`
	YMin  float64      `xml:"yMin,attr"`
	XMax  float64      `xml:"xMax,attr"`
	YMax  float64      `xml:"yMax,attr"`
	Lines []layoutLine `xml:"line"`
}

type layoutLine struct {
	Words []string `xml:"word"`
}

// ParseLayout reads the XHTML written by `pdftotext -bbox-layout`. Each line
// of a text block contributes its words followed by a newline.
func ParseLayout(data []byte) (*Document, error) {
	var ld layoutDoc
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	if err := dec.Decode(&ld); err != nil {
		return nil, err
	}

	doc := &Document{Pages: make([]Page, 0, len(ld.Pages))}
	for i, lp := range ld.Pages {
		page := Page{Number: i, Width: lp.Width, Height: lp.Height}
		for _, lb := range lp.Blocks {
			var sb strings.Builder
			for _, line := range lb.Lines {
				sb.WriteString(strings.Join(line.Words, " "))
				sb.WriteString("\n")
			}
			page.Blocks = append(page.Blocks, Block{
				Number: len(page.Blocks),
				Type:   model.BlockText,
				Text:   sb.String(),
				BBox:   []float64{lb.XMin, lb.YMin, lb.XMax, lb.YMax},
			})
		}
		if len(page.Blocks) == 0 {
			page.Blocks = []Block{{
				Number: 0,
				Type:   model.BlockImage,
				BBox:   []float64{0, 0, lp.Width, lp.Height},
			}}
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc, nil
}
