// Package pipeline turns an exam PDF into stored Exam, Pdf, Page and Block
// rows and classifies the exam's subject and topic with a language model.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"exambank/internal/catalog"
	"exambank/internal/engine"
	"exambank/internal/llm"
	"exambank/internal/model"
	"exambank/internal/pdf"
)

var ErrNoText = errors.New("no text found in exam")

// DocumentReader opens a PDF into its page layout and page images.
type DocumentReader interface {
	Open(ctx context.Context, path string) (*pdf.Document, error)
}

// Recognizer OCRs page images; result i belongs to image i.
type Recognizer interface {
	Pages(ctx context.Context, images [][]byte) ([]string, error)
}

// Sampler returns example values of a subject catalog field.
type Sampler interface {
	Sample(field string, n int) string
}

type Options struct {
	DB         *engine.DB
	Reader     DocumentReader
	OCR        Recognizer
	LLM        llm.Prompter
	Subjects   Sampler
	Categories []string
	Rule       *TopicRule
	SampleSize int
	Logger     *zap.Logger
}

type Pipeline struct {
	db         *engine.DB
	reader     DocumentReader
	ocr        Recognizer
	llm        llm.Prompter
	subjects   Sampler
	categories []string
	rule       *TopicRule
	sampleSize int
	log        *zap.Logger
}

func New(opts Options) (*Pipeline, error) {
	if opts.DB == nil || opts.Reader == nil || opts.OCR == nil || opts.LLM == nil {
		return nil, errors.New("pipeline: db, reader, ocr and llm are required")
	}
	if len(opts.Categories) == 0 {
		return nil, catalog.ErrNoCategories
	}
	rule := opts.Rule
	if rule == nil {
		var err error
		if rule, err = NewTopicRule(DefaultCoreTopicRule); err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sampleSize := opts.SampleSize
	if sampleSize <= 0 {
		sampleSize = 50
	}
	return &Pipeline{
		db:         opts.DB,
		reader:     opts.Reader,
		ocr:        opts.OCR,
		llm:        opts.LLM,
		subjects:   opts.Subjects,
		categories: opts.Categories,
		rule:       rule,
		sampleSize: sampleSize,
		log:        logger.Named("pipeline"),
	}, nil
}

// Classification is what the model concluded about an exam.
type Classification struct {
	Version      string
	SubjectCodes []string
	SubjectNames []string
	Category     string
	Sufficient   float64
	CoreTopic    string // empty unless the topic rule asked for one
}

// Ingest stores the PDF at path as a new exam and classifies it. The
// structural rows are committed before the model is asked anything, so a
// failed classification leaves an exam without subject or version.
func (p *Pipeline) Ingest(ctx context.Context, path string) (*model.Exam, error) {
	log := p.log.With(zap.String("run_id", uuid.NewString()), zap.String("path", path))

	doc, err := p.reader.Open(ctx, path)
	if err != nil {
		return nil, err
	}

	images := make([][]byte, len(doc.Pages))
	for i, pg := range doc.Pages {
		images[i] = pg.Image
	}
	pageTexts, err := p.ocr.Pages(ctx, images)
	if err != nil {
		return nil, fmt.Errorf("ocr: %w", err)
	}

	exam := &model.Exam{}
	err = p.db.InTx(ctx, func(tx *engine.DB) error {
		return p.storeDocument(ctx, tx, exam, doc, pageTexts)
	})
	if err != nil {
		return nil, err
	}
	log.Info("pipeline.exam.created", zap.Int64("exam_id", exam.ID), zap.Int("pages", len(doc.Pages)))

	raw, err := CollectRawText(ctx, p.db, exam.ID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		log.Warn("pipeline.exam.no_text", zap.Int64("exam_id", exam.ID))
		return exam, ErrNoText
	}

	c, err := p.Classify(ctx, raw)
	if err != nil {
		return exam, fmt.Errorf("classify exam %d: %w", exam.ID, err)
	}

	err = p.db.InTx(ctx, func(tx *engine.DB) error {
		return p.storeClassification(ctx, tx, exam, c)
	})
	if err != nil {
		return exam, err
	}

	log.Info("pipeline.exam.classified",
		zap.Int64("exam_id", exam.ID),
		zap.String("version", exam.Version),
		zap.Strings("subject_codes", c.SubjectCodes),
		zap.String("category", c.Category),
		zap.String("core_topic", c.CoreTopic),
	)
	return exam, nil
}

func (p *Pipeline) storeDocument(ctx context.Context, tx *engine.DB, exam *model.Exam, doc *pdf.Document, pageTexts []string) error {
	if _, err := tx.Insert(ctx, exam); err != nil {
		return err
	}

	file := &model.Pdf{
		Exam: exam,
		Name: strings.TrimSuffix(filepath.Base(doc.Path), filepath.Ext(doc.Path)),
		Path: doc.Path,
	}
	if _, err := tx.Insert(ctx, file); err != nil {
		return err
	}

	for i, pg := range doc.Pages {
		var ocrText string
		if i < len(pageTexts) {
			ocrText = pageTexts[i]
		}
		page := &model.Page{Pdf: file, PageNumber: pg.Number, OCRText: ocrText, RawPage: pg.Image}
		if _, err := tx.Insert(ctx, page); err != nil {
			return err
		}

		for _, b := range pg.Blocks {
			text := b.Text
			if b.Type == model.BlockImage {
				text = ocrText
			}
			block := &model.Block{
				Page:        page,
				BlockNumber: b.Number,
				Type:        b.Type,
				RawText:     text,
				BBox:        b.BBox,
			}
			if _, err := tx.Insert(ctx, block); err != nil {
				return err
			}
		}
	}
	return nil
}

// Classify asks the model for the exam's version, subject and topic.
func (p *Pipeline) Classify(ctx context.Context, raw string) (*Classification, error) {
	c := &Classification{}

	resp, err := p.llm.Prompt(ctx, versionPrompt(raw))
	if err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	c.Version = resp.Text

	if resp, err = p.llm.Prompt(ctx, subjectCodePrompt(raw, p.sample(catalog.FieldCode))); err != nil {
		return nil, fmt.Errorf("subject code: %w", err)
	}
	c.SubjectCodes = resp.List

	if resp, err = p.llm.Prompt(ctx, subjectNamePrompt(raw, p.sample(catalog.FieldName))); err != nil {
		return nil, fmt.Errorf("subject name: %w", err)
	}
	c.SubjectNames = resp.List

	if resp, err = p.llm.Prompt(ctx, categoryPrompt(raw, p.categories)); err != nil {
		return nil, fmt.Errorf("category: %w", err)
	}
	c.Category = matchCategory(resp.Text, p.categories)

	if resp, err = p.llm.Prompt(ctx, sufficiencyPrompt(raw, c.Category)); err != nil {
		return nil, fmt.Errorf("sufficiency: %w", err)
	}
	c.Sufficient = resp.Number

	core, err := p.rule.NeedsCoreTopic(c.Sufficient, c.Category)
	if err != nil {
		return nil, err
	}
	if core {
		if resp, err = p.llm.Prompt(ctx, coreTopicPrompt(raw, c.Category)); err != nil {
			return nil, fmt.Errorf("core topic: %w", err)
		}
		c.CoreTopic = resp.Text
	}
	return c, nil
}

func (p *Pipeline) storeClassification(ctx context.Context, tx *engine.DB, exam *model.Exam, c *Classification) error {
	topic := &model.Topic{Name: c.Category, Type: model.TopicMain}
	if _, err := tx.Insert(ctx, topic); err != nil {
		return err
	}
	if c.CoreTopic != "" {
		core := &model.Topic{Name: c.CoreTopic, Type: model.TopicCore}
		if _, err := tx.Insert(ctx, core); err != nil {
			return err
		}
		if err := tx.Link(ctx, model.Topic{}, core.ID, topic.ID); err != nil {
			return err
		}
		topic = core
	}

	subject := &model.Subject{Code: c.SubjectCodes, Name: c.SubjectNames, Category: topic}
	if _, err := tx.Insert(ctx, subject); err != nil {
		return err
	}

	exam.Subject = subject
	exam.Version = c.Version
	return tx.Update(ctx, exam, "subject", "version")
}

func (p *Pipeline) sample(field string) string {
	if p.subjects == nil {
		return ""
	}
	return p.subjects.Sample(field, p.sampleSize)
}

// CollectRawText concatenates the block text of an exam, walking its PDFs,
// their pages by page number and the pages' blocks by block number.
func CollectRawText(ctx context.Context, db *engine.DB, examID int64) (string, error) {
	var sb strings.Builder

	pdfs, err := db.SelectChildren(ctx, model.Exam{}, model.Pdf{}, examID)
	if err != nil {
		return "", err
	}
	for _, f := range pdfs {
		pages, err := db.SelectChildren(ctx, model.Pdf{}, model.Page{}, rowID(f), "page_number")
		if err != nil {
			return "", err
		}
		for _, pg := range pages {
			blocks, err := db.SelectChildren(ctx, model.Page{}, model.Block{}, rowID(pg), "block_number")
			if err != nil {
				return "", err
			}
			for _, b := range blocks {
				if s, ok := b["raw_text"].(string); ok {
					sb.WriteString(s)
				}
			}
		}
	}
	return sb.String(), nil
}

func rowID(row map[string]any) int64 {
	switch v := row["id"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// matchCategory maps answers like "3" or "3: Physics" onto the category list;
// anything else is kept as given.
func matchCategory(answer string, categories []string) string {
	answer = strings.TrimSpace(answer)
	num, name, found := strings.Cut(answer, ":")
	if n, err := strconv.Atoi(strings.TrimSpace(num)); err == nil && n >= 1 && n <= len(categories) {
		return categories[n-1]
	}
	if found {
		answer = strings.TrimSpace(name)
	}
	for _, c := range categories {
		if strings.EqualFold(c, answer) {
			return c
		}
	}
	return answer
}
