package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"exambank/internal/config"
	"exambank/internal/engine"
	"exambank/internal/llm"
	"exambank/internal/model"
	"exambank/internal/pdf"
	"exambank/internal/store"
)

var testCategories = []string{"Mathematics", "Computer Science", "Physics"}

func newTestDB(t *testing.T) *engine.DB {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(s.Close)

	reg, err := model.NewRegistry(nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	db := engine.New(s, reg, nil)
	if err := db.ResetAll(ctx, engine.Answer("y")); err != nil {
		t.Fatalf("reset: %v", err)
	}
	return db
}

type fakeReader struct {
	doc *pdf.Document
}

func (f fakeReader) Open(ctx context.Context, path string) (*pdf.Document, error) {
	doc := *f.doc
	doc.Path = path
	return &doc, nil
}

type fakeOCR struct{}

func (fakeOCR) Pages(ctx context.Context, images [][]byte) ([]string, error) {
	out := make([]string, len(images))
	for i, img := range images {
		if len(img) > 0 {
			out[i] = "ocr:" + string(img)
		}
	}
	return out, nil
}

// fakeLLM answers prompts in order and records what it was asked.
type fakeLLM struct {
	answers  []string
	requests []llm.Request
	err      error
}

func (f *fakeLLM) Prompt(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return llm.Response{}, f.err
	}
	if len(f.answers) == 0 {
		return llm.Response{}, fmt.Errorf("unexpected prompt: %s", req.System)
	}
	answer := f.answers[0]
	f.answers = f.answers[1:]
	return llm.Parse(req.Type, answer)
}

type fixedSampler string

func (s fixedSampler) Sample(field string, n int) string {
	return string(s) + ":" + field
}

func twoPageDoc() *pdf.Document {
	return &pdf.Document{Pages: []pdf.Page{
		{Number: 0, Image: []byte("p0"), Blocks: []pdf.Block{
			{Number: 0, Type: model.BlockText, Text: "Eksamen i TDT4100\n", BBox: []float64{1, 2, 3, 4}},
			{Number: 1, Type: model.BlockText, Text: "Objektorientert programmering\n", BBox: []float64{1, 5, 3, 6}},
		}},
		{Number: 1, Image: []byte("scan"), Blocks: []pdf.Block{
			{Number: 0, Type: model.BlockImage, BBox: []float64{0, 0, 595, 842}},
		}},
	}}
}

func newTestPipeline(t *testing.T, db *engine.DB, doc *pdf.Document, ai *fakeLLM) *Pipeline {
	t.Helper()
	p, err := New(Options{
		DB:         db,
		Reader:     fakeReader{doc: doc},
		OCR:        fakeOCR{},
		LLM:        ai,
		Subjects:   fixedSampler("sample"),
		Categories: testCategories,
		SampleSize: 5,
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func TestIngest_CoreTopic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ai := &fakeLLM{answers: []string{"V24", "TDT4100, TDT4102", "Objektorientert programmering", "2", "0", "Object-oriented programming"}}
	p := newTestPipeline(t, db, twoPageDoc(), ai)

	exam, err := p.Ingest(ctx, "/tmp/TDT4100_V24.pdf")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if exam.ID == 0 || exam.Version != "V24" || exam.Subject == nil || exam.Subject.ID == 0 {
		t.Fatalf("unexpected exam %+v", exam)
	}

	row, err := db.Get(ctx, model.Exam{}, exam.ID)
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if row["version"] != "V24" || row["subject_id"] != exam.Subject.ID {
		t.Fatalf("exam row not updated: %v", row)
	}

	subject, err := db.Get(ctx, model.Subject{}, exam.Subject.ID)
	if err != nil {
		t.Fatalf("get subject: %v", err)
	}
	if subject["code"] != "TDT4100,TDT4102" || subject["name"] != "Objektorientert programmering" {
		t.Fatalf("unexpected subject row %v", subject)
	}

	core, err := db.Select(ctx, model.Topic{}, engine.Conditions{"type": model.TopicCore})
	if err != nil || len(core) != 1 {
		t.Fatalf("expected one core topic, got %v (%v)", core, err)
	}
	if core[0]["name"] != "Object-oriented programming" || subject["topic_id"] != core[0]["id"] {
		t.Fatalf("subject should point at the core topic: subject=%v core=%v", subject, core[0])
	}

	main, err := db.Select(ctx, model.Topic{}, engine.Conditions{"type": model.TopicMain})
	if err != nil || len(main) != 1 || main[0]["name"] != "Computer Science" {
		t.Fatalf("expected main topic Computer Science, got %v (%v)", main, err)
	}
	linked, err := db.Linked(ctx, model.Topic{}, core[0]["id"].(int64))
	if err != nil {
		t.Fatalf("linked: %v", err)
	}
	if len(linked) != 1 || linked[0] != main[0]["id"] {
		t.Fatalf("core topic should link to its main category, got %v", linked)
	}

	pdfs, _ := db.SelectAll(ctx, model.Pdf{})
	if len(pdfs) != 1 || pdfs[0]["name"] != "TDT4100_V24" || pdfs[0]["path"] != "/tmp/TDT4100_V24.pdf" {
		t.Fatalf("unexpected pdf rows %v", pdfs)
	}
	pages, _ := db.SelectAll(ctx, model.Page{})
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	blocks, _ := db.Select(ctx, model.Block{}, engine.Conditions{"type": model.BlockImage})
	if len(blocks) != 1 || blocks[0]["raw_text"] != "ocr:scan" {
		t.Fatalf("image block should carry the page OCR text, got %v", blocks)
	}

	if len(ai.requests) != 6 {
		t.Fatalf("expected 6 prompts, got %d", len(ai.requests))
	}
	if !strings.Contains(ai.requests[1].System, "sample:Emnekode") || !strings.Contains(ai.requests[2].System, "sample:Emnenavn") {
		t.Fatalf("subject prompts should carry catalog examples")
	}
	if !strings.Contains(ai.requests[3].System, "1: Mathematics\n2: Computer Science\n3: Physics") {
		t.Fatalf("category prompt should enumerate categories: %q", ai.requests[3].System)
	}
	if ai.requests[4].Type != llm.Number || ai.requests[4].MaxLen != 2 {
		t.Fatalf("unexpected sufficiency request %+v", ai.requests[4])
	}
	want := "Eksamen i TDT4100\nObjektorientert programmering\nocr:scan"
	if ai.requests[0].User != want {
		t.Fatalf("expected raw text %q, got %q", want, ai.requests[0].User)
	}
}

func TestIngest_MainCategorySufficient(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ai := &fakeLLM{answers: []string{"H19", "TMA4100", "Matematikk 1", "Mathematics", "1"}}
	p := newTestPipeline(t, db, twoPageDoc(), ai)

	exam, err := p.Ingest(ctx, "exam.pdf")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(ai.requests) != 5 {
		t.Fatalf("no core topic prompt expected, got %d prompts", len(ai.requests))
	}
	topics, _ := db.SelectAll(ctx, model.Topic{})
	if len(topics) != 1 || topics[0]["type"] != model.TopicMain || topics[0]["name"] != "Mathematics" {
		t.Fatalf("unexpected topics %v", topics)
	}
	if exam.Subject.Category == nil || exam.Subject.Category.ID != topics[0]["id"] {
		t.Fatalf("subject category should be the main topic")
	}
}

func TestIngest_NoText(t *testing.T) {
	db := newTestDB(t)
	doc := &pdf.Document{Pages: []pdf.Page{{Number: 0, Blocks: []pdf.Block{{Type: model.BlockImage}}}}}
	ai := &fakeLLM{}
	p := newTestPipeline(t, db, doc, ai)

	exam, err := p.Ingest(context.Background(), "blank.pdf")
	if !errors.Is(err, ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
	if exam == nil || exam.ID == 0 {
		t.Fatalf("the exam row should still be returned")
	}
	if len(ai.requests) != 0 {
		t.Fatalf("the model must not be asked about an empty exam")
	}
}

func TestIngest_ClassificationError(t *testing.T) {
	db := newTestDB(t)
	ai := &fakeLLM{err: llm.ErrNoResponse}
	p := newTestPipeline(t, db, twoPageDoc(), ai)

	exam, err := p.Ingest(context.Background(), "exam.pdf")
	if !errors.Is(err, llm.ErrNoResponse) {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	}
	row, err := db.Get(context.Background(), model.Exam{}, exam.ID)
	if err != nil {
		t.Fatalf("exam should be stored: %v", err)
	}
	if row["subject_id"] != nil {
		t.Fatalf("exam should have no subject, got %v", row["subject_id"])
	}
}

func TestCollectRawText_Order(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	exam := &model.Exam{}
	mustInsert(t, db, exam)
	file := &model.Pdf{Exam: exam}
	mustInsert(t, db, file)

	// inserted out of order on purpose
	p1 := &model.Page{Pdf: file, PageNumber: 1}
	p0 := &model.Page{Pdf: file, PageNumber: 0}
	mustInsert(t, db, p1)
	mustInsert(t, db, p0)
	mustInsert(t, db, &model.Block{Page: p1, BlockNumber: 1, RawText: "D"})
	mustInsert(t, db, &model.Block{Page: p1, BlockNumber: 0, RawText: "C"})
	mustInsert(t, db, &model.Block{Page: p0, BlockNumber: 1, RawText: "B"})
	mustInsert(t, db, &model.Block{Page: p0, BlockNumber: 0, RawText: "A"})

	other := &model.Exam{}
	mustInsert(t, db, other)
	otherPdf := &model.Pdf{Exam: other}
	mustInsert(t, db, otherPdf)
	otherPage := &model.Page{Pdf: otherPdf}
	mustInsert(t, db, otherPage)
	mustInsert(t, db, &model.Block{Page: otherPage, RawText: "X"})

	raw, err := CollectRawText(ctx, db, exam.ID)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if raw != "ABCD" {
		t.Fatalf("expected ABCD, got %q", raw)
	}
}

func mustInsert(t *testing.T, db *engine.DB, entity any) {
	t.Helper()
	if _, err := db.Insert(context.Background(), entity); err != nil {
		t.Fatalf("insert %T: %v", entity, err)
	}
}

func TestMatchCategory(t *testing.T) {
	cases := map[string]string{
		"2":                 "Computer Science",
		"3: Physics":        "Physics",
		"computer science":  "Computer Science",
		"Category: Physics": "Physics",
		"Marine Technology": "Marine Technology",
		"9":                 "9",
	}
	for in, want := range cases {
		if got := matchCategory(in, testCategories); got != want {
			t.Fatalf("matchCategory(%q): want %q, got %q", in, want, got)
		}
	}
}

func TestNew_RequiresCategories(t *testing.T) {
	_, err := New(Options{DB: &engine.DB{}, Reader: fakeReader{}, OCR: fakeOCR{}, LLM: &fakeLLM{}})
	if err == nil {
		t.Fatalf("expected an error without categories")
	}
}
