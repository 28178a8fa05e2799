package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"exambank/internal/config"
	"exambank/internal/model"
)

const sampleLayout = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Transitional//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-transitional.dtd">
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
<title></title>
<meta name="Producer" content="LaTeX"/>
</head>
<body>
<doc>
  <page width="595.276000" height="841.890000">
    <flow>
      <block xMin="56.7" yMin="70.1" xMax="300.2" yMax="95.0">
        <line xMin="56.7" yMin="70.1" xMax="300.2" yMax="82.0">
          <word xMin="56.7" yMin="70.1" xMax="90.0" yMax="82.0">Eksamen</word>
          <word xMin="92.0" yMin="70.1" xMax="140.0" yMax="82.0">TDT4100</word>
        </line>
        <line xMin="56.7" yMin="83.0" xMax="120.0" yMax="95.0">
          <word xMin="56.7" yMin="83.0" xMax="120.0" yMax="95.0">V&#229;r&amp;2024</word>
        </line>
      </block>
    </flow>
    <flow>
      <block xMin="56.7" yMin="120.0" xMax="200.0" yMax="132.0">
        <line xMin="56.7" yMin="120.0" xMax="200.0" yMax="132.0">
          <word xMin="56.7" yMin="120.0" xMax="200.0" yMax="132.0">Oppgave</word>
        </line>
      </block>
    </flow>
  </page>
  <page width="595.276000" height="841.890000">
  </page>
</doc>
</body>
</html>
`

type fakeRunner struct {
	layout string
	pages  int
	err    error
	calls  []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, name)
	if f.err != nil {
		return nil, []byte("broken"), f.err
	}
	switch name {
	case "pdftotext":
		return []byte(f.layout), nil, nil
	case "pdftoppm":
		prefix := args[len(args)-1]
		for i := 1; i <= f.pages; i++ {
			if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, i), []byte(fmt.Sprintf("png%d", i)), 0o644); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected command %s", name)
}

func TestParseLayout(t *testing.T) {
	doc, err := ParseLayout([]byte(sampleLayout))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(doc.Pages))
	}

	p0 := doc.Pages[0]
	if p0.Number != 0 || len(p0.Blocks) != 2 {
		t.Fatalf("unexpected first page: %+v", p0)
	}
	b := p0.Blocks[0]
	if b.Type != model.BlockText || b.Number != 0 {
		t.Fatalf("unexpected block: %+v", b)
	}
	if b.Text != "Eksamen TDT4100\nVår&2024\n" {
		t.Fatalf("unexpected block text %q", b.Text)
	}
	if len(b.BBox) != 4 || b.BBox[0] != 56.7 || b.BBox[3] != 95.0 {
		t.Fatalf("unexpected bbox %v", b.BBox)
	}
	if p0.Blocks[1].Number != 1 || p0.Blocks[1].Text != "Oppgave\n" {
		t.Fatalf("blocks across flows should be numbered in order: %+v", p0.Blocks[1])
	}

	p1 := doc.Pages[1]
	if p1.Number != 1 || len(p1.Blocks) != 1 || p1.Blocks[0].Type != model.BlockImage {
		t.Fatalf("page without text should get one image block: %+v", p1)
	}
	if p1.Blocks[0].BBox[2] != 595.276 {
		t.Fatalf("image block should span the page, got %v", p1.Blocks[0].BBox)
	}
}

func TestOpen_AttachesPageImages(t *testing.T) {
	r := &fakeRunner{layout: sampleLayout, pages: 2}
	reader := NewReader(config.PDFConfig{}, r, nil)

	doc, err := reader.Open(context.Background(), "exam.pdf")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if doc.Path != "exam.pdf" {
		t.Fatalf("unexpected path %q", doc.Path)
	}
	if string(doc.Pages[0].Image) != "png1" || string(doc.Pages[1].Image) != "png2" {
		t.Fatalf("page images out of order: %q %q", doc.Pages[0].Image, doc.Pages[1].Image)
	}
	if len(r.calls) != 2 || r.calls[0] != "pdftotext" || r.calls[1] != "pdftoppm" {
		t.Fatalf("unexpected calls %v", r.calls)
	}
}

func TestOpen_CommandFailure(t *testing.T) {
	reader := NewReader(config.PDFConfig{}, &fakeRunner{err: errors.New("exit status 1")}, nil)
	if _, err := reader.Open(context.Background(), "missing.pdf"); err == nil {
		t.Fatalf("expected an error when pdftotext fails")
	}
}
