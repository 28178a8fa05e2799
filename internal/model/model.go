// Package model declares the persisted entity types of the exam bank.
// Struct field order is column order; `db` tags name the fields and
// `db:"-"` keeps transient handles out of the database.
package model

import (
	"fmt"

	"go.uber.org/zap"

	"exambank/internal/metadata"
)

// Topic types.
const (
	TopicMain = "main"
	TopicCore = "core"
	TopicSub  = "sub"
)

// Block types.
const (
	BlockText  = 0
	BlockImage = 1
)

type Topic struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
	Type string `db:"type"`
}

type Subject struct {
	ID       int64    `db:"id"`
	Code     []string `db:"code"`
	Name     []string `db:"name"`
	Category *Topic   `db:"category"`
	Lang     string   `db:"lang"`
}

// Exam is one assessment: an exam, a home exam or an assignment.
type Exam struct {
	ID             int64    `db:"id"`
	Subject        *Subject `db:"subject"`
	AssessmentType string   `db:"assessment_type"`
	Year           int      `db:"year"`
	Version        string   `db:"version"`
}

type Task struct {
	ID           int64     `db:"id"`
	Exam         *Exam     `db:"exam"`
	TaskNumber   string    `db:"task_number"`
	RawText      string    `db:"raw_text"`
	TaskText     string    `db:"task_text"`
	CodeText     string    `db:"code_text"`
	Images       []string  `db:"images"`
	SolutionText string    `db:"solution_text"`
	Points       float64   `db:"points"`
	BBox         []float64 `db:"bbox"`
	Topic        *Topic    `db:"topic"`
}

type Pdf struct {
	ID   int64  `db:"id"`
	Exam *Exam  `db:"exam"`
	Name string `db:"name"`
	Path string `db:"path"`

	RawPDF []byte `db:"-"`
}

type Page struct {
	ID         int64  `db:"id"`
	Pdf        *Pdf   `db:"pdf"`
	PageNumber int    `db:"page_number"`
	OCRText    string `db:"ocr_text"`

	RawPage []byte `db:"-"` // rendered page image
}

type Block struct {
	ID          int64     `db:"id"`
	Page        *Page     `db:"page"`
	BlockNumber int       `db:"block_number"`
	Type        int       `db:"type"`
	RawText     string    `db:"raw_text"`
	BBox        []float64 `db:"bbox"`
}

// All returns a prototype of every entity type, in registration order.
func All() []any {
	return []any{Subject{}, Exam{}, Task{}, Pdf{}, Page{}, Block{}, Topic{}}
}

// Register adds every entity type and the topic relation table to reg.
func Register(reg *metadata.Registry, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, p := range All() {
		e, err := reg.Register(p)
		if err != nil {
			return fmt.Errorf("register %T: %w", p, err)
		}
		for _, f := range e.Fields {
			if f.Fallback {
				logger.Warn("model.field.text_fallback",
					zap.String("entity", e.Name), zap.String("field", f.Name))
			}
		}
	}
	if _, err := reg.RegisterRelation(Topic{}); err != nil {
		return fmt.Errorf("register topic relation: %w", err)
	}
	return reg.Validate()
}

// NewRegistry returns a registry holding every entity type.
func NewRegistry(logger *zap.Logger) (*metadata.Registry, error) {
	reg := metadata.NewRegistry()
	if err := Register(reg, logger); err != nil {
		return nil, err
	}
	return reg, nil
}
