//go:build integration

package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"exambank/internal/config"
	"exambank/internal/model"
	"exambank/internal/store"
)

func newPostgresDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("eksamensbanken"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "postgres", URL: dsn, PoolSize: 4})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(s.Close)

	reg, err := model.NewRegistry(nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	db := New(s, reg, nil)
	if err := db.ResetAll(ctx, Answer("y")); err != nil {
		t.Fatalf("reset: %v", err)
	}
	return db
}

func TestPostgres_RoundTrip(t *testing.T) {
	db := newPostgresDB(t)
	ctx := context.Background()

	topic := &model.Topic{Name: "Algebra", Type: model.TopicMain}
	if _, err := db.Insert(ctx, topic); err != nil {
		t.Fatalf("insert topic: %v", err)
	}
	subject := &model.Subject{Code: []string{"MA1201"}, Category: topic}
	if _, err := db.Insert(ctx, subject); err != nil {
		t.Fatalf("insert subject: %v", err)
	}
	exam := &model.Exam{Year: 2024}
	if _, err := db.Insert(ctx, exam); err != nil {
		t.Fatalf("insert exam: %v", err)
	}
	exam.Subject = subject
	exam.Version = "V24"
	if err := db.Update(ctx, exam, "subject", "version"); err != nil {
		t.Fatalf("update: %v", err)
	}

	row, err := db.Get(ctx, model.Exam{}, exam.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row["subject_id"] != subject.ID || row["version"] != "V24" {
		t.Fatalf("unexpected exam row %v", row)
	}

	rows, err := db.Select(ctx, model.Topic{}, Conditions{"name": "Algebra"})
	if err != nil || len(rows) != 1 {
		t.Fatalf("select topic: rows=%v err=%v", rows, err)
	}
}

func TestPostgres_SelectChildrenAndReset(t *testing.T) {
	db := newPostgresDB(t)
	ctx := context.Background()

	err := db.InTx(ctx, func(tx *DB) error {
		pdf := &model.Pdf{Name: "exam.pdf"}
		if _, err := tx.Insert(ctx, pdf); err != nil {
			return err
		}
		for i := 2; i >= 0; i-- {
			if _, err := tx.Insert(ctx, &model.Page{Pdf: pdf, PageNumber: i}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	pages, err := db.SelectChildrenOf(ctx, "pdf", "page", 1, "page_number")
	if err != nil {
		t.Fatalf("select children: %v", err)
	}
	if len(pages) != 3 || pages[0]["page_number"] != int64(0) || pages[2]["page_number"] != int64(2) {
		t.Fatalf("unexpected pages %v", pages)
	}

	if err := db.ResetAll(ctx, Answer("no")); !errors.Is(err, ErrResetAborted) {
		t.Fatalf("expected ErrResetAborted, got %v", err)
	}
	if rows, _ := db.SelectAll(ctx, model.Page{}); len(rows) != 3 {
		t.Fatalf("declined reset must keep rows, got %d", len(rows))
	}
	if err := db.ResetAll(ctx, Answer("y")); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if rows, _ := db.SelectAll(ctx, model.Page{}); len(rows) != 0 {
		t.Fatalf("expected empty tables after reset, got %d", len(rows))
	}
}
