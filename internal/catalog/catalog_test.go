package catalog

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func loadTestSubjects(t *testing.T) *Subjects {
	t.Helper()
	s, err := LoadSubjects("testdata/subjects.json")
	if err != nil {
		t.Fatalf("load subjects: %v", err)
	}
	s.Seed(1, 2)
	return s
}

func TestLoadSubjects(t *testing.T) {
	s := loadTestSubjects(t)
	if s.Len() != 4 {
		t.Fatalf("expected 4 subjects, got %d", s.Len())
	}
}

func TestParseSubjects_SchemaViolation(t *testing.T) {
	_, err := ParseSubjects([]byte(`[{"Emnenavn": "No code"}]`))
	if err == nil || !strings.Contains(err.Error(), "schema") {
		t.Fatalf("expected schema error, got %v", err)
	}
	if _, err := ParseSubjects([]byte(`{"Emnekode": "X"}`)); err == nil {
		t.Fatalf("expected error for a non-array catalog")
	}
}

func TestSample_AllCodes(t *testing.T) {
	s := loadTestSubjects(t)
	got := strings.Split(s.Sample(FieldCode, 50), ", ")
	slices.Sort(got)
	want := []string{"IT1001", "TDT4100", "TFY4125", "TMA4100"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected every code once, got %v", got)
	}
}

func TestSample_SkipsMissingAndLists(t *testing.T) {
	s := loadTestSubjects(t)
	if got := s.Sample(FieldTopics, 10); got != "" {
		t.Fatalf("list-valued fields must never be sampled, got %q", got)
	}
	places := strings.Split(s.Sample(FieldPlace, 10), ", ")
	if len(places) != 2 {
		t.Fatalf("expected only the two subjects with a place, got %v", places)
	}
}

func TestSample_Bounds(t *testing.T) {
	s := loadTestSubjects(t)
	if got := s.Sample(FieldCode, 0); got != "" {
		t.Fatalf("expected empty sample, got %q", got)
	}
	if got := strings.Split(s.Sample(FieldCode, 2), ", "); len(got) != 2 || got[0] == got[1] {
		t.Fatalf("expected two distinct codes, got %v", got)
	}
}

func TestLoadCategories(t *testing.T) {
	cats, err := LoadCategories("testdata/categories.yaml")
	if err != nil {
		t.Fatalf("load categories: %v", err)
	}
	if !slices.Equal(cats, []string{"Mathematics", "Computer Science", "Physics"}) {
		t.Fatalf("unexpected categories %v", cats)
	}
	if _, err := ParseCategories([]byte("categories: []\n")); !errors.Is(err, ErrNoCategories) {
		t.Fatalf("expected ErrNoCategories, got %v", err)
	}
}

func TestEnumString(t *testing.T) {
	items := []string{"Mathematics", "Physics"}
	if got := EnumString(items); got != "1: Mathematics\n2: Physics" {
		t.Fatalf("unexpected enum string %q", got)
	}
	if items[0] != "Mathematics" {
		t.Fatalf("EnumString must not modify its input, got %v", items)
	}
	if got := EnumString(nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
