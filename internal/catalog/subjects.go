// Package catalog loads the reference data used to steer classification: the
// subject list prompts draw examples from and the main category names.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Subject catalog fields.
const (
	FieldCode   = "Emnekode"
	FieldName   = "Emnenavn"
	FieldPlace  = "Sted"
	FieldTopics = "Temaer"
)

//go:embed subjects.schema.json
var subjectsSchema []byte

// Subjects is a validated subject catalog.
type Subjects struct {
	entries []map[string]any

	mu  sync.Mutex
	rng *rand.Rand
}

// LoadSubjects reads and validates the subject catalog at path.
func LoadSubjects(path string) (*Subjects, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subject catalog: %w", err)
	}
	return ParseSubjects(data)
}

// ParseSubjects validates data against the catalog schema.
func ParseSubjects(data []byte) (*Subjects, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("subjects.schema.json", bytes.NewReader(subjectsSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("subjects.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal subject catalog: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("subject catalog does not match schema: %w", err)
	}

	var entries []map[string]any
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode subject catalog: %w", err)
	}
	return &Subjects{entries: entries, rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}, nil
}

// Len returns the number of subjects.
func (s *Subjects) Len() int {
	return len(s.entries)
}

// Seed makes sampling deterministic.
func (s *Subjects) Seed(a, b uint64) {
	s.mu.Lock()
	s.rng = rand.New(rand.NewPCG(a, b))
	s.mu.Unlock()
}

// Sample picks n distinct subjects at random and joins their value of field
// with ", ". Subjects missing the field, or holding a list in it, are skipped,
// so the result may have fewer than n values.
func (s *Subjects) Sample(field string, n int) string {
	if n > len(s.entries) {
		n = len(s.entries)
	}
	if n <= 0 {
		return ""
	}

	s.mu.Lock()
	indices := s.rng.Perm(len(s.entries))[:n]
	s.mu.Unlock()

	values := make([]string, 0, n)
	for _, i := range indices {
		v, ok := s.entries[i][field]
		if !ok || v == nil {
			continue
		}
		if _, isList := v.([]any); isList {
			continue
		}
		values = append(values, fmt.Sprint(v))
	}
	return strings.Join(values, ", ")
}
