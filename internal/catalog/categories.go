package catalog

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrNoCategories = errors.New("no categories defined")

type categoriesFile struct {
	Categories []string `yaml:"categories"`
}

// LoadCategories reads the main category names from a YAML file of the form
// `categories: [...]`.
func LoadCategories(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories: %w", err)
	}
	return ParseCategories(data)
}

func ParseCategories(data []byte) ([]string, error) {
	var f categoriesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse categories: %w", err)
	}
	out := make([]string, 0, len(f.Categories))
	for _, c := range f.Categories {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoCategories
	}
	return out, nil
}

// EnumString numbers the items from 1, one per line: "1: A\n2: B".
func EnumString(items []string) string {
	var sb strings.Builder
	for i, item := range items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(": ")
		sb.WriteString(item)
	}
	return sb.String()
}
