package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"storefront-sync/internal/derive"
	"storefront-sync/internal/domain"

	"gopkg.in/yaml.v3"
)

// ErrDuplicateCategory is returned when two categories normalize to the same name.
var ErrDuplicateCategory = errors.New("config: duplicate category")

type categoriesFile struct {
	Categories []domain.Category `yaml:"categories"`
}

// LoadCategories reads the category set from a YAML file. An empty path
// yields the default storefront categories.
func LoadCategories(path string) ([]domain.Category, error) {
	if path == "" {
		return domain.DefaultCategories(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}
	return ParseCategories(raw)
}

// ParseCategories decodes and checks a YAML category document. Missing ids
// are derived from the normalized name.
func ParseCategories(raw []byte) ([]domain.Category, error) {
	var f categoriesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse categories file: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, errors.New("config: categories file lists no categories")
	}
	seen := make(map[string]bool, len(f.Categories))
	out := make([]domain.Category, 0, len(f.Categories))
	for i, c := range f.Categories {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return nil, fmt.Errorf("config: category %d has no name", i)
		}
		key := derive.Normalize(c.Name)
		if seen[key] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCategory, c.Name)
		}
		seen[key] = true
		if c.ID == "" {
			c.ID = strings.ReplaceAll(key, " ", "-")
		}
		out = append(out, c)
	}
	return out, nil
}
