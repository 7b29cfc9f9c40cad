// Package rubric loads and serves the evaluation rubrics.
package rubric

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

//go:embed rubrics.yaml
var defaultRubrics []byte

type file struct {
	Rubrics []domain.Rubric `yaml:"rubrics"`
}

// Registry is an immutable set of rubrics keyed by id.
type Registry struct {
	byID map[string]domain.Rubric
}

var _ domain.RubricSource = (*Registry)(nil)

// Default returns the registry built from the embedded rubric file.
func Default() (*Registry, error) {
	return Parse(defaultRubrics)
}

// Load reads rubrics from path, or the embedded defaults when path is empty.
func Load(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	// #nosec G304 -- path comes from operator configuration
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=rubric.Load: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML rubric document.
func Parse(b []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("op=rubric.Parse: %w", err)
	}
	if len(f.Rubrics) == 0 {
		return nil, fmt.Errorf("op=rubric.Parse: no rubrics defined")
	}
	reg := &Registry{byID: make(map[string]domain.Rubric, len(f.Rubrics))}
	for _, r := range f.Rubrics {
		if err := Validate(r); err != nil {
			return nil, fmt.Errorf("op=rubric.Parse: %w", err)
		}
		if _, dup := reg.byID[r.ID]; dup {
			return nil, fmt.Errorf("op=rubric.Parse: duplicate rubric id %q", r.ID)
		}
		reg.byID[r.ID] = r
	}
	return reg, nil
}

// Validate checks a rubric is usable for prompting and scoring.
func Validate(r domain.Rubric) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rubric id is required")
	}
	if r.Scale.Max <= r.Scale.Min || r.Scale.Min < 0 {
		return fmt.Errorf("rubric %s: invalid scale [%d,%d]", r.ID, r.Scale.Min, r.Scale.Max)
	}
	if len(r.Criteria) == 0 {
		return fmt.Errorf("rubric %s: no criteria", r.ID)
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("rubric %s: temperature %.2f out of range", r.ID, r.Temperature)
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("rubric %s: negative max_tokens", r.ID)
	}
	fields := make(map[string]struct{}, len(r.Fields))
	for _, f := range r.Fields {
		if f.Key == "" {
			return fmt.Errorf("rubric %s: field with empty key", r.ID)
		}
		fields[f.Key] = struct{}{}
	}
	seen := make(map[string]struct{}, len(r.Criteria))
	for _, c := range r.Criteria {
		if c.Key == "" {
			return fmt.Errorf("rubric %s: criterion with empty key", r.ID)
		}
		if _, dup := seen[c.Key]; dup {
			return fmt.Errorf("rubric %s: duplicate criterion %q", r.ID, c.Key)
		}
		seen[c.Key] = struct{}{}
		for _, fk := range c.Fields {
			if _, ok := fields[fk]; !ok {
				return fmt.Errorf("rubric %s: criterion %s references unknown field %q", r.ID, c.Key, fk)
			}
		}
	}
	return nil
}

// Get returns the rubric registered under id.
func (r *Registry) Get(id string) (domain.Rubric, bool) {
	rb, ok := r.byID[id]
	return rb, ok
}

// IDs returns the registered rubric ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
