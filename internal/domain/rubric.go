package domain

// Scale is the inclusive integer range every criterion of a rubric is scored on.
type Scale struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Field is a submission answer rendered into the prompt.
type Field struct {
	Key   string `yaml:"key" json:"key"`
	Label string `yaml:"label" json:"label"`
}

// Criterion is a named rubric dimension.
type Criterion struct {
	Key         string   `yaml:"key" json:"key"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Fields      []string `yaml:"fields" json:"fields,omitempty"`
}

// Rubric is the fixed list of criteria and scale used to prompt the model.
type Rubric struct {
	ID          string      `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	Persona     string      `yaml:"persona" json:"persona"`
	Scale       Scale       `yaml:"scale" json:"scale"`
	Fields      []Field     `yaml:"fields" json:"fields"`
	Criteria    []Criterion `yaml:"criteria" json:"criteria"`
	Model       string      `yaml:"model" json:"model,omitempty"`
	Temperature float32     `yaml:"temperature" json:"temperature"`
	MaxTokens   int         `yaml:"max_tokens" json:"max_tokens"`
}

// Criterion returns the criterion with key.
func (r Rubric) Criterion(key string) (Criterion, bool) {
	for _, c := range r.Criteria {
		if c.Key == key {
			return c, true
		}
	}
	return Criterion{}, false
}

// FieldLabel returns the display label for a field key, falling back to the key.
func (r Rubric) FieldLabel(key string) string {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Label
		}
	}
	return key
}
