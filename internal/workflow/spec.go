// Package workflow runs step-chained language model workflows. Each step has a cached
// system prompt, receives the current state as JSON and answers with a JSON object that
// is shallow-merged back into the state.
package workflow

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidSpec is returned for a workflow document that cannot be run.
	ErrInvalidSpec = errors.New("invalid workflow spec")
	// ErrInvalidStepName is returned for step names that cannot key a prompt file.
	ErrInvalidStepName = errors.New("invalid step name")
)

const specSchema = `{
  "type": "object",
  "required": ["steps"],
  "properties": {
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["step", "description"],
        "properties": {
          "step": {"type": "string", "minLength": 1},
          "description": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

var specSchemaLoader = gojsonschema.NewStringLoader(specSchema)

// Step is one named unit of work.
type Step struct {
	Name        string `yaml:"step" json:"step"`
	Description string `yaml:"description" json:"description"`
}

// Spec is an ordered list of steps.
type Spec struct {
	Steps []Step `yaml:"steps" json:"steps"`
}

// LoadSpec reads and validates a workflow document.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}
	spec, err := ParseSpec(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// ParseSpec decodes a YAML (or JSON) workflow document and validates it.
func ParseSpec(data []byte) (*Spec, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	result, err := gojsonschema.Validate(specSchemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidSpec, strings.Join(msgs, "; "))
	}

	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks step names for uniqueness and file-name safety.
func (s *Spec) Validate() error {
	if s == nil || len(s.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidSpec)
	}
	seen := make(map[string]struct{}, len(s.Steps))
	for i, step := range s.Steps {
		if err := ValidateStepName(step.Name); err != nil {
			return fmt.Errorf("%w: step %d: %v", ErrInvalidSpec, i+1, err)
		}
		if strings.TrimSpace(step.Description) == "" {
			return fmt.Errorf("%w: step %q has no description", ErrInvalidSpec, step.Name)
		}
		if _, dup := seen[step.Name]; dup {
			return fmt.Errorf("%w: duplicate step %q", ErrInvalidSpec, step.Name)
		}
		seen[step.Name] = struct{}{}
	}
	return nil
}

// ValidateStepName rejects names that cannot be used as a single file name: blank names,
// "." and "..", path separators and control characters. Spaces and non-ASCII letters
// are allowed.
func ValidateStepName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: name is blank", ErrInvalidStepName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidStepName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidStepName, name)
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return fmt.Errorf("%w: %q contains a control character", ErrInvalidStepName, name)
	}
	return nil
}
