package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/mwiater/eda/internal/providers"
)

const promptWriterRole = "You are an expert prompt writer for LLM function agents."

// PromptRecord is the persisted system prompt for one step.
type PromptRecord struct {
	Name    string `yaml:"name" json:"name"`
	Role    string `yaml:"role" json:"role"`
	Content string `yaml:"content" json:"content"`
}

// GenerationError reports a failed prompt synthesis. Nothing is persisted when it occurs.
type GenerationError struct {
	Step string
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate prompt for step %q: %v", e.Step, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PromptStore keeps one prompt file per step under dir, generating missing ones with
// the completer.
type PromptStore struct {
	dir       string
	completer providers.Completer
	group     singleflight.Group
}

// NewPromptStore returns a store rooted at dir.
func NewPromptStore(dir string, completer providers.Completer) *PromptStore {
	return &PromptStore{dir: dir, completer: completer}
}

// Path returns the prompt file for a step name.
func (s *PromptStore) Path(name string) string {
	return filepath.Join(s.dir, name+".yaml")
}

// GetOrCreate returns the persisted prompt for step, generating and persisting it on
// first use. Concurrent callers for the same step share a single generation.
func (s *PromptStore) GetOrCreate(ctx context.Context, step Step) (PromptRecord, error) {
	if err := ValidateStepName(step.Name); err != nil {
		return PromptRecord{}, err
	}

	v, err, _ := s.group.Do(step.Name, func() (any, error) {
		record, ok, err := s.load(step.Name)
		if err != nil || ok {
			return record, err
		}
		return s.create(ctx, step)
	})
	if err != nil {
		return PromptRecord{}, err
	}
	return v.(PromptRecord), nil
}

// BuildAll resolves the prompt of every step up front.
func (s *PromptStore) BuildAll(ctx context.Context, spec *Spec) ([]PromptRecord, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	records := make([]PromptRecord, 0, len(spec.Steps))
	for _, step := range spec.Steps {
		record, err := s.GetOrCreate(ctx, step)
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *PromptStore) load(name string) (PromptRecord, bool, error) {
	path := s.Path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return PromptRecord{}, false, nil
		}
		return PromptRecord{}, false, fmt.Errorf("read prompt %s: %w", path, err)
	}
	var record PromptRecord
	if err := yaml.Unmarshal(data, &record); err != nil {
		return PromptRecord{}, false, fmt.Errorf("parse prompt %s: %w", path, err)
	}
	slog.Debug("loaded prompt", "step", name, "path", path)
	return record, true, nil
}

func (s *PromptStore) create(ctx context.Context, step Step) (PromptRecord, error) {
	slog.Info("generating prompt", "step", step.Name)
	content, err := s.completer.Complete(ctx, synthesisMessages(step))
	if err != nil {
		return PromptRecord{}, &GenerationError{Step: step.Name, Err: err}
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return PromptRecord{}, &GenerationError{Step: step.Name, Err: providers.ErrEmptyCompletion}
	}

	record := PromptRecord{Name: step.Name, Role: providers.RoleSystem, Content: content}
	if err := s.persist(record); err != nil {
		return PromptRecord{}, err
	}
	slog.Info("saved prompt", "step", step.Name, "path", s.Path(step.Name))
	return record, nil
}

func (s *PromptStore) persist(record PromptRecord) error {
	data, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal prompt: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create prompt directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+record.Name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create prompt temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write prompt: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write prompt: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(record.Name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish prompt: %w", err)
	}
	return nil
}

func synthesisMessages(step Step) []providers.ChatMessage {
	user := fmt.Sprintf(`Write a system prompt for an LLM agent named %q.

Its goal is:
%s

This LLM will receive input as a JSON object (the workflow state) and must return the modified state as a JSON object.

Your response must include:
- The agent's role
- Detailed instructions for what it should do
- What the input looks like
- What the expected output looks like`, step.Name, strings.TrimSpace(step.Description))

	return []providers.ChatMessage{
		{Role: providers.RoleSystem, Content: promptWriterRole},
		{Role: providers.RoleUser, Content: user},
	}
}
