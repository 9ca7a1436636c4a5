package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mwiater/eda/internal/appconfig"
	"github.com/mwiater/eda/internal/metrics"
	"github.com/mwiater/eda/internal/providers"
)

// ErrUnparseableOutput marks a step whose response was not a JSON object when the run
// is configured to abort on such output.
var ErrUnparseableOutput = errors.New("step output is not a JSON object")

// StepError is a hard failure that stopped a run.
type StepError struct {
	Step  string
	Index int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index+1, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Step statuses recorded in StepOutcome.
const (
	StatusMerged  = "merged"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// StepOutcome records what happened to one step.
type StepOutcome struct {
	Step     string
	Status   string
	Raw      string
	Keys     []string
	Err      error
	Duration time.Duration
}

// Result is the state reached by a run and the per-step outcomes. On a hard failure it
// holds the state as of the last completed step.
type Result struct {
	RunID    string
	State    State
	Steps    []StepOutcome
	Complete bool
}

// PromptSource resolves the system prompt of a step.
type PromptSource interface {
	GetOrCreate(ctx context.Context, step Step) (PromptRecord, error)
}

// Engine executes workflow specs one step at a time.
type Engine struct {
	prompts   PromptSource
	completer providers.Completer
	policy    string
	observer  Observer
	clock     clockwork.Clock
	recorder  *metrics.Recorder
}

// Option customizes an Engine.
type Option func(*Engine)

// WithParsePolicy selects appconfig.ParseContinue or appconfig.ParseAbort.
func WithParsePolicy(policy string) Option {
	return func(e *Engine) { e.policy = policy }
}

// WithObserver receives step events.
func WithObserver(observer Observer) Option {
	return func(e *Engine) { e.observer = observer }
}

// WithClock overrides the clock used for step durations.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(recorder *metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = recorder }
}

// NewEngine builds an engine that resolves prompts from prompts and calls completer.
func NewEngine(prompts PromptSource, completer providers.Completer, opts ...Option) *Engine {
	e := &Engine{
		prompts:   prompts,
		completer: completer,
		policy:    appconfig.ParseContinue,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.observer == nil {
		e.observer = ObserverFunc(func(Event) {})
	}
	return e
}

// Run executes the steps of spec in order against a copy of initial.
func (e *Engine) Run(ctx context.Context, spec *Spec, initial State) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	result := &Result{
		RunID: uuid.NewString(),
		State: initial.Clone(),
		Steps: make([]StepOutcome, 0, len(spec.Steps)),
	}
	total := len(spec.Steps)
	slog.Info("workflow started", "run", result.RunID, "steps", total, "policy", e.policy)

	for i, step := range spec.Steps {
		start := e.clock.Now()
		base := Event{RunID: result.RunID, Index: i, Total: total, Step: step.Name}
		started := base
		started.Kind = StepStarted
		e.emit(started)

		outcome, err := e.runStep(ctx, step, result.State, base)
		outcome.Duration = e.clock.Since(start)
		result.Steps = append(result.Steps, outcome)
		e.recorder.RecordStep(outcome.Status)

		event := base
		event.Raw, event.Keys, event.Err, event.Elapsed = outcome.Raw, outcome.Keys, outcome.Err, outcome.Duration
		switch outcome.Status {
		case StatusMerged:
			event.Kind = StepMerged
			slog.Info("step merged", "run", result.RunID, "step", step.Name, "keys", outcome.Keys, "elapsed", outcome.Duration)
		case StatusSkipped:
			event.Kind = StepSkipped
			slog.Warn("step output not merged", "run", result.RunID, "step", step.Name, "err", outcome.Err, "raw", outcome.Raw)
		default:
			event.Kind = StepFailed
			slog.Error("step failed", "run", result.RunID, "step", step.Name, "err", outcome.Err)
		}
		e.emit(event)

		if err != nil {
			return result, &StepError{Step: step.Name, Index: i, Err: err}
		}
	}

	result.Complete = true
	e.emit(Event{Kind: RunComplete, RunID: result.RunID, Index: total, Total: total, State: result.State})
	slog.Info("workflow complete", "run", result.RunID)
	return result, nil
}

// runStep invokes one step and merges its output into state. The returned error is
// non-nil only when the run must stop.
func (e *Engine) runStep(ctx context.Context, step Step, state State, base Event) (StepOutcome, error) {
	outcome := StepOutcome{Step: step.Name}
	fail := func(err error) (StepOutcome, error) {
		outcome.Status = StatusFailed
		outcome.Err = err
		return outcome, err
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	record, err := e.prompts.GetOrCreate(ctx, step)
	if err != nil {
		return fail(err)
	}

	input, err := state.JSON()
	if err != nil {
		return fail(err)
	}
	role := record.Role
	if role == "" {
		role = providers.RoleSystem
	}
	messages := []providers.ChatMessage{
		{Role: role, Content: record.Content},
		{Role: providers.RoleUser, Content: input},
	}

	raw, err := e.completer.Complete(ctx, messages)
	if err != nil {
		return fail(err)
	}
	outcome.Raw = raw
	invoked := base
	invoked.Kind, invoked.Raw = StepInvoked, raw
	e.emit(invoked)

	decoded := DecodeUpdate(raw)
	if !decoded.OK() {
		outcome.Status = StatusSkipped
		outcome.Err = decoded.Err
		if e.policy == appconfig.ParseAbort {
			return outcome, fmt.Errorf("%w: %w", ErrUnparseableOutput, decoded.Err)
		}
		return outcome, nil
	}

	outcome.Status = StatusMerged
	outcome.Keys = state.Merge(decoded.Update)
	return outcome, nil
}

func (e *Engine) emit(event Event) {
	e.observer.OnEvent(event)
}
