package workflow

import "time"

// EventKind identifies a transition of the step state machine.
type EventKind int

const (
	StepStarted EventKind = iota
	StepInvoked
	StepMerged
	StepSkipped
	StepFailed
	RunComplete
)

func (k EventKind) String() string {
	switch k {
	case StepStarted:
		return "started"
	case StepInvoked:
		return "invoked"
	case StepMerged:
		return "merged"
	case StepSkipped:
		return "skipped"
	case StepFailed:
		return "failed"
	case RunComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Event describes one transition. Raw carries the model response for StepInvoked and
// StepSkipped; Err carries the parse or call error for StepSkipped and StepFailed; State
// is set on RunComplete.
type Event struct {
	Kind    EventKind
	RunID   string
	Index   int
	Total   int
	Step    string
	Raw     string
	Keys    []string
	Err     error
	Elapsed time.Duration
	State   State
}

// Observer receives run events synchronously, in order.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent calls f.
func (f ObserverFunc) OnEvent(event Event) { f(event) }

// Observers fans events out to several observers.
type Observers []Observer

// OnEvent forwards event to every observer.
func (o Observers) OnEvent(event Event) {
	for _, observer := range o {
		if observer != nil {
			observer.OnEvent(event)
		}
	}
}
