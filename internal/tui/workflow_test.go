package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mwiater/eda/internal/workflow"
)

func testSpec() *workflow.Spec {
	return &workflow.Spec{Steps: []workflow.Step{
		{Name: "extract", Description: "d"},
		{Name: "summarize", Description: "d"},
	}}
}

func TestUpdateTracksStepEvents(t *testing.T) {
	m := newModel(testSpec(), nil)

	m.Update(eventMsg(workflow.Event{Kind: workflow.StepStarted, RunID: "run-1", Index: 0, Total: 2, Step: "extract"}))
	if m.steps[0].status != statusRunning {
		t.Fatalf("expected extract to be running, got %v", m.steps[0].status)
	}

	m.Update(eventMsg(workflow.Event{Kind: workflow.StepMerged, RunID: "run-1", Index: 0, Keys: []string{"extracted"}}))
	if m.steps[0].status != statusMerged {
		t.Fatalf("expected extract to be merged, got %v", m.steps[0].status)
	}

	m.Update(eventMsg(workflow.Event{Kind: workflow.StepSkipped, RunID: "run-1", Index: 1, Raw: "not json", Err: errors.New("invalid character")}))
	if m.steps[1].status != statusSkipped {
		t.Fatalf("expected summarize to be skipped, got %v", m.steps[1].status)
	}

	view := m.View()
	if !strings.Contains(view, "run-1") || !strings.Contains(view, "keys: extracted") || !strings.Contains(view, "not json") {
		t.Fatalf("view missing step details:\n%s", view)
	}
}

func TestUpdateQuitsWhenRunFinishes(t *testing.T) {
	m := newModel(testSpec(), nil)
	_, cmd := m.Update(runFinishedMsg{result: &workflow.Result{State: workflow.State{"summary": "HELLO", "raw": "hello"}}})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if !m.finished {
		t.Fatal("expected model to be finished")
	}
	if view := m.View(); !strings.Contains(view, "State keys: raw, summary") {
		t.Fatalf("expected state summary, got:\n%s", view)
	}
}

func TestQuitKeyCancelsRun(t *testing.T) {
	cancelled := false
	m := newModel(testSpec(), func() { cancelled = true })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if !cancelled {
		t.Fatal("expected quitting to cancel the run")
	}

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	if updated.(*model).width != 80 {
		t.Fatalf("expected width 80, got %d", updated.(*model).width)
	}
}
