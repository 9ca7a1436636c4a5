// Package tui renders a live progress view of a workflow run.
package tui

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mwiater/eda/internal/util"
	"github.com/mwiater/eda/internal/workflow"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mergedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

type stepStatus int

const (
	statusPending stepStatus = iota
	statusRunning
	statusMerged
	statusSkipped
	statusFailed
)

type stepRow struct {
	name    string
	status  stepStatus
	detail  string
	elapsed time.Duration
}

type eventMsg workflow.Event

type runFinishedMsg struct {
	result *workflow.Result
	err    error
}

type model struct {
	spinner  spinner.Model
	runID    string
	steps    []stepRow
	finished bool
	result   *workflow.Result
	err      error
	width    int
	cancel   context.CancelFunc
}

func newModel(spec *workflow.Spec, cancel context.CancelFunc) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))

	rows := make([]stepRow, len(spec.Steps))
	for i, step := range spec.Steps {
		rows[i] = stepRow{name: step.Name}
	}
	return &model{spinner: s, steps: rows, width: 100, cancel: cancel}
}

func (m *model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case eventMsg:
		m.apply(workflow.Event(msg))
	case runFinishedMsg:
		m.finished = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m *model) apply(event workflow.Event) {
	m.runID = event.RunID
	if event.Kind == workflow.RunComplete || event.Index < 0 || event.Index >= len(m.steps) {
		return
	}
	row := &m.steps[event.Index]
	switch event.Kind {
	case workflow.StepStarted:
		row.status = statusRunning
		row.detail = "resolving prompt"
	case workflow.StepInvoked:
		row.detail = "decoding response"
	case workflow.StepMerged:
		row.status = statusMerged
		row.detail = "keys: " + strings.Join(event.Keys, ", ")
		row.elapsed = event.Elapsed
	case workflow.StepSkipped:
		row.status = statusSkipped
		row.detail = fmt.Sprintf("not merged: %v · %s", event.Err, util.OneLine(event.Raw, 60))
		row.elapsed = event.Elapsed
	case workflow.StepFailed:
		row.status = statusFailed
		row.detail = fmt.Sprint(event.Err)
		row.elapsed = event.Elapsed
	}
}

func (m *model) View() string {
	var b strings.Builder
	title := "Workflow"
	if m.runID != "" {
		title += " " + m.runID
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	detailWidth := m.width - 30
	if detailWidth < 20 {
		detailWidth = 20
	}
	for _, row := range m.steps {
		line := fmt.Sprintf("%s %s", m.glyph(row.status), row.name)
		if row.elapsed > 0 {
			line += pendingStyle.Render(fmt.Sprintf(" (%s)", row.elapsed.Truncate(time.Millisecond)))
		}
		if row.detail != "" {
			line += "  " + detailStyle.Render(util.TruncateRunes(row.detail, detailWidth))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.finished {
		b.WriteString("\n")
		switch {
		case m.err != nil:
			b.WriteString(failedStyle.Render("Run stopped: " + m.err.Error()))
		case m.result != nil:
			b.WriteString(mergedStyle.Render("Run complete"))
			b.WriteString("\n")
			b.WriteString(detailStyle.Render("State keys: " + strings.Join(stateKeys(m.result.State), ", ")))
		}
		b.WriteString("\n")
	} else {
		b.WriteString(pendingStyle.Render("\nq to cancel"))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *model) glyph(status stepStatus) string {
	switch status {
	case statusRunning:
		return m.spinner.View()
	case statusMerged:
		return mergedStyle.Render("✓")
	case statusSkipped:
		return skippedStyle.Render("!")
	case statusFailed:
		return failedStyle.Render("✗")
	default:
		return pendingStyle.Render("·")
	}
}

func stateKeys(state workflow.State) []string {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RunFunc executes a workflow, delivering events to observer.
type RunFunc func(ctx context.Context, observer workflow.Observer) (*workflow.Result, error)

// Run shows the progress view while run executes. Quitting the view cancels the run.
func Run(ctx context.Context, spec *workflow.Spec, out io.Writer, run RunFunc) (*workflow.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newModel(spec, cancel), tea.WithContext(ctx), tea.WithOutput(out))
	observer := workflow.ObserverFunc(func(e workflow.Event) { p.Send(eventMsg(e)) })

	type outcome struct {
		result *workflow.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := run(ctx, observer)
		p.Send(runFinishedMsg{result: result, err: err})
		done <- outcome{result, err}
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		cancel()
		<-done
		return nil, fmt.Errorf("workflow view: %w", err)
	}
	cancel()
	res := <-done
	return res.result, res.err
}
