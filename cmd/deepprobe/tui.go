package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nstogner/deepprobe/pkg/probe"
	"github.com/nstogner/deepprobe/pkg/report"
	"github.com/nstogner/deepprobe/pkg/research"
)

var spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

// progressEvent carries one hook notification into the TUI. Exactly one
// field is set per event.
type progressEvent struct {
	interactionID string
	thought       string
	retryNote     string
}

type doneMsg struct {
	res *research.Result
	err error
}

// progressHooks adapts orchestration hooks to TUI messages. Sends never
// block: if the TUI stops draining, events are dropped rather than stalling
// the research goroutine.
func progressHooks(events chan<- progressEvent, onStart func(interactionID string)) *probe.Hooks {
	send := func(ev progressEvent) {
		select {
		case events <- ev:
		default:
		}
	}
	return &probe.Hooks{
		OnStart: func(interactionID string) {
			if onStart != nil {
				onStart(interactionID)
			}
			send(progressEvent{interactionID: interactionID})
		},
		OnThought: func(text string) {
			send(progressEvent{thought: text})
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			note := fmt.Sprintf("connection trouble, retrying in %s (attempt %d)", delay, attempt)
			if err != nil {
				note = fmt.Sprintf("%v, retrying in %s (attempt %d)", err, delay, attempt)
			}
			send(progressEvent{retryNote: note})
		},
	}
}

type progressModel struct {
	label  string
	cancel context.CancelFunc
	events <-chan progressEvent
	done   <-chan doneMsg

	spinner       spinner.Model
	start         time.Time
	interactionID string
	thought       string
	retryNote     string
	cancelling    bool

	finished bool
	result   *research.Result
	err      error
}

func newProgressModel(label string, cancel context.CancelFunc, events <-chan progressEvent, done <-chan doneMsg) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle
	return progressModel{
		label:   label,
		cancel:  cancel,
		events:  events,
		done:    done,
		spinner: s,
		start:   time.Now(),
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events), waitForDone(m.done))
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			// The research context unwinds and delivers a doneMsg; the
			// program quits there, not here.
			m.cancelling = true
			m.cancel()
			return m, nil
		}

	case progressEvent:
		if msg.interactionID != "" {
			m.interactionID = msg.interactionID
			m.retryNote = ""
		}
		if msg.thought != "" {
			m.thought = msg.thought
			m.retryNote = ""
		}
		if msg.retryNote != "" {
			m.retryNote = msg.retryNote
		}
		return m, waitForEvent(m.events)

	case doneMsg:
		m.finished = true
		m.result = msg.res
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m progressModel) View() string {
	if m.finished {
		return ""
	}

	label := m.label
	if m.cancelling {
		label = "Cancelling..."
	}
	elapsed := report.FormatDuration(time.Since(m.start))
	lines := []string{
		fmt.Sprintf("%s %s %s", m.spinner.View(), label, dimStyle.Render("("+elapsed+")")),
	}
	if m.interactionID != "" {
		lines = append(lines, "  Interaction ID: "+idStyle.Render(m.interactionID))
	}
	if m.thought != "" {
		lines = append(lines, "  "+dimStyle.Render("* "+report.Truncate(m.thought, 90)))
	}
	if m.retryNote != "" {
		lines = append(lines, "  "+hintStyle.Render("! "+m.retryNote))
	}
	lines = append(lines, "", dimStyle.Render("Press Ctrl+C to cancel"))

	return lipgloss.JoinVertical(lipgloss.Left, lines...) + "\n"
}

func waitForEvent(ch <-chan progressEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return ev
	}
}

func waitForDone(ch <-chan doneMsg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}
