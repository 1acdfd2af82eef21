// Package tui contains the interactive terminal views.
package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/wtstate/internal/progress"
	"github.com/Iron-Ham/wtstate/internal/render"
)

// ProgressMsg delivers a fresh ledger snapshot.
type ProgressMsg struct {
	Progress *progress.Progress
}

// ErrMsg reports that the watcher stopped with an error.
type ErrMsg struct {
	Err error
}

// WatchModel shows the latest progress snapshot under a live header.
type WatchModel struct {
	spinner spinner.Model
	styles  *render.Styles
	current *progress.Progress
	updates int
	err     error
}

// NewWatchModel creates the model. styles may be nil for unstyled output.
func NewWatchModel(styles *render.Styles) WatchModel {
	if styles == nil {
		styles = render.NewStyles(io.Discard, false)
	}
	return WatchModel{
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Title)),
		styles:  styles,
	}
}

// Err returns the error that ended the watch, if any.
func (m WatchModel) Err() error {
	return m.err
}

// Current returns the latest snapshot, or nil before the first one.
func (m WatchModel) Current() *progress.Progress {
	return m.current
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case ProgressMsg:
		m.current = msg.Progress
		m.updates++
	case ErrMsg:
		m.err = msg.Err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m WatchModel) View() string {
	var b strings.Builder
	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(m.styles.Title.Render("Watching workflow progress"))
	b.WriteString(" ")
	b.WriteString(m.styles.Muted.Render(fmt.Sprintf("(%d updates, q to quit)", m.updates)))
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(m.styles.Error.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	case m.current == nil:
		b.WriteString(m.styles.Muted.Render("Waiting for the ledger..."))
		b.WriteString("\n")
	default:
		b.WriteString(render.Progress(m.styles, m.current))
	}
	return b.String()
}
