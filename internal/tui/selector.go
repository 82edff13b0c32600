package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrNothingToSelect is returned when the selector is started without any
// cached versions.
var ErrNothingToSelect = errors.New("no versions installed")

// Action is what the operator chose in the selector.
type Action int

const (
	// ActionNone means the selector was quit without a choice.
	ActionNone Action = iota
	// ActionActivate activates the selected version.
	ActionActivate
	// ActionRemove removes the selected version.
	ActionRemove
)

// Choice is the result of a selector run.
type Choice struct {
	Action  Action
	Version string
}

const selectorHeader = "Move ↑↓ to select an installed version / Return key (i) to activate / Delete key (d) to uninstall / q to quit"

// SelectorModel lists cached versions and lets the operator pick one to
// activate or remove. It never touches the filesystem; the caller acts on
// Choice after the program has exited and the terminal is restored.
type SelectorModel struct {
	versions []string
	active   string
	cursor   int
	choice   Choice
	quitting bool
}

// NewSelectorModel positions the cursor on active, or on the first entry
// when active is not listed.
func NewSelectorModel(versions []string, active string) SelectorModel {
	m := SelectorModel{versions: versions, active: active}
	for i, v := range versions {
		if v == active {
			m.cursor = i
			break
		}
	}
	return m
}

// Init satisfies the tea.Model interface.
func (m SelectorModel) Init() tea.Cmd {
	return nil
}

// Update satisfies the tea.Model interface.
func (m SelectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok || m.quitting {
		return m, nil
	}

	switch key.String() {
	case "up", "w", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "s", "j":
		if m.cursor < len(m.versions)-1 {
			m.cursor++
		}
	case "enter", "i":
		return m.finish(ActionActivate)
	case "delete", "backspace", "d":
		return m.finish(ActionRemove)
	case "ctrl+c", "q":
		return m.finish(ActionNone)
	}
	return m, nil
}

func (m SelectorModel) finish(action Action) (tea.Model, tea.Cmd) {
	m.quitting = true
	if action != ActionNone && len(m.versions) > 0 {
		m.choice = Choice{Action: action, Version: m.versions[m.cursor]}
	}
	return m, tea.Quit
}

// View satisfies the tea.Model interface.
func (m SelectorModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(selectorHeaderStyle.Render(selectorHeader))
	sb.WriteString("\n\n")

	for i, v := range m.versions {
		prefix := "    "
		if i == m.cursor {
			prefix = "  ‣ "
		}
		label := v
		if v == m.active {
			label += " (active)"
		}
		switch {
		case i == m.cursor:
			sb.WriteString(cursorStyle.Render(prefix + label))
		case v == m.active:
			sb.WriteString(activeStyle.Render(prefix + label))
		default:
			sb.WriteString(prefix + label)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Cursor returns the index of the highlighted version.
func (m SelectorModel) Cursor() int {
	return m.cursor
}

// Choice returns what the operator picked.
func (m SelectorModel) Choice() Choice {
	return m.choice
}

// RunSelector runs the selector full screen on in/out. The terminal is
// restored by bubbletea on every exit path, including panics, before
// RunSelector returns.
func RunSelector(ctx context.Context, in io.Reader, out io.Writer, versions []string, active string) (Choice, error) {
	if len(versions) == 0 {
		return Choice{}, ErrNothingToSelect
	}

	p := tea.NewProgram(NewSelectorModel(versions, active),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithAltScreen(),
	)
	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) {
			return Choice{}, nil
		}
		return Choice{}, fmt.Errorf("run selector: %w", err)
	}
	m, ok := final.(SelectorModel)
	if !ok {
		return Choice{}, fmt.Errorf("run selector: unexpected model %T", final)
	}
	return m.Choice(), nil
}
