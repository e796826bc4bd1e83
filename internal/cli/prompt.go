// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// prompt.go - Interactive select, confirm and input prompts.
//
// Each prompt is a small bubbletea program that runs inline (no alt
// screen) and returns once the user answers. Callers must make sure no
// spinner or renderer is drawing while a prompt runs.

package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrPromptCancelled is returned when the user leaves a prompt with Esc or Ctrl-C.
var ErrPromptCancelled = errors.New("prompt cancelled")

// =============================================================================
// KEY MAP
// =============================================================================

type promptKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Submit key.Binding
	Yes    key.Binding
	No     key.Binding
	Cancel key.Binding
}

var promptKeys = promptKeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k", "shift+tab"),
		key.WithHelp("up/k", "previous"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j", "tab"),
		key.WithHelp("down/j", "next"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "choose"),
	),
	Yes: key.NewBinding(
		key.WithKeys("y", "Y"),
		key.WithHelp("y", "yes"),
	),
	No: key.NewBinding(
		key.WithKeys("n", "N"),
		key.WithHelp("n", "no"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc", "ctrl+c", "q"),
		key.WithHelp("esc", "cancel"),
	),
}

// promptIO carries the terminal streams prompts run on.
type promptIO struct {
	in  io.Reader
	out io.Writer
}

func (p promptIO) run(m tea.Model) (tea.Model, error) {
	prog := tea.NewProgram(m, tea.WithInput(p.in), tea.WithOutput(p.out))
	return prog.Run()
}

// =============================================================================
// SELECT
// =============================================================================

type selectModel struct {
	title     string
	items     []string
	cursor    int
	chosen    bool
	cancelled bool
}

func newSelectModel(title string, items []string, initial int) selectModel {
	if initial < 0 || initial >= len(items) {
		initial = 0
	}
	return selectModel{title: title, items: items, cursor: initial}
}

func (m selectModel) Init() tea.Cmd { return nil }

func (m selectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(k, promptKeys.Up):
		m.cursor = (m.cursor - 1 + len(m.items)) % len(m.items)
	case key.Matches(k, promptKeys.Down):
		m.cursor = (m.cursor + 1) % len(m.items)
	case key.Matches(k, promptKeys.Submit):
		m.chosen = true
		return m, tea.Quit
	case key.Matches(k, promptKeys.Cancel):
		m.cancelled = true
		return m, tea.Quit
	}
	return m, nil
}

func (m selectModel) View() string {
	var b strings.Builder
	if m.chosen {
		fmt.Fprintf(&b, "%s %s %s\n", QuestionStyle.Render("?"), m.title, HighlightStyle.Render(m.items[m.cursor]))
		return b.String()
	}
	if m.cancelled {
		return ""
	}
	fmt.Fprintf(&b, "%s %s\n", QuestionStyle.Render("?"), m.title)
	for i, item := range m.items {
		if i == m.cursor {
			b.WriteString(HighlightStyle.Render("❯ "+item) + "\n")
		} else {
			b.WriteString("  " + item + "\n")
		}
	}
	return b.String()
}

// Select shows a menu and returns the chosen index.
func Select(in io.Reader, out io.Writer, title string, items []string, initial int) (int, error) {
	if len(items) == 0 {
		return -1, errors.New("nothing to select")
	}
	final, err := promptIO{in, out}.run(newSelectModel(title, items, initial))
	if err != nil {
		return -1, err
	}
	m := final.(selectModel)
	if !m.chosen {
		return -1, ErrPromptCancelled
	}
	return m.cursor, nil
}

// =============================================================================
// CONFIRM
// =============================================================================

type confirmModel struct {
	question string
	answer   bool
	done     bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(k, promptKeys.Yes):
		m.answer, m.done = true, true
	case key.Matches(k, promptKeys.No), key.Matches(k, promptKeys.Submit), key.Matches(k, promptKeys.Cancel):
		m.answer, m.done = false, true
	default:
		return m, nil
	}
	return m, tea.Quit
}

func (m confirmModel) View() string {
	q := QuestionStyle.Render("?") + " " + m.question + " "
	if !m.done {
		return q + DimStyle.Render("(y/N)")
	}
	if m.answer {
		return q + SuccessStyle.Render("yes") + "\n"
	}
	return q + WarningStyle.Render("no") + "\n"
}

// Confirm asks a yes/no question. Anything but an explicit yes is a no.
func Confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	final, err := promptIO{in, out}.run(confirmModel{question: question})
	if err != nil {
		return false, err
	}
	return final.(confirmModel).answer, nil
}

// =============================================================================
// INPUT
// =============================================================================

type inputModel struct {
	question  string
	input     textinput.Model
	done      bool
	cancelled bool
}

func newInputModel(question, initial string, secret bool) inputModel {
	ti := textinput.New()
	ti.Prompt = "› "
	ti.PromptStyle = QuestionStyle
	ti.CharLimit = 4096
	ti.SetValue(initial)
	if secret {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '•'
	}
	ti.Focus()
	return inputModel{question: question, input: ti}
}

func (m inputModel) Init() tea.Cmd { return textinput.Blink }

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(k, promptKeys.Submit):
			if strings.TrimSpace(m.input.Value()) == "" {
				return m, nil
			}
			m.done = true
			return m, tea.Quit
		case k.Type == tea.KeyEsc || k.Type == tea.KeyCtrlC:
			m.cancelled = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	header := QuestionStyle.Render("?") + " " + m.question + "\n"
	if m.done || m.cancelled {
		if m.input.EchoMode == textinput.EchoPassword {
			return header + DimStyle.Render("[hidden]") + "\n"
		}
		return header + m.input.Value() + "\n"
	}
	return header + m.input.View()
}

// Input reads one non-empty line. Secret input is masked.
func Input(in io.Reader, out io.Writer, question, initial string, secret bool) (string, error) {
	final, err := promptIO{in, out}.run(newInputModel(question, initial, secret))
	if err != nil {
		return "", err
	}
	m := final.(inputModel)
	if m.cancelled {
		return "", ErrPromptCancelled
	}
	return strings.TrimSpace(m.input.Value()), nil
}
