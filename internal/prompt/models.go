// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prompt

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type choiceItem string

func (c choiceItem) Title() string       { return string(c) }
func (c choiceItem) Description() string { return "" }
func (c choiceItem) FilterValue() string { return string(c) }

// selectModel is a single-choice list prompt.
type selectModel struct {
	theme   Theme
	title   string
	list    list.Model
	choice  string
	done    bool
	aborted bool
}

func newSelectModel(theme Theme, title string, choices []string, def string) selectModel {
	items := make([]list.Item, len(choices))
	selected := 0
	for i, c := range choices {
		items[i] = choiceItem(c)
		if c == def {
			selected = i
		}
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)

	l := list.New(items, delegate, 40, len(choices)+4)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.SetShowPagination(false)
	l.KeyMap.Quit.SetEnabled(false)
	l.Select(selected)

	return selectModel{theme: theme, title: title, list: l}
}

func (m selectModel) Init() tea.Cmd { return nil }

func (m selectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "ctrl+c", "esc":
			m.aborted = true
			return m, tea.Quit
		case "enter":
			if it, ok := m.list.SelectedItem().(choiceItem); ok {
				m.choice = string(it)
				m.done = true
				return m, tea.Quit
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m selectModel) View() string {
	if m.done {
		return fmt.Sprintf("%s %s\n", m.theme.Title.Render(m.title), m.theme.Answer.Render(m.choice))
	}
	if m.aborted {
		return ""
	}
	return m.list.View() + "\n" + m.theme.Help.Render("↑/↓ choose • enter confirm • esc cancel") + "\n"
}

// textModel is a free-text prompt with an optional default and validator.
type textModel struct {
	theme    Theme
	title    string
	def      string
	secret   bool
	validate func(string) error
	input    textinput.Model
	value    string
	err      error
	done     bool
	aborted  bool
}

func newTextModel(theme Theme, title, def string, validate func(string) error, secret bool) textModel {
	ti := textinput.New()
	ti.Placeholder = def
	ti.Prompt = "> "
	ti.CharLimit = 256
	if secret {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '•'
	}
	ti.Focus()
	return textModel{theme: theme, title: title, def: def, secret: secret, validate: validate, input: ti}
}

func (m textModel) Init() tea.Cmd { return textinput.Blink }

func (m textModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit
		case tea.KeyEnter:
			v := m.input.Value()
			if v == "" {
				v = m.def
			}
			if m.validate != nil {
				if err := m.validate(v); err != nil {
					m.err = err
					return m, nil
				}
			}
			m.value = v
			m.done = true
			return m, tea.Quit
		}
	}
	m.err = nil
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m textModel) View() string {
	if m.done {
		shown := m.value
		if m.secret {
			shown = "********"
		}
		return fmt.Sprintf("%s %s\n", m.theme.Title.Render(m.title), m.theme.Answer.Render(shown))
	}
	if m.aborted {
		return ""
	}
	s := m.theme.Title.Render(m.title) + "\n" + m.input.View() + "\n"
	if m.err != nil {
		s += m.theme.Error.Render(m.err.Error()) + "\n"
	}
	return s
}
