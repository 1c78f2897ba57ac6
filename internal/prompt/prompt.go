// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prompt collects the build selection from the user. The terminal
// prompter renders bubbletea list and text inputs; the scripted prompter
// answers from a fixed list so the same questions run without a terminal.
package prompt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wknd/ez-er-rkllm-toolkit2/internal/plan"
	"github.com/wknd/ez-er-rkllm-toolkit2/pkg/types"
)

// DefaultModelID is offered when no model was given.
const DefaultModelID = "Qwen/Qwen2.5-7B-Instruct"

// ErrAborted is returned when the user cancels a prompt.
var ErrAborted = errors.New("prompt aborted")

// Prompter asks single questions.
type Prompter interface {
	// Select returns one of choices; def is preselected.
	Select(title string, choices []string, def string) (string, error)
	// Text returns the entered value, or def when the input is empty.
	Text(title, def string, validate func(string) error) (string, error)
	// Secret reads a value without echoing it.
	Secret(title string) (string, error)
}

// Terminal prompts on a TTY.
type Terminal struct {
	In    io.Reader
	Out   io.Writer
	Theme Theme
}

// NewTerminal returns a prompter on stdin and stdout.
func NewTerminal() *Terminal {
	return &Terminal{In: os.Stdin, Out: os.Stdout, Theme: DefaultTheme()}
}

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func (t *Terminal) run(m tea.Model) (tea.Model, error) {
	p := tea.NewProgram(m, tea.WithInput(t.In), tea.WithOutput(t.Out))
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("running prompt: %w", err)
	}
	return final, nil
}

// Select implements Prompter.
func (t *Terminal) Select(title string, choices []string, def string) (string, error) {
	final, err := t.run(newSelectModel(t.Theme, title, choices, def))
	if err != nil {
		return "", err
	}
	m := final.(selectModel)
	if !m.done {
		return "", ErrAborted
	}
	return m.choice, nil
}

// Text implements Prompter.
func (t *Terminal) Text(title, def string, validate func(string) error) (string, error) {
	return t.text(newTextModel(t.Theme, title, def, validate, false))
}

// Secret implements Prompter.
func (t *Terminal) Secret(title string) (string, error) {
	return t.text(newTextModel(t.Theme, title, "", nonEmpty, true))
}

func (t *Terminal) text(m textModel) (string, error) {
	final, err := t.run(m)
	if err != nil {
		return "", err
	}
	tm := final.(textModel)
	if !tm.done {
		return "", ErrAborted
	}
	return tm.value, nil
}

// Scripted answers prompts in order from Answers. An empty answer, or
// running out of answers, accepts the default.
type Scripted struct {
	Answers []string
	next    int
}

func (s *Scripted) answer() string {
	if s.next >= len(s.Answers) {
		return ""
	}
	a := s.Answers[s.next]
	s.next++
	return a
}

// Select implements Prompter.
func (s *Scripted) Select(title string, choices []string, def string) (string, error) {
	a := s.answer()
	if a == "" {
		a = def
	}
	if !slices.Contains(choices, a) {
		return "", fmt.Errorf("%s: %q is not one of %s", title, a, strings.Join(choices, ", "))
	}
	return a, nil
}

// Text implements Prompter.
func (s *Scripted) Text(title, def string, validate func(string) error) (string, error) {
	a := s.answer()
	if a == "" {
		a = def
	}
	if validate != nil {
		if err := validate(a); err != nil {
			return "", fmt.Errorf("%s: %w", title, err)
		}
	}
	return a, nil
}

// Secret implements Prompter.
func (s *Scripted) Secret(title string) (string, error) {
	a := s.answer()
	if a == "" {
		return "", fmt.Errorf("%s: no value given", title)
	}
	return a, nil
}

// ValidateRepoID checks the owner/name form of a hub repo id.
func ValidateRepoID(id string) error {
	owner, name, ok := strings.Cut(id, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("repo id must look like owner/name, got %q", id)
	}
	if strings.ContainsAny(id, " \t") {
		return fmt.Errorf("repo id must not contain spaces, got %q", id)
	}
	return nil
}

// ValidateAdapterID accepts an empty id (no adapter) or a repo id.
func ValidateAdapterID(id string) error {
	if id == "" {
		return nil
	}
	return ValidateRepoID(id)
}

func validateRate(s string) error {
	_, err := plan.ParseRate(s)
	return err
}

func nonEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("value must not be empty")
	}
	return nil
}

// Collect asks for every field of a Selection in order, offering defaults
// as the preset answers. Empty defaults fall back to the built-in ones.
func Collect(p Prompter, defaults types.Selection) (types.Selection, error) {
	d := withFallbacks(defaults)
	var sel types.Selection
	var err error

	if sel.ModelID, err = p.Text("Model ID (owner/name)", d.ModelID, ValidateRepoID); err != nil {
		return types.Selection{}, err
	}
	if sel.AdapterID, err = p.Text("LoRA adapter ID (empty for none)", d.AdapterID, ValidateAdapterID); err != nil {
		return types.Selection{}, err
	}

	lib, err := p.Select("Model library", toStrings(types.LibraryTypes), string(d.Library))
	if err != nil {
		return types.Selection{}, err
	}
	sel.Library = types.LibraryType(lib)

	platform, err := p.Select("Target platform", toStrings(types.Platforms), string(d.Platform))
	if err != nil {
		return types.Selection{}, err
	}
	sel.Platform = types.Platform(platform)

	opt, err := p.Select("Optimization (0 off, 1 on)", []string{"0", "1"}, strconv.Itoa(d.Optimization))
	if err != nil {
		return types.Selection{}, err
	}
	sel.Optimization, _ = strconv.Atoi(opt)

	// A preset qtype only carries over when the platform answer kept it valid.
	qtypes := sel.Platform.QTypes()
	defQ := d.QType
	if defQ == "" || (sel.Platform != d.Platform && !sel.Platform.SupportsQType(defQ)) {
		defQ = qtypes[0]
	}
	q, err := p.Select("Quantization type", toStrings(qtypes), string(defQ))
	if err != nil {
		return types.Selection{}, err
	}
	sel.QType = types.QType(q)

	rate, err := p.Text("Hybrid quantization ratio (0.0 to 1.0)", plan.FormatRate(d.HybridRate), validateRate)
	if err != nil {
		return types.Selection{}, err
	}
	if sel.HybridRate, err = plan.ParseRate(rate); err != nil {
		return types.Selection{}, err
	}

	if err := sel.Validate(); err != nil {
		return types.Selection{}, err
	}
	return sel, nil
}

func withFallbacks(d types.Selection) types.Selection {
	if d.ModelID == "" {
		d.ModelID = DefaultModelID
	}
	if d.Library == "" {
		d.Library = types.LibraryHF
	}
	if d.Platform == "" {
		d.Platform = types.PlatformRK3588
	}
	return d
}

func toStrings[T ~string](vs []T) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}
