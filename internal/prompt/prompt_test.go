// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prompt

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wknd/ez-er-rkllm-toolkit2/pkg/types"
)

func TestCollect_Defaults(t *testing.T) {
	sel, err := Collect(&Scripted{}, types.Selection{})
	require.NoError(t, err)
	assert.Equal(t, types.Selection{
		ModelID:      DefaultModelID,
		Library:      types.LibraryHF,
		Platform:     types.PlatformRK3588,
		Optimization: 0,
		QType:        "w8a8",
		HybridRate:   0,
	}, sel)
}

func TestCollect_Answers(t *testing.T) {
	p := &Scripted{Answers: []string{
		"org/Model-GGUF",
		"org/lora",
		"GGUF",
		"rk3576",
		"1",
		"w4a16_g64",
		"0.5",
	}}
	sel, err := Collect(p, types.Selection{})
	require.NoError(t, err)
	assert.Equal(t, types.Selection{
		ModelID:      "org/Model-GGUF",
		AdapterID:    "org/lora",
		Library:      types.LibraryGGUF,
		Platform:     types.PlatformRK3576,
		Optimization: 1,
		QType:        "w4a16_g64",
		HybridRate:   0.5,
	}, sel)
}

func TestCollect_QTypeDefaultFollowsPlatform(t *testing.T) {
	// w8a8_g128 is only valid on rk3588; switching platform picks the first rk3576 type.
	defaults := types.Selection{Platform: types.PlatformRK3588, QType: "w8a8_g128"}
	sel, err := Collect(&Scripted{Answers: []string{"", "", "", "rk3576"}}, defaults)
	require.NoError(t, err)
	assert.Equal(t, types.QType("w8a8"), sel.QType)

	sel, err = Collect(&Scripted{}, defaults)
	require.NoError(t, err)
	assert.Equal(t, types.QType("w8a8_g128"), sel.QType)
}

func TestCollect_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		answers []string
		wantMsg string
	}{
		{"model without owner", []string{"Qwen2.5"}, "owner/name"},
		{"adapter with extra segment", []string{"", "a/b/c"}, "owner/name"},
		{"unknown library", []string{"", "", "ONNX"}, "not one of"},
		{"unknown platform", []string{"", "", "", "rk3399"}, "not one of"},
		{"qtype from other platform", []string{"", "", "", "rk3588", "", "w4a16"}, "not one of"},
		{"rate above one", []string{"", "", "", "", "", "", "1.5"}, "between 0 and 1"},
		{"rate not a number", []string{"", "", "", "", "", "", "half"}, "not a number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Collect(&Scripted{Answers: tt.answers}, types.Selection{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidateRepoID(t *testing.T) {
	assert.NoError(t, ValidateRepoID("Qwen/Qwen2.5-7B-Instruct"))
	assert.Error(t, ValidateRepoID(""))
	assert.Error(t, ValidateRepoID("/name"))
	assert.Error(t, ValidateRepoID("owner/"))
	assert.Error(t, ValidateRepoID("owner/na me"))
	assert.NoError(t, ValidateAdapterID(""))
	assert.Error(t, ValidateAdapterID("lora"))
}

func TestScriptedSecret(t *testing.T) {
	s := &Scripted{Answers: []string{"hf_abc"}}
	got, err := s.Secret("Hub token")
	require.NoError(t, err)
	assert.Equal(t, "hf_abc", got)

	_, err = s.Secret("Hub token")
	assert.Error(t, err)
}

func key(t tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: t} }

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestSelectModel(t *testing.T) {
	choices := []string{"rk3588", "rk3576"}

	m := newSelectModel(DefaultTheme(), "Target platform", choices, "rk3576")
	next, cmd := m.Update(key(tea.KeyEnter))
	sm := next.(selectModel)
	assert.True(t, sm.done)
	assert.Equal(t, "rk3576", sm.choice, "default is preselected")
	assert.NotNil(t, cmd)
	assert.Contains(t, sm.View(), "rk3576")

	m = newSelectModel(DefaultTheme(), "Target platform", choices, "rk3576")
	next, _ = m.Update(key(tea.KeyUp))
	next, _ = next.Update(key(tea.KeyEnter))
	assert.Equal(t, "rk3588", next.(selectModel).choice)

	m = newSelectModel(DefaultTheme(), "Target platform", choices, "")
	next, cmd = m.Update(key(tea.KeyEsc))
	sm = next.(selectModel)
	assert.True(t, sm.aborted)
	assert.False(t, sm.done)
	assert.NotNil(t, cmd)
}

func TestTextModel(t *testing.T) {
	validate := func(s string) error {
		if s == "bad" {
			return errors.New("bad value")
		}
		return nil
	}

	t.Run("typed value", func(t *testing.T) {
		m := newTextModel(DefaultTheme(), "Model ID", "Qwen/Qwen2.5-7B-Instruct", validate, false)
		next, _ := m.Update(runes("org/model"))
		next, cmd := next.Update(key(tea.KeyEnter))
		tm := next.(textModel)
		assert.True(t, tm.done)
		assert.Equal(t, "org/model", tm.value)
		assert.NotNil(t, cmd)
	})

	t.Run("empty input takes default", func(t *testing.T) {
		m := newTextModel(DefaultTheme(), "Model ID", "Qwen/Qwen2.5-7B-Instruct", validate, false)
		next, _ := m.Update(key(tea.KeyEnter))
		assert.Equal(t, "Qwen/Qwen2.5-7B-Instruct", next.(textModel).value)
	})

	t.Run("validation error keeps prompting", func(t *testing.T) {
		m := newTextModel(DefaultTheme(), "Model ID", "", validate, false)
		next, _ := m.Update(runes("bad"))
		next, _ = next.Update(key(tea.KeyEnter))
		tm := next.(textModel)
		assert.False(t, tm.done)
		assert.EqualError(t, tm.err, "bad value")
		assert.Contains(t, tm.View(), "bad value")
	})

	t.Run("ctrl+c aborts", func(t *testing.T) {
		m := newTextModel(DefaultTheme(), "Model ID", "", nil, false)
		next, _ := m.Update(key(tea.KeyCtrlC))
		assert.True(t, next.(textModel).aborted)
	})

	t.Run("secret is masked", func(t *testing.T) {
		m := newTextModel(DefaultTheme(), "Hub token", "", nonEmpty, true)
		next, _ := m.Update(runes("hf_secret"))
		next, _ = next.Update(key(tea.KeyEnter))
		tm := next.(textModel)
		require.True(t, tm.done)
		assert.Equal(t, "hf_secret", tm.value)
		assert.NotContains(t, tm.View(), "hf_secret")
	})
}

func TestCollect_InvalidPresets(t *testing.T) {
	tests := []struct {
		name     string
		defaults types.Selection
	}{
		{"unknown platform", types.Selection{Platform: "rk3399"}},
		{"qtype not on platform", types.Selection{Platform: types.PlatformRK3576, QType: "w8a8_g128"}},
		{"optimization out of range", types.Selection{Optimization: 2}},
		{"unknown library", types.Selection{Library: "ONNX"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Collect(&Scripted{}, tt.defaults)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "not one of")
		})
	}
}
