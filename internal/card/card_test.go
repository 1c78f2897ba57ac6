// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package card

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wknd/ez-er-rkllm-toolkit2/internal/hub"
)

const sampleReadme = `---
license: apache-2.0
language:
  - en
pipeline_tag: text-generation
---
# Qwen2.5-7B-Instruct

Original body.
`

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantData bool
		wantText string
		wantErr  bool
	}{
		{"front matter and body", sampleReadme, true, "# Qwen2.5-7B-Instruct\n\nOriginal body.\n", false},
		{"no front matter", "# Title\nbody\n", false, "# Title\nbody\n", false},
		{"empty front matter", "---\n---\nbody", false, "body", false},
		{"crlf line endings", "---\r\nlicense: mit\r\n---\r\nbody\r\n", true, "body\n", false},
		{"front matter only", "---\nlicense: mit\n---", true, "", false},
		{"unterminated", "---\nlicense: mit\nbody", false, "", true},
		{"invalid yaml", "---\nlicense: [mit\n---\nbody", false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.in))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantData, c.HasData())
			assert.Equal(t, tt.wantText, c.Text)
		})
	}
}

func TestDataYAML_PreservesOrder(t *testing.T) {
	c, err := Parse([]byte(sampleReadme))
	require.NoError(t, err)

	data, err := c.DataYAML()
	require.NoError(t, err)
	lic := strings.Index(data, "license: apache-2.0")
	lang := strings.Index(data, "language:")
	tag := strings.Index(data, "pipeline_tag: text-generation")
	require.True(t, lic >= 0 && lang >= 0 && tag >= 0, data)
	assert.Less(t, lic, lang)
	assert.Less(t, lang, tag)
	assert.False(t, strings.HasSuffix(data, "\n"))
}

func TestRender(t *testing.T) {
	c, err := Parse([]byte(sampleReadme))
	require.NoError(t, err)

	out, err := Render(c, Meta{
		ModelName:      "Qwen2.5-7B-Instruct",
		Platform:       "rk3588",
		QType:          "w8a8",
		ToolkitVersion: "1.1.1",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "---\nlicense: apache-2.0\n"), out)
	assert.Contains(t, out, "# Qwen2.5-7B-Instruct-RK3588-1.1.1\n")
	assert.Contains(t, out, "converted to run on the RK3588 NPU using w8a8 quantization.")
	assert.Contains(t, out, "Compatible with RKLLM version: 1.1.1")
	assert.Contains(t, out, "[Official RKLLM GitHub](https://github.com/airockchip/rknn-llm)")
	assert.Contains(t, out, "[marty1885](https://github.com/marty1885)")
	assert.NotContains(t, out, "LoRA")
	assert.True(t, strings.HasSuffix(out, "# Original Model Card for base model, Qwen2.5-7B-Instruct, below:\n\n# Qwen2.5-7B-Instruct\n\nOriginal body.\n"), out)

	// The rendered card must itself parse back with the same metadata.
	back, err := Parse([]byte(out))
	require.NoError(t, err)
	data, err := back.DataYAML()
	require.NoError(t, err)
	assert.Contains(t, data, "pipeline_tag: text-generation")
}

func TestRender_WithAdapter(t *testing.T) {
	out, err := Render(Card{Text: "body"}, Meta{
		ModelName:      "m",
		Platform:       "rk3576",
		QType:          "w4a16",
		AdapterID:      "someone/lora",
		ToolkitVersion: "1.1.1",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "This model has been optimized with the following LoRA: someone/lora\n")
	assert.Contains(t, out, "RK3576 NPU")
}

type fakeSource struct {
	files map[string]string
	err   error
}

func (f fakeSource) ReadFile(_ context.Context, repoID, _, path string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	content, ok := f.files[repoID+"/"+path]
	if !ok {
		return nil, fmt.Errorf("reading %s: %w", path, hub.ErrEntryNotFound)
	}
	return []byte(content), nil
}

func TestLoad(t *testing.T) {
	src := fakeSource{files: map[string]string{"org/model/README.md": sampleReadme}}

	c, err := Load(context.Background(), src, "org/model")
	require.NoError(t, err)
	assert.True(t, c.HasData())

	c, err = Load(context.Background(), src, "org/other")
	require.NoError(t, err, "missing README is an empty card")
	assert.False(t, c.HasData())
	assert.Empty(t, c.Text)

	_, err = Load(context.Background(), fakeSource{err: errors.New("boom")}, "org/model")
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "README.md")
	require.NoError(t, Write(path, "hello"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	assert.Error(t, Write(filepath.Join(t.TempDir(), "missing", "README.md"), "x"))
}
