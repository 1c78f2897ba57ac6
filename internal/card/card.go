// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package card builds the README published next to a converted model. The
// source model's card metadata is carried over as YAML front matter and its
// body is appended below a short description of the conversion.
package card

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"go.yaml.in/yaml/v3"

	"github.com/wknd/ez-er-rkllm-toolkit2/internal/hub"
)

const readmeFile = "README.md"

// Card is a parsed model card: YAML metadata plus Markdown body.
type Card struct {
	// Data is the front matter document. A zero node means no metadata.
	Data yaml.Node
	Text string
}

// HasData reports whether the card carried front matter.
func (c Card) HasData() bool {
	return c.Data.Kind != 0
}

// DataYAML re-emits the metadata as YAML without a trailing newline.
func (c Card) DataYAML() (string, error) {
	if !c.HasData() {
		return "", nil
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&c.Data); err != nil {
		return "", fmt.Errorf("encoding card metadata: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// Parse splits README content into front matter and body. Content without a
// leading "---" fence is all body.
func Parse(content []byte) (Card, error) {
	s := strings.ReplaceAll(string(content), "\r\n", "\n")
	if !strings.HasPrefix(s, "---\n") {
		return Card{Text: s}, nil
	}
	rest := s[len("---\n"):]

	var front, body string
	if strings.HasPrefix(rest, "---\n") || rest == "---" {
		front, body = "", strings.TrimPrefix(strings.TrimPrefix(rest, "---"), "\n")
	} else {
		end := strings.Index(rest, "\n---\n")
		switch {
		case end >= 0:
			front, body = rest[:end], rest[end+len("\n---\n"):]
		case strings.HasSuffix(rest, "\n---"):
			front, body = strings.TrimSuffix(rest, "\n---"), ""
		default:
			return Card{}, errors.New("model card front matter is not terminated")
		}
	}

	c := Card{Text: body}
	if strings.TrimSpace(front) == "" {
		return c, nil
	}
	if err := yaml.Unmarshal([]byte(front), &c.Data); err != nil {
		return Card{}, fmt.Errorf("parsing model card metadata: %w", err)
	}
	return c, nil
}

// Source reads files from a hub repo.
type Source interface {
	ReadFile(ctx context.Context, repoID, revision, path string) ([]byte, error)
}

// Load fetches and parses repoID's README. A repo without a README yields an
// empty card.
func Load(ctx context.Context, src Source, repoID string) (Card, error) {
	data, err := src.ReadFile(ctx, repoID, hub.DefaultRevision, readmeFile)
	if errors.Is(err, hub.ErrEntryNotFound) {
		return Card{}, nil
	}
	if err != nil {
		return Card{}, fmt.Errorf("loading model card for %s: %w", repoID, err)
	}
	return Parse(data)
}

// Meta describes the conversion for the generated card.
type Meta struct {
	ModelName      string
	Platform       string
	QType          string
	AdapterID      string
	ToolkitVersion string
}

type link struct {
	Title string
	URL   string
}

var usefulLinks = []link{
	{"Official RKLLM GitHub", "https://github.com/airockchip/rknn-llm"},
	{"RockhipNPU Reddit", "https://reddit.com/r/RockchipNPU"},
	{"EZRKNN-LLM", "https://github.com/Pelochus/ezrknn-llm/"},
}

var readmeTemplate = template.Must(template.New("readme").Parse(`---
{{ .Data }}
---
# {{ .Meta.ModelName }}-{{ .Platform }}-{{ .Meta.ToolkitVersion }}

This version of {{ .Meta.ModelName }} has been converted to run on the {{ .Platform }} NPU using {{ .Meta.QType }} quantization.

{{ if .Meta.AdapterID }}This model has been optimized with the following LoRA: {{ .Meta.AdapterID }}

{{ end }}Compatible with RKLLM version: {{ .Meta.ToolkitVersion }}

### Useful links:
{{ range .Links }}[{{ .Title }}]({{ .URL }})

{{ end }}Pretty much anything by these folks: [marty1885](https://github.com/marty1885) and [happyme531](https://huggingface.co/happyme531)

# Original Model Card for base model, {{ .Meta.ModelName }}, below:

{{ .Text }}`))

// Render builds the README for a converted model from the source card.
func Render(in Card, meta Meta) (string, error) {
	data, err := in.DataYAML()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = readmeTemplate.Execute(&buf, map[string]any{
		"Data":     data,
		"Meta":     meta,
		"Platform": strings.ToUpper(meta.Platform),
		"Links":    usefulLinks,
		"Text":     in.Text,
	})
	if err != nil {
		return "", fmt.Errorf("rendering model card: %w", err)
	}
	return buf.String(), nil
}

// Write saves content to path.
func Write(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing model card %s: %w", path, err)
	}
	return nil
}
