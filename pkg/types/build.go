// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the rkllm-pipeline CLI:
// the user's build selection, the derived build plan, and stage configuration.
package types

import (
	"fmt"
	"slices"
)

// Platform identifies the target NPU SoC.
type Platform string

const (
	PlatformRK3588 Platform = "rk3588"
	PlatformRK3576 Platform = "rk3576"
)

// Platforms lists the supported targets in prompt order.
var Platforms = []Platform{PlatformRK3588, PlatformRK3576}

// NPUCores returns the number of NPU cores the toolkit should build for.
// Unknown platforms return 0.
func (p Platform) NPUCores() int {
	switch p {
	case PlatformRK3588:
		return 3
	case PlatformRK3576:
		return 2
	default:
		return 0
	}
}

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	return slices.Contains(Platforms, p)
}

// QTypes returns the quantization types the toolkit accepts for p.
func (p Platform) QTypes() []QType {
	switch p {
	case PlatformRK3588:
		return []QType{"w8a8", "w8a8_g128", "w8a8_g256", "w8a8_g512"}
	case PlatformRK3576:
		return []QType{"w8a8", "w4a16", "w4a16_g32", "w4a16_g64", "w4a16_g128"}
	default:
		return nil
	}
}

// SupportsQType reports whether q is in p's choice set.
func (p Platform) SupportsQType(q QType) bool {
	return slices.Contains(p.QTypes(), q)
}

// QType is a toolkit quantization dtype (e.g. "w8a8_g128").
type QType string

// LibraryType selects the loader used for the base model.
type LibraryType string

const (
	LibraryHF   LibraryType = "HF"
	LibraryGGUF LibraryType = "GGUF"
)

// LibraryTypes lists the supported model formats in prompt order.
var LibraryTypes = []LibraryType{LibraryHF, LibraryGGUF}

// Valid reports whether l is a supported library type.
func (l LibraryType) Valid() bool {
	return slices.Contains(LibraryTypes, l)
}

// Selection holds the choices collected from the user before a run.
type Selection struct {
	// ModelID is the hub repo id of the base model, in owner/name form.
	ModelID string `json:"model_id" yaml:"model_id"`

	// AdapterID is the hub repo id of an optional LoRA adapter. Empty means none.
	AdapterID string `json:"adapter_id,omitempty" yaml:"adapter_id,omitempty"`

	Library  LibraryType `json:"library" yaml:"library"`
	Platform Platform    `json:"platform" yaml:"platform"`

	// Optimization is 1 to let the toolkit optimize the graph, 0 otherwise.
	Optimization int `json:"optimization" yaml:"optimization"`

	QType QType `json:"qtype" yaml:"qtype"`

	// HybridRate is the block (group-wise quantization) ratio in [0, 1].
	// Zero disables mixed quantization.
	HybridRate float64 `json:"hybrid_rate" yaml:"hybrid_rate"`
}

// HasAdapter reports whether an adapter was selected.
func (s Selection) HasAdapter() bool {
	return s.AdapterID != ""
}

// Validate checks the enumerated fields against their choice sets.
func (s Selection) Validate() error {
	if !s.Library.Valid() {
		return fmt.Errorf("library must be HF or GGUF, got %q", s.Library)
	}
	if !s.Platform.Valid() {
		return fmt.Errorf("platform must be rk3588 or rk3576, got %q", s.Platform)
	}
	if s.Optimization != 0 && s.Optimization != 1 {
		return fmt.Errorf("optimization must be 0 or 1, got %d", s.Optimization)
	}
	if !s.Platform.SupportsQType(s.QType) {
		return fmt.Errorf("quantization type %q is not available on %s (choices: %v)", s.QType, s.Platform, s.Platform.QTypes())
	}
	if s.HybridRate < 0 || s.HybridRate > 1 {
		return fmt.Errorf("hybrid rate must be between 0 and 1, got %v", s.HybridRate)
	}
	return nil
}

// Plan holds the build variables derived from a Selection: names, local
// directories, and the export target.
type Plan struct {
	Selection Selection `json:"selection" yaml:"selection"`

	NPUCores int    `json:"npu_cores" yaml:"npu_cores"`
	Device   string `json:"device" yaml:"device"`

	// ModelName is the part of ModelID after the owner.
	ModelName string `json:"model_name" yaml:"model_name"`
	ModelDir  string `json:"model_dir" yaml:"model_dir"`

	AdapterName string `json:"adapter_name,omitempty" yaml:"adapter_name,omitempty"`
	AdapterDir  string `json:"adapter_dir,omitempty" yaml:"adapter_dir,omitempty"`

	// ModelSnapshot and AdapterSnapshot are where the downloaded files
	// landed inside ModelDir and AdapterDir. Empty means the directory itself.
	ModelSnapshot   string `json:"model_snapshot,omitempty" yaml:"model_snapshot,omitempty"`
	AdapterSnapshot string `json:"adapter_snapshot,omitempty" yaml:"adapter_snapshot,omitempty"`

	// NameSuffix is "<platform>-<qtype>-opt-<opt>-hybrid-ratio-<rate>".
	NameSuffix string `json:"name_suffix" yaml:"name_suffix"`
	ExportName string `json:"export_name" yaml:"export_name"`
	ExportDir  string `json:"export_dir" yaml:"export_dir"`
	ExportFile string `json:"export_file" yaml:"export_file"`

	// ModelsRoot is the directory that holds every downloaded and exported tree.
	ModelsRoot string `json:"models_root" yaml:"models_root"`

	ToolkitVersion string `json:"toolkit_version" yaml:"toolkit_version"`
}

// ModelSource returns the directory holding the downloaded model files.
func (p Plan) ModelSource() string {
	if p.ModelSnapshot != "" {
		return p.ModelSnapshot
	}
	return p.ModelDir
}

// AdapterSource returns the directory holding the downloaded adapter files.
func (p Plan) AdapterSource() string {
	if p.AdapterSnapshot != "" {
		return p.AdapterSnapshot
	}
	return p.AdapterDir
}

// Trees returns the directories a run creates: model, adapter, and export.
func (p Plan) Trees() []string {
	var dirs []string
	for _, d := range []string{p.ModelDir, p.AdapterDir, p.ExportDir} {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}
