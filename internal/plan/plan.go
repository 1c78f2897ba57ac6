// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package plan derives the build variables for a conversion run: model and
// adapter names, local directories, the export file name, and the hub repo
// the export is published to.
package plan

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wknd/ez-er-rkllm-toolkit2/pkg/types"
)

const (
	// DefaultToolkitVersion is the toolkit release the driver targets.
	DefaultToolkitVersion = "1.1.1"

	// DefaultModelsDir is where models are downloaded and exported.
	DefaultModelsDir = "models"

	defaultDevice = "cpu"
)

// ErrInvalidSelection is returned when a Selection cannot produce a plan.
var ErrInvalidSelection = errors.New("invalid selection")

// Build validates sel and derives the plan. An empty toolkitVersion uses
// DefaultToolkitVersion; an empty cfg.ModelsDir uses DefaultModelsDir.
func Build(sel types.Selection, cfg types.WorkspaceConfig, toolkitVersion string) (types.Plan, error) {
	if err := sel.Validate(); err != nil {
		return types.Plan{}, fmt.Errorf("%w: %v", ErrInvalidSelection, err)
	}

	modelName, err := RepoName(sel.ModelID)
	if err != nil {
		return types.Plan{}, fmt.Errorf("%w: model: %v", ErrInvalidSelection, err)
	}

	root := cfg.ModelsDir
	if root == "" {
		root = DefaultModelsDir
	}
	if toolkitVersion == "" {
		toolkitVersion = DefaultToolkitVersion
	}

	p := types.Plan{
		Selection:      sel,
		NPUCores:       sel.Platform.NPUCores(),
		Device:         defaultDevice,
		ModelName:      modelName,
		ModelDir:       filepath.Join(root, modelName),
		NameSuffix:     NameSuffix(sel),
		ModelsRoot:     root,
		ToolkitVersion: toolkitVersion,
	}

	if sel.HasAdapter() {
		adapterName, err := RepoName(sel.AdapterID)
		if err != nil {
			return types.Plan{}, fmt.Errorf("%w: adapter: %v", ErrInvalidSelection, err)
		}
		p.AdapterName = adapterName
		p.AdapterDir = filepath.Join(root, adapterName)
		p.ExportName = fmt.Sprintf("%s-%s-%s", modelName, adapterName, p.NameSuffix)
		p.ExportDir = filepath.Join(root, fmt.Sprintf("%s-%s-%s", modelName, adapterName, sel.Platform))
	} else {
		p.ExportName = fmt.Sprintf("%s-%s", modelName, p.NameSuffix)
		p.ExportDir = filepath.Join(root, fmt.Sprintf("%s-%s", modelName, sel.Platform))
	}
	p.ExportFile = filepath.Join(p.ExportDir, p.ExportName+".rkllm")

	return p, nil
}

// WithoutAdapter returns a copy of p with the adapter dropped. Export names
// and directories keep the adapter suffix so a rerun finds the same tree.
func WithoutAdapter(p types.Plan) types.Plan {
	p.Selection.AdapterID = ""
	p.AdapterDir = ""
	p.AdapterSnapshot = ""
	return p
}

// RepoName returns the part of an owner/name repo id after the first slash.
func RepoName(repoID string) (string, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(repoID), "/")
	if !ok || owner == "" || name == "" {
		return "", fmt.Errorf("repo id %q must be in owner/name form", repoID)
	}
	return name, nil
}

// NameSuffix formats "<platform>-<qtype>-opt-<opt>-hybrid-ratio-<rate>".
func NameSuffix(sel types.Selection) string {
	return fmt.Sprintf("%s-%s-opt-%d-hybrid-ratio-%s",
		sel.Platform, sel.QType, sel.Optimization, FormatRate(sel.HybridRate))
}

// FormatRate prints a ratio the way the toolkit's Python side names files:
// at least one decimal place (0 -> "0.0", 1 -> "1.0", 0.25 -> "0.25"), and
// exponent form below 1e-4 (0.00001 -> "1e-05") or from 1e16 up.
func FormatRate(r float64) string {
	if a := math.Abs(r); a != 0 && (a < 1e-4 || a >= 1e16) {
		return strconv.FormatFloat(r, 'e', -1, 64)
	}
	s := strconv.FormatFloat(r, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// ParseRate parses a hybrid ratio and checks it lies in [0, 1].
func ParseRate(s string) (float64, error) {
	r, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("hybrid rate %q is not a number", s)
	}
	if math.IsNaN(r) || r < 0 || r > 1 {
		return 0, fmt.Errorf("hybrid rate %v must be between 0 and 1", r)
	}
	return r, nil
}

// DestinationRepo returns "<user>/<model>-<platform>-<toolkit version>".
// The adapter name is not part of the repo id.
func DestinationRepo(user string, p types.Plan) string {
	return fmt.Sprintf("%s/%s-%s-%s", user, p.ModelName, p.Selection.Platform, p.ToolkitVersion)
}
