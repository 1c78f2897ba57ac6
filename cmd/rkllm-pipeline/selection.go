// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wknd/ez-er-rkllm-toolkit2/internal/hub"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/plan"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/prompt"
	"github.com/wknd/ez-er-rkllm-toolkit2/pkg/types"
)

// addSelectionFlags registers the build choices. Flag values become the
// preset answers of the interactive prompts.
func addSelectionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("model", prompt.DefaultModelID, "hub repo id of the base model (owner/name)")
	f.String("lora", "", "hub repo id of a LoRA adapter (empty for none)")
	f.String("library", string(types.LibraryHF), "model format: HF or GGUF")
	f.String("platform", string(types.PlatformRK3588), "target platform: rk3588 or rk3576")
	f.Int("optimization", 0, "1 to optimize the model (better performance, longer conversion), 0 for none")
	f.String("qtype", "", "quantization type (default: first type of the platform)")
	f.String("hybrid-rate", "0.0", "block (group-wise quantization) ratio between 0 and 1; 0 disables it")
	f.BoolP("yes", "y", false, "do not prompt; use flag values")
}

func selectionDefaults(cmd *cobra.Command) (types.Selection, error) {
	f := cmd.Flags()
	model, _ := f.GetString("model")
	lora, _ := f.GetString("lora")
	library, _ := f.GetString("library")
	platform, _ := f.GetString("platform")
	opt, _ := f.GetInt("optimization")
	qtype, _ := f.GetString("qtype")
	rateStr, _ := f.GetString("hybrid-rate")

	rate, err := plan.ParseRate(rateStr)
	if err != nil {
		return types.Selection{}, err
	}
	return types.Selection{
		ModelID:      model,
		AdapterID:    lora,
		Library:      types.LibraryType(library),
		Platform:     types.Platform(platform),
		Optimization: opt,
		QType:        types.QType(qtype),
		HybridRate:   rate,
	}, nil
}

// collectSelection prompts for the selection on a terminal, or takes the
// flag values as given with --yes or without a terminal.
func collectSelection(cmd *cobra.Command) (types.Selection, error) {
	defaults, err := selectionDefaults(cmd)
	if err != nil {
		return types.Selection{}, err
	}
	yes, _ := cmd.Flags().GetBool("yes")
	if yes || !prompt.IsInteractive() {
		if err := prompt.ValidateRepoID(defaults.ModelID); err != nil {
			return types.Selection{}, fmt.Errorf("--model: %w", err)
		}
		return prompt.Collect(&prompt.Scripted{}, defaults)
	}
	return prompt.Collect(prompt.NewTerminal(), defaults)
}

// buildPlan collects the selection and derives the build plan.
func buildPlan(cmd *cobra.Command, cfg types.PipelineConfig) (types.Plan, error) {
	sel, err := collectSelection(cmd)
	if err != nil {
		return types.Plan{}, err
	}
	p, err := plan.Build(sel, cfg.Workspace, cfg.Toolkit.Version)
	if err != nil {
		return types.Plan{}, err
	}
	if cfg.Toolkit.Device != "" {
		p.Device = cfg.Toolkit.Device
	}
	// Earlier downloads may have left the files in a per-repo subdirectory.
	if d := hub.SnapshotDir(p.ModelDir, sel.ModelID); d != p.ModelDir {
		p.ModelSnapshot = d
	}
	if sel.HasAdapter() {
		if d := hub.SnapshotDir(p.AdapterDir, sel.AdapterID); d != p.AdapterDir {
			p.AdapterSnapshot = d
		}
	}
	return p, nil
}
