// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wknd/ez-er-rkllm-toolkit2/internal/workspace"
)

var cardCmd = &cobra.Command{
	Use:   "card",
	Short: "Generate the model card for an export without uploading",
	Long: `Card fetches the base model's README from the hub, keeps its YAML front
matter and body, and writes the converted model's README.md into the export
directory.`,
	RunE: runCard,
}

func init() {
	addSelectionFlags(cardCmd)
	cardCmd.Flags().Bool("print", false, "print the generated card")
	rootCmd.AddCommand(cardCmd)
}

func runCard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := buildPlan(cmd, cfg)
	if err != nil {
		return err
	}
	r, closeFn, err := newRunner(cmd, cfg, runnerOptions{hub: true})
	if err != nil {
		return err
	}
	defer closeFn()

	if err := workspace.Mkpath(p.ExportDir, cmd.OutOrStdout()); err != nil {
		return err
	}
	path, err := r.WriteCard(cmd.Context(), p)
	if err != nil {
		return err
	}
	if show, _ := cmd.Flags().GetBool("print"); show {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	}
	return nil
}
