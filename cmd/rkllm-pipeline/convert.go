// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"

	"github.com/wknd/ez-er-rkllm-toolkit2/internal/workspace"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a downloaded model with the RKLLM toolkit",
	Long: `Convert loads the downloaded model (HF directory or the first .gguf file),
builds it for the target platform, and exports the .rkllm file into the
export directory. The toolkit runs in the configured container image, or on
the host with --runtime host.`,
	RunE: runConvert,
}

func init() {
	addSelectionFlags(convertCmd)
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := buildPlan(cmd, cfg)
	if err != nil {
		return err
	}
	r, closeFn, err := newRunner(cmd, cfg, runnerOptions{toolkit: true})
	if err != nil {
		return err
	}
	defer closeFn()

	if err := workspace.Mkpath(p.ExportDir, cmd.OutOrStdout()); err != nil {
		return err
	}
	return r.Convert(cmd.Context(), p)
}
