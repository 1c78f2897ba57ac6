// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Download, convert, and publish a model (default command)",
	Long: `Run executes the full pipeline: prompt for the build choices, log in to the
hub, download the base model and optional LoRA, convert with the RKLLM
toolkit, create the destination repo, write the model card, copy the JSON
configs, upload the export directory, and remove the run's downloads and
export. Other entries of the models directory are left alone.

A failed LoRA download drops the adapter from the export. A failed toolkit
stage stops the run before anything is uploaded.`,
	RunE: runRun,
}

func init() {
	addSelectionFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := buildPlan(cmd, cfg)
	if err != nil {
		return err
	}
	r, closeFn, err := newRunner(cmd, cfg, runnerOptions{hub: true, toolkit: true, history: true})
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := r.Run(cmd.Context(), p)
	out := cmd.OutOrStdout()
	if res.Run.ID != "" {
		fmt.Fprintf(out, "run: %s (download %s, convert %s, upload %s)\n",
			res.Run.ID, res.Run.Download, res.Run.Convert, res.Run.Upload)
	}
	return err
}
