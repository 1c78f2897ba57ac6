// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Publish an exported model with its configs and model card",
	Long: `Upload creates <user>/<model>-<platform>-<toolkit version> on the hub if it
does not exist, writes the model card, copies the base model's JSON configs
into the export directory, and uploads the directory in one commit.`,
	RunE: runUpload,
}

func init() {
	addSelectionFlags(uploadCmd)
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := buildPlan(cmd, cfg)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p.ExportFile); err != nil {
		return fmt.Errorf("export %s not found; run convert first: %w", p.ExportFile, err)
	}
	r, closeFn, err := newRunner(cmd, cfg, runnerOptions{hub: true})
	if err != nil {
		return err
	}
	defer closeFn()

	user, err := r.Login(cmd.Context())
	if err != nil {
		return err
	}
	_, err = r.Publish(cmd.Context(), user, p)
	return err
}
