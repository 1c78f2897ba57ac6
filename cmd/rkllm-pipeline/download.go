// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the base model and optional LoRA into the models directory",
	Long: `Download fetches every file of the base model repo below
<models-dir>/<model>/ and the LoRA adapter below <models-dir>/<lora>/.
Complete files are skipped, interrupted ones resume, and LFS files are
verified against their sha256.`,
	RunE: runDownload,
}

func init() {
	addSelectionFlags(downloadCmd)
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
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

	_, _ = r.Login(cmd.Context())
	_, err = r.Download(cmd.Context(), p)
	return err
}
