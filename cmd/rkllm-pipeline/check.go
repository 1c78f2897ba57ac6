// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wknd/ez-er-rkllm-toolkit2/internal/container"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/hub"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/secrets"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/toolkit"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the toolkit runtime, image, and hub token",
	Long: `Check reports which container runtime would run the toolkit, whether the
toolkit image is present, where the hub token comes from, and which account
it belongs to. It never prompts.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	var problems []error

	rt, err := container.Select(ctx, cfg.Toolkit.Runtime)
	if err != nil {
		fmt.Fprintf(out, "runtime:  failed: %v\n", err)
		problems = append(problems, err)
	} else {
		fmt.Fprintf(out, "runtime:  %s\n", rt.Name())
		c := toolkit.New(rt, cfg.Toolkit)
		if err := c.Check(ctx); err != nil {
			fmt.Fprintf(out, "image:    failed: %v\n", err)
			problems = append(problems, err)
		} else if rt.Containerized() {
			fmt.Fprintf(out, "image:    %s\n", c.Image())
		}
	}

	token, src, err := secrets.Resolver{Explicit: cfg.Hub.Token}.Token()
	switch {
	case errors.Is(err, secrets.ErrNoToken):
		fmt.Fprintln(out, "token:    none (set HF_TOKEN or run `rkllm-pipeline run` to be asked)")
		problems = append(problems, err)
	case err != nil:
		fmt.Fprintf(out, "token:    failed: %v\n", err)
		problems = append(problems, err)
	default:
		fmt.Fprintf(out, "token:    from %s\n", src)
		u, err := hub.NewClient(cfg.Hub, token).Whoami(ctx)
		if err != nil {
			fmt.Fprintf(out, "account:  failed: %v\n", err)
			problems = append(problems, err)
		} else {
			fmt.Fprintf(out, "account:  %s\n", u.Name)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%d check(s) failed: %w", len(problems), errors.Join(problems...))
	}
	return nil
}
