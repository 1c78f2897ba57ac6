// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/wknd/ez-er-rkllm-toolkit2/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past pipeline runs",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run as YAML (a unique id prefix is enough)",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of runs to list (0 for all)")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory() (*history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.History.Path == "" {
		return nil, errors.New("run history is disabled (history.path is empty)")
	}
	return history.Open(cfg.History.Path)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tMODEL\tPLATFORM\tQTYPE\tCONVERT\tUPLOAD\tREPO")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID), r.StartedAt.Local().Format(time.DateTime), r.Selection.ModelID,
			r.Selection.Platform, r.Selection.QType, r.Convert, r.Upload, r.RepoID)
	}
	return tw.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(run)
	if err != nil {
		return fmt.Errorf("encoding run: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
