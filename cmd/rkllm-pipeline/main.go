// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the rkllm-pipeline CLI: download a
// model (and optional LoRA) from the hub, convert it for Rockchip NPUs with
// the RKLLM toolkit, and publish the export with a generated model card.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wknd/ez-er-rkllm-toolkit2/internal/logging"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

const (
	appName   = "rkllm-pipeline"
	envPrefix = "RKLLM_PIPELINE"
)

// rootCmd is the base command. Without a subcommand it runs the full pipeline.
var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Convert hub models for RK3588/RK3576 NPUs with the RKLLM toolkit",
	Long: `rkllm-pipeline downloads a model and an optional LoRA adapter from the
Hugging Face hub, converts them with the RKLLM toolkit for the rk3588 or
rk3576 NPU, and uploads the .rkllm export with its configs and a generated
model card to <user>/<model>-<platform>-<toolkit version>.

Each stage is also a subcommand: download, convert, card, and upload.
Choices are prompted for interactively unless given as flags with --yes.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.Setup(logging.Options{
			Level: viper.GetString("log.level"),
			JSON:  viper.GetBool("log.json"),
		})
		if err != nil {
			return err
		}
		cmd.SetContext(l.WithContext(cmd.Context()))
		if f := viper.ConfigFileUsed(); f != "" {
			l.Debug().Str("file", f).Msg("using config file")
		}
		return nil
	},
	RunE: runRun,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./rkllm-pipeline.yaml or ~/.config/rkllm-pipeline/config.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, or error")
	pf.Bool("log-json", false, "log as JSON instead of console text")
	pf.String("hub-endpoint", "", "hub base URL (default https://huggingface.co)")
	pf.String("models-dir", "", "root for downloaded models and exports (default ./models)")
	pf.String("runtime", "", "toolkit runtime: auto, docker, podman, or host")
	pf.Bool("private", false, "create destination repos as private")
	pf.Bool("cleanup", true, "remove this run's downloads and export after a successful upload")

	bindRootFlags()
	addSelectionFlags(rootCmd)
}

// bindRootFlags binds the persistent flags to their config keys.
func bindRootFlags() {
	pf := rootCmd.PersistentFlags()
	bindFlag("log.level", pf.Lookup("log-level"))
	bindFlag("log.json", pf.Lookup("log-json"))
	bindFlag("hub.endpoint", pf.Lookup("hub-endpoint"))
	bindFlag("workspace.models_dir", pf.Lookup("models-dir"))
	bindFlag("toolkit.runtime", pf.Lookup("runtime"))
	bindFlag("hub.private", pf.Lookup("private"))
	bindFlag("workspace.cleanup", pf.Lookup("cleanup"))
}

func initConfig() {
	if err := secrets.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(appName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", appName))
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fmt.Fprintln(os.Stderr, "warning: reading config:", err)
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
