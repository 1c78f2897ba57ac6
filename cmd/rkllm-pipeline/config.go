// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/wknd/ez-er-rkllm-toolkit2/internal/history"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/hub"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/plan"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/toolkit"
	"github.com/wknd/ez-er-rkllm-toolkit2/pkg/types"
)

// setDefaults registers every config key so environment variables are
// picked up by Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("hub.endpoint", hub.DefaultEndpoint)
	v.SetDefault("hub.token", "")
	v.SetDefault("hub.private", false)
	v.SetDefault("hub.concurrency", 4)
	v.SetDefault("hub.requests_per_second", 0.0)
	v.SetDefault("hub.max_retries", 5)
	v.SetDefault("hub.timeout", 60*time.Second)
	v.SetDefault("hub.user_agent", fmt.Sprintf("%s/%s", appName, version))

	v.SetDefault("toolkit.runtime", string(types.RuntimeAuto))
	v.SetDefault("toolkit.image", toolkit.DefaultImage)
	v.SetDefault("toolkit.python", "python3")
	v.SetDefault("toolkit.version", plan.DefaultToolkitVersion)
	v.SetDefault("toolkit.device", "cpu")

	v.SetDefault("workspace.models_dir", plan.DefaultModelsDir)
	v.SetDefault("workspace.cleanup", true)

	v.SetDefault("history.path", history.DefaultPath)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

func bindFlag(key string, f *pflag.Flag) {
	if err := viper.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", key, err))
	}
}

// loadConfig reads the merged flag, env, and file configuration.
func loadConfig() (types.PipelineConfig, error) {
	var cfg types.PipelineConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("reading configuration: %w", err)
	}
	return cfg, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Config prints the configuration after merging defaults, the config file,
RKLLM_PIPELINE_* environment variables, and flags. The hub token is masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Hub.Token != "" {
			cfg.Hub.Token = "********"
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encoding configuration: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
