// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wknd/ez-er-rkllm-toolkit2/internal/container"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/history"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/hub"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/pipeline"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/prompt"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/secrets"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/toolkit"
	"github.com/wknd/ez-er-rkllm-toolkit2/pkg/types"
)

func nonInteractive(cmd *cobra.Command) bool {
	if f := cmd.Flags().Lookup("yes"); f != nil && f.Value.String() == "true" {
		return true
	}
	return !prompt.IsInteractive()
}

// resolveToken finds the hub token. When none is configured and a terminal
// is attached, the user is asked for one and it is saved to the hub cache.
// Without a token the client runs anonymously.
func resolveToken(cmd *cobra.Command, cfg types.PipelineConfig) (string, error) {
	log := zerolog.Ctx(cmd.Context())
	r := secrets.Resolver{Explicit: cfg.Hub.Token}

	token, src, err := r.Token()
	if err == nil {
		log.Debug().Str("source", string(src)).Msg("hub token found")
		return token, nil
	}
	if !errors.Is(err, secrets.ErrNoToken) {
		return "", err
	}
	if nonInteractive(cmd) {
		log.Warn().Msg("no hub token found; gated models and uploads will fail")
		return "", nil
	}

	token, err = prompt.NewTerminal().Secret("Please enter your Hugging Face token")
	if err != nil {
		return "", err
	}
	if path, err := r.SaveToken(token); err != nil {
		log.Warn().Err(err).Msg("could not save hub token")
	} else {
		log.Info().Str("path", path).Msg("hub token saved")
	}
	return token, nil
}

func newHubClient(cmd *cobra.Command, cfg types.PipelineConfig) (*hub.Client, error) {
	token, err := resolveToken(cmd, cfg)
	if err != nil {
		return nil, err
	}
	return hub.NewClient(cfg.Hub, token), nil
}

func newConverter(cmd *cobra.Command, cfg types.PipelineConfig) (*toolkit.Converter, error) {
	ctx := cmd.Context()
	rt, err := container.Select(ctx, cfg.Toolkit.Runtime)
	if err != nil {
		return nil, err
	}
	c := toolkit.New(rt, cfg.Toolkit)
	if err := c.Check(ctx); err != nil {
		return nil, fmt.Errorf("%w (build or pull %s, or set toolkit.image)", err, c.Image())
	}
	zerolog.Ctx(ctx).Debug().Str("runtime", rt.Name()).Str("image", c.Image()).Msg("toolkit ready")
	return c, nil
}

// runnerOptions selects which collaborators a command needs.
type runnerOptions struct {
	hub     bool
	toolkit bool
	history bool
}

// newRunner builds a pipeline runner. The returned close function releases
// the history database.
func newRunner(cmd *cobra.Command, cfg types.PipelineConfig, opts runnerOptions) (*pipeline.Runner, func(), error) {
	r := &pipeline.Runner{
		Out:     cmd.OutOrStdout(),
		Private: cfg.Hub.Private,
		Cleanup: cfg.Workspace.Cleanup,
	}
	closeFn := func() {}

	if opts.hub {
		c, err := newHubClient(cmd, cfg)
		if err != nil {
			return nil, closeFn, err
		}
		r.Hub = c
	}
	if opts.toolkit {
		c, err := newConverter(cmd, cfg)
		if err != nil {
			return nil, closeFn, err
		}
		r.Toolkit = c
	}
	if opts.history && cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			zerolog.Ctx(cmd.Context()).Warn().Err(err).Msg("run history disabled")
		} else {
			r.History = store
			closeFn = func() { store.Close() }
		}
	}
	return r, closeFn, nil
}
