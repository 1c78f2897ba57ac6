// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package container implements runtime detection and execution for the
// conversion toolkit: Docker or Podman when the toolkit ships as an image,
// or the host itself when it is installed natively.
package container

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"

	"github.com/wknd/ez-er-rkllm-toolkit2/pkg/types"
)

const (
	binDocker = "docker"
	binPodman = "podman"
	nameHost  = "host"
)

// Mount binds a host directory into the container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec describes one invocation.
type RunSpec struct {
	// Image is ignored by the host runtime.
	Image string
	// Args is the command and its arguments.
	Args    []string
	Mounts  []Mount
	Env     map[string]string
	WorkDir string
	// User is "uid:gid" for container runtimes; ignored on the host.
	User string
}

// Runtime provides container operations: checking availability, verifying
// images, and running commands.
type Runtime interface {
	// Name returns the runtime name ("docker", "podman", or "host").
	Name() string

	// Containerized reports whether commands run inside an image, which
	// means host paths must be reached through mounts.
	Containerized() bool

	// Available reports whether the runtime binary exists on PATH and
	// responds to an info command.
	Available(ctx context.Context) bool

	// ImageExists checks whether the named image exists locally.
	// Returns nil when the image is found, or an error describing the failure.
	ImageExists(ctx context.Context, image string) error

	// Run executes spec, piping stdin, stdout and stderr.
	Run(ctx context.Context, spec RunSpec, stdin io.Reader, stdout, stderr io.Writer) error
}

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	RunSilent(ctx context.Context, name string, args ...string) error
	RunPiped(ctx context.Context, cmd Command, stdin io.Reader, stdout, stderr io.Writer) error
}

// Command is a fully resolved process invocation.
type Command struct {
	Name string
	Args []string
	Env  []string
	Dir  string
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) RunSilent(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

func (o *osExecutor) RunPiped(ctx context.Context, c Command, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	return cmd.Run()
}

// runtime implements Runtime for a specific container binary. Both Docker
// and Podman share the same logic; they differ only in binary name and the
// subcommand used to check image existence.
type runtime struct {
	bin           string
	imageCheckCmd []string // e.g. ["image", "inspect"] for docker
	exec          executor
}

func (r *runtime) Name() string { return r.bin }

func (r *runtime) Containerized() bool { return true }

func (r *runtime) Available(ctx context.Context) bool {
	if _, err := r.exec.LookPath(r.bin); err != nil {
		return false
	}
	return r.exec.RunSilent(ctx, r.bin, "info") == nil
}

func (r *runtime) ImageExists(ctx context.Context, image string) error {
	args := make([]string, 0, len(r.imageCheckCmd)+1)
	args = append(args, r.imageCheckCmd...)
	args = append(args, image)

	if err := r.exec.RunSilent(ctx, r.bin, args...); err != nil {
		return fmt.Errorf("image %s not found in %s: %w", image, r.bin, err)
	}
	return nil
}

func (r *runtime) Run(ctx context.Context, spec RunSpec, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := Command{Name: r.bin, Args: runArgs(spec)}
	if err := r.exec.RunPiped(ctx, cmd, stdin, stdout, stderr); err != nil {
		return fmt.Errorf("running %s container %s: %w", r.bin, spec.Image, err)
	}
	return nil
}

// runArgs builds "run --rm -i [-v ...] [-e ...] [-w ...] [--user ...] image args...".
// Env keys are sorted so the command line is deterministic.
func runArgs(spec RunSpec) []string {
	args := []string{"run", "--rm", "-i"}
	for _, m := range spec.Mounts {
		v := m.Source + ":" + m.Target
		if m.ReadOnly {
			v += ":ro"
		}
		args = append(args, "-v", v)
	}
	for _, kv := range envList(spec.Env) {
		args = append(args, "-e", kv)
	}
	if spec.WorkDir != "" {
		args = append(args, "-w", spec.WorkDir)
	}
	if spec.User != "" {
		args = append(args, "--user", spec.User)
	}
	args = append(args, spec.Image)
	return append(args, spec.Args...)
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + env[k]
	}
	return out
}

// hostRuntime runs commands directly on the machine.
type hostRuntime struct {
	exec executor
}

func (h *hostRuntime) Name() string { return nameHost }

func (h *hostRuntime) Containerized() bool { return false }

func (h *hostRuntime) Available(context.Context) bool { return true }

func (h *hostRuntime) ImageExists(context.Context, string) error { return nil }

func (h *hostRuntime) Run(ctx context.Context, spec RunSpec, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(spec.Args) == 0 {
		return fmt.Errorf("host run: no command given")
	}
	if _, err := h.exec.LookPath(spec.Args[0]); err != nil {
		return fmt.Errorf("host run: %s not found on PATH: %w", spec.Args[0], err)
	}
	cmd := Command{
		Name: spec.Args[0],
		Args: spec.Args[1:],
		Env:  envList(spec.Env),
		Dir:  spec.WorkDir,
	}
	if err := h.exec.RunPiped(ctx, cmd, stdin, stdout, stderr); err != nil {
		return fmt.Errorf("running %s on host: %w", spec.Args[0], err)
	}
	return nil
}

func newDockerRuntime(exec executor) *runtime {
	return &runtime{
		bin:           binDocker,
		imageCheckCmd: []string{"image", "inspect"},
		exec:          exec,
	}
}

func newPodmanRuntime(exec executor) *runtime {
	return &runtime{
		bin:           binPodman,
		imageCheckCmd: []string{"image", "exists"},
		exec:          exec,
	}
}

func newHostRuntime(exec executor) *hostRuntime {
	return &hostRuntime{exec: exec}
}

var defaultExec = &osExecutor{}

// Select returns the runtime named by pref. "auto" (or empty) tries docker
// first and falls back to podman. Returns an error when the requested
// runtime is not operational.
func Select(ctx context.Context, pref types.ToolkitRuntime) (Runtime, error) {
	return selectRuntime(ctx, defaultExec, pref)
}

func selectRuntime(ctx context.Context, exec executor, pref types.ToolkitRuntime) (Runtime, error) {
	var rt Runtime
	switch pref {
	case types.RuntimeAuto, "":
		return detectRuntime(ctx, exec)
	case types.RuntimeDocker:
		rt = newDockerRuntime(exec)
	case types.RuntimePodman:
		rt = newPodmanRuntime(exec)
	case types.RuntimeHost:
		return newHostRuntime(exec), nil
	default:
		return nil, fmt.Errorf("unknown toolkit runtime %q: use auto, docker, podman, or host", pref)
	}
	if !rt.Available(ctx) {
		return nil, fmt.Errorf("%s is not installed or not operational", rt.Name())
	}
	return rt, nil
}

// DetectRuntime tries docker first, falls back to podman. Returns an error
// if neither runtime is available.
func DetectRuntime(ctx context.Context) (Runtime, error) {
	return detectRuntime(ctx, defaultExec)
}

func detectRuntime(ctx context.Context, exec executor) (Runtime, error) {
	docker := newDockerRuntime(exec)
	if docker.Available(ctx) {
		return docker, nil
	}

	podman := newPodmanRuntime(exec)
	if podman.Available(ctx) {
		return podman, nil
	}

	return nil, fmt.Errorf(
		"no container runtime available: neither %s nor %s found or operational (set toolkit.runtime=host to run the toolkit natively)",
		binDocker, binPodman,
	)
}
