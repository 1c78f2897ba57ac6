// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package container

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/wknd/ez-er-rkllm-toolkit2/pkg/types"
)

// mockExecutor records calls and returns configured responses.
type mockExecutor struct {
	availableBins map[string]bool // binary -> whether LookPath succeeds
	runnableCmds  map[string]bool // "bin arg1 arg2" -> whether RunSilent succeeds
	runPipedFunc  func(cmd Command, stdin io.Reader, stdout, stderr io.Writer) error
	lastPiped     Command
}

func (m *mockExecutor) LookPath(file string) (string, error) {
	if m.availableBins[file] {
		return "/usr/bin/" + file, nil
	}
	return "", errors.New("not found: " + file)
}

func (m *mockExecutor) RunSilent(_ context.Context, name string, args ...string) error {
	key := name + " " + strings.Join(args, " ")
	if m.runnableCmds[key] {
		return nil
	}
	return errors.New("command failed: " + key)
}

func (m *mockExecutor) RunPiped(_ context.Context, cmd Command, stdin io.Reader, stdout, stderr io.Writer) error {
	m.lastPiped = cmd
	if m.runPipedFunc != nil {
		return m.runPipedFunc(cmd, stdin, stdout, stderr)
	}
	return nil
}

func TestDetectRuntime(t *testing.T) {
	tests := []struct {
		name     string
		exec     *mockExecutor
		wantName string
		wantErr  bool
	}{
		{
			name: "docker available",
			exec: &mockExecutor{
				availableBins: map[string]bool{"docker": true},
				runnableCmds:  map[string]bool{"docker info": true},
			},
			wantName: "docker",
		},
		{
			name: "podman fallback when docker missing",
			exec: &mockExecutor{
				availableBins: map[string]bool{"podman": true},
				runnableCmds:  map[string]bool{"podman info": true},
			},
			wantName: "podman",
		},
		{
			name: "neither available",
			exec: &mockExecutor{
				availableBins: map[string]bool{},
				runnableCmds:  map[string]bool{},
			},
			wantErr: true,
		},
		{
			name: "docker on PATH but info fails, podman works",
			exec: &mockExecutor{
				availableBins: map[string]bool{"docker": true, "podman": true},
				runnableCmds:  map[string]bool{"podman info": true},
			},
			wantName: "podman",
		},
		{
			name: "both available, docker preferred",
			exec: &mockExecutor{
				availableBins: map[string]bool{"docker": true, "podman": true},
				runnableCmds:  map[string]bool{"docker info": true, "podman info": true},
			},
			wantName: "docker",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, err := detectRuntime(context.Background(), tt.exec)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), "no container runtime available") {
					t.Errorf("error should mention no runtime available, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rt.Name() != tt.wantName {
				t.Errorf("got runtime %q, want %q", rt.Name(), tt.wantName)
			}
		})
	}
}

func TestSelectRuntime(t *testing.T) {
	both := func() *mockExecutor {
		return &mockExecutor{
			availableBins: map[string]bool{"docker": true, "podman": true},
			runnableCmds:  map[string]bool{"docker info": true, "podman info": true},
		}
	}
	tests := []struct {
		name     string
		pref     types.ToolkitRuntime
		exec     *mockExecutor
		wantName string
		wantErr  string
	}{
		{"auto picks docker", types.RuntimeAuto, both(), "docker", ""},
		{"empty means auto", "", both(), "docker", ""},
		{"explicit podman", types.RuntimePodman, both(), "podman", ""},
		{"host needs nothing", types.RuntimeHost, &mockExecutor{}, "host", ""},
		{"explicit docker missing", types.RuntimeDocker, &mockExecutor{}, "", "not installed"},
		{"unknown runtime", "lxc", both(), "", "unknown toolkit runtime"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, err := selectRuntime(context.Background(), tt.exec, tt.pref)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rt.Name() != tt.wantName {
				t.Errorf("got runtime %q, want %q", rt.Name(), tt.wantName)
			}
		})
	}
}

func TestImageExists(t *testing.T) {
	tests := []struct {
		name    string
		mkRT    func(*mockExecutor) Runtime
		image   string
		cmds    map[string]bool
		wantErr bool
	}{
		{
			name:  "docker image exists",
			mkRT:  func(e *mockExecutor) Runtime { return newDockerRuntime(e) },
			image: "rkllm-toolkit:1.1.1",
			cmds:  map[string]bool{"docker image inspect rkllm-toolkit:1.1.1": true},
		},
		{
			name:    "docker image not found",
			mkRT:    func(e *mockExecutor) Runtime { return newDockerRuntime(e) },
			image:   "rkllm-toolkit:1.1.1",
			cmds:    map[string]bool{},
			wantErr: true,
		},
		{
			name:  "podman image exists",
			mkRT:  func(e *mockExecutor) Runtime { return newPodmanRuntime(e) },
			image: "rkllm-toolkit:1.1.1",
			cmds:  map[string]bool{"podman image exists rkllm-toolkit:1.1.1": true},
		},
		{
			name:    "podman image not found",
			mkRT:    func(e *mockExecutor) Runtime { return newPodmanRuntime(e) },
			image:   "rkllm-toolkit:1.1.1",
			cmds:    map[string]bool{},
			wantErr: true,
		},
		{
			name:  "host has no images",
			mkRT:  func(e *mockExecutor) Runtime { return newHostRuntime(e) },
			image: "anything",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &mockExecutor{runnableCmds: tt.cmds}
			rt := tt.mkRT(exec)
			err := rt.ImageExists(context.Background(), tt.image)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.image) {
					t.Errorf("error should mention image name, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRun(t *testing.T) {
	spec := RunSpec{
		Image:   "rkllm-toolkit:1.1.1",
		Args:    []string{"python3", "-", "--platform", "rk3588"},
		Mounts:  []Mount{{Source: "/home/u/models", Target: "/models"}, {Source: "/etc/x", Target: "/x", ReadOnly: true}},
		Env:     map[string]string{"PYTHONUNBUFFERED": "1", "HOME": "/tmp"},
		WorkDir: "/models",
		User:    "1000:1000",
	}
	wantArgs := "run --rm -i -v /home/u/models:/models -v /etc/x:/x:ro -e HOME=/tmp -e PYTHONUNBUFFERED=1 -w /models --user 1000:1000 rkllm-toolkit:1.1.1 python3 - --platform rk3588"

	tests := []struct {
		name     string
		mkRT     func(*mockExecutor) Runtime
		input    string
		pipeFunc func(Command, io.Reader, io.Writer, io.Writer) error
		wantOut  string
		wantErr  bool
	}{
		{
			name:  "docker run pipes stdin to stdout",
			mkRT:  func(e *mockExecutor) Runtime { return newDockerRuntime(e) },
			input: "print('hi')",
			pipeFunc: func(cmd Command, stdin io.Reader, stdout, _ io.Writer) error {
				if cmd.Name != "docker" {
					return errors.New("expected docker binary")
				}
				if got := strings.Join(cmd.Args, " "); got != wantArgs {
					return errors.New("unexpected args: " + got)
				}
				data, _ := io.ReadAll(stdin)
				_, _ = stdout.Write([]byte("ran: " + string(data)))
				return nil
			},
			wantOut: "ran: print('hi')",
		},
		{
			name:  "podman run uses podman binary",
			mkRT:  func(e *mockExecutor) Runtime { return newPodmanRuntime(e) },
			input: "x",
			pipeFunc: func(cmd Command, stdin io.Reader, stdout, _ io.Writer) error {
				if cmd.Name != "podman" {
					return errors.New("expected podman binary")
				}
				_, _ = stdout.Write([]byte("ok"))
				return nil
			},
			wantOut: "ok",
		},
		{
			name:  "run failure returns wrapped error",
			mkRT:  func(e *mockExecutor) Runtime { return newDockerRuntime(e) },
			input: "x",
			pipeFunc: func(Command, io.Reader, io.Writer, io.Writer) error {
				return errors.New("container exited with code 1")
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &mockExecutor{runPipedFunc: tt.pipeFunc}
			rt := tt.mkRT(exec)
			var out bytes.Buffer
			err := rt.Run(context.Background(), spec, strings.NewReader(tt.input), &out, io.Discard)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := out.String(); got != tt.wantOut {
				t.Errorf("got output %q, want %q", got, tt.wantOut)
			}
		})
	}
}

func TestHostRun(t *testing.T) {
	exec := &mockExecutor{availableBins: map[string]bool{"python3": true}}
	rt := newHostRuntime(exec)

	spec := RunSpec{
		Image:   "ignored",
		Args:    []string{"python3", "-", "--x"},
		Mounts:  []Mount{{Source: "/a", Target: "/b"}},
		Env:     map[string]string{"B": "2", "A": "1"},
		WorkDir: "/work",
	}
	if err := rt.Run(context.Background(), spec, strings.NewReader(""), io.Discard, io.Discard); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := exec.lastPiped
	if got.Name != "python3" || strings.Join(got.Args, " ") != "- --x" {
		t.Errorf("unexpected command: %+v", got)
	}
	if strings.Join(got.Env, ",") != "A=1,B=2" {
		t.Errorf("unexpected env: %v", got.Env)
	}
	if got.Dir != "/work" {
		t.Errorf("got dir %q, want /work", got.Dir)
	}
	if rt.Containerized() {
		t.Error("host runtime must not be containerized")
	}

	missing := newHostRuntime(&mockExecutor{})
	if err := missing.Run(context.Background(), spec, nil, io.Discard, io.Discard); err == nil {
		t.Error("expected error when interpreter is missing")
	}
	if err := rt.Run(context.Background(), RunSpec{}, nil, io.Discard, io.Discard); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestRuntimeName(t *testing.T) {
	exec := &mockExecutor{}
	docker := newDockerRuntime(exec)
	if docker.Name() != "docker" {
		t.Errorf("docker runtime name = %q, want %q", docker.Name(), "docker")
	}
	podman := newPodmanRuntime(exec)
	if podman.Name() != "podman" {
		t.Errorf("podman runtime name = %q, want %q", podman.Name(), "podman")
	}
	if !docker.Containerized() || !podman.Containerized() {
		t.Error("docker and podman run inside images")
	}
}
