// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package toolkit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wknd/ez-er-rkllm-toolkit2/internal/container"
	"github.com/wknd/ez-er-rkllm-toolkit2/pkg/types"
)

// fakeRuntime records the RunSpec and replays scripted driver output.
type fakeRuntime struct {
	containerized bool
	imageErr      error
	output        string
	runErr        error
	onRun         func(spec container.RunSpec)

	gotSpec   container.RunSpec
	gotScript string
}

func (f *fakeRuntime) Name() string        { return "fake" }
func (f *fakeRuntime) Containerized() bool { return f.containerized }
func (f *fakeRuntime) Available(context.Context) bool {
	return true
}
func (f *fakeRuntime) ImageExists(context.Context, string) error { return f.imageErr }

func (f *fakeRuntime) Run(_ context.Context, spec container.RunSpec, stdin io.Reader, stdout, _ io.Writer) error {
	f.gotSpec = spec
	data, _ := io.ReadAll(stdin)
	f.gotScript = string(data)
	if f.onRun != nil {
		f.onRun(spec)
	}
	// Split writes mid-line to exercise buffering.
	for len(f.output) > 0 {
		n := min(7, len(f.output))
		stdout.Write([]byte(f.output[:n]))
		f.output = f.output[n:]
	}
	return f.runErr
}

func event(stage string, status int) string {
	return fmt.Sprintf("%s{\"stage\":%q,\"status\":%d}\n", eventPrefix, stage, status)
}

func okOutput() string {
	return "INFO: rkllm-toolkit version: 1.1.1\n" +
		event(StageImport, 0) +
		event(StageLoad, 0) +
		"Building model: 100%\n" +
		event(StageBuild, 0) +
		event(StageExport, 0)
}

func testRequest(t *testing.T) (Request, string) {
	t.Helper()
	root := t.TempDir()
	exportDir := filepath.Join(root, "Qwen-rk3588")
	require.NoError(t, os.MkdirAll(exportDir, 0o755))
	return Request{
		Library:      types.LibraryHF,
		ModelPath:    filepath.Join(root, "Qwen"),
		AdapterPath:  filepath.Join(root, "lora"),
		Platform:     types.PlatformRK3588,
		QType:        "w8a8_g128",
		Optimization: 1,
		HybridRate:   0.5,
		NPUCores:     3,
		Device:       "cpu",
		ExportFile:   filepath.Join(exportDir, "Qwen.rkllm"),
		Root:         root,
	}, root
}

func createExport(req Request) func(container.RunSpec) {
	return func(container.RunSpec) {
		os.WriteFile(req.ExportFile, []byte("rkllm"), 0o644)
	}
}

func TestConvert_Container(t *testing.T) {
	req, root := testRequest(t)
	rt := &fakeRuntime{containerized: true, output: okOutput(), onRun: createExport(req)}
	c := New(rt, types.ToolkitConfig{Image: "toolkit:test"})

	var out bytes.Buffer
	require.NoError(t, c.Convert(context.Background(), req, &out))

	spec := rt.gotSpec
	assert.Equal(t, "toolkit:test", spec.Image)
	require.Len(t, spec.Mounts, 1)
	assert.Equal(t, root, spec.Mounts[0].Source)
	assert.Equal(t, "/models", spec.Mounts[0].Target)
	assert.Equal(t, "/models", spec.WorkDir)
	assert.Equal(t, "1", spec.Env["PYTHONUNBUFFERED"])

	args := strings.Join(spec.Args, " ")
	assert.True(t, strings.HasPrefix(args, "python3 - --library HF --model /models/Qwen "), args)
	assert.Contains(t, args, "--platform rk3588 --qtype w8a8_g128 --optimization 1 --hybrid-rate 0.5 --npu-cores 3")
	assert.Contains(t, args, "--export /models/Qwen-rk3588/Qwen.rkllm")
	assert.Contains(t, args, "--lora /models/lora")

	assert.Equal(t, string(driverScript), rt.gotScript)
	assert.Equal(t, "INFO: rkllm-toolkit version: 1.1.1\nBuilding model: 100%\n", out.String(),
		"toolkit output is forwarded and event lines are consumed")
}

func TestConvert_Host(t *testing.T) {
	req, _ := testRequest(t)
	req.AdapterPath = ""
	rt := &fakeRuntime{output: okOutput(), onRun: createExport(req)}
	c := New(rt, types.ToolkitConfig{Python: "/opt/venv/bin/python"})

	require.NoError(t, c.Convert(context.Background(), req, io.Discard))
	spec := rt.gotSpec
	assert.Empty(t, spec.Mounts)
	assert.Empty(t, spec.User)
	assert.Equal(t, "/opt/venv/bin/python", spec.Args[0])
	assert.Contains(t, spec.Args, req.ModelPath, "host paths are passed unchanged")
	assert.NotContains(t, spec.Args, "--lora")
}

func TestConvert_StageFailure(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		wantStage string
		wantMsg   string
	}{
		{
			name:      "load returns nonzero",
			output:    event(StageImport, 0) + event(StageLoad, -1),
			wantStage: StageLoad,
			wantMsg:   "failed to load model: -1",
		},
		{
			name:      "build returns nonzero",
			output:    event(StageImport, 0) + event(StageLoad, 0) + event(StageBuild, 1),
			wantStage: StageBuild,
			wantMsg:   "failed to build model: 1",
		},
		{
			name:      "export raises",
			output:    event(StageImport, 0) + event(StageLoad, 0) + event(StageBuild, 0) + eventPrefix + `{"stage":"export","status":-1,"error":"disk full"}` + "\n",
			wantStage: StageExport,
			wantMsg:   "failed to export model: -1 (disk full)",
		},
		{
			name:      "toolkit not installed",
			output:    eventPrefix + `{"stage":"import","status":-1,"error":"No module named 'rkllm'"}`,
			wantStage: StageImport,
			wantMsg:   "failed to import toolkit",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := testRequest(t)
			rt := &fakeRuntime{containerized: true, output: tt.output, runErr: errors.New("exit status 1")}
			err := New(rt, types.ToolkitConfig{}).Convert(context.Background(), req, io.Discard)

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, tt.wantStage, stageErr.Stage)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestConvert_RunErrorWithoutEvents(t *testing.T) {
	req, _ := testRequest(t)
	rt := &fakeRuntime{containerized: true, output: "docker: image not found\n", runErr: errors.New("exit status 125")}
	err := New(rt, types.ToolkitConfig{}).Convert(context.Background(), req, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "running toolkit")
}

func TestConvert_IncompleteRun(t *testing.T) {
	req, _ := testRequest(t)
	rt := &fakeRuntime{containerized: true, output: event(StageImport, 0) + event(StageLoad, 0)}
	err := New(rt, types.ToolkitConfig{}).Convert(context.Background(), req, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before exporting")
}

func TestConvert_ExportFileMissing(t *testing.T) {
	req, _ := testRequest(t)
	rt := &fakeRuntime{containerized: true, output: okOutput()}
	err := New(rt, types.ToolkitConfig{}).Convert(context.Background(), req, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is missing")
}

func TestConvert_PathOutsideRoot(t *testing.T) {
	req, _ := testRequest(t)
	req.ModelPath = t.TempDir()
	rt := &fakeRuntime{containerized: true}
	err := New(rt, types.ToolkitConfig{}).Convert(context.Background(), req, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside the models root")
}

func TestCheck(t *testing.T) {
	assert.NoError(t, New(&fakeRuntime{containerized: true}, types.ToolkitConfig{}).Check(context.Background()))
	assert.Error(t, New(&fakeRuntime{containerized: true, imageErr: errors.New("no image")}, types.ToolkitConfig{}).Check(context.Background()))
	assert.NoError(t, New(&fakeRuntime{imageErr: errors.New("ignored")}, types.ToolkitConfig{}).Check(context.Background()))
	assert.Equal(t, DefaultImage, New(&fakeRuntime{}, types.ToolkitConfig{}).Image())
}

func TestRequestFromPlan(t *testing.T) {
	root := t.TempDir()
	modelDir := filepath.Join(root, "Model-GGUF")
	require.NoError(t, os.MkdirAll(modelDir, 0o755))

	p := types.Plan{
		Selection: types.Selection{
			ModelID:      "org/Model-GGUF",
			AdapterID:    "org/lora",
			Library:      types.LibraryGGUF,
			Platform:     types.PlatformRK3576,
			Optimization: 0,
			QType:        "w4a16",
			HybridRate:   0,
		},
		NPUCores:   2,
		Device:     "cpu",
		ModelDir:   modelDir,
		AdapterDir: filepath.Join(root, "lora"),
		ExportFile: filepath.Join(root, "out", "m.rkllm"),
		ModelsRoot: root,
	}

	_, err := RequestFromPlan(p)
	require.Error(t, err, "GGUF without a .gguf file")

	gguf := filepath.Join(modelDir, "model-q8_0.gguf")
	require.NoError(t, os.WriteFile(gguf, []byte("GGUF"), 0o644))

	req, err := RequestFromPlan(p)
	require.NoError(t, err)
	assert.Equal(t, gguf, req.ModelPath)
	assert.Equal(t, p.AdapterDir, req.AdapterPath)
	assert.Equal(t, 2, req.NPUCores)
	assert.Equal(t, root, req.Root)

	p.Selection.Library = types.LibraryHF
	p.Selection.AdapterID = ""
	req, err = RequestFromPlan(p)
	require.NoError(t, err)
	assert.Equal(t, modelDir, req.ModelPath)
	assert.Empty(t, req.AdapterPath)
}

func TestEventWriter_IgnoresMalformedEvents(t *testing.T) {
	var out bytes.Buffer
	ew := newEventWriter(&out)
	fmt.Fprint(ew, eventPrefix+"not json\n")
	fmt.Fprint(ew, "tail without newline")
	ew.Flush()

	assert.Empty(t, ew.Events())
	assert.Equal(t, eventPrefix+"not json\ntail without newline", out.String())
}
