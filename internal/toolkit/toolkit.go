// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package toolkit drives the RKLLM conversion toolkit. An embedded Python
// driver is piped to the interpreter (inside the toolkit image or on the
// host); it runs load, build, and export and reports each stage's status
// code as an event line that this package turns into Go errors.
package toolkit

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wknd/ez-er-rkllm-toolkit2/internal/container"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/workspace"
	"github.com/wknd/ez-er-rkllm-toolkit2/pkg/types"
)

//go:embed driver.py
var driverScript []byte

const (
	// DefaultImage is the toolkit image used by container runtimes.
	DefaultImage = "rkllm-toolkit:1.1.1"

	defaultPython = "python3"

	// containerRoot is where the models root is mounted inside the image.
	containerRoot = "/models"

	eventPrefix = "@@rkllm-event "
)

// Stages in the order the driver runs them.
const (
	StageImport = "import"
	StageLoad   = "load"
	StageBuild  = "build"
	StageExport = "export"
)

// StageError reports a nonzero status code from a toolkit stage.
type StageError struct {
	Stage   string
	Status  int
	Message string
}

func (e *StageError) Error() string {
	verb := map[string]string{
		StageImport: "import toolkit",
		StageLoad:   "load model",
		StageBuild:  "build model",
		StageExport: "export model",
	}[e.Stage]
	if verb == "" {
		verb = e.Stage
	}
	if e.Message != "" {
		return fmt.Sprintf("failed to %s: %d (%s)", verb, e.Status, e.Message)
	}
	return fmt.Sprintf("failed to %s: %d", verb, e.Status)
}

// Request is one conversion.
type Request struct {
	Library types.LibraryType
	// ModelPath is the model directory for HF, or the .gguf file for GGUF.
	ModelPath string
	// AdapterPath is the LoRA directory; empty means none.
	AdapterPath  string
	Platform     types.Platform
	QType        types.QType
	Optimization int
	HybridRate   float64
	NPUCores     int
	Device       string
	ExportFile   string
	// Root contains every path above; container runtimes mount it.
	Root string
}

// RequestFromPlan builds a Request. For GGUF the first .gguf file in the
// model directory is used.
func RequestFromPlan(p types.Plan) (Request, error) {
	sel := p.Selection
	req := Request{
		Library:      sel.Library,
		ModelPath:    p.ModelSource(),
		Platform:     sel.Platform,
		QType:        sel.QType,
		Optimization: sel.Optimization,
		HybridRate:   sel.HybridRate,
		NPUCores:     p.NPUCores,
		Device:       p.Device,
		ExportFile:   p.ExportFile,
		Root:         p.ModelsRoot,
	}
	if sel.HasAdapter() {
		req.AdapterPath = p.AdapterSource()
	}
	if sel.Library == types.LibraryGGUF {
		f, err := workspace.FindFile(p.ModelSource(), ".gguf")
		if err != nil {
			return Request{}, err
		}
		req.ModelPath = f
	}
	return req, nil
}

// Converter runs requests through a container runtime.
type Converter struct {
	rt     container.Runtime
	image  string
	python string
}

// New returns a converter for rt using cfg's image and interpreter.
func New(rt container.Runtime, cfg types.ToolkitConfig) *Converter {
	c := &Converter{rt: rt, image: cfg.Image, python: cfg.Python}
	if c.image == "" {
		c.image = DefaultImage
	}
	if c.python == "" {
		c.python = defaultPython
	}
	return c
}

// Runtime returns the runtime the converter uses.
func (c *Converter) Runtime() container.Runtime { return c.rt }

// Image returns the toolkit image.
func (c *Converter) Image() string { return c.image }

// Check verifies the toolkit image is present for container runtimes.
func (c *Converter) Check(ctx context.Context) error {
	if !c.rt.Containerized() {
		return nil
	}
	if err := c.rt.ImageExists(ctx, c.image); err != nil {
		return fmt.Errorf("toolkit image not available in %s: %w", c.rt.Name(), err)
	}
	return nil
}

// Convert runs load, build, and export. Toolkit output is streamed to w. A
// stage that reports a nonzero status aborts the conversion with a
// *StageError.
func (c *Converter) Convert(ctx context.Context, req Request, w io.Writer) error {
	spec, err := c.spec(req)
	if err != nil {
		return err
	}

	log := zerolog.Ctx(ctx)
	log.Debug().Str("runtime", c.rt.Name()).Strs("args", spec.Args).Msg("starting toolkit")

	ew := newEventWriter(w)
	runErr := c.rt.Run(ctx, spec, bytes.NewReader(driverScript), ew, ew)
	ew.Flush()

	events := ew.Events()
	for _, ev := range events {
		log.Debug().Str("stage", ev.Stage).Int("status", ev.Status).Msg("toolkit stage finished")
		if ev.Status != 0 {
			return &StageError{Stage: ev.Stage, Status: ev.Status, Message: ev.Error}
		}
	}
	if runErr != nil {
		return fmt.Errorf("running toolkit: %w", runErr)
	}
	if len(events) == 0 || events[len(events)-1].Stage != StageExport {
		return errors.New("toolkit exited before exporting the model")
	}
	if _, err := os.Stat(req.ExportFile); err != nil {
		return fmt.Errorf("toolkit reported success but %s is missing: %w", req.ExportFile, err)
	}
	return nil
}

// spec maps req to driver arguments, rewriting paths under the mounted
// root for container runtimes.
func (c *Converter) spec(req Request) (container.RunSpec, error) {
	path := func(p string) (string, error) { return p, nil }
	spec := container.RunSpec{
		Image: c.image,
		Env:   map[string]string{"PYTHONUNBUFFERED": "1"},
	}

	if c.rt.Containerized() {
		root, err := filepath.Abs(req.Root)
		if err != nil {
			return container.RunSpec{}, fmt.Errorf("resolving models root: %w", err)
		}
		path = func(p string) (string, error) { return containerPath(root, p) }
		spec.Mounts = []container.Mount{{Source: root, Target: containerRoot}}
		spec.WorkDir = containerRoot
		spec.Env["HOME"] = "/tmp"
		if uid, gid := os.Getuid(), os.Getgid(); uid >= 0 && gid >= 0 {
			spec.User = fmt.Sprintf("%d:%d", uid, gid)
		}
	}

	model, err := path(req.ModelPath)
	if err != nil {
		return container.RunSpec{}, err
	}
	export, err := path(req.ExportFile)
	if err != nil {
		return container.RunSpec{}, err
	}

	args := []string{
		c.python, "-",
		"--library", string(req.Library),
		"--model", model,
		"--device", req.Device,
		"--platform", string(req.Platform),
		"--qtype", string(req.QType),
		"--optimization", strconv.Itoa(req.Optimization),
		"--hybrid-rate", strconv.FormatFloat(req.HybridRate, 'f', -1, 64),
		"--npu-cores", strconv.Itoa(req.NPUCores),
		"--export", export,
	}
	if req.AdapterPath != "" {
		lora, err := path(req.AdapterPath)
		if err != nil {
			return container.RunSpec{}, err
		}
		args = append(args, "--lora", lora)
	}
	spec.Args = args
	return spec, nil
}

// containerPath maps p (relative to cwd or absolute) under root to the same
// location below containerRoot.
func containerPath(root, p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%s is outside the models root %s", p, root)
	}
	return containerRoot + "/" + filepath.ToSlash(rel), nil
}

// Event is one status line from the driver.
type Event struct {
	Stage  string `json:"stage"`
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
}

// eventWriter splits driver output into lines, collecting event lines and
// forwarding everything else. stdout and stderr share one writer.
type eventWriter struct {
	mu     sync.Mutex
	out    io.Writer
	buf    []byte
	events []Event
}

func newEventWriter(out io.Writer) *eventWriter {
	return &eventWriter{out: out}
}

func (e *eventWriter) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buf = append(e.buf, p...)
	for {
		i := bytes.IndexByte(e.buf, '\n')
		if i < 0 {
			break
		}
		e.line(e.buf[:i+1])
		e.buf = e.buf[i+1:]
	}
	return len(p), nil
}

// Flush handles a trailing line without newline.
func (e *eventWriter) Flush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.buf) > 0 {
		e.line(e.buf)
		e.buf = nil
	}
}

func (e *eventWriter) line(l []byte) {
	s := strings.TrimRight(string(l), "\r\n")
	if rest, ok := strings.CutPrefix(s, eventPrefix); ok {
		var ev Event
		if err := json.Unmarshal([]byte(rest), &ev); err == nil {
			e.events = append(e.events, ev)
			return
		}
	}
	e.out.Write(l)
}

// Events returns the collected events in arrival order.
func (e *eventWriter) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Event(nil), e.events...)
}
