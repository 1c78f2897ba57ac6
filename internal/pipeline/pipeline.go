// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline sequences a conversion run: log in to the hub, download
// the base model and optional adapter, convert through the toolkit, publish
// the export with a generated model card, clean up, and record the run.
//
// Hub calls other than the base model download are best effort: a failure
// is reported and the run continues. A failed toolkit stage stops the run
// before anything is published; a failed upload keeps the local files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wknd/ez-er-rkllm-toolkit2/internal/card"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/hub"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/plan"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/toolkit"
	"github.com/wknd/ez-er-rkllm-toolkit2/internal/workspace"
	"github.com/wknd/ez-er-rkllm-toolkit2/pkg/types"
)

// ReadmeFile is the generated model card inside the export directory.
const ReadmeFile = "README.md"

// ErrNoUser means the hub account is unknown, so there is no repo to publish to.
var ErrNoUser = errors.New("no hub account: log in to publish")

// Hub is the subset of the hub client the pipeline uses.
type Hub interface {
	Whoami(ctx context.Context) (hub.User, error)
	AuthCheck(ctx context.Context, repoID string) error
	Snapshot(ctx context.Context, repoID, dir string, w io.Writer) (hub.SnapshotResult, error)
	ReadFile(ctx context.Context, repoID, revision, path string) ([]byte, error)
	CreateRepo(ctx context.Context, repoID string, private bool) (string, error)
	UploadFolder(ctx context.Context, repoID, dir, message string, w io.Writer) (hub.CommitInfo, error)
}

// Converter runs the toolkit.
type Converter interface {
	Convert(ctx context.Context, req toolkit.Request, w io.Writer) error
}

// Recorder stores finished runs.
type Recorder interface {
	Record(ctx context.Context, run types.RunRecord) (string, error)
}

// Runner executes pipeline stages. Status lines go to Out.
type Runner struct {
	Hub     Hub
	Toolkit Converter
	// History is optional.
	History Recorder
	Out     io.Writer
	// Private creates destination repos as private.
	Private bool
	// Cleanup removes the run's model, adapter, and export trees after a
	// successful upload. The models root goes only when nothing else is in it.
	Cleanup bool
	Now     func() time.Time
}

// Result is the outcome of a full run.
type Result struct {
	// Plan is the plan as executed; the adapter is gone when its download failed.
	Plan types.Plan
	Run  types.RunRecord
	User string
}

// Published describes a finished upload.
type Published struct {
	RepoID  string
	RepoURL string
	Commit  hub.CommitInfo
	Configs int
}

func (r *Runner) out() io.Writer {
	if r.Out == nil {
		return io.Discard
	}
	return r.Out
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run executes every stage for p. The returned error is the first one that
// stopped the run; the result is filled in either way.
func (r *Runner) Run(ctx context.Context, p types.Plan) (Result, error) {
	res := Result{
		Plan: p,
		Run: types.RunRecord{
			StartedAt:  r.now(),
			Selection:  p.Selection,
			ExportFile: p.ExportFile,
			Download:   types.StageSkipped,
			Convert:    types.StageSkipped,
			Upload:     types.StageSkipped,
		},
	}

	trees := p.Trees()
	res.User, _ = r.Login(ctx)

	p, err := r.Download(ctx, p)
	res.Plan = p
	res.Run.Selection = p.Selection
	if err != nil {
		res.Run.Download = types.StageFailed
		return r.finish(ctx, res, err)
	}
	res.Run.Download = types.StageDone

	if err := r.Convert(ctx, p); err != nil {
		res.Run.Convert = types.StageFailed
		fmt.Fprintf(r.out(), "failed: model conversion: %v\n", err)
		return r.finish(ctx, res, err)
	}
	res.Run.Convert = types.StageDone

	pub, err := r.Publish(ctx, res.User, p)
	res.Run.RepoID = pub.RepoID
	if err != nil {
		res.Run.Upload = types.StageFailed
		fmt.Fprintf(r.out(), "failed: upload of %s: %v\n", p.ExportDir, err)
		return r.finish(ctx, res, err)
	}
	res.Run.Upload = types.StageDone
	res.Run.CommitURL = pub.Commit.CommitURL

	if r.Cleanup {
		if err := workspace.Cleanup(p.ModelsRoot, trees, r.out()); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Strs("dirs", trees).Msg("cleanup failed")
			fmt.Fprintf(r.out(), "failed: cleanup: %v\n", err)
		}
	}
	return r.finish(ctx, res, nil)
}

func (r *Runner) finish(ctx context.Context, res Result, runErr error) (Result, error) {
	res.Run.FinishedAt = r.now()
	if runErr != nil {
		res.Run.Error = runErr.Error()
	}
	if r.History != nil {
		id, err := r.History.Record(ctx, res.Run)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("recording run history failed")
		} else {
			res.Run.ID = id
		}
	}
	return res, runErr
}

// Login resolves the account behind the hub token. A failure is reported
// and returned; callers may continue without an account.
func (r *Runner) Login(ctx context.Context) (string, error) {
	u, err := r.Hub.Whoami(ctx)
	if err != nil {
		fmt.Fprintf(r.out(), "failed: login: %v (gated models are inaccessible and uploads will fail)\n", err)
		zerolog.Ctx(ctx).Warn().Err(err).Msg("hub login failed")
		return "", err
	}
	fmt.Fprintf(r.out(), "logged in as: %s\n", u.Name)
	return u.Name, nil
}

// CheckRepo reports whether repoID is readable. Gated and missing repos are
// reported on Out.
func (r *Runner) CheckRepo(ctx context.Context, repoID string) error {
	err := r.Hub.AuthCheck(ctx, repoID)
	switch {
	case err == nil:
		fmt.Fprintf(r.out(), "validated: %s\n", repoID)
	case errors.Is(err, hub.ErrGatedRepo):
		fmt.Fprintf(r.out(), "gated: %s (you do not have permission to access it; please authenticate)\n", repoID)
	case errors.Is(err, hub.ErrRepoNotFound):
		fmt.Fprintf(r.out(), "not found: %s\n", repoID)
	default:
		fmt.Fprintf(r.out(), "failed: checking %s: %v\n", repoID, err)
	}
	return err
}

// Download creates the model and export directories and fetches the base
// model and adapter. An adapter that cannot be downloaded is dropped from
// the returned plan.
func (r *Runner) Download(ctx context.Context, p types.Plan) (types.Plan, error) {
	out := r.out()
	for _, dir := range []string{p.ModelDir, p.ExportDir} {
		if err := workspace.Mkpath(dir, out); err != nil {
			return p, err
		}
	}

	_ = r.CheckRepo(ctx, p.Selection.ModelID)

	fmt.Fprintf(out, "downloading: %s to %s\n", p.Selection.ModelID, p.ModelDir)
	snap, err := r.Hub.Snapshot(ctx, p.Selection.ModelID, p.ModelDir, out)
	if err != nil {
		return p, fmt.Errorf("downloading base model %s: %w", p.Selection.ModelID, err)
	}
	p.ModelSnapshot = snapshotDir(snap, p.ModelDir)

	if !p.Selection.HasAdapter() {
		fmt.Fprintln(out, "skipped: no LoRA adapter selected")
		return p, nil
	}

	fmt.Fprintf(out, "downloading: LoRA %s to %s\n", p.Selection.AdapterID, p.AdapterDir)
	err = workspace.Mkpath(p.AdapterDir, out)
	if err == nil {
		snap, err = r.Hub.Snapshot(ctx, p.Selection.AdapterID, p.AdapterDir, out)
	}
	if err != nil {
		if ctx.Err() != nil {
			return p, ctx.Err()
		}
		fmt.Fprintf(out, "failed: LoRA download (%v), omitting it from the export\n", err)
		zerolog.Ctx(ctx).Warn().Err(err).Str("adapter", p.Selection.AdapterID).Msg("adapter dropped")
		return plan.WithoutAdapter(p), nil
	}
	p.AdapterSnapshot = snapshotDir(snap, p.AdapterDir)
	return p, nil
}

// snapshotDir returns where a snapshot landed when it differs from dir.
func snapshotDir(res hub.SnapshotResult, dir string) string {
	if res.Dir == "" || filepath.Clean(res.Dir) == filepath.Clean(dir) {
		return ""
	}
	return res.Dir
}

// Convert loads, builds, and exports p through the toolkit.
func (r *Runner) Convert(ctx context.Context, p types.Plan) error {
	req, err := toolkit.RequestFromPlan(p)
	if err != nil {
		return err
	}
	out := r.out()
	fmt.Fprintf(out, "building: %s with %s quantization and optimization level %d\n",
		p.ModelName, p.Selection.QType, p.Selection.Optimization)
	if err := r.Toolkit.Convert(ctx, req, out); err != nil {
		return err
	}
	fmt.Fprintf(out, "exported: %s\n", p.ExportFile)
	return nil
}

// WriteCard renders the model card for p from the base model's card and
// writes it into the export directory. A base card that cannot be fetched
// is replaced by an empty one.
func (r *Runner) WriteCard(ctx context.Context, p types.Plan) (string, error) {
	in, err := card.Load(ctx, r.Hub, p.Selection.ModelID)
	if err != nil {
		fmt.Fprintf(r.out(), "failed: loading model card of %s: %v\n", p.Selection.ModelID, err)
		zerolog.Ctx(ctx).Warn().Err(err).Msg("using an empty base model card")
		in = card.Card{}
	}

	content, err := card.Render(in, card.Meta{
		ModelName:      p.ModelName,
		Platform:       string(p.Selection.Platform),
		QType:          string(p.Selection.QType),
		AdapterID:      p.Selection.AdapterID,
		ToolkitVersion: p.ToolkitVersion,
	})
	if err != nil {
		return "", err
	}

	path := filepath.Join(p.ExportDir, ReadmeFile)
	if err := card.Write(path, content); err != nil {
		return "", err
	}
	fmt.Fprintf(r.out(), "card: %s\n", path)
	zerolog.Ctx(ctx).Debug().Str("path", path).Msg(content)
	return path, nil
}

// Publish creates the destination repo, writes the model card, copies the
// base model's JSON configs next to the export, and uploads the export
// directory.
func (r *Runner) Publish(ctx context.Context, user string, p types.Plan) (Published, error) {
	if user == "" {
		return Published{}, ErrNoUser
	}
	out := r.out()
	pub := Published{RepoID: plan.DestinationRepo(user, p)}

	fmt.Fprintf(out, "creating: repo %s (if it does not exist)\n", pub.RepoID)
	url, err := r.Hub.CreateRepo(ctx, pub.RepoID, r.Private)
	if err != nil {
		fmt.Fprintf(out, "failed: creating repo %s: %v\n", pub.RepoID, err)
		zerolog.Ctx(ctx).Warn().Err(err).Str("repo", pub.RepoID).Msg("create repo failed")
	} else {
		pub.RepoURL = url
		fmt.Fprintf(out, "repo: %s\n", url)
	}

	if _, err := r.WriteCard(ctx, p); err != nil {
		return pub, err
	}
	if pub.Configs, err = workspace.CopyConfigs(p.ModelSource(), p.ExportDir, out); err != nil {
		return pub, err
	}

	fmt.Fprintf(out, "uploading: %s to %s\n", p.ExportDir, pub.RepoID)
	pub.Commit, err = r.Hub.UploadFolder(ctx, pub.RepoID, p.ExportDir, commitMessage(p), out)
	if err != nil {
		return pub, err
	}
	fmt.Fprintf(out, "uploaded: %s\n", pub.Commit.CommitURL)
	return pub, nil
}

func commitMessage(p types.Plan) string {
	return fmt.Sprintf("Upload %s for %s", p.ExportName, strings.ToUpper(string(p.Selection.Platform)))
}
