// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bodaay/HuggingFaceModelDownloader/pkg/hfdownloader"
	"github.com/rs/zerolog"
)

// Progress events reported by the downloader.
const (
	eventFileStart = "file_start"
	eventFileDone  = "file_done"
	eventRetry     = "retry"
	eventError     = "error"
)

// verifySHA256 checks every LFS file against its hash after download.
const verifySHA256 = "sha256"

// downloadFunc fetches a repo snapshot. It has the shape of
// hfdownloader.Download so tests can replace the transfer.
type downloadFunc func(ctx context.Context, job hfdownloader.Job, cfg hfdownloader.Settings, progress func(hfdownloader.ProgressEvent)) error

func libraryDownload(ctx context.Context, job hfdownloader.Job, cfg hfdownloader.Settings, progress func(hfdownloader.ProgressEvent)) error {
	return hfdownloader.Download(ctx, job, cfg, progress)
}

// SnapshotResult summarizes a snapshot download.
type SnapshotResult struct {
	// Dir is the directory holding the repo files, at or below the requested one.
	Dir        string
	Downloaded int
	Skipped    int
}

// Snapshot downloads every file of repoID below dir. Files already present
// and intact are skipped; interrupted files resume. Access is checked first
// so missing and gated repos fail with ErrRepoNotFound or ErrGatedRepo.
func (c *Client) Snapshot(ctx context.Context, repoID, dir string, w io.Writer) (SnapshotResult, error) {
	result := SnapshotResult{Dir: dir}

	if err := c.AuthCheck(ctx, repoID); err != nil {
		return result, fmt.Errorf("snapshot of %s: %w", repoID, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return result, fmt.Errorf("creating directory %s: %w", dir, err)
	}

	log := zerolog.Ctx(ctx)
	if c.endpoint != DefaultEndpoint {
		log.Warn().Str("endpoint", c.endpoint).Msg("snapshots are fetched from the public hub")
	}

	out := &lockedWriter{w: w}
	var mu sync.Mutex
	progress := func(e hfdownloader.ProgressEvent) {
		switch e.Event {
		case eventFileStart:
			log.Debug().Str("repo", repoID).Str("file", e.Path).Msg("file download started")
		case eventFileDone:
			skipped := strings.Contains(strings.ToLower(e.Message), "skip")
			mu.Lock()
			if skipped {
				result.Skipped++
			} else {
				result.Downloaded++
			}
			mu.Unlock()
			if skipped {
				fmt.Fprintf(out, "skipped: %s (already exists)\n", e.Path)
			} else {
				fmt.Fprintf(out, "downloaded: %s\n", e.Path)
			}
		case eventRetry:
			log.Debug().Str("repo", repoID).Str("file", e.Path).Str("reason", e.Message).Msg("retrying download")
		case eventError:
			log.Warn().Str("repo", repoID).Str("file", e.Path).Str("reason", e.Message).Msg("download error")
		}
	}

	job := hfdownloader.Job{Repo: repoID, Revision: DefaultRevision}
	cfg := hfdownloader.Settings{
		OutputDir:          dir,
		Concurrency:        c.concurrency,
		MaxActiveDownloads: c.concurrency,
		Token:              c.token,
		Verify:             verifySHA256,
	}
	if err := c.download(ctx, job, cfg, progress); err != nil {
		return result, fmt.Errorf("snapshot of %s: %w", repoID, err)
	}

	result.Dir = SnapshotDir(dir, repoID)
	fmt.Fprintf(out, "\nSnapshot summary: %d downloaded, %d skipped (total: %d)\n",
		result.Downloaded, result.Skipped, result.Downloaded+result.Skipped)
	return result, nil
}

// SnapshotDir returns the directory below dir that holds repoID's files:
// dir/<owner>/<name> or dir/<owner>_<name> when present, else dir.
func SnapshotDir(dir, repoID string) string {
	candidates := []string{
		filepath.Join(dir, filepath.FromSlash(repoID)),
		filepath.Join(dir, strings.ReplaceAll(repoID, "/", "_")),
	}
	for _, cand := range candidates {
		if fi, err := os.Stat(cand); err == nil && fi.IsDir() {
			return cand
		}
	}
	return dir
}

// ReadFile returns the contents of a small file such as README.md. A missing
// file yields an error wrapping ErrEntryNotFound.
func (c *Client) ReadFile(ctx context.Context, repoID, revision, path string) ([]byte, error) {
	if revision == "" {
		revision = DefaultRevision
	}
	req, err := c.newRequest(ctx, http.MethodGet, c.resolveURL(repoID, revision, path), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.api.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("reading %s from %s: %w", path, repoID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && resp.Header.Get("X-Error-Code") == "" {
		return nil, fmt.Errorf("reading %s from %s: %w", path, repoID, ErrEntryNotFound)
	}
	if err := checkResponse(resp); err != nil {
		return nil, fmt.Errorf("reading %s from %s: %w", path, repoID, err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s from %s: %w", path, repoID, err)
	}
	return data, nil
}

func (c *Client) resolveURL(repoID, revision, path string) string {
	return c.apiURL(repoID, "resolve", revision, path)
}

// lockedWriter serializes status lines written from concurrent workers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
