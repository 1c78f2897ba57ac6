// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package hub

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

const (
	uploadModeLFS     = "lfs"
	uploadModeRegular = "regular"

	// sampleSize is how many leading bytes the preupload call inspects.
	sampleSize = 512

	lfsMediaType = "application/vnd.git-lfs+json"
)

// CreateRepo creates a model repo. An existing repo is not an error. It
// returns the repo URL.
func (c *Client) CreateRepo(ctx context.Context, repoID string, private bool) (string, error) {
	body := map[string]any{"type": "model", "private": private}
	if ns, name, ok := strings.Cut(repoID, "/"); ok {
		body["organization"] = ns
		body["name"] = name
	} else {
		body["name"] = repoID
	}

	var out struct {
		URL string `json:"url"`
	}
	err := c.doJSON(ctx, http.MethodPost, c.apiURL("api", "repos", "create"), body, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		return c.RepoURL(repoID), nil
	}
	if err != nil {
		return "", fmt.Errorf("creating repo %s: %w", repoID, err)
	}
	if out.URL == "" {
		out.URL = c.RepoURL(repoID)
	}
	return out.URL, nil
}

// CommitInfo describes a created commit.
type CommitInfo struct {
	CommitURL string `json:"commitUrl"`
	CommitOID string `json:"commitOid"`
	Files     int    `json:"-"`
	LFSFiles  int    `json:"-"`
}

// localFile is a file queued for upload.
type localFile struct {
	abs    string
	path   string // repo-relative, slash separated
	size   int64
	mode   string
	sha256 string
}

// UploadFolder commits every file under dir to repoID on the default
// branch. Large files go through LFS; the rest are inlined in the commit.
func (c *Client) UploadFolder(ctx context.Context, repoID, dir, message string, w io.Writer) (CommitInfo, error) {
	files, err := collectFiles(dir)
	if err != nil {
		return CommitInfo{}, err
	}
	if len(files) == 0 {
		return CommitInfo{}, fmt.Errorf("nothing to upload in %s", dir)
	}

	files, err = c.preupload(ctx, repoID, files)
	if err != nil {
		return CommitInfo{}, err
	}
	if len(files) == 0 {
		return CommitInfo{}, fmt.Errorf("every file in %s is ignored by the hub", dir)
	}

	info := CommitInfo{Files: len(files)}
	out := &lockedWriter{w: w}
	p := pool.New().WithMaxGoroutines(c.concurrency).WithContext(ctx).WithCancelOnError()
	for i := range files {
		f := &files[i]
		if f.mode != uploadModeLFS {
			continue
		}
		info.LFSFiles++
		p.Go(func(ctx context.Context) error {
			fmt.Fprintf(out, "hashing: %s\n", f.path)
			sum, err := hashFile(f.abs)
			if err != nil {
				return err
			}
			f.sha256 = sum
			fmt.Fprintf(out, "uploading: %s (%d bytes)\n", f.path, f.size)
			if err := c.uploadLFS(ctx, repoID, *f); err != nil {
				return fmt.Errorf("uploading %s: %w", f.path, err)
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return CommitInfo{}, err
	}

	commit, err := c.commit(ctx, repoID, message, files)
	if err != nil {
		return CommitInfo{}, err
	}
	commit.Files = info.Files
	commit.LFSFiles = info.LFSFiles
	fmt.Fprintf(w, "committed: %d file(s), %d via LFS\n", commit.Files, commit.LFSFiles)
	return commit, nil
}

func collectFiles(dir string) ([]localFile, error) {
	var files []localFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, localFile{abs: path, path: filepath.ToSlash(rel), size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files, nil
}

type preuploadFile struct {
	Path   string `json:"path"`
	Sample string `json:"sample"`
	Size   int64  `json:"size"`
}

type preuploadResult struct {
	Files []struct {
		Path         string `json:"path"`
		UploadMode   string `json:"uploadMode"`
		ShouldIgnore bool   `json:"shouldIgnore"`
	} `json:"files"`
}

// preupload asks the hub which files must go through LFS, sets each file's
// mode, and drops the files the hub marks as ignored.
func (c *Client) preupload(ctx context.Context, repoID string, files []localFile) ([]localFile, error) {
	req := struct {
		Files []preuploadFile `json:"files"`
	}{}
	for _, f := range files {
		sample, err := readSample(f.abs)
		if err != nil {
			return nil, err
		}
		req.Files = append(req.Files, preuploadFile{
			Path:   f.path,
			Sample: base64.StdEncoding.EncodeToString(sample),
			Size:   f.size,
		})
	}

	var res preuploadResult
	u := c.apiURL("api", "models", repoID, "preupload", DefaultRevision)
	if err := c.doJSON(ctx, http.MethodPost, u, req, &res); err != nil {
		return nil, fmt.Errorf("preupload to %s: %w", repoID, err)
	}

	modes := make(map[string]string, len(res.Files))
	ignored := make(map[string]bool)
	for _, f := range res.Files {
		modes[f.Path] = f.UploadMode
		if f.ShouldIgnore {
			ignored[f.Path] = true
		}
	}
	kept := files[:0]
	for _, f := range files {
		if ignored[f.path] {
			zerolog.Ctx(ctx).Debug().Str("file", f.path).Msg("ignored by the hub")
			continue
		}
		if modes[f.path] == uploadModeLFS {
			f.mode = uploadModeLFS
		} else {
			f.mode = uploadModeRegular
		}
		kept = append(kept, f)
	}
	return kept, nil
}

type lfsAction struct {
	Href   string            `json:"href"`
	Header map[string]string `json:"header,omitempty"`
}

type lfsBatchResponse struct {
	Transfer string `json:"transfer"`
	Objects  []struct {
		OID     string `json:"oid"`
		Size    int64  `json:"size"`
		Actions *struct {
			Upload *lfsAction `json:"upload,omitempty"`
			Verify *lfsAction `json:"verify,omitempty"`
		} `json:"actions,omitempty"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error,omitempty"`
	} `json:"objects"`
}

// uploadLFS negotiates an LFS upload for one file and transfers it, either
// with a single PUT or in parts when the hub asks for multipart.
func (c *Client) uploadLFS(ctx context.Context, repoID string, f localFile) error {
	batchReq := map[string]any{
		"operation": "upload",
		"transfers": []string{"basic", "multipart"},
		"objects":   []map[string]any{{"oid": f.sha256, "size": f.size}},
		"hash_algo": "sha256",
		"ref":       map[string]string{"name": "refs/heads/" + DefaultRevision},
	}
	data, err := json.Marshal(batchReq)
	if err != nil {
		return fmt.Errorf("encoding LFS batch: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint+"/"+escapePath(repoID)+".git/info/lfs/objects/batch", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", lfsMediaType)
	req.Header.Set("Content-Type", lfsMediaType)

	resp, err := c.api.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("LFS batch: %w", err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("LFS batch: %w", err)
	}
	var batch lfsBatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return fmt.Errorf("decoding LFS batch: %w", err)
	}
	if len(batch.Objects) != 1 {
		return fmt.Errorf("LFS batch returned %d objects, want 1", len(batch.Objects))
	}
	obj := batch.Objects[0]
	if obj.Error != nil {
		return fmt.Errorf("LFS batch rejected %s: %d %s", f.path, obj.Error.Code, obj.Error.Message)
	}
	log := zerolog.Ctx(ctx)
	if obj.Actions == nil || obj.Actions.Upload == nil {
		log.Debug().Str("file", f.path).Str("oid", f.sha256).Msg("LFS object already present")
		return nil
	}

	upload := obj.Actions.Upload
	if _, multipart := upload.Header["chunk_size"]; multipart {
		err = c.uploadMultipart(ctx, f, upload)
	} else {
		err = c.uploadSingle(ctx, f, upload)
	}
	if err != nil {
		return err
	}

	if v := obj.Actions.Verify; v != nil {
		if err := c.lfsPost(ctx, v, map[string]any{"oid": f.sha256, "size": f.size}); err != nil {
			return fmt.Errorf("LFS verify: %w", err)
		}
	}
	return nil
}

func (c *Client) uploadSingle(ctx context.Context, f localFile, action *lfsAction) error {
	file, err := os.Open(f.abs)
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.abs, err)
	}
	defer file.Close()
	return c.putSection(ctx, action.Href, action.Header, file, 0, f.size, nil)
}

type partETag struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
}

// uploadMultipart PUTs each chunk to its presigned URL (header keys "1",
// "2", ... or zero-padded), then posts the collected ETags to the completion
// URL.
func (c *Client) uploadMultipart(ctx context.Context, f localFile, action *lfsAction) error {
	chunkSize, err := strconv.ParseInt(action.Header["chunk_size"], 10, 64)
	if err != nil || chunkSize <= 0 {
		return fmt.Errorf("invalid chunk_size %q", action.Header["chunk_size"])
	}

	parts := map[int]string{}
	for k, v := range action.Header {
		if n, err := strconv.Atoi(k); err == nil {
			parts[n] = v
		}
	}
	want := int((f.size + chunkSize - 1) / chunkSize)
	if len(parts) != want {
		return fmt.Errorf("hub offered %d part URLs for %d chunks", len(parts), want)
	}

	file, err := os.Open(f.abs)
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.abs, err)
	}
	defer file.Close()

	etags := make([]partETag, 0, want)
	for n := 1; n <= want; n++ {
		href, ok := parts[n]
		if !ok {
			return fmt.Errorf("missing URL for part %d", n)
		}
		off := int64(n-1) * chunkSize
		size := min(chunkSize, f.size-off)
		var etag string
		if err := c.putSection(ctx, href, nil, file, off, size, &etag); err != nil {
			return fmt.Errorf("part %d/%d: %w", n, want, err)
		}
		etags = append(etags, partETag{PartNumber: n, ETag: etag})
	}

	complete := &lfsAction{Href: action.Href}
	if err := c.lfsPost(ctx, complete, map[string]any{"oid": f.sha256, "parts": etags}); err != nil {
		return fmt.Errorf("completing multipart upload: %w", err)
	}
	return nil
}

// putSection PUTs size bytes of r starting at off. Presigned storage URLs
// carry their own auth, so the hub token is not sent. When etag is non-nil
// it receives the response ETag.
func (c *Client) putSection(ctx context.Context, href string, header map[string]string, r io.ReaderAt, off, size int64, etag *string) error {
	newBody := func() (io.ReadCloser, error) {
		return io.NopCloser(io.NewSectionReader(r, off, size)), nil
	}
	body, _ := newBody()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, href, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.GetBody = newBody
	req.ContentLength = size
	for k, v := range header {
		if k == "chunk_size" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.transfer.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	if etag != nil {
		*etag = resp.Header.Get("ETag")
		if *etag == "" {
			return errors.New("storage did not return an ETag")
		}
	}
	return nil
}

func (c *Client) lfsPost(ctx context.Context, action *lfsAction, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, action.Href, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", lfsMediaType)
	req.Header.Set("Content-Type", lfsMediaType)
	for k, v := range action.Header {
		req.Header.Set(k, v)
	}
	resp, err := c.api.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

type commitLine struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// commit sends the NDJSON commit: a header line, then one line per file.
// Regular files are inlined base64; LFS files are referenced by oid.
func (c *Client) commit(ctx context.Context, repoID, message string, files []localFile) (CommitInfo, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(commitLine{Key: "header", Value: map[string]string{"summary": message, "description": ""}}); err != nil {
		return CommitInfo{}, err
	}
	for _, f := range files {
		var line commitLine
		if f.mode == uploadModeLFS {
			line = commitLine{Key: "lfsFile", Value: map[string]any{
				"path": f.path, "algo": "sha256", "oid": f.sha256, "size": f.size,
			}}
		} else {
			data, err := os.ReadFile(f.abs)
			if err != nil {
				return CommitInfo{}, fmt.Errorf("reading %s: %w", f.abs, err)
			}
			line = commitLine{Key: "file", Value: map[string]string{
				"path": f.path, "content": base64.StdEncoding.EncodeToString(data), "encoding": "base64",
			}}
		}
		if err := enc.Encode(line); err != nil {
			return CommitInfo{}, err
		}
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.apiURL("api", "models", repoID, "commit", DefaultRevision), bytes.NewReader(buf.Bytes()))
	if err != nil {
		return CommitInfo{}, err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("Accept", "application/json")

	resp, err := c.api.Do(ctx, req)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("committing to %s: %w", repoID, err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return CommitInfo{}, fmt.Errorf("committing to %s: %w", repoID, err)
	}
	var info CommitInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return CommitInfo{}, fmt.Errorf("decoding commit response: %w", err)
	}
	return info, nil
}

func readSample(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	buf := make([]byte, sampleSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return buf[:n], nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
