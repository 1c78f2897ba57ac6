// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package hub talks to the model hub's HTTP API: token checks, repository
// access checks, snapshot downloads, repository creation, and folder uploads
// through the preupload/LFS/commit protocol.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wknd/ez-er-rkllm-toolkit2/internal/httputil"
	"github.com/wknd/ez-er-rkllm-toolkit2/pkg/types"
)

const (
	// DefaultEndpoint is the public hub.
	DefaultEndpoint = "https://huggingface.co"

	// DefaultRevision is the branch downloads and commits target.
	DefaultRevision = "main"

	defaultTimeout     = 60 * time.Second
	defaultConcurrency = 4
	defaultUserAgent   = "rkllm-pipeline/0.1"
)

// Client is a hub API client bound to one endpoint and token.
type Client struct {
	endpoint    string
	token       string
	userAgent   string
	concurrency int

	// api sends JSON API calls with a per-request timeout.
	api *httputil.Doer
	// transfer moves file contents; it has no timeout of its own.
	transfer *httputil.Doer
	// download fetches repo snapshots.
	download downloadFunc
}

// NewClient builds a client from cfg. token may be empty for anonymous access.
func NewClient(cfg types.HubConfig, token string) *Client {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	conc := cfg.Concurrency
	if conc <= 0 {
		conc = defaultConcurrency
	}
	return &Client{
		endpoint:    endpoint,
		token:       token,
		userAgent:   ua,
		concurrency: conc,
		api:         httputil.NewDoer(&http.Client{Timeout: timeout}, cfg.RequestsPerSecond, cfg.MaxRetries),
		transfer:    httputil.NewDoer(&http.Client{}, 0, cfg.MaxRetries),
		download:    libraryDownload,
	}
}

// Endpoint returns the hub base URL.
func (c *Client) Endpoint() string { return c.endpoint }

// HasToken reports whether requests are authenticated.
func (c *Client) HasToken() bool { return c.token != "" }

// RepoURL returns the browser URL of a model repo.
func (c *Client) RepoURL(repoID string) string {
	return c.endpoint + "/" + repoID
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doJSON sends a request with an optional JSON body and decodes a JSON
// response into out (which may be nil). Non-2xx responses become errors.
func (c *Client) doJSON(ctx context.Context, method, rawURL string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, rawURL, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.api.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, redact(rawURL), err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", redact(rawURL), err)
	}
	return nil
}

// apiURL joins the endpoint with path segments, escaping each one. Repo ids
// keep their slash.
func (c *Client) apiURL(segments ...string) string {
	var b strings.Builder
	b.WriteString(c.endpoint)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(escapePath(s))
	}
	return b.String()
}

// escapePath escapes every slash-separated element of p.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	return u.Redacted()
}
