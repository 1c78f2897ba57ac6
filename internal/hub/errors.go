// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized means the token is missing or rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrGatedRepo means the repo exists but the token has not been granted access.
	ErrGatedRepo = errors.New("gated repository")

	// ErrRepoNotFound means the repo does not exist or is private to someone else.
	ErrRepoNotFound = errors.New("repository not found")

	// ErrEntryNotFound means a file does not exist in an accessible repo.
	ErrEntryNotFound = errors.New("file not found")
)

// APIError is a non-2xx hub response.
type APIError struct {
	StatusCode int
	// Code is the X-Error-Code header, when the hub sets one.
	Code    string
	Message string
	URL     string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("hub returned HTTP %d for %s: %s", e.StatusCode, e.URL, msg)
}

// Unwrap maps the response to one of the package sentinels so callers can
// use errors.Is.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "GatedRepo":
		return ErrGatedRepo
	case "RepoNotFound":
		return ErrRepoNotFound
	case "EntryNotFound", "RevisionNotFound":
		return ErrEntryNotFound
	}
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrRepoNotFound
	}
	return nil
}

// checkResponse returns nil for 2xx responses and an *APIError otherwise.
// The body is consumed on error.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Code:       resp.Header.Get("X-Error-Code"),
		URL:        redact(resp.Request.URL.String()),
	}
	if m := resp.Header.Get("X-Error-Message"); m != "" {
		apiErr.Message = m
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if apiErr.Message == "" {
		var body struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			apiErr.Message = body.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
	}
	return apiErr
}
