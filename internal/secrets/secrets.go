// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets resolves the hub access token. Tokens come from, in order:
// an explicit value (flag or config), the HF_TOKEN environment variable, the
// token file of the hub's local cache, and finally a directory of plain-text
// secret files where each filename is a key and its trimmed contents the value.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	// EnvToken is the environment variable the hub tooling reads a token from.
	EnvToken = "HF_TOKEN"
	// EnvHome overrides the hub cache directory.
	EnvHome = "HF_HOME"
	// KeyHubToken names the token file inside the secrets directory.
	KeyHubToken = "hf-token"
	// DefaultDir is the secrets directory relative to the working directory.
	DefaultDir = ".secrets"
)

// ErrNoToken means no source provided a token.
var ErrNoToken = errors.New("no hub token found")

// Source names where a token came from.
type Source string

const (
	SourceExplicit Source = "config"
	SourceEnv      Source = "env"
	SourceCache    Source = "cache"
	SourceDir      Source = "secrets"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn().Err(err).Str("secret", name).Msg("could not read secret")
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// LoadEnv loads KEY=VALUE pairs from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("loading %s: %w", strings.Join(present, ", "), err)
	}
	return nil
}

// Resolver looks up the hub token.
type Resolver struct {
	// Explicit is the flag or config value; it wins when set.
	Explicit string
	// Dir is the secrets directory; empty means DefaultDir.
	Dir string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// CacheFile overrides the hub cache token path.
	CacheFile string
}

// Token returns the first non-empty token and where it came from.
func (r Resolver) Token() (string, Source, error) {
	if t := strings.TrimSpace(r.Explicit); t != "" {
		return t, SourceExplicit, nil
	}
	if t := strings.TrimSpace(r.getenv(EnvToken)); t != "" {
		return t, SourceEnv, nil
	}

	cache := r.cacheFile()
	if cache != "" {
		data, err := os.ReadFile(cache)
		switch {
		case err == nil:
			if t := strings.TrimSpace(string(data)); t != "" {
				return t, SourceCache, nil
			}
		case !os.IsNotExist(err):
			return "", "", fmt.Errorf("reading token cache %s: %w", cache, err)
		}
	}

	dir := r.Dir
	if dir == "" {
		dir = DefaultDir
	}
	vals, err := Load(dir)
	if err != nil {
		return "", "", err
	}
	if t := vals[KeyHubToken]; t != "" {
		return t, SourceDir, nil
	}
	return "", "", ErrNoToken
}

// SaveToken stores token in the hub cache so later runs find it.
func (r Resolver) SaveToken(token string) (string, error) {
	path := r.cacheFile()
	if path == "" {
		return "", errors.New("cannot determine hub cache directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(strings.TrimSpace(token)), 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

func (r Resolver) getenv(key string) string {
	if r.Getenv != nil {
		return r.Getenv(key)
	}
	return os.Getenv(key)
}

// cacheFile is $HF_HOME/token, else ~/.cache/huggingface/token.
func (r Resolver) cacheFile() string {
	if r.CacheFile != "" {
		return r.CacheFile
	}
	if home := r.getenv(EnvHome); home != "" {
		return filepath.Join(home, "token")
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(userHome, ".cache", "huggingface", "token")
}
