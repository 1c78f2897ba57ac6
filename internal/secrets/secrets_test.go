// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T) string
		want   map[string]string
		errMsg string
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "hf-token", "  hf_abc123  \n")
				writeFile(t, dir, "other", "value\n")
				return dir
			},
			want: map[string]string{
				"hf-token": "hf_abc123",
				"other":    "value",
			},
		},
		{
			name: "returns empty map for nonexistent directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: map[string]string{},
		},
		{
			name: "skips empty files",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "hf-token", "valid")
				writeFile(t, dir, "empty-key", "")
				writeFile(t, dir, "whitespace-only", "   \n\t  ")
				return dir
			},
			want: map[string]string{"hf-token": "valid"},
		},
		{
			name: "skips dotfiles and subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, ".gitkeep", "")
				writeFile(t, dir, ".hidden-key", "secret")
				writeFile(t, dir, "hf-token", "hf_real")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
				return dir
			},
			want: map[string]string{"hf-token": "hf_real"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := tt.setup(t)
			got, err := Load(dir)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolverToken(t *testing.T) {
	env := func(m map[string]string) func(string) string {
		return func(k string) string { return m[k] }
	}

	tests := []struct {
		name       string
		explicit   string
		env        map[string]string
		cache      string
		dirToken   string
		wantToken  string
		wantSource Source
		wantErr    error
	}{
		{
			name:       "explicit wins",
			explicit:   "hf_flag",
			env:        map[string]string{EnvToken: "hf_env"},
			cache:      "hf_cache",
			wantToken:  "hf_flag",
			wantSource: SourceExplicit,
		},
		{
			name:       "environment before cache",
			env:        map[string]string{EnvToken: " hf_env "},
			cache:      "hf_cache",
			wantToken:  "hf_env",
			wantSource: SourceEnv,
		},
		{
			name:       "cache file",
			cache:      "hf_cache\n",
			dirToken:   "hf_dir",
			wantToken:  "hf_cache",
			wantSource: SourceCache,
		},
		{
			name:       "secrets directory last",
			dirToken:   "hf_dir",
			wantToken:  "hf_dir",
			wantSource: SourceDir,
		},
		{
			name:    "nothing found",
			wantErr: ErrNoToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := t.TempDir()
			dir := filepath.Join(base, "secrets")
			require.NoError(t, os.Mkdir(dir, 0o755))
			if tt.dirToken != "" {
				writeFile(t, dir, KeyHubToken, tt.dirToken)
			}
			cache := filepath.Join(base, "token")
			if tt.cache != "" {
				require.NoError(t, os.WriteFile(cache, []byte(tt.cache), 0o600))
			}

			r := Resolver{Explicit: tt.explicit, Dir: dir, Getenv: env(tt.env), CacheFile: cache}
			tok, src, err := r.Token()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantToken, tok)
			assert.Equal(t, tt.wantSource, src)
		})
	}
}

func TestResolverCacheFromHFHome(t *testing.T) {
	home := t.TempDir()
	r := Resolver{
		Dir:    filepath.Join(home, "none"),
		Getenv: func(k string) string { return map[string]string{EnvHome: home}[k] },
	}

	path, err := r.SaveToken(" hf_saved\n")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "token"), path)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	tok, src, err := r.Token()
	require.NoError(t, err)
	assert.Equal(t, "hf_saved", tok)
	assert.Equal(t, SourceCache, src)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("RKLLM_TEST_TOKEN=hf_dotenv\nRKLLM_TEST_SET=from_file\n"), 0o600))
	t.Setenv("RKLLM_TEST_SET", "from_env")
	t.Setenv("RKLLM_TEST_TOKEN", "")
	os.Unsetenv("RKLLM_TEST_TOKEN")

	require.NoError(t, LoadEnv(envFile, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "hf_dotenv", os.Getenv("RKLLM_TEST_TOKEN"))
	assert.Equal(t, "from_env", os.Getenv("RKLLM_TEST_SET"), "existing variables are not overridden")

	assert.NoError(t, LoadEnv(filepath.Join(dir, "nope.env")))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
