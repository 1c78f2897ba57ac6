package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request timeout for API calls. File transfers are
	// bounded by the context instead.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "rkllm-pipeline/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// HubConfig holds settings for talking to the model hub.
type HubConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Endpoint is the hub base URL (default https://huggingface.co).
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// Token is the access token. Usually resolved from the environment or the
	// token cache rather than set here.
	Token string `json:"token,omitempty" yaml:"token,omitempty" mapstructure:"token"`

	// Private creates destination repos as private.
	Private bool `json:"private" yaml:"private" mapstructure:"private"`

	// Concurrency bounds parallel file transfers of snapshots and LFS uploads (default 4).
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// RequestsPerSecond paces API calls. Zero disables pacing.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// MaxRetries is the number of retries on 429/5xx responses (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// ToolkitRuntime selects where the conversion toolkit runs.
type ToolkitRuntime string

const (
	RuntimeAuto   ToolkitRuntime = "auto"
	RuntimeDocker ToolkitRuntime = "docker"
	RuntimePodman ToolkitRuntime = "podman"
	RuntimeHost   ToolkitRuntime = "host"
)

// ToolkitConfig holds settings for the conversion stage.
type ToolkitConfig struct {
	// Runtime is auto, docker, podman, or host.
	Runtime ToolkitRuntime `json:"runtime" yaml:"runtime" mapstructure:"runtime"`

	// Image is the container image with the toolkit installed.
	Image string `json:"image" yaml:"image" mapstructure:"image"`

	// Python is the interpreter used to run the driver (default python3).
	Python string `json:"python" yaml:"python" mapstructure:"python"`

	// Version is the toolkit version recorded in repo names and model cards.
	Version string `json:"version" yaml:"version" mapstructure:"version"`

	// Device is the device the toolkit loads weights on (default cpu).
	Device string `json:"device" yaml:"device" mapstructure:"device"`
}

// WorkspaceConfig holds settings for local working directories.
type WorkspaceConfig struct {
	// ModelsDir is the root for downloaded models and exports (default ./models).
	ModelsDir string `json:"models_dir" yaml:"models_dir" mapstructure:"models_dir"`

	// Cleanup removes the run's trees below ModelsDir after a successful upload.
	Cleanup bool `json:"cleanup" yaml:"cleanup" mapstructure:"cleanup"`
}

// HistoryConfig holds settings for the run history database.
type HistoryConfig struct {
	// Path is the SQLite database file. Empty disables history.
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Hub       HubConfig       `json:"hub" yaml:"hub" mapstructure:"hub"`
	Toolkit   ToolkitConfig   `json:"toolkit" yaml:"toolkit" mapstructure:"toolkit"`
	Workspace WorkspaceConfig `json:"workspace" yaml:"workspace" mapstructure:"workspace"`
	History   HistoryConfig   `json:"history" yaml:"history" mapstructure:"history"`
}
