// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// StageStatus indicates how a pipeline stage ended.
type StageStatus string

const (
	StageSkipped StageStatus = "skipped"
	StageDone    StageStatus = "done"
	StageFailed  StageStatus = "failed"
)

// RunRecord is one pipeline run as stored in the history database.
type RunRecord struct {
	ID         string    `json:"id" yaml:"id"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	Selection Selection `json:"selection" yaml:"selection"`

	ExportFile string `json:"export_file" yaml:"export_file"`
	RepoID     string `json:"repo_id,omitempty" yaml:"repo_id,omitempty"`
	CommitURL  string `json:"commit_url,omitempty" yaml:"commit_url,omitempty"`

	Download StageStatus `json:"download" yaml:"download"`
	Convert  StageStatus `json:"convert" yaml:"convert"`
	Upload   StageStatus `json:"upload" yaml:"upload"`

	// Error holds the first error that ended the run, if any.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Succeeded reports whether the run published its export.
func (r RunRecord) Succeeded() bool {
	return r.Upload == StageDone
}
