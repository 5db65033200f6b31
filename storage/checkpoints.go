// Package storage implements the filesystem stores the pipeline treats as
// ground truth: checkpoint files, experiment output directories and the
// measurement results CSV. There is no separate job-status ledger; presence
// on disk is the only signal.
package storage

import (
	"os"

	"exp-orchestrator/core/experiment"
)

// CheckpointStore locates model checkpoints under a fixed root.
type CheckpointStore struct {
	root string
}

// NewCheckpointStore creates a checkpoint store rooted at root.
func NewCheckpointStore(root string) *CheckpointStore {
	return &CheckpointStore{root: root}
}

// Root returns the store root.
func (s *CheckpointStore) Root() string { return s.root }

// Path returns the checkpoint path for a job.
func (s *CheckpointStore) Path(p experiment.JobParams) string {
	return p.CheckpointPath(s.root)
}

// Exists reports whether the job's checkpoint file is present. A partially
// written checkpoint is indistinguishable from a valid one here.
func (s *CheckpointStore) Exists(p experiment.JobParams) bool {
	return pathExists(s.Path(p))
}

// OutputStore locates experiment output directories under a fixed root.
type OutputStore struct {
	root string
}

// NewOutputStore creates an output store rooted at root.
func NewOutputStore(root string) *OutputStore {
	return &OutputStore{root: root}
}

// Root returns the store root.
func (s *OutputStore) Root() string { return s.root }

// Dir returns the output directory for a job.
func (s *OutputStore) Dir(p experiment.JobParams) string {
	return p.OutputDir(s.root)
}

// Exists reports whether the job's output directory is present, which the
// pipeline reads as "already running or done".
func (s *OutputStore) Exists(p experiment.JobParams) bool {
	return pathExists(s.Dir(p))
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
