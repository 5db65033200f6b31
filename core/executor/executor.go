// Package executor submits expanded job tables for execution. The remote
// implementation maps a table onto one Slurm array job whose tasks re-invoke
// this binary's worker command; functions are therefore addressed by name
// rather than passed as values, and results travel through per-task files in
// the submission folder.
package executor

import (
	"context"

	"exp-orchestrator/core/experiment"
)

// Result is one job's measurement output, keyed by metric name.
type Result map[string]string

// JobFunc runs one job on the current node.
type JobFunc func(ctx context.Context, p experiment.JobParams) (Result, error)

// Handle refers to one submitted task. Result blocks until the task
// finishes; a failed task returns its error here, uncaught and unretried.
type Handle interface {
	ID() string
	Result(ctx context.Context) (Result, error)
}

// Executor submits a table of jobs as one array and returns a handle per
// task. It performs no retries and no partial-failure accounting; those
// concerns belong to the batch scheduler.
type Executor interface {
	MapArray(ctx context.Context, job string, tasks []experiment.JobParams) ([]Handle, error)
}

// Parameters is the resource request attached to every array submission.
type Parameters struct {
	TimeoutMin  int
	CPUsPerTask int
	GPUs        int
	Constraint  string
	Reservation string
	Folder      string // submission folders are created under here
}

// DefaultParameters returns the cluster-wide resource request used for all
// submissions: one GPU on a thin node under the safe reservation.
func DefaultParameters(timeoutMin int) Parameters {
	return Parameters{
		TimeoutMin:  timeoutMin,
		CPUsPerTask: 8,
		GPUs:        1,
		Constraint:  "thin",
		Reservation: "safe",
		Folder:      "logs",
	}
}
