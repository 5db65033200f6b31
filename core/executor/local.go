package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"exp-orchestrator/core/experiment"
)

// LocalExecutor runs registered job functions in-process, one task at a
// time. Used for port-0 debug runs and in tests.
type LocalExecutor struct {
	lg   *zap.Logger
	jobs map[string]JobFunc
}

// NewLocalExecutor creates a local executor with the given job registry.
func NewLocalExecutor(lg *zap.Logger, jobs map[string]JobFunc) *LocalExecutor {
	return &LocalExecutor{lg: lg, jobs: jobs}
}

// MapArray runs every task synchronously and returns pre-resolved handles.
func (e *LocalExecutor) MapArray(ctx context.Context, job string, tasks []experiment.JobParams) ([]Handle, error) {
	fn, ok := e.jobs[job]
	if !ok {
		return nil, fmt.Errorf("unknown job %q", job)
	}

	handles := make([]Handle, len(tasks))
	for i, task := range tasks {
		e.lg.Info("running job locally", zap.String("job", job), zap.Int("task", i))
		res, err := fn(ctx, task)
		handles[i] = &localHandle{
			id:  fmt.Sprintf("local_%d", i),
			res: res,
			err: err,
		}
	}
	return handles, nil
}

type localHandle struct {
	id  string
	res Result
	err error
}

func (h *localHandle) ID() string { return h.id }

func (h *localHandle) Result(_ context.Context) (Result, error) {
	return h.res, h.err
}
