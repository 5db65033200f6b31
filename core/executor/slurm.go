package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"exp-orchestrator/core/experiment"
)

const (
	taskFilePattern   = "task_%d.json"
	resultFilePattern = "result_%d.json"
	errorFilePattern  = "error_%d.json"
	batchScriptName   = "submit.sh"

	resultPollInterval = 5 * time.Second
)

// SlurmExecutor submits job tables as sbatch array jobs. Each task of the
// array re-invokes this binary's worker command with its task file; workers
// write result or error files back into the submission folder, which is how
// handles observe completion on the shared filesystem.
type SlurmExecutor struct {
	lg     *zap.Logger
	params Parameters
	binary string

	// Sbatch overrides the sbatch binary, for clusters that wrap it.
	Sbatch string
}

// NewSlurmExecutor creates a Slurm executor submitting through the given
// binary (normally os.Executable()).
func NewSlurmExecutor(lg *zap.Logger, params Parameters, binary string) *SlurmExecutor {
	return &SlurmExecutor{lg: lg, params: params, binary: binary}
}

// MapArray materializes one args file per task, submits a single array job
// covering all of them and returns one handle per task. It returns as soon
// as sbatch accepts the job.
func (e *SlurmExecutor) MapArray(ctx context.Context, job string, tasks []experiment.JobParams) ([]Handle, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no tasks to submit")
	}

	folder := filepath.Join(e.params.Folder, uuid.NewString())
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create submission folder: %w", err)
	}

	for i, task := range tasks {
		if err := WriteTask(folder, i, task); err != nil {
			return nil, err
		}
	}

	script := e.renderBatchScript(job, folder, len(tasks))
	scriptPath := filepath.Join(folder, batchScriptName)
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		return nil, fmt.Errorf("failed to write batch script: %w", err)
	}

	sbatch := e.Sbatch
	if sbatch == "" {
		sbatch = "sbatch"
	}
	out, err := exec.CommandContext(ctx, sbatch, "--parsable", scriptPath).Output()
	if err != nil {
		return nil, fmt.Errorf("sbatch failed: %w", err)
	}
	jobID := strings.TrimSpace(string(out))

	e.lg.Info("array job submitted",
		zap.String("job", job),
		zap.String("slurm_job_id", jobID),
		zap.Int("tasks", len(tasks)),
		zap.String("folder", folder),
	)

	handles := make([]Handle, len(tasks))
	for i := range tasks {
		handles[i] = &slurmHandle{
			id:     fmt.Sprintf("%s_%d", jobID, i),
			folder: folder,
			index:  i,
		}
	}
	return handles, nil
}

// renderBatchScript renders the sbatch script for one array submission.
func (e *SlurmExecutor) renderBatchScript(job, folder string, n int) string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	fmt.Fprintf(&b, "#SBATCH --job-name=%s\n", job)
	fmt.Fprintf(&b, "#SBATCH --array=0-%d\n", n-1)
	fmt.Fprintf(&b, "#SBATCH --time=%d\n", e.params.TimeoutMin)
	fmt.Fprintf(&b, "#SBATCH --cpus-per-task=%d\n", e.params.CPUsPerTask)
	fmt.Fprintf(&b, "#SBATCH --gpus=%d\n", e.params.GPUs)
	if e.params.Constraint != "" {
		fmt.Fprintf(&b, "#SBATCH --constraint=%s\n", e.params.Constraint)
	}
	if e.params.Reservation != "" {
		fmt.Fprintf(&b, "#SBATCH --reservation=%s\n", e.params.Reservation)
	}
	fmt.Fprintf(&b, "#SBATCH --output=%s\n", filepath.Join(folder, "%A_%a.out"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "exec %s worker --job %s --folder %s --task-id ${SLURM_ARRAY_TASK_ID}\n",
		e.binary, job, folder)
	return b.String()
}

type slurmHandle struct {
	id     string
	folder string
	index  int
}

func (h *slurmHandle) ID() string { return h.id }

// Result blocks until the task's result or error file appears on the shared
// filesystem. Cancellation of ctx abandons the wait, not the job; Slurm has
// no idea we stopped watching.
func (h *slurmHandle) Result(ctx context.Context) (Result, error) {
	ticker := time.NewTicker(resultPollInterval)
	defer ticker.Stop()

	for {
		if res, done, err := readOutcome(h.folder, h.index); done {
			return res, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// WriteTask writes one task's args file into the submission folder.
func WriteTask(folder string, index int, p experiment.JobParams) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode task %d: %w", index, err)
	}
	path := filepath.Join(folder, fmt.Sprintf(taskFilePattern, index))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write task %d: %w", index, err)
	}
	return nil
}

// ReadTask reads one task's args file from the submission folder.
func ReadTask(folder string, index int) (experiment.JobParams, error) {
	var p experiment.JobParams
	data, err := os.ReadFile(filepath.Join(folder, fmt.Sprintf(taskFilePattern, index)))
	if err != nil {
		return p, fmt.Errorf("failed to read task %d: %w", index, err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to decode task %d: %w", index, err)
	}
	return p, nil
}

// WriteResult records a finished task's result in the submission folder.
func WriteResult(folder string, index int, res Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode result %d: %w", index, err)
	}
	return os.WriteFile(filepath.Join(folder, fmt.Sprintf(resultFilePattern, index)), data, 0o644)
}

// WriteError records a failed task's error in the submission folder.
func WriteError(folder string, index int, jobErr error) error {
	data, err := json.Marshal(map[string]string{"error": jobErr.Error()})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(folder, fmt.Sprintf(errorFilePattern, index)), data, 0o644)
}

// readOutcome checks for a task's result or error file. done is false while
// the task is still running.
func readOutcome(folder string, index int) (res Result, done bool, err error) {
	resultPath := filepath.Join(folder, fmt.Sprintf(resultFilePattern, index))
	if data, readErr := os.ReadFile(resultPath); readErr == nil {
		if err := json.Unmarshal(data, &res); err != nil {
			return nil, true, fmt.Errorf("corrupt result file %s: %w", resultPath, err)
		}
		return res, true, nil
	}

	errorPath := filepath.Join(folder, fmt.Sprintf(errorFilePattern, index))
	if data, readErr := os.ReadFile(errorPath); readErr == nil {
		var payload map[string]string
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, true, fmt.Errorf("corrupt error file %s: %w", errorPath, err)
		}
		return nil, true, fmt.Errorf("job failed: %s", payload["error"])
	}

	return nil, false, nil
}
