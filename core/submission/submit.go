package submission

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"exp-orchestrator/core/executor"
	"exp-orchestrator/core/experiment"
	"exp-orchestrator/core/grid"
	"exp-orchestrator/core/params"
	"exp-orchestrator/storage"
)

// Job names understood by the worker registry.
const (
	JobTraining     = "train"
	JobGrads        = "grads"
	JobMeasurements = "measure"
)

// Summary is what the operator sees before confirming a remote submission.
type Summary struct {
	Job     string
	Columns []string
	Nunique map[string]int
	Total   int
}

// Confirmer decides whether a remote submission proceeds. Injected so tests
// and non-interactive callers never touch a console.
type Confirmer func(s Summary) bool

// ExecutorFactory builds an executor for one submission's resource request.
type ExecutorFactory func(p executor.Parameters) executor.Executor

// Ledger records submitted batches. Write-only: the existence filter never
// consults it, the filesystem stays the sole deduplication ground truth.
type Ledger interface {
	RecordSubmission(ctx context.Context, job string, tasks []experiment.JobParams, handleIDs []string) error
}

// Options are the submission-only knobs shared by all three submit calls.
type Options struct {
	// BlockMain waits for every job result before returning.
	BlockMain bool
	// Port selects the debug mode: nil means none, 0 means run the first
	// job locally and synchronously, a positive value submits only the
	// first job and attaches a remote debugger on that port.
	Port *int
	// TimeoutMin is the per-job wall-clock limit requested from the
	// scheduler.
	TimeoutMin int
}

// TrainingRequest is one training submission call.
type TrainingRequest struct {
	Options
	Grid Grid
	// BatchSize maps each activation to the batch size that fits beside it
	// in GPU memory.
	BatchSize map[params.Activation]int
	// WarmupEpochsRatio derives warmup_epochs = floor(epochs * ratio).
	WarmupEpochsRatio float64
}

// GradsRequest is one gradient-computation submission call.
type GradsRequest struct {
	Options
	Grid      Grid
	BatchSize map[params.Activation]int
}

// MeasurementsRequest is one measurement submission call.
type MeasurementsRequest struct {
	Options
	Grid Grid
}

// Submitter expands, filters and dispatches submission calls. It is
// single-threaded and synchronous; all parallelism lives behind the
// executor.
type Submitter struct {
	lg          *zap.Logger
	checkpoints *storage.CheckpointStore
	outputs     *storage.OutputStore
	quantsDir   string
	newExecutor ExecutorFactory
	confirm     Confirmer
	jobs        map[string]executor.JobFunc
	ledger      Ledger // optional
}

// NewSubmitter creates a submitter. ledger may be nil.
func NewSubmitter(
	lg *zap.Logger,
	checkpoints *storage.CheckpointStore,
	outputs *storage.OutputStore,
	quantsDir string,
	newExecutor ExecutorFactory,
	confirm Confirmer,
	jobs map[string]executor.JobFunc,
	ledger Ledger,
) *Submitter {
	return &Submitter{
		lg:          lg,
		checkpoints: checkpoints,
		outputs:     outputs,
		quantsDir:   quantsDir,
		newExecutor: newExecutor,
		confirm:     confirm,
		jobs:        jobs,
		ledger:      ledger,
	}
}

// SubmitTraining expands the request, skips jobs whose checkpoint already
// exists and dispatches the rest.
func (s *Submitter) SubmitTraining(ctx context.Context, req TrainingRequest) ([]executor.Result, error) {
	table := req.Grid.Expand()
	plan := PlanTraining(table, s.checkpoints)

	for _, path := range plan.CheckpointExists {
		s.lg.Info("checkpoint exists, skipping", zap.String("checkpoint", path))
	}

	valid := plan.Submit
	s.attachSubmissionColumns(&valid, req.Options)
	valid.DeriveColumn(colBatchSize, func(rec grid.Record) any {
		return req.BatchSize[rec[colActivation].(params.Activation)]
	})
	valid.DeriveColumn(colWarmupEpochs, func(rec grid.Record) any {
		epochs, _ := rec[colEpochs].(int)
		return int(float64(epochs) * req.WarmupEpochsRatio)
	})

	return s.execute(ctx, JobTraining, valid, req.Options)
}

// SubmitGrads expands the request and dispatches only the jobs whose
// prerequisite checkpoint exists and whose output directory does not.
func (s *Submitter) SubmitGrads(ctx context.Context, req GradsRequest) ([]executor.Result, error) {
	table := req.Grid.Expand()
	s.attachSubmissionColumns(&table, req.Options)
	table.DeriveColumn(colBatchSize, func(rec grid.Record) any {
		return req.BatchSize[rec[colActivation].(params.Activation)]
	})

	plan := PlanGrads(table, s.checkpoints, s.outputs)
	for _, path := range plan.MissingCheckpoint {
		s.lg.Info("checkpoint missing, skipping", zap.String("checkpoint", path))
	}
	for _, dir := range plan.OutputExists {
		s.lg.Info("output dir exists, skipping", zap.String("output_dir", dir))
	}
	for _, rec := range plan.Submit.Rows {
		s.lg.Info("job eligible", zap.String("output_dir", rec[colOutputDirectory].(string)))
	}

	return s.execute(ctx, JobGrads, plan.Submit, req.Options)
}

// SubmitMeasurements expands the request and dispatches only the jobs whose
// prerequisite checkpoint exists and whose output directory does not, the
// same two predicates grads submission uses. When blocking, the collected
// measurement rows are written to quants.csv in the configured quants
// directory.
func (s *Submitter) SubmitMeasurements(ctx context.Context, req MeasurementsRequest) ([]executor.Result, error) {
	table := req.Grid.Expand()
	s.attachSubmissionColumns(&table, req.Options)

	plan := PlanGrads(table, s.checkpoints, s.outputs)
	for _, path := range plan.MissingCheckpoint {
		s.lg.Info("checkpoint missing, skipping", zap.String("checkpoint", path))
	}
	for _, dir := range plan.OutputExists {
		s.lg.Info("output dir exists, skipping", zap.String("output_dir", dir))
	}

	results, err := s.execute(ctx, JobMeasurements, plan.Submit, req.Options)
	if err != nil {
		return nil, err
	}

	if req.BlockMain && len(results) > 0 {
		rows := make([]storage.ResultRow, len(results))
		for i, res := range results {
			rows[i] = storage.ResultRow(res)
		}
		out, err := storage.WriteQuants(s.quantsDir, rows)
		if err != nil {
			return results, fmt.Errorf("failed to write measurement results: %w", err)
		}
		s.lg.Info("measurement results written", zap.String("path", out))
	}
	return results, nil
}

// execute is the single dispatch path: truncate for debug, short-circuit on
// empty tables, confirm, then run locally or submit the array job.
func (s *Submitter) execute(ctx context.Context, job string, table grid.Table, opts Options) ([]executor.Result, error) {
	tasks := Tasks(table)

	// The operator confirms the whole filtered table; the debug flag below
	// truncates what actually gets submitted, not what is shown.
	summary := Summary{
		Job:     job,
		Columns: table.Columns,
		Nunique: table.Nunique(),
		Total:   len(tasks),
	}

	if opts.Port != nil && len(tasks) > 1 {
		s.lg.Info("running only the first job because of the debug flag")
		tasks = tasks[:1]
		table.Rows = table.Rows[:1]
	}

	if len(tasks) == 0 {
		s.lg.Info("no jobs to run")
		return nil, nil
	}

	if opts.Port != nil && *opts.Port == 0 {
		fn, ok := s.jobs[job]
		if !ok {
			return nil, fmt.Errorf("unknown job %q", job)
		}
		s.lg.Info("running locally", zap.String("job", job))
		res, err := fn(ctx, tasks[0])
		if err != nil {
			return nil, err
		}
		return []executor.Result{res}, nil
	}

	if !s.confirm(summary) {
		s.lg.Info("submission aborted by operator", zap.String("job", job))
		return nil, nil
	}

	s.lg.Info("submitting jobs", zap.String("job", job), zap.Int("count", len(tasks)))
	exe := s.newExecutor(executor.DefaultParameters(opts.TimeoutMin))
	handles, err := exe.MapArray(ctx, job, tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to submit %s jobs: %w", job, err)
	}
	s.lg.Info("jobs submitted", zap.String("job", job), zap.Int("count", len(handles)))

	s.recordSubmission(ctx, job, tasks, handles)

	if !opts.BlockMain {
		return nil, nil
	}

	// Collect in submission order; the first failing handle aborts the wait
	// right there, results of later handles are never requested.
	s.lg.Info("waiting for jobs to finish", zap.String("job", job))
	results := make([]executor.Result, 0, len(handles))
	for _, h := range handles {
		res, err := h.Result(ctx)
		if err != nil {
			return nil, fmt.Errorf("job %s failed: %w", h.ID(), err)
		}
		results = append(results, res)
	}
	s.lg.Info("all jobs finished", zap.String("job", job), zap.Int("count", len(results)))
	return results, nil
}

// attachSubmissionColumns copies the call-level options onto every row so
// each task file is self-contained on the compute node.
func (s *Submitter) attachSubmissionColumns(table *grid.Table, opts Options) {
	if opts.Port != nil {
		table.SetColumn(colPort, opts.Port)
	}
	table.SetColumn(colBlockMain, opts.BlockMain)
	table.SetColumn(colTimeout, opts.TimeoutMin)
}

// recordSubmission writes the batch to the ledger when one is configured.
// Ledger failures are logged, never fatal: the jobs are already in flight.
func (s *Submitter) recordSubmission(ctx context.Context, job string, tasks []experiment.JobParams, handles []executor.Handle) {
	if s.ledger == nil {
		return
	}
	ids := make([]string, len(handles))
	for i, h := range handles {
		ids[i] = h.ID()
	}
	if err := s.ledger.RecordSubmission(ctx, job, tasks, ids); err != nil {
		s.lg.Warn("failed to record submission batch", zap.Error(err))
	}
}
