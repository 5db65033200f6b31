package submission

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"exp-orchestrator/core/executor"
	"exp-orchestrator/core/experiment"
	"exp-orchestrator/core/params"
	"exp-orchestrator/storage"
)

type fakeHandle struct {
	id     string
	res    executor.Result
	err    error
	polled *[]string
}

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Result(context.Context) (executor.Result, error) {
	*h.polled = append(*h.polled, h.id)
	return h.res, h.err
}

type fakeExecutor struct {
	submitted [][]experiment.JobParams
	job       string
	results   []executor.Result
	errs      []error
	polled    []string
}

func (e *fakeExecutor) MapArray(_ context.Context, job string, tasks []experiment.JobParams) ([]executor.Handle, error) {
	e.job = job
	e.submitted = append(e.submitted, tasks)
	handles := make([]executor.Handle, len(tasks))
	for i := range tasks {
		h := &fakeHandle{id: fmt.Sprintf("h%d", i), polled: &e.polled}
		if i < len(e.results) {
			h.res = e.results[i]
		}
		if i < len(e.errs) {
			h.err = e.errs[i]
		}
		handles[i] = h
	}
	return handles, nil
}

type recordedBatch struct {
	job   string
	tasks []experiment.JobParams
	ids   []string
}

type fakeLedger struct {
	batches []recordedBatch
}

func (l *fakeLedger) RecordSubmission(_ context.Context, job string, tasks []experiment.JobParams, ids []string) error {
	l.batches = append(l.batches, recordedBatch{job: job, tasks: tasks, ids: ids})
	return nil
}

func alwaysConfirm(Summary) bool { return true }
func neverConfirm(Summary) bool  { return false }

type testEnv struct {
	submitter *Submitter
	exec      *fakeExecutor
	ledger    *fakeLedger
	quantsDir string
	confirms  *[]Summary
	ckpts     *storage.CheckpointStore
	outs      *storage.OutputStore
}

func newTestEnv(t *testing.T, confirm Confirmer, jobs map[string]executor.JobFunc) *testEnv {
	t.Helper()
	env := &testEnv{
		exec:      &fakeExecutor{},
		ledger:    &fakeLedger{},
		quantsDir: t.TempDir(),
		confirms:  &[]Summary{},
		ckpts:     storage.NewCheckpointStore(t.TempDir()),
		outs:      storage.NewOutputStore(t.TempDir()),
	}
	wrapped := func(s Summary) bool {
		*env.confirms = append(*env.confirms, s)
		return confirm(s)
	}
	env.submitter = NewSubmitter(
		zap.NewNop(),
		env.ckpts,
		env.outs,
		env.quantsDir,
		func(executor.Parameters) executor.Executor { return env.exec },
		wrapped,
		jobs,
		env.ledger,
	)
	return env
}

func TestSubmitTrainingDispatchesAllJobs(t *testing.T) {
	env := newTestEnv(t, alwaysConfirm, nil)
	req := TrainingRequest{
		Options: Options{TimeoutMin: 720},
		Grid:    testGrid(),
		BatchSize: map[params.Activation]int{
			params.ActivationReLU: 256,
		},
		WarmupEpochsRatio: 0.1,
	}

	results, err := env.submitter.SubmitTraining(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, results) // non-blocking returns no results

	require.Len(t, env.exec.submitted, 1)
	tasks := env.exec.submitted[0]
	assert.Len(t, tasks, 4)
	assert.Equal(t, JobTraining, env.exec.job)
	for _, task := range tasks {
		assert.Equal(t, 256, task.BatchSize)
		assert.Equal(t, 1, task.WarmupEpochs) // 10 epochs * 0.1
		assert.Equal(t, 720, task.TimeoutMin)
	}
}

func TestSubmitTrainingSkipsExistingCheckpoints(t *testing.T) {
	env := newTestEnv(t, alwaysConfirm, nil)
	writeCheckpoint(t, env.ckpts, gridParams(params.ModelResNet18, 1))

	req := TrainingRequest{
		Grid:      testGrid(),
		BatchSize: map[params.Activation]int{params.ActivationReLU: 128},
	}
	_, err := env.submitter.SubmitTraining(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, env.exec.submitted, 1)
	assert.Len(t, env.exec.submitted[0], 3)
}

func TestEmptyTableShortCircuitsBeforeConfirmation(t *testing.T) {
	env := newTestEnv(t, alwaysConfirm, nil)

	g := testGrid()
	g.Models = nil // empty axis, zero jobs
	results, err := env.submitter.SubmitTraining(context.Background(), TrainingRequest{Grid: g})
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Empty(t, *env.confirms, "confirmation must not be reached")
	assert.Empty(t, env.exec.submitted)
}

func TestAbortedConfirmationSubmitsNothing(t *testing.T) {
	env := newTestEnv(t, neverConfirm, nil)

	results, err := env.submitter.SubmitTraining(context.Background(), TrainingRequest{
		Grid:      testGrid(),
		BatchSize: map[params.Activation]int{params.ActivationReLU: 128},
	})
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Len(t, *env.confirms, 1)
	assert.Empty(t, env.exec.submitted)
	assert.Empty(t, env.ledger.batches)
}

func TestConfirmationSummaryContents(t *testing.T) {
	env := newTestEnv(t, alwaysConfirm, nil)

	_, err := env.submitter.SubmitTraining(context.Background(), TrainingRequest{
		Grid:      testGrid(),
		BatchSize: map[params.Activation]int{params.ActivationReLU: 128},
	})
	require.NoError(t, err)

	require.Len(t, *env.confirms, 1)
	s := (*env.confirms)[0]
	assert.Equal(t, JobTraining, s.Job)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Nunique["model"])
	assert.Equal(t, 2, s.Nunique["seed"])
	assert.Equal(t, 1, s.Nunique["dataset"])
}

func TestLocalModeRunsOnlyFirstJob(t *testing.T) {
	var ran []int
	jobs := map[string]executor.JobFunc{
		JobTraining: func(_ context.Context, p experiment.JobParams) (executor.Result, error) {
			ran = append(ran, p.Seed)
			return executor.Result{"ok": "1"}, nil
		},
	}
	env := newTestEnv(t, alwaysConfirm, jobs)

	zero := 0
	results, err := env.submitter.SubmitTraining(context.Background(), TrainingRequest{
		Options:   Options{Port: &zero},
		Grid:      testGrid(),
		BatchSize: map[params.Activation]int{params.ActivationReLU: 128},
	})
	require.NoError(t, err)

	// Exactly one job ran, the first by table order, and the remote
	// executor and confirmation were both bypassed.
	assert.Equal(t, []int{1}, ran)
	require.Len(t, results, 1)
	assert.Empty(t, env.exec.submitted)
	assert.Empty(t, *env.confirms)
}

func TestLocalModeErrorPropagates(t *testing.T) {
	boom := errors.New("loss is NaN")
	jobs := map[string]executor.JobFunc{
		JobTraining: func(context.Context, experiment.JobParams) (executor.Result, error) {
			return nil, boom
		},
	}
	env := newTestEnv(t, alwaysConfirm, jobs)

	zero := 0
	_, err := env.submitter.SubmitTraining(context.Background(), TrainingRequest{
		Options:   Options{Port: &zero},
		Grid:      testGrid(),
		BatchSize: map[params.Activation]int{params.ActivationReLU: 128},
	})
	assert.ErrorIs(t, err, boom)
}

func TestRemoteDebugPortSubmitsOnlyFirstJob(t *testing.T) {
	env := newTestEnv(t, alwaysConfirm, nil)

	port := 5678
	_, err := env.submitter.SubmitTraining(context.Background(), TrainingRequest{
		Options:   Options{Port: &port},
		Grid:      testGrid(),
		BatchSize: map[params.Activation]int{params.ActivationReLU: 128},
	})
	require.NoError(t, err)

	require.Len(t, env.exec.submitted, 1)
	assert.Len(t, env.exec.submitted[0], 1)
}

func TestRemoteDebugPortSummaryCountsFullTable(t *testing.T) {
	env := newTestEnv(t, alwaysConfirm, nil)

	port := 5678
	_, err := env.submitter.SubmitTraining(context.Background(), TrainingRequest{
		Options:   Options{Port: &port},
		Grid:      testGrid(),
		BatchSize: map[params.Activation]int{params.ActivationReLU: 128},
	})
	require.NoError(t, err)

	// The operator confirms the whole table even though only the first job
	// is submitted.
	require.Len(t, *env.confirms, 1)
	summary := (*env.confirms)[0]
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Nunique["seed"])
	assert.Equal(t, 2, summary.Nunique["model"])

	require.Len(t, env.exec.submitted, 1)
	assert.Len(t, env.exec.submitted[0], 1)
}

func TestBlockingCollectsResultsInOrder(t *testing.T) {
	env := newTestEnv(t, alwaysConfirm, nil)
	env.exec.results = []executor.Result{
		{"seed": "1"}, {"seed": "2"}, {"seed": "3"}, {"seed": "4"},
	}

	results, err := env.submitter.SubmitTraining(context.Background(), TrainingRequest{
		Options:   Options{BlockMain: true},
		Grid:      testGrid(),
		BatchSize: map[params.Activation]int{params.ActivationReLU: 128},
	})
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, []string{"h0", "h1", "h2", "h3"}, env.exec.polled)
}

func TestBlockingFailureAbortsWaitAtThatPoint(t *testing.T) {
	env := newTestEnv(t, alwaysConfirm, nil)
	env.exec.results = make([]executor.Result, 4)
	env.exec.errs = []error{nil, errors.New("oom"), nil, nil}

	_, err := env.submitter.SubmitTraining(context.Background(), TrainingRequest{
		Options:   Options{BlockMain: true},
		Grid:      testGrid(),
		BatchSize: map[params.Activation]int{params.ActivationReLU: 128},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "oom")
	// Handles after the failing one were never asked for their result.
	assert.Equal(t, []string{"h0", "h1"}, env.exec.polled)
}

func TestSubmitGradsFiltersByBothPredicates(t *testing.T) {
	env := newTestEnv(t, alwaysConfirm, nil)
	writeCheckpoint(t, env.ckpts, gridParams(params.ModelResNet18, 1))
	writeCheckpoint(t, env.ckpts, gridParams(params.ModelSimpleCNN, 2))

	_, err := env.submitter.SubmitGrads(context.Background(), GradsRequest{
		Grid:      testGrid(),
		BatchSize: map[params.Activation]int{params.ActivationReLU: 64},
	})
	require.NoError(t, err)

	require.Len(t, env.exec.submitted, 1)
	tasks := env.exec.submitted[0]
	require.Len(t, tasks, 2)
	assert.Equal(t, JobGrads, env.exec.job)
	for _, task := range tasks {
		assert.Equal(t, 64, task.BatchSize)
	}
}

func TestSubmitMeasurementsFiltersByBothPredicates(t *testing.T) {
	env := newTestEnv(t, alwaysConfirm, nil)

	// No checkpoints at all: nothing may reach the executor.
	_, err := env.submitter.SubmitMeasurements(context.Background(), MeasurementsRequest{
		Grid: testGrid(),
	})
	require.NoError(t, err)
	assert.Empty(t, env.exec.submitted)

	// One experiment trained, another trained but already measured.
	writeCheckpoint(t, env.ckpts, gridParams(params.ModelResNet18, 1))
	writeCheckpoint(t, env.ckpts, gridParams(params.ModelSimpleCNN, 2))
	require.NoError(t, os.MkdirAll(env.outs.Dir(gridParams(params.ModelSimpleCNN, 2)), 0o755))

	_, err = env.submitter.SubmitMeasurements(context.Background(), MeasurementsRequest{
		Grid: testGrid(),
	})
	require.NoError(t, err)

	require.Len(t, env.exec.submitted, 1)
	tasks := env.exec.submitted[0]
	require.Len(t, tasks, 1)
	assert.Equal(t, JobMeasurements, env.exec.job)
	assert.Equal(t, gridParams(params.ModelResNet18, 1).Prefix(), tasks[0].Prefix())
}

func TestSubmitMeasurementsBlockingWritesQuants(t *testing.T) {
	env := newTestEnv(t, alwaysConfirm, nil)
	for _, model := range []params.Model{params.ModelResNet18, params.ModelSimpleCNN} {
		for _, seed := range []int{1, 2} {
			writeCheckpoint(t, env.ckpts, gridParams(model, seed))
		}
	}
	env.exec.results = []executor.Result{
		{"experiment": "a", "q": "0.5"},
		{"experiment": "b", "q": "0.7"},
		{"experiment": "c", "q": "0.6"},
		{"experiment": "d", "q": "0.8"},
	}

	results, err := env.submitter.SubmitMeasurements(context.Background(), MeasurementsRequest{
		Options: Options{BlockMain: true},
		Grid:    testGrid(),
	})
	require.NoError(t, err)
	assert.Len(t, results, 4)

	data, err := os.ReadFile(filepath.Join(env.quantsDir, storage.QuantsFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "experiment,q")
	assert.Contains(t, string(data), "b,0.7")
}

func TestLedgerRecordsSubmittedBatch(t *testing.T) {
	env := newTestEnv(t, alwaysConfirm, nil)

	_, err := env.submitter.SubmitTraining(context.Background(), TrainingRequest{
		Grid:      testGrid(),
		BatchSize: map[params.Activation]int{params.ActivationReLU: 128},
	})
	require.NoError(t, err)

	require.Len(t, env.ledger.batches, 1)
	batch := env.ledger.batches[0]
	assert.Equal(t, JobTraining, batch.job)
	assert.Len(t, batch.tasks, 4)
	assert.Equal(t, []string{"h0", "h1", "h2", "h3"}, batch.ids)
}
