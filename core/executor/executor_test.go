package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"exp-orchestrator/core/experiment"
	"exp-orchestrator/core/params"
)

func task(seed int) experiment.JobParams {
	return experiment.JobParams{
		Dataset:    params.DatasetCIFAR10,
		Model:      params.ModelResNet18,
		Layers:     []int{64, 128},
		Activation: params.ActivationReLU,
		Seed:       seed,
		ImgSize:    32,
	}
}

func TestLocalExecutorRunsEveryTask(t *testing.T) {
	var seen []int
	jobs := map[string]JobFunc{
		"train": func(_ context.Context, p experiment.JobParams) (Result, error) {
			seen = append(seen, p.Seed)
			return Result{"seed": p.Prefix()}, nil
		},
	}
	e := NewLocalExecutor(zap.NewNop(), jobs)

	handles, err := e.MapArray(context.Background(), "train", []experiment.JobParams{task(1), task(2)})
	require.NoError(t, err)
	require.Len(t, handles, 2)
	assert.Equal(t, []int{1, 2}, seen)

	res, err := handles[0].Result(context.Background())
	require.NoError(t, err)
	assert.Equal(t, task(1).Prefix(), res["seed"])
}

func TestLocalExecutorPropagatesJobError(t *testing.T) {
	boom := errors.New("cuda out of memory")
	jobs := map[string]JobFunc{
		"train": func(context.Context, experiment.JobParams) (Result, error) {
			return nil, boom
		},
	}
	e := NewLocalExecutor(zap.NewNop(), jobs)

	handles, err := e.MapArray(context.Background(), "train", []experiment.JobParams{task(1)})
	require.NoError(t, err)

	_, err = handles[0].Result(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestLocalExecutorUnknownJob(t *testing.T) {
	e := NewLocalExecutor(zap.NewNop(), nil)
	_, err := e.MapArray(context.Background(), "nope", []experiment.JobParams{task(1)})
	assert.Error(t, err)
}

func TestTaskFileRoundTrip(t *testing.T) {
	folder := t.TempDir()
	want := task(7)
	want.L2Reg = 0.0001
	want.BatchSize = 128

	require.NoError(t, WriteTask(folder, 0, want))
	got, err := ReadTask(folder, 0)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestOutcomeFiles(t *testing.T) {
	folder := t.TempDir()

	_, done, _ := readOutcome(folder, 0)
	assert.False(t, done)

	require.NoError(t, WriteResult(folder, 0, Result{"accuracy": "0.9"}))
	res, done, err := readOutcome(folder, 0)
	require.True(t, done)
	require.NoError(t, err)
	assert.Equal(t, "0.9", res["accuracy"])

	require.NoError(t, WriteError(folder, 1, errors.New("node died")))
	_, done, err = readOutcome(folder, 1)
	require.True(t, done)
	assert.ErrorContains(t, err, "node died")
}

func TestRenderBatchScript(t *testing.T) {
	e := NewSlurmExecutor(zap.NewNop(), DefaultParameters(720), "/usr/local/bin/expsub")
	script := e.renderBatchScript("train", "logs/abc", 4)

	assert.Contains(t, script, "#SBATCH --array=0-3")
	assert.Contains(t, script, "#SBATCH --time=720")
	assert.Contains(t, script, "#SBATCH --cpus-per-task=8")
	assert.Contains(t, script, "#SBATCH --gpus=1")
	assert.Contains(t, script, "#SBATCH --constraint=thin")
	assert.Contains(t, script, "#SBATCH --reservation=safe")
	assert.Contains(t, script, "exec /usr/local/bin/expsub worker --job train --folder logs/abc --task-id ${SLURM_ARRAY_TASK_ID}")
}
