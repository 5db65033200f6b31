package submission

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exp-orchestrator/core/experiment"
	"exp-orchestrator/core/params"
	"exp-orchestrator/storage"
)

func testGrid() Grid {
	return Grid{
		Datasets:    []params.Dataset{params.DatasetCIFAR10},
		Models:      []params.Model{params.ModelResNet18, params.ModelSimpleCNN},
		Layers:      [][]int{{64, 128}},
		Activations: []params.Activation{params.ActivationReLU},
		Seeds:       []int{1, 2},
		L2Regs:      []float64{0.0001},
		ImgSizes:    []int{32},
		Epochs:      []int{10},
	}
}

func writeCheckpoint(t *testing.T, store *storage.CheckpointStore, p experiment.JobParams) {
	t.Helper()
	path := store.Path(p)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("ckpt"), 0o644))
}

func gridParams(model params.Model, seed int) experiment.JobParams {
	return experiment.JobParams{
		Dataset:    params.DatasetCIFAR10,
		Model:      model,
		Layers:     []int{64, 128},
		Activation: params.ActivationReLU,
		Seed:       seed,
		L2Reg:      0.0001,
		ImgSize:    32,
	}
}

func TestPlanTrainingSubmitsComplementOfExisting(t *testing.T) {
	checkpoints := storage.NewCheckpointStore(t.TempDir())

	// Grid expands to 4 jobs; (RESNET18, seed 1) is already trained.
	done := gridParams(params.ModelResNet18, 1)
	writeCheckpoint(t, checkpoints, done)

	plan := PlanTraining(testGrid().Expand(), checkpoints)

	assert.Equal(t, 3, plan.Submit.Len())
	require.Len(t, plan.CheckpointExists, 1)
	assert.Equal(t, checkpoints.Path(done), plan.CheckpointExists[0])
	for _, rec := range plan.Submit.Rows {
		assert.NotEqual(t, done.Prefix(), rec[colExperimentName])
	}
}

func TestPlanTrainingEmptyCheckpointDirSubmitsAll(t *testing.T) {
	checkpoints := storage.NewCheckpointStore(t.TempDir())
	plan := PlanTraining(testGrid().Expand(), checkpoints)
	assert.Equal(t, 4, plan.Submit.Len())
	assert.Empty(t, plan.CheckpointExists)
}

func TestPlanGradsClassification(t *testing.T) {
	checkpoints := storage.NewCheckpointStore(t.TempDir())
	outputs := storage.NewOutputStore(t.TempDir())

	// Checkpoints exist for RESNET18 seeds 1,2 and SIMPLE_CNN seed 1.
	// Output dirs exist for RESNET18 seed 2.
	// Expectation over the 4-job grid:
	//   RESNET18 seed 1   -> submit
	//   RESNET18 seed 2   -> output exists
	//   SIMPLE_CNN seed 1 -> submit
	//   SIMPLE_CNN seed 2 -> checkpoint missing
	for _, p := range []experiment.JobParams{
		gridParams(params.ModelResNet18, 1),
		gridParams(params.ModelResNet18, 2),
		gridParams(params.ModelSimpleCNN, 1),
	} {
		writeCheckpoint(t, checkpoints, p)
	}
	require.NoError(t, os.MkdirAll(outputs.Dir(gridParams(params.ModelResNet18, 2)), 0o755))

	plan := PlanGrads(testGrid().Expand(), checkpoints, outputs)

	assert.Equal(t, 2, plan.Submit.Len())
	require.Len(t, plan.MissingCheckpoint, 1)
	assert.Equal(t, checkpoints.Path(gridParams(params.ModelSimpleCNN, 2)), plan.MissingCheckpoint[0])
	require.Len(t, plan.OutputExists, 1)
	assert.Equal(t, outputs.Dir(gridParams(params.ModelResNet18, 2)), plan.OutputExists[0])

	submitted := map[any]bool{}
	for _, rec := range plan.Submit.Rows {
		submitted[rec[colExperimentName]] = true
	}
	assert.True(t, submitted[gridParams(params.ModelResNet18, 1).Prefix()])
	assert.True(t, submitted[gridParams(params.ModelSimpleCNN, 1).Prefix()])
}

func TestPlanGradsMissingCheckpointWinsOverOutputDir(t *testing.T) {
	checkpoints := storage.NewCheckpointStore(t.TempDir())
	outputs := storage.NewOutputStore(t.TempDir())

	// No checkpoint, but the output dir exists: still classified missing.
	p := gridParams(params.ModelResNet18, 1)
	require.NoError(t, os.MkdirAll(outputs.Dir(p), 0o755))

	g := testGrid()
	g.Models = []params.Model{params.ModelResNet18}
	g.Seeds = []int{1}

	plan := PlanGrads(g.Expand(), checkpoints, outputs)
	assert.Equal(t, 0, plan.Submit.Len())
	assert.Len(t, plan.MissingCheckpoint, 1)
	assert.Empty(t, plan.OutputExists)
}

func TestExpandEmptyAxisYieldsZeroJobs(t *testing.T) {
	g := testGrid()
	g.Seeds = nil
	assert.Equal(t, 0, g.Expand().Len())
}
