// Package jobs holds the compute-node entry points. The submitter ships a
// job name plus parameters; the worker looks the name up here and runs the
// matching function on whatever node the scheduler picked.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"exp-orchestrator/core/datasets"
	"exp-orchestrator/core/executor"
	"exp-orchestrator/core/experiment"
	"exp-orchestrator/core/params"
	"exp-orchestrator/core/submission"
	"exp-orchestrator/storage"
	"exp-orchestrator/training/frameworks"
)

// TransformsFileName is the pipeline descriptor the entrypoints read from
// the staged dataset directory.
const TransformsFileName = "transforms.json"

// QuantsJSONName is the metrics file the measurement entrypoint writes into
// its output directory.
const QuantsJSONName = "quants.json"

// Runner binds the staging, framework and storage layers into the three job
// entry points.
type Runner struct {
	lg          *zap.Logger
	registry    datasets.Registry
	stager      *datasets.Stager
	torch       *frameworks.PyTorchRunner
	checkpoints *storage.CheckpointStore
	outputs     *storage.OutputStore

	// computeOutputDir is node-local scratch where a job writes before
	// results are shipped to the shared output root.
	computeOutputDir string
}

// NewRunner creates the job runner for this node.
func NewRunner(
	lg *zap.Logger,
	registry datasets.Registry,
	stager *datasets.Stager,
	torch *frameworks.PyTorchRunner,
	checkpoints *storage.CheckpointStore,
	outputs *storage.OutputStore,
	computeOutputDir string,
) *Runner {
	return &Runner{
		lg:               lg,
		registry:         registry,
		stager:           stager,
		torch:            torch,
		checkpoints:      checkpoints,
		outputs:          outputs,
		computeOutputDir: computeOutputDir,
	}
}

// Funcs returns the registry the worker and the local debug path dispatch
// through.
func (r *Runner) Funcs() map[string]executor.JobFunc {
	return map[string]executor.JobFunc{
		submission.JobTraining:     r.Training,
		submission.JobGrads:        r.Grads,
		submission.JobMeasurements: r.Measurements,
	}
}

// Training stages the dataset onto the node, runs the training entrypoint
// and reports the checkpoint it produced.
func (r *Runner) Training(ctx context.Context, p experiment.JobParams) (executor.Result, error) {
	_, dirs, err := r.stage(ctx, p, params.AugmentationTrain)
	if err != nil {
		return nil, err
	}

	// Training output stays on node scratch; only the checkpoint lands on
	// the shared filesystem, and only its presence marks the job done.
	outDir := filepath.Join(dirs.ComputeDataDir, "train_out", p.Prefix())
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.checkpoints.Path(p)), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	if err := r.torch.Run(ctx, submission.JobTraining, p, dirs.BaseDir, outDir); err != nil {
		return nil, err
	}
	if !r.checkpoints.Exists(p) {
		return nil, fmt.Errorf("training finished but checkpoint %s is missing", r.checkpoints.Path(p))
	}

	return executor.Result{
		"experiment": p.Prefix(),
		"checkpoint": r.checkpoints.Path(p),
	}, nil
}

// Grads loads the experiment's checkpoint, computes per-example gradients on
// the node and ships the output directory back to the shared output root.
func (r *Runner) Grads(ctx context.Context, p experiment.JobParams) (executor.Result, error) {
	if !r.checkpoints.Exists(p) {
		return nil, fmt.Errorf("checkpoint %s does not exist", r.checkpoints.Path(p))
	}
	_, dirs, err := r.stage(ctx, p, params.AugmentationExpGen)
	if err != nil {
		return nil, err
	}

	nodeOut := filepath.Join(r.computeOutputDir, p.Prefix())
	if err := os.MkdirAll(nodeOut, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := r.torch.Run(ctx, submission.JobGrads, p, dirs.BaseDir, nodeOut); err != nil {
		return nil, err
	}

	sharedOut := r.outputs.Dir(p)
	if err := r.stager.ShipOutput(ctx, nodeOut, sharedOut); err != nil {
		return nil, err
	}
	return executor.Result{
		"experiment": p.Prefix(),
		"output_dir": sharedOut,
	}, nil
}

// Measurements loads the checkpoint, runs the measurement entrypoint and
// returns the metrics it wrote, keyed by metric name.
func (r *Runner) Measurements(ctx context.Context, p experiment.JobParams) (executor.Result, error) {
	if !r.checkpoints.Exists(p) {
		return nil, fmt.Errorf("checkpoint %s does not exist", r.checkpoints.Path(p))
	}
	_, dirs, err := r.stage(ctx, p, params.AugmentationExpVis)
	if err != nil {
		return nil, err
	}

	nodeOut := filepath.Join(r.computeOutputDir, p.Prefix())
	if err := os.MkdirAll(nodeOut, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := r.torch.Run(ctx, submission.JobMeasurements, p, dirs.BaseDir, nodeOut); err != nil {
		return nil, err
	}

	res, err := ReadQuants(filepath.Join(nodeOut, QuantsJSONName))
	if err != nil {
		return nil, err
	}
	res["experiment"] = p.Prefix()
	return res, nil
}

// stage resolves the dataset, copies it onto the node, extracts it and
// writes the transform descriptor the entrypoint reads.
func (r *Runner) stage(ctx context.Context, p experiment.JobParams, aug params.Augmentation) (*datasets.Source, datasets.Dirs, error) {
	src, err := r.registry.Resolve(p.Dataset)
	if err != nil {
		return nil, datasets.Dirs{}, err
	}
	dirs, err := r.stager.ResolveDirs(src, p.LocalMode())
	if err != nil {
		return nil, datasets.Dirs{}, err
	}
	if err := r.stager.MoveToNode(ctx, src, dirs); err != nil {
		return nil, datasets.Dirs{}, err
	}
	if err := r.stager.Extract(ctx, src, dirs); err != nil {
		return nil, datasets.Dirs{}, err
	}
	if err := r.writeTransforms(p, src, aug, dirs); err != nil {
		return nil, datasets.Dirs{}, err
	}
	return src, dirs, nil
}

// writeTransforms builds the train and test pipelines for the job and
// serializes them next to the staged data.
func (r *Runner) writeTransforms(p experiment.JobParams, src *datasets.Source, aug params.Augmentation, dirs datasets.Dirs) error {
	opts := datasets.PipelineOptions{
		ImgSize:          p.ImgSize,
		AddInverse:       p.AddInverse,
		GaussianNoiseVar: p.GaussianNoiseVar,
		GaussianBlurVar:  p.GaussianBlurVar,
	}
	train, err := datasets.BuildPipeline(src, aug, datasets.SplitTrain, opts)
	if err != nil {
		return err
	}
	test, err := datasets.BuildPipeline(src, aug, datasets.SplitTest, opts)
	if err != nil {
		return err
	}

	desc := map[string]datasets.Pipeline{
		string(datasets.SplitTrain): train,
		string(datasets.SplitTest):  test,
	}
	raw, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transforms: %w", err)
	}
	path := filepath.Join(dirs.BaseDir, TransformsFileName)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	r.lg.Info("wrote transform descriptor", zap.String("path", path), zap.String("augmentation", aug.String()))
	return nil
}

// ReadQuants decodes a metrics file into a flat string map, formatting
// numbers the way the quants table expects.
func ReadQuants(path string) (executor.Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}
	var metrics map[string]any
	if err := json.Unmarshal(raw, &metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics %s: %w", path, err)
	}

	res := make(executor.Result, len(metrics))
	for k, v := range metrics {
		res[k] = formatMetric(v)
	}
	return res, nil
}

func formatMetric(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
