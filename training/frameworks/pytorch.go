// Package frameworks builds the training-framework command lines the worker
// runs on a compute node. The models themselves live in Python; this layer
// only translates a job record into the entrypoint's arguments and
// environment.
package frameworks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"exp-orchestrator/core/experiment"
)

// PyTorchRunner invokes the PyTorch entrypoint scripts.
type PyTorchRunner struct {
	lg *zap.Logger
	// Python is the interpreter, normally from the job's virtualenv.
	Python string
	// Entrypoints maps a job name to its script path.
	Entrypoints map[string]string
	// CheckpointsRoot is where entrypoints save and load model weights.
	CheckpointsRoot string
}

// NewPyTorchRunner creates a runner for the given entrypoint scripts.
func NewPyTorchRunner(lg *zap.Logger, python string, entrypoints map[string]string, checkpointsRoot string) *PyTorchRunner {
	return &PyTorchRunner{lg: lg, Python: python, Entrypoints: entrypoints, CheckpointsRoot: checkpointsRoot}
}

// BuildArgs renders the entrypoint arguments for one job. Every
// hyperparameter travels explicitly; the entrypoint performs no grid logic
// of its own.
func (r *PyTorchRunner) BuildArgs(p experiment.JobParams, rootPath, outputDir string) []string {
	layers := make([]string, len(p.Layers))
	for i, l := range p.Layers {
		layers[i] = strconv.Itoa(l)
	}

	args := []string{
		"--dataset", p.Dataset.String(),
		"--model", p.Model.String(),
		"--layers", strings.Join(layers, ","),
		"--activation", p.Activation.String(),
		"--seed", strconv.Itoa(p.Seed),
		"--l2-reg", strconv.FormatFloat(p.L2Reg, 'g', -1, 64),
		"--img-size", strconv.Itoa(p.ImgSize),
		"--device", p.Device(),
		"--root-path", rootPath,
		"--output-dir", outputDir,
	}
	if r.CheckpointsRoot != "" {
		args = append(args, "--checkpoint", p.CheckpointPath(r.CheckpointsRoot))
	}
	if p.Epochs > 0 {
		args = append(args, "--epochs", strconv.Itoa(p.Epochs))
	}
	if p.BatchSize > 0 {
		args = append(args, "--batch-size", strconv.Itoa(p.BatchSize))
	}
	if p.WarmupEpochs > 0 {
		args = append(args, "--warmup-epochs", strconv.Itoa(p.WarmupEpochs))
	}
	if beta, ok := p.Activation.Beta(); ok {
		args = append(args, "--softplus-beta", strconv.FormatFloat(beta, 'g', -1, 64))
	}
	if p.AddInverse {
		args = append(args, "--add-inverse")
	}
	if p.Port != nil && *p.Port > 0 {
		// The entrypoint opens a remote debugger on this port and waits
		// for the client before training starts.
		args = append(args, "--debug-port", strconv.Itoa(*p.Port))
	}
	return args
}

// Env returns the process environment for one job.
func (r *PyTorchRunner) Env(p experiment.JobParams) []string {
	env := os.Environ()
	if p.Device() == "cpu" {
		env = append(env, "CUDA_VISIBLE_DEVICES=")
	}
	env = append(env, "OMP_NUM_THREADS=8")
	return env
}

// Run executes the entrypoint for one job and streams its output to the
// parent's stdio. Failures propagate untouched; retries belong to the batch
// scheduler.
func (r *PyTorchRunner) Run(ctx context.Context, job string, p experiment.JobParams, rootPath, outputDir string) error {
	script, ok := r.Entrypoints[job]
	if !ok {
		return fmt.Errorf("no entrypoint configured for job %q", job)
	}

	args := append([]string{script}, r.BuildArgs(p, rootPath, outputDir)...)
	cmd := exec.CommandContext(ctx, r.Python, args...)
	cmd.Env = r.Env(p)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	r.lg.Info("running entrypoint",
		zap.String("job", job),
		zap.String("experiment", p.Prefix()),
		zap.Strings("args", args),
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("entrypoint %s failed: %w", script, err)
	}
	return nil
}
