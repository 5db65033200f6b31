// Package submission expands hyperparameter grids into job tables, filters
// out work that already exists on disk and dispatches the remainder to an
// executor. It is the only layer that decides whether a job runs; everything
// about how it runs belongs to the executor.
package submission

import (
	"exp-orchestrator/core/experiment"
	"exp-orchestrator/core/grid"
	"exp-orchestrator/core/params"
)

// Column names of the expanded job table.
const (
	colDataset         = "dataset"
	colModel           = "model"
	colLayers          = "layers"
	colActivation      = "activation"
	colSeed            = "seed"
	colL2Reg           = "l2_reg"
	colImgSize         = "img_size"
	colEpochs          = "epochs"
	colGaussianNoise   = "gaussian_noise_var"
	colGaussianBlur    = "gaussian_blur_var"
	colAddInverse      = "add_inverse"
	colPort            = "port"
	colBlockMain       = "block_main"
	colTimeout         = "timeout"
	colBatchSize       = "batch_size"
	colWarmupEpochs    = "warmup_epochs"
	colExperimentName  = "experiment_prefix"
	colCheckpointPath  = "checkpoint_path"
	colOutputDirectory = "experiment_output_dir"
)

// Grid is the hyperparameter space of one submission call. Every slice is
// one axis of the cartesian product; an empty axis collapses the product to
// zero jobs, which is not an error.
type Grid struct {
	Datasets          []params.Dataset
	Models            []params.Model
	Layers            [][]int
	Activations       []params.Activation
	Seeds             []int
	L2Regs            []float64
	ImgSizes          []int
	Epochs            []int
	GaussianNoiseVars []float64
	GaussianBlurVars  []float64
	AddInverse        []bool
}

// axes returns the grid's axes in the fixed expansion order. Optional axes
// (epochs, augmentation knobs) are omitted when empty rather than collapsing
// the product.
func (g Grid) axes() []grid.Axis {
	axes := []grid.Axis{
		{Name: colDataset, Values: anySlice(g.Datasets)},
		{Name: colModel, Values: anySlice(g.Models)},
		{Name: colLayers, Values: anySlice(g.Layers)},
		{Name: colActivation, Values: anySlice(g.Activations)},
		{Name: colSeed, Values: anySlice(g.Seeds)},
		{Name: colL2Reg, Values: anySlice(g.L2Regs)},
		{Name: colImgSize, Values: anySlice(g.ImgSizes)},
	}
	for _, opt := range []grid.Axis{
		{Name: colEpochs, Values: anySlice(g.Epochs)},
		{Name: colGaussianNoise, Values: anySlice(g.GaussianNoiseVars)},
		{Name: colGaussianBlur, Values: anySlice(g.GaussianBlurVars)},
		{Name: colAddInverse, Values: anySlice(g.AddInverse)},
	} {
		if len(opt.Values) > 0 {
			axes = append(axes, opt)
		}
	}
	return axes
}

// Expand builds the full job table for the grid.
func (g Grid) Expand() grid.Table {
	return grid.Product(g.axes()...)
}

func anySlice[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// Tasks converts every row of an expanded table into typed job records.
func Tasks(table grid.Table) []experiment.JobParams {
	tasks := make([]experiment.JobParams, 0, table.Len())
	for _, rec := range table.Rows {
		tasks = append(tasks, paramsFromRecord(rec))
	}
	return tasks
}

// paramsFromRecord converts one expanded row into a typed job record. The
// values were placed by axes(), so the assertions cannot fail for tables
// built by Expand.
func paramsFromRecord(rec grid.Record) experiment.JobParams {
	p := experiment.JobParams{
		Dataset:    rec[colDataset].(params.Dataset),
		Model:      rec[colModel].(params.Model),
		Layers:     rec[colLayers].([]int),
		Activation: rec[colActivation].(params.Activation),
		Seed:       rec[colSeed].(int),
		L2Reg:      rec[colL2Reg].(float64),
		ImgSize:    rec[colImgSize].(int),
	}
	if v, ok := rec[colEpochs]; ok {
		p.Epochs = v.(int)
	}
	if v, ok := rec[colGaussianNoise]; ok {
		p.GaussianNoiseVar = v.(float64)
	}
	if v, ok := rec[colGaussianBlur]; ok {
		p.GaussianBlurVar = v.(float64)
	}
	if v, ok := rec[colAddInverse]; ok {
		p.AddInverse = v.(bool)
	}
	if v, ok := rec[colBatchSize]; ok {
		p.BatchSize = v.(int)
	}
	if v, ok := rec[colWarmupEpochs]; ok {
		p.WarmupEpochs = v.(int)
	}
	if v, ok := rec[colPort]; ok {
		p.Port = v.(*int)
	}
	if v, ok := rec[colBlockMain]; ok {
		p.BlockMain = v.(bool)
	}
	if v, ok := rec[colTimeout]; ok {
		p.TimeoutMin = v.(int)
	}
	return p
}
