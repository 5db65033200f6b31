// Package experiment defines the hyperparameter record for one prospective
// job and derives its stable identifier and filesystem paths. The identifier
// is the only key the pipeline has: checkpoint deduplication, output
// directories and result lookup all go through it.
package experiment

import (
	"path/filepath"
	"strconv"
	"strings"

	"exp-orchestrator/core/params"
)

// PrefixSep separates identifier fields. It is distinct from the underscore
// used inside the flattened layer descriptor, so identifiers stay parseable.
const PrefixSep = "::"

// CheckpointExt is the extension of serialized model checkpoints.
const CheckpointExt = ".pt"

// JobParams is one fully-specified prospective job. Immutable once expanded;
// one record is consumed by exactly one submission.
type JobParams struct {
	Dataset      params.Dataset      `json:"dataset"`
	Model        params.Model        `json:"model"`
	Layers       []int               `json:"layers"`
	Activation   params.Activation   `json:"activation"`
	Loss         params.Loss         `json:"loss,omitempty"`
	Augmentation params.Augmentation `json:"augmentation,omitempty"`
	Seed         int                 `json:"seed"`
	L2Reg        float64             `json:"l2_reg"`
	ImgSize      int                 `json:"img_size"`
	Epochs       int                 `json:"epochs,omitempty"`

	// Derived and submission-only fields.
	BatchSize        int     `json:"batch_size,omitempty"`
	WarmupEpochs     int     `json:"warmup_epochs,omitempty"`
	LearningRate     float64 `json:"lr,omitempty"`
	GaussianNoiseVar float64 `json:"gaussian_noise_var,omitempty"`
	GaussianBlurVar  float64 `json:"gaussian_blur_var,omitempty"`
	AddInverse       bool    `json:"add_inverse,omitempty"`
	Port             *int    `json:"port,omitempty"`
	BlockMain        bool    `json:"block_main,omitempty"`
	TimeoutMin       int     `json:"timeout_min,omitempty"`
}

// Prefix returns the experiment identifier: the dataset as a path segment,
// then model, flattened layers, activation, seed, L2 strength and image size
// joined by PrefixSep. Records identical in those fields always share a
// prefix regardless of any other field.
func (p JobParams) Prefix() string {
	fields := []string{
		p.Model.String(),
		flattenLayers(p.Layers),
		p.Activation.String(),
		strconv.Itoa(p.Seed),
		formatFloat(p.L2Reg),
		strconv.Itoa(p.ImgSize),
	}
	return filepath.Join(p.Dataset.String(), strings.Join(fields, PrefixSep))
}

// CheckpointPath returns the checkpoint file path under root. Existence of
// this file is the sole "training already done" signal.
func (p JobParams) CheckpointPath(root string) string {
	return filepath.Join(root, p.Prefix()+CheckpointExt)
}

// OutputDir returns the experiment output directory under root. Existence of
// this directory means a downstream job is already running or finished.
func (p JobParams) OutputDir(root string) string {
	return filepath.Join(root, p.Prefix())
}

// LocalMode reports whether the record asks for local synchronous execution
// (debug port 0). A nil port means no debug hook, a positive port means a
// remote debugger will be attached on the compute node.
func (p JobParams) LocalMode() bool {
	return p.Port != nil && *p.Port == 0
}

// Device returns the accelerator the job should use. Local debug runs are
// forced onto the CPU.
func (p JobParams) Device() string {
	if p.LocalMode() {
		return "cpu"
	}
	return "cuda"
}

func flattenLayers(layers []int) string {
	parts := make([]string, len(layers))
	for i, l := range layers {
		parts[i] = strconv.Itoa(l)
	}
	return strings.Join(parts, "_")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
