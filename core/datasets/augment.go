package datasets

import (
	"fmt"

	"exp-orchestrator/core/params"
)

// Split selects the training or evaluation half of a dataset.
type Split string

const (
	SplitTrain Split = "train"
	SplitTest  Split = "test"
)

// Step is one transform in a pipeline, addressed by operation name. The
// descriptor is serialized into the job's staging directory and interpreted
// by the training entrypoint.
type Step struct {
	Op   string             `json:"op"`
	Args map[string]float64 `json:"args,omitempty"`
}

// Pipeline is an ordered transform list.
type Pipeline []Step

// PipelineOptions are the per-job augmentation knobs.
type PipelineOptions struct {
	ImgSize          int // 0 means the dataset default
	AddInverse       bool
	GaussianNoiseVar float64
	GaussianBlurVar  float64
}

// BuildPipeline assembles the transform pipeline for one dataset, mode and
// split. The add-inverse ablation replaces normalization; it is rejected for
// datasets that do not support it.
func BuildPipeline(src *Source, aug params.Augmentation, split Split, opts PipelineOptions) (Pipeline, error) {
	if opts.AddInverse && !src.SupportsAddInverse {
		return nil, fmt.Errorf("add_inverse is not implemented for %s", src.Dataset)
	}

	imgSize := opts.ImgSize
	if imgSize == 0 {
		imgSize = src.DefaultImgSize
	}
	size := float64(imgSize)

	switch aug {
	case params.AugmentationExpVis:
		// Visualization wants the raw image, only sized.
		return Pipeline{
			{Op: "to_tensor"},
			{Op: "resize", Args: map[string]float64{"size": size}},
		}, nil

	case params.AugmentationExpGen:
		p := Pipeline{
			{Op: "to_tensor"},
			{Op: "resize", Args: map[string]float64{"size": size}},
			normalizeStep(src, opts.AddInverse),
		}
		return appendNoise(p, opts), nil

	case params.AugmentationTrain:
		if split == SplitTest {
			return Pipeline{
				{Op: "to_tensor"},
				{Op: "resize", Args: map[string]float64{"size": size}},
				normalizeStep(src, opts.AddInverse),
			}, nil
		}
		p := Pipeline{
			{Op: "to_tensor"},
			{Op: "random_resized_crop", Args: map[string]float64{"size": size}},
			{Op: "random_horizontal_flip"},
			normalizeStep(src, opts.AddInverse),
		}
		return appendNoise(p, opts), nil
	}

	return nil, fmt.Errorf("unknown augmentation %q", aug)
}

func normalizeStep(src *Source, addInverse bool) Step {
	if addInverse {
		return Step{Op: "add_inverse"}
	}
	args := make(map[string]float64, 2*len(src.Mean))
	for i := range src.Mean {
		args[fmt.Sprintf("mean_%d", i)] = src.Mean[i]
		args[fmt.Sprintf("std_%d", i)] = src.Std[i]
	}
	return Step{Op: "normalize", Args: args}
}

func appendNoise(p Pipeline, opts PipelineOptions) Pipeline {
	if opts.GaussianNoiseVar > 0 {
		p = append(p, Step{Op: "gaussian_noise", Args: map[string]float64{"std": opts.GaussianNoiseVar}})
	}
	if opts.GaussianBlurVar > 0 {
		p = append(p, Step{Op: "gaussian_blur", Args: map[string]float64{"kernel": 5, "sigma": opts.GaussianBlurVar}})
	}
	return p
}
